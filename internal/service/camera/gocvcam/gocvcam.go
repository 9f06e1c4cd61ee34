// Package gocvcam opens local cameras through OpenCV's VideoCapture.
package gocvcam

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"livedetect/internal/model"
	"livedetect/internal/service/camera"
)

// Device maps a facing to a local capture device index.
type Device struct {
	Front  int
	Rear   int
	Width  int
	Height int
}

// Acquire opens the capture device for facing. Laptops with a single camera can
// map both facings to the same index.
func (d *Device) Acquire(ctx context.Context, facing model.Facing) (camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := d.Rear
	if facing == model.FacingFront {
		id = d.Front
	}

	capture, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %d: %w", id, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("device %d is not available", id)
	}
	if d.Width > 0 && d.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(d.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(d.Height))
	}

	s := &stream{capture: capture, frame: gocv.NewMat()}
	s.track = &track{id: fmt.Sprintf("video-%d", id), stream: s}
	return s, nil
}

type stream struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
	track   *track
	stopped bool
}

func (s *stream) Tracks() []camera.Track {
	return []camera.Track{s.track}
}

func (s *stream) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, 0
	}
	return int(s.capture.Get(gocv.VideoCaptureFrameWidth)), int(s.capture.Get(gocv.VideoCaptureFrameHeight))
}

func (s *stream) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("stream stopped")
	}
	if !s.capture.Read(&s.frame) {
		return nil, fmt.Errorf("cannot read frame")
	}
	if s.frame.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}
	return s.frame.ToImage()
}

func (s *stream) stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.frame.Close()
	return s.capture.Close()
}

type track struct {
	id     string
	stream *stream
}

func (t *track) ID() string   { return t.id }
func (t *track) Kind() string { return "video" }
func (t *track) Stop() error  { return t.stream.stop() }
