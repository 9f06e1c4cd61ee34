package frame

import (
	"context"
	"errors"
	"fmt"
	"image"

	"livedetect/internal/model"
)

// ErrCaptureUnavailable is returned when no frame could be put on the surface:
// no camera stream, no surface, or the snapshot itself failed. Callers treat it
// as "cannot proceed this iteration".
var ErrCaptureUnavailable = errors.New("capture unavailable")

// SnapshotSource hands out the current camera frame along with the facing of the
// camera that produced it.
type SnapshotSource interface {
	Snapshot() (image.Image, model.Facing, error)
}

// Capturer draws camera frames onto a Surface.
type Capturer struct {
	source SnapshotSource
}

func NewCapturer(source SnapshotSource) *Capturer {
	return &Capturer{source: source}
}

// Capture grabs a frame and draws it, mirrored for the front camera. The frame
// is fully decoded and drawn before Capture returns.
func (c *Capturer) Capture(ctx context.Context, surface *Surface) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.source == nil {
		return fmt.Errorf("%w: no camera", ErrCaptureUnavailable)
	}
	if surface == nil || !surface.Ready() {
		return fmt.Errorf("%w: surface not allocated", ErrCaptureUnavailable)
	}

	img, facing, err := c.source.Snapshot()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("%w: empty snapshot", ErrCaptureUnavailable)
	}

	surface.DrawFrame(img, facing.Mirrored())
	return nil
}
