package camera

import (
	"context"
	"image"

	"livedetect/internal/model"
)

// Device is the platform camera boundary.
type Device interface {
	// Acquire opens a video-only stream for the given facing.
	Acquire(ctx context.Context, facing model.Facing) (Stream, error)
}

// Stream is one open device stream.
type Stream interface {
	Tracks() []Track
	// Read grabs the current frame, fully decoded.
	Read() (image.Image, error)
	// Size is the frame size reported by the device.
	Size() (width, height int)
}

// Track is a single media track of a stream. Stop must be idempotent.
type Track interface {
	ID() string
	Kind() string
	Stop() error
}
