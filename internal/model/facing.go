package model

import "fmt"

// Facing selects which physical camera is active.
type Facing string

const (
	FacingFront Facing = "front" // user-facing
	FacingRear  Facing = "rear"  // environment-facing
)

// ParseFacing accepts "front"/"rear" as well as the browser names "user"/"environment".
func ParseFacing(s string) (Facing, error) {
	switch s {
	case "front", "user":
		return FacingFront, nil
	case "rear", "environment":
		return FacingRear, nil
	}
	return "", fmt.Errorf("unknown facing %q", s)
}

// Toggle returns the other camera.
func (f Facing) Toggle() Facing {
	if f == FacingFront {
		return FacingRear
	}
	return FacingFront
}

// Mirrored reports whether frames from this camera are flipped horizontally
// before drawing. Only the front camera is.
func (f Facing) Mirrored() bool {
	return f == FacingFront
}
