package model

import "time"

// TimingSample is the timing of a single loop iteration. Only the latest one is
// kept around for display.
type TimingSample struct {
	SessionID string
	Iteration int
	StartedAt time.Time
	Inference time.Duration // zero when inference did not run
	Total     time.Duration
}
