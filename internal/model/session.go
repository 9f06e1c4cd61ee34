package model

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DetectionSession is one continuous run of the live loop. It is created active
// and can only go inactive; a stopped session is never restarted.
type DetectionSession struct {
	ID        string
	StartedAt time.Time
	active    atomic.Bool
}

func NewDetectionSession(startedAt time.Time) *DetectionSession {
	s := &DetectionSession{
		ID:        uuid.NewString(),
		StartedAt: startedAt,
	}
	s.active.Store(true)
	return s
}

func (s *DetectionSession) Active() bool {
	return s.active.Load()
}

// Deactivate clears the active flag. Returns true if this call did the clearing.
func (s *DetectionSession) Deactivate() bool {
	return s.active.CompareAndSwap(true, false)
}
