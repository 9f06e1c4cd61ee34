package live

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// RefreshSignal is the point where the loop yields between iterations.
type RefreshSignal interface {
	Wait(ctx context.Context) error
}

// DisplayRefresh paces the loop to the viewers' paint cycle. Each viewer acks a
// painted frame (requestAnimationFrame on the page) which calls Signal. When no
// viewer paints, a timer at the configured display rate takes over.
type DisplayRefresh struct {
	clock    clock.Clock
	interval time.Duration
	signal   chan struct{}
}

func NewDisplayRefresh(clk clock.Clock, rateHz int) *DisplayRefresh {
	if clk == nil {
		clk = clock.New()
	}
	if rateHz <= 0 {
		rateHz = 60
	}
	return &DisplayRefresh{
		clock:    clk,
		interval: time.Second / time.Duration(rateHz),
		signal:   make(chan struct{}, 1),
	}
}

// Signal reports a display refresh. Signals are coalesced.
func (d *DisplayRefresh) Signal() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Interval is the fallback period.
func (d *DisplayRefresh) Interval() time.Duration {
	return d.interval
}

// Wait blocks until the next refresh or ctx is done.
func (d *DisplayRefresh) Wait(ctx context.Context) error {
	timer := d.clock.Timer(d.interval)
	defer timer.Stop()

	select {
	case <-d.signal:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
