package live

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayRefresh_SignalReleasesWait(t *testing.T) {
	r := NewDisplayRefresh(clock.NewMock(), 60)
	r.Signal()
	r.Signal() // coalesced

	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded, "second signal was coalesced into the first")
}

func TestDisplayRefresh_FallbackTimer(t *testing.T) {
	mock := clock.NewMock()
	r := NewDisplayRefresh(mock, 50)
	assert.Equal(t, 20*time.Millisecond, r.Interval())

	done := make(chan error, 1)
	go func() { done <- r.Wait(context.Background()) }()

	require.Eventually(t, func() bool {
		mock.Add(r.Interval())
		select {
		case err := <-done:
			return err == nil
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestDisplayRefresh_Cancel(t *testing.T) {
	r := NewDisplayRefresh(clock.NewMock(), 60)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}
