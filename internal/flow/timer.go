package flow

import (
	"context"
	"time"
)

// WindowTimer suspends the session worker for a fixed window. The wait is
// not tied to any speech signal and always ends once the window elapses.
type WindowTimer struct {
	duration time.Duration
}

// NewWindowTimer creates a timer for the given window.
func NewWindowTimer(duration time.Duration) *WindowTimer {
	return &WindowTimer{duration: duration}
}

// Wait blocks for the window, or until ctx is done.
func (wt *WindowTimer) Wait(ctx context.Context) error {
	if wt.duration <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wt.duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
