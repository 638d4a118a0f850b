package flow

import (
	"context"
	"fmt"
	"sync"
)

// remoteHandle guards a RemoteSession so Leave runs at most once and nothing
// is sent after it.
type remoteHandle struct {
	session RemoteSession

	mu       sync.Mutex
	once     sync.Once
	released bool
	leaveErr error
}

func newRemoteHandle(session RemoteSession) *remoteHandle {
	return &remoteHandle{session: session}
}

func (h *remoteHandle) SendMessage(ctx context.Context, text string) error {
	h.mu.Lock()
	released := h.released
	h.mu.Unlock()
	if released {
		return ErrSessionReleased
	}
	return h.session.SendMessage(ctx, text)
}

// Release leaves the remote session. Later calls return the first result.
func (h *remoteHandle) Release(ctx context.Context) error {
	h.once.Do(func() {
		h.mu.Lock()
		h.released = true
		h.mu.Unlock()
		h.leaveErr = guard(func() error { return h.session.Leave(ctx) })
	})
	return h.leaveErr
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
