package server

import (
	"strings"
	"sync"
	"time"

	"github.com/amanullahtanweer/interview-orchestrator/internal/notify"
)

// MaxStatuses is how many recent status lines a Tracker keeps.
const MaxStatuses = 50

const subscriberBuffer = 32

// View is the session snapshot served to clients.
type View struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	Statuses   []string  `json:"statuses"`
	Transcript string    `json:"transcript"`
	Summary    string    `json:"summary"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Tracker is a notify.Observer that remembers the latest session and fans
// events out to websocket subscribers.
type Tracker struct {
	mu   sync.Mutex
	view View
	subs map[chan notify.Event]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{subs: make(map[chan notify.Event]struct{})}
}

// Notify implements notify.Observer.
func (t *Tracker) Notify(e notify.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.SessionID != t.view.ID {
		t.view = View{ID: e.SessionID}
	}
	t.view.State = e.State
	t.view.UpdatedAt = e.Time
	switch e.Kind {
	case notify.KindStatus:
		t.view.Statuses = append(t.view.Statuses, e.Text)
		if n := len(t.view.Statuses); n > MaxStatuses {
			t.view.Statuses = append([]string(nil), t.view.Statuses[n-MaxStatuses:]...)
		}
		if strings.HasPrefix(e.Text, "Interview failed: ") {
			t.view.Error = strings.TrimPrefix(e.Text, "Interview failed: ")
		}
	case notify.KindTranscript:
		t.view.Transcript = e.Text
	case notify.KindSummary:
		t.view.Summary = e.Text
	}

	for ch := range t.subs {
		select {
		case ch <- e:
		default:
			// A slow client loses events; it can re-read the snapshot.
		}
	}
}

// Snapshot returns a copy of the latest view.
func (t *Tracker) Snapshot() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.view
	v.Statuses = append([]string(nil), t.view.Statuses...)
	return v
}

// Subscribe registers for live events. Call cancel to unregister.
func (t *Tracker) Subscribe() (<-chan notify.Event, func()) {
	ch := make(chan notify.Event, subscriberBuffer)
	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, ch)
			t.mu.Unlock()
		})
	}
}
