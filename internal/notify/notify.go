// Package notify delivers session events to observers without letting a slow
// observer stall the session worker indefinitely.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind identifies one of the three observer channels.
type Kind string

const (
	KindStatus     Kind = "status"
	KindTranscript Kind = "transcript"
	KindSummary    Kind = "summary"
)

// Event is a single notification.
type Event struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	Text      string    `json:"text"`
	Time      time.Time `json:"time"`
}

// Observer receives events.
type Observer interface {
	Notify(Event)
}

// Sinks routes events to up to three optional callbacks.
type Sinks struct {
	OnStatus     func(string)
	OnTranscript func(string)
	OnSummary    func(string)
}

// Notify implements Observer.
func (s Sinks) Notify(e Event) {
	switch e.Kind {
	case KindStatus:
		if s.OnStatus != nil {
			s.OnStatus(e.Text)
		}
	case KindTranscript:
		if s.OnTranscript != nil {
			s.OnTranscript(e.Text)
		}
	case KindSummary:
		if s.OnSummary != nil {
			s.OnSummary(e.Text)
		}
	}
}

// Multi fans an event out to every non-nil observer in order.
type Multi []Observer

func (m Multi) Notify(e Event) {
	for _, o := range m {
		if o != nil {
			o.Notify(e)
		}
	}
}

// DefaultQueueSize bounds the number of undelivered events per dispatcher.
const DefaultQueueSize = 64

// Dispatcher hands events to an observer on its own goroutine, preserving
// emission order. Emit blocks only while the queue is full.
type Dispatcher struct {
	observer Observer
	queue    chan Event
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts a dispatcher. A nil observer discards events.
func NewDispatcher(observer Observer, size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	d := &Dispatcher{
		observer: observer,
		queue:    make(chan Event, size),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		d.deliver(e)
	}
}

func (d *Dispatcher) deliver(e Event) {
	if d.observer == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("session", e.SessionID).Str("kind", string(e.Kind)).
				Msg(fmt.Sprintf("observer panicked: %v", p))
		}
	}()
	d.observer.Notify(e)
}

// Emit queues e. Events emitted after Close are dropped.
func (d *Dispatcher) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	d.queue <- e
}

// Close stops accepting events and waits until every queued event is delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}
