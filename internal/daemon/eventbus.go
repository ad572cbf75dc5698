package daemon

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types on the /v1/events stream.
const (
	EventRoute  = "route"  // a task was routed
	EventStatus = "status" // status change (backend liveness, startup)
	EventError  = "error"  // failure notification
)

// Event is one entry on the event stream.
type Event struct {
	Type    string `json:"type"`
	TaskID  string `json:"task_id,omitempty"`
	Handler string `json:"handler,omitempty"`
	Code    string `json:"code,omitempty"`
	Source  string `json:"source,omitempty"` // http, matrix
	Message string `json:"message,omitempty"`
	TS      string `json:"ts"`
}

// Marshal serializes the event, stamping it if needed.
func (e Event) Marshal() []byte {
	if e.TS == "" {
		e.TS = time.Now().UTC().Format(time.RFC3339)
	}
	b, _ := json.Marshal(e)
	return b
}

// EventBus fans events out to stream subscribers and keeps a short
// history for new connections. Slow subscribers miss events rather than
// blocking publishers.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	recent []Event
	max    int
}

// NewEventBus creates a bus keeping the last maxRecent events (200 if <= 0).
func NewEventBus(maxRecent int) *EventBus {
	if maxRecent <= 0 {
		maxRecent = 200
	}
	return &EventBus{subs: make(map[chan Event]struct{}), max: maxRecent}
}

// Publish records e and delivers it to every subscriber without blocking.
func (eb *EventBus) Publish(e Event) {
	if e.TS == "" {
		e.TS = time.Now().UTC().Format(time.RFC3339)
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.recent = append(eb.recent, e)
	if len(eb.recent) > eb.max {
		eb.recent = eb.recent[len(eb.recent)-eb.max:]
	}
	for ch := range eb.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// StatusFunc adapts the bus to a (type, message) callback such as
// llm.EventFunc.
func (eb *EventBus) StatusFunc() func(typ, message string) {
	return func(typ, message string) {
		eb.Publish(Event{Type: typ, Message: message})
	}
}

// Subscribe returns a channel of future events. The caller must pass it
// to Unsubscribe when done.
func (eb *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	eb.mu.Lock()
	eb.subs[ch] = struct{}{}
	eb.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (eb *EventBus) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if _, ok := eb.subs[ch]; ok {
		delete(eb.subs, ch)
		close(ch)
	}
}

// Recent returns up to n of the latest events, oldest first. n <= 0 returns all.
func (eb *EventBus) Recent(n int) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if n <= 0 || n > len(eb.recent) {
		n = len(eb.recent)
	}
	out := make([]Event, n)
	copy(out, eb.recent[len(eb.recent)-n:])
	return out
}

// SubscriberCount returns the number of connected subscribers.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subs)
}
