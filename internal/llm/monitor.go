package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Liveness is the last observed availability of a backend.
type Liveness struct {
	Backend   string    `json:"backend"`
	Available bool      `json:"available"`
	CheckedAt time.Time `json:"checked_at"`
	Checks    int       `json:"checks"`
}

// Checked reports whether at least one probe has completed.
func (l Liveness) Checked() bool { return !l.CheckedAt.IsZero() }

// EventFunc is called with status messages from the monitor.
type EventFunc func(typ, message string)

// Monitor periodically probes a backend and caches the result so status
// reporting never has to touch the network.
type Monitor struct {
	backend  Backend
	interval time.Duration
	onEvent  EventFunc

	mu   sync.RWMutex
	last Liveness
}

// NewMonitor creates a liveness monitor. onEvent may be nil.
func NewMonitor(b Backend, interval time.Duration, onEvent EventFunc) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		backend:  b,
		interval: interval,
		onEvent:  onEvent,
		last:     Liveness{Backend: b.Name()},
	}
}

// Run probes immediately, then on every tick. Blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("backend monitor started", "backend", m.backend.Name(), "interval", m.interval)

	m.CheckOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("backend monitor stopping")
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// CheckOnce runs a single probe and records the result.
func (m *Monitor) CheckOnce(ctx context.Context) Liveness {
	available := m.backend.IsAvailable(ctx)

	m.mu.Lock()
	prev := m.last
	m.last.Available = available
	m.last.CheckedAt = time.Now()
	m.last.Checks++
	cur := m.last
	m.mu.Unlock()

	if !prev.Checked() || prev.Available != available {
		if available {
			slog.Info("backend reachable", "backend", cur.Backend)
			m.emit("status", cur.Backend+" backend reachable")
		} else {
			slog.Warn("backend unreachable", "backend", cur.Backend)
			m.emit("error", cur.Backend+" backend unreachable")
		}
	}
	return cur
}

// Last returns the most recent observation.
func (m *Monitor) Last() Liveness {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *Monitor) emit(typ, message string) {
	if m.onEvent != nil {
		m.onEvent(typ, message)
	}
}
