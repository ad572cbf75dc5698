package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type probeBackend struct {
	up    atomic.Bool
	calls atomic.Int32
}

func (p *probeBackend) Name() string { return "fake" }

func (p *probeBackend) Complete(context.Context, CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{}, nil
}

func (p *probeBackend) IsAvailable(context.Context) bool {
	p.calls.Add(1)
	return p.up.Load()
}

func TestMonitorCheckOnce(t *testing.T) {
	b := &probeBackend{}
	var mu sync.Mutex
	var events []string
	m := NewMonitor(b, time.Hour, func(typ, msg string) {
		mu.Lock()
		events = append(events, typ+":"+msg)
		mu.Unlock()
	})

	if m.Last().Checked() {
		t.Fatal("Last().Checked() = true before any probe")
	}

	l := m.CheckOnce(context.Background())
	if l.Available || !l.Checked() || l.Checks != 1 {
		t.Errorf("first probe = %+v, want unavailable, checked, 1 check", l)
	}

	b.up.Store(true)
	l = m.CheckOnce(context.Background())
	if !l.Available || l.Checks != 2 {
		t.Errorf("second probe = %+v, want available, 2 checks", l)
	}

	// unchanged state emits nothing new
	m.CheckOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	want := []string{"error:fake backend unreachable", "status:fake backend reachable"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	b := &probeBackend{}
	b.up.Store(true)
	m := NewMonitor(b, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for b.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("monitor probed %d times, want >= 3", b.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !m.Last().Available {
		t.Error("Last().Available = false")
	}
}
