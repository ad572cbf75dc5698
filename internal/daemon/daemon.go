// Package daemon serves the router over HTTP and, optionally, chat
// channels, alongside the backend liveness monitor.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nous-labs/switchboard/internal/channel"
	"github.com/nous-labs/switchboard/internal/llm"
	"github.com/nous-labs/switchboard/internal/registry"
	"github.com/nous-labs/switchboard/internal/router"
)

// Options configures a Daemon. Router is required; everything else is optional.
type Options struct {
	Name     string
	Addr     string // HTTP listen address, e.g. "127.0.0.1:8787"
	Router   *router.Router
	Monitor  *llm.Monitor
	Projects registry.Registry
	Channels []channel.Channel
	Events   *EventBus
}

// Daemon is the long-running switchboard process.
type Daemon struct {
	name     string
	addr     string
	router   *router.Router
	monitor  *llm.Monitor
	projects registry.Registry
	channels []channel.Channel
	events   *EventBus

	startedAt time.Time
}

// New creates a daemon from opts.
func New(opts Options) (*Daemon, error) {
	if opts.Router == nil {
		return nil, errors.New("daemon: router is required")
	}
	if opts.Name == "" {
		opts.Name = "switchboard"
	}
	if opts.Events == nil {
		opts.Events = NewEventBus(0)
	}
	return &Daemon{
		name:      opts.Name,
		addr:      opts.Addr,
		router:    opts.Router,
		monitor:   opts.Monitor,
		projects:  opts.Projects,
		channels:  opts.Channels,
		events:    opts.Events,
		startedAt: time.Now(),
	}, nil
}

// Events returns the daemon's event bus.
func (d *Daemon) Events() *EventBus { return d.events }

// Run serves until ctx is cancelled or a component fails. The HTTP server,
// the monitor and each channel run in their own goroutine; all of them are
// stopped before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.addr, err)
	}
	return d.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	// Requests inherit ctx so streams end when the daemon stops.
	srv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	g.Go(func() error {
		slog.Info("HTTP API listening", "addr", ln.Addr().String(), "endpoints", endpoints)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown timed out, closing connections", "error", err)
			return srv.Close()
		}
		return nil
	})

	if d.monitor != nil {
		g.Go(func() error {
			d.monitor.Run(ctx)
			return nil
		})
	}

	for _, ch := range d.channels {
		g.Go(func() error {
			slog.Info("starting channel", "channel", ch.Name())
			if err := ch.Start(ctx, d.onMessage); err != nil && ctx.Err() == nil {
				return fmt.Errorf("%s channel: %w", ch.Name(), err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return ch.Stop()
		})
	}

	d.events.Publish(Event{Type: EventStatus, Message: d.name + " ready"})
	slog.Info("switchboard daemon running", "name", d.name, "handlers", len(d.router.Handlers()), "channels", len(d.channels))

	err := g.Wait()
	slog.Info("switchboard daemon stopped")
	return err
}

// route runs one task and publishes the result.
func (d *Daemon) route(ctx context.Context, source string, task router.Task) router.Outcome {
	out := d.router.Route(ctx, task)

	evt := Event{
		Type:    EventRoute,
		TaskID:  out.TaskID,
		Handler: out.Handler,
		Code:    string(out.Code),
		Source:  source,
		Message: truncate(task.Text, 120),
	}
	if out.Failed() {
		evt.Type = EventError
		evt.Message = out.Text
	}
	d.events.Publish(evt)

	slog.Info("task routed",
		"task_id", out.TaskID,
		"source", source,
		"handler", out.Handler,
		"code", out.Code,
		"elapsed", out.Elapsed.Round(time.Millisecond),
	)
	return out
}

// onMessage routes a chat message. Routing failures are already diagnostic
// text, so they are replied like any other outcome.
func (d *Daemon) onMessage(ctx context.Context, msg channel.Message) (string, error) {
	out := d.route(ctx, msg.Source, router.Task{Text: msg.Content})
	return out.Text, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
