package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nous-labs/switchboard/internal/daemon"
	"github.com/nous-labs/switchboard/internal/llm"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, backend monitor and chat channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http_addr)")
}

func runServe(ctx context.Context) error {
	if serveAddr != "" {
		cfg.HTTPAddr = serveAddr
	}

	backend, err := buildBackend(cfg)
	if err != nil {
		return err
	}

	projects, err := openRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open project registry: %w", err)
	}
	if projects != nil {
		defer projects.Close()
	}

	events := daemon.NewEventBus(0)
	monitor := llm.NewMonitor(backend, cfg.Backend.ProbeInterval, events.StatusFunc())

	r, err := buildRouter(cfg, backend, monitor.Last, projects)
	if err != nil {
		return err
	}

	d, err := daemon.New(daemon.Options{
		Name:     cfg.Name,
		Addr:     cfg.HTTPAddr,
		Router:   r,
		Monitor:  monitor,
		Projects: projects,
		Channels: buildChannels(cfg),
		Events:   events,
	})
	if err != nil {
		return err
	}

	slog.Info("switchboard starting",
		"version", version,
		"backend", backend.Name(),
		"base_url", cfg.Backend.BaseURL,
		"projects", cfg.Projects.Driver,
		"matrix", cfg.Matrix.Enabled,
	)
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("daemon: %w", err)
	}
	return nil
}
