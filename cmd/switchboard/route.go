package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nous-labs/switchboard/internal/llm"
	"github.com/nous-labs/switchboard/internal/router"
)

var (
	routeContext []string
	routeJSON    bool
)

var routeCmd = &cobra.Command{
	Use:   "route <task>",
	Short: "Route one task and print the answer",
	Example: `  switchboard route "show gpu status"
  switchboard route "debug this" --ctx error="KeyError: 'id'" --ctx code="row['id']"
  switchboard route "write a class for a stack" --ctx language=python --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskCtx, err := parseContext(routeContext)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runRoute(ctx, router.Task{Text: strings.Join(args, " "), Context: taskCtx})
	},
}

func init() {
	routeCmd.Flags().StringArrayVar(&routeContext, "ctx", nil, "task context as key=value (repeatable)")
	routeCmd.Flags().BoolVar(&routeJSON, "json", false, "print the outcome as JSON")
}

func runRoute(ctx context.Context, task router.Task) error {
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

	monitor := llm.NewMonitor(backend, cfg.Backend.ProbeInterval, nil)
	r, err := buildRouter(cfg, backend, monitor.Last, projects)
	if err != nil {
		return err
	}

	// No background monitor here; probe once if the report needs it.
	if h := r.Select(task); h != nil && h.Kind() == router.KindSystem {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		monitor.CheckOnce(probeCtx)
		cancel()
	}

	out := r.Route(ctx, task)

	if routeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			router.Outcome
			Elapsed string `json:"elapsed"`
		}{out, out.Elapsed.Round(time.Millisecond).String()}); err != nil {
			return err
		}
	} else if out.Failed() {
		color.New(color.FgRed).Fprintln(os.Stderr, out.Text)
	} else {
		fmt.Println(out.Text)
		color.New(color.Faint).Fprintf(os.Stderr, "[%s via %s in %s]\n", out.TaskID, out.Handler, out.Elapsed.Round(time.Millisecond))
	}

	if out.Failed() {
		return fmt.Errorf("routing failed: %s", out.Code)
	}
	return nil
}

// parseContext turns key=value pairs into a task context.
func parseContext(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --ctx %q, want key=value", p)
		}
		out[strings.ToLower(k)] = v
	}
	return out, nil
}
