package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check whether the completion backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := buildBackend(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		start := time.Now()
		ok := backend.IsAvailable(ctx)
		elapsed := time.Since(start).Round(time.Millisecond)

		target := fmt.Sprintf("%s at %s", backend.Name(), cfg.Backend.BaseURL)
		if !ok {
			printStatus("✗", target+" is unreachable", color.FgRed)
			return fmt.Errorf("backend unavailable")
		}
		printStatus("✓", fmt.Sprintf("%s is reachable (%s)", target, elapsed), color.FgGreen)
		return nil
	},
}
