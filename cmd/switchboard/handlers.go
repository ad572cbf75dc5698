package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nous-labs/switchboard/internal/llm"
)

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List handlers in dispatch order with their keywords",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := buildBackend(cfg)
		if err != nil {
			return err
		}
		r, err := buildRouter(cfg, backend, func() llm.Liveness { return llm.Liveness{Backend: backend.Name()} }, nil)
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		for i, h := range r.Handlers() {
			fmt.Printf("%d. %s (%s): %s\n", i+1, bold.Sprint(h.Name), h.Kind, h.Description)
			fmt.Printf("   keywords: %s\n", strings.Join(h.Keywords, ", "))
		}
		fmt.Printf("otherwise: general completion with %s\n", bold.Sprint(cfg.Models.Default))
		return nil
	},
}
