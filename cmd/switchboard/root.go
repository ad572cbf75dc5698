package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nous-labs/switchboard/internal/config"
)

var (
	configPath string
	logLevel   string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "switchboard",
	Short: "Route workstation requests to code, system and project handlers",
	Long: `Switchboard classifies a free-text request by keyword and hands it to the
first matching handler: code help, system status, or project management.
Anything else goes straight to the completion backend (Ollama by default).

Run "switchboard serve" for the HTTP API and optional Matrix bot, or
"switchboard route <task>" for a one-shot answer.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		cfg = loaded
		setupLogging(cfg.Log.Level)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $SWITCHBOARD_CONFIG or ~/.config/switchboard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(handlersCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// setupLogging installs a text logger on stderr so stdout stays clean for
// command output.
func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func printStatus(symbol, message string, attr color.Attribute) {
	c := color.New(attr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
