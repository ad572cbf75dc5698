package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nous-labs/switchboard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.Backend.APIKey != "" && shown.Backend.APIKey[0] != '$' {
			shown.Backend.APIKey = "****"
		}
		if src := configSource(); src != "" {
			fmt.Fprintf(os.Stderr, "# loaded from %s\n", src)
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(shown)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the user config file path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.UserConfigDir() + string(os.PathSeparator) + "config.yaml")
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd)
}

func configSource() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("SWITCHBOARD_CONFIG")
}
