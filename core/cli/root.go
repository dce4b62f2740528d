package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// GlobalOptions holds the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	LogLevel   string
	JSON       bool
}

// NewRootCmd creates the top-level agentver command. Persistent flags are
// parsed into globals.
func NewRootCmd(version string, globals *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentver",
		Short: "Version, dependency and breaking-change management for agents",
		Long: "agentver versions agents semantically, detects breaking API changes between\n" +
			"their code snapshots, tracks dependencies between agents and analyzes the\n" +
			"impact of a new version before it rolls out.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateGlobalFlags(*globals)
		},
	}

	cmd.Version = version

	cmd.PersistentFlags().StringVar(&globals.ConfigPath, "config", "", "Path to the config file (default .agentver/config.yaml)")
	cmd.PersistentFlags().StringVar(&globals.LogLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	cmd.PersistentFlags().BoolVar(&globals.JSON, "json", false, "Print results as JSON")

	return cmd
}

func validateGlobalFlags(g GlobalOptions) error {
	switch strings.ToLower(g.LogLevel) {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("--log-level must be debug, info, warn or error, got %q", g.LogLevel)
	}
}
