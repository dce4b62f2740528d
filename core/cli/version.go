package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// VersionCreateOptions holds the parsed flags for "version create".
type VersionCreateOptions struct {
	Agent           string
	ChangeType      string
	Description     string
	BreakingChanges []string
	Detect          bool
}

// VersionTargetOptions names one version of one agent.
type VersionTargetOptions struct {
	Agent   string
	Version string
}

// VersionRollbackOptions holds the parsed flags for "version rollback".
type VersionRollbackOptions struct {
	VersionTargetOptions
	Force bool
}

// VersionRunFuncs are the handlers of the "version" subcommands. They are
// injected by the wiring layer (cmd/agentver/main.go).
type VersionRunFuncs struct {
	Create   func(ctx context.Context, opts VersionCreateOptions) error
	Rollback func(ctx context.Context, opts VersionRollbackOptions) error
	Assess   func(ctx context.Context, opts VersionTargetOptions) error
	History  func(ctx context.Context, agent string) error
	Show     func(ctx context.Context, opts VersionTargetOptions) error
	Guide    func(ctx context.Context, opts VersionTargetOptions) error
	Agents   func(ctx context.Context) error
}

// NewVersionCmd creates the "version" parent command and its subcommands.
func NewVersionCmd(run VersionRunFuncs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Create, inspect and roll back agent versions",
	}

	cmd.AddCommand(
		newVersionCreateCmd(run.Create),
		newVersionRollbackCmd(run.Rollback),
		newVersionTargetCmd("assess", "Grade the safety of a rollback without performing it", run.Assess),
		newVersionHistoryCmd(run.History),
		newVersionTargetCmd("show", "Show one version record", run.Show),
		newVersionTargetCmd("guide", "Print the migration guide of a version", run.Guide),
		newVersionAgentsCmd(run.Agents),
	)
	return cmd
}

func newVersionCreateCmd(runFunc func(context.Context, VersionCreateOptions) error) *cobra.Command {
	var opts VersionCreateOptions

	cmd := &cobra.Command{
		Use:   "create <agent>",
		Short: "Record the agent's current code as a new version",
		Long: "Record the agent's code in the workspace as a new version. The version number\n" +
			"is derived from --type; breaking changes make the version require migration.",
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Agent = args[0]
			return validateVersionCreateFlags(opts)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunc(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ChangeType, "type", "t", "", "Change type: MAJOR, MINOR or PATCH (required)")
	cmd.Flags().StringVarP(&opts.Description, "message", "m", "", "Description of the change")
	cmd.Flags().StringArrayVar(&opts.BreakingChanges, "breaking", nil, "Breaking change description (repeatable)")
	cmd.Flags().BoolVar(&opts.Detect, "detect", false, "Detect breaking changes against the current version")

	cmd.MarkFlagRequired("type")

	return cmd
}

func validateVersionCreateFlags(opts VersionCreateOptions) error {
	if strings.TrimSpace(opts.Agent) == "" {
		return fmt.Errorf("agent is required")
	}
	switch strings.ToUpper(opts.ChangeType) {
	case "MAJOR", "MINOR", "PATCH":
	default:
		return fmt.Errorf("--type must be MAJOR, MINOR or PATCH, got %q", opts.ChangeType)
	}
	for _, b := range opts.BreakingChanges {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("--breaking must not be empty")
		}
	}
	return nil
}

func newVersionRollbackCmd(runFunc func(context.Context, VersionRollbackOptions) error) *cobra.Command {
	var opts VersionRollbackOptions

	cmd := &cobra.Command{
		Use:   "rollback <agent> <version>",
		Short: "Restore an earlier version of an agent",
		Long: "Restore the code of an earlier version and move the agent's current version to it.\n" +
			"Dangerous rollbacks across breaking major versions require --force.",
		Args: cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Agent, opts.Version = args[0], args[1]
			return validateTarget(opts.VersionTargetOptions)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunc(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Perform the rollback even when it is dangerous")

	return cmd
}

func newVersionTargetCmd(name, short string, runFunc func(context.Context, VersionTargetOptions) error) *cobra.Command {
	var opts VersionTargetOptions

	return &cobra.Command{
		Use:   name + " <agent> <version>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Agent, opts.Version = args[0], args[1]
			return validateTarget(opts)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunc(cmd.Context(), opts)
		},
	}
}

func validateTarget(opts VersionTargetOptions) error {
	if strings.TrimSpace(opts.Agent) == "" {
		return fmt.Errorf("agent is required")
	}
	if strings.Count(strings.TrimPrefix(opts.Version, "v"), ".") != 2 {
		return fmt.Errorf("version must look like 1.2.3, got %q", opts.Version)
	}
	return nil
}

func newVersionHistoryCmd(runFunc func(context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "history <agent>",
		Short: "List every version and rollback of an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunc(cmd.Context(), args[0])
		},
	}
}

func newVersionAgentsCmd(runFunc func(context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List agents with a version history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunc(cmd.Context())
		},
	}
}
