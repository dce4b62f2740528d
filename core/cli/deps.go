package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// DepsAddOptions holds the parsed flags for "deps add".
type DepsAddOptions struct {
	From       string
	To         string
	Constraint string
	Kind       string
}

// DepsQueryOptions holds the parsed flags for "deps list" and "deps order".
type DepsQueryOptions struct {
	Agent      string
	Dependents bool
}

// DepsRunFuncs are the handlers of the "deps" subcommands, injected by the
// wiring layer.
type DepsRunFuncs struct {
	Add    func(ctx context.Context, opts DepsAddOptions) error
	Remove func(ctx context.Context, from, to string) error
	List   func(ctx context.Context, opts DepsQueryOptions) error
	Cycles func(ctx context.Context) error
	Order  func(ctx context.Context, opts DepsQueryOptions) error
	Check  func(ctx context.Context) error
	Import func(ctx context.Context, agent string) error
}

// NewDepsCmd creates the "deps" parent command and its subcommands.
func NewDepsCmd(run DepsRunFuncs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Manage dependencies between agents",
	}

	cmd.AddCommand(
		newDepsAddCmd(run.Add),
		newDepsRemoveCmd(run.Remove),
		newDepsQueryCmd("list <agent>", "List what an agent depends on", "List the agents that depend on it instead", run.List),
		newDepsCyclesCmd(run.Cycles),
		newDepsQueryCmd("order <agent>", "Order an agent's dependencies so each comes before its dependents", "Order the agents that depend on it instead", run.Order),
		newDepsCheckCmd(run.Check),
		newDepsImportCmd(run.Import),
	)
	return cmd
}

func newDepsAddCmd(runFunc func(context.Context, DepsAddOptions) error) *cobra.Command {
	var opts DepsAddOptions

	cmd := &cobra.Command{
		Use:   "add <agent> <depends-on>",
		Short: "Record that one agent depends on another",
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			opts.From, opts.To = args[0], args[1]
			return validateDepsAddFlags(opts)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunc(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Constraint, "constraint", "c", "", "Version constraint on the dependency, e.g. \"^1.2.0\" or \">=1.0.0, <2.0.0\"")
	cmd.Flags().StringVarP(&opts.Kind, "kind", "k", "requires", "Dependency kind: requires, recommends, conflicts or enhances")

	return cmd
}

func validateDepsAddFlags(opts DepsAddOptions) error {
	if opts.From == opts.To {
		return fmt.Errorf("an agent cannot depend on itself")
	}
	switch opts.Kind {
	case "requires", "recommends", "conflicts", "enhances":
		return nil
	default:
		return fmt.Errorf("--kind must be requires, recommends, conflicts or enhances, got %q", opts.Kind)
	}
}

func newDepsRemoveCmd(runFunc func(context.Context, string, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <agent> <depends-on>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunc(cmd.Context(), args[0], args[1])
		},
	}
}

func newDepsQueryCmd(use, short, dependentsHelp string, runFunc func(context.Context, DepsQueryOptions) error) *cobra.Command {
	var opts DepsQueryOptions

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Agent = args[0]
			return runFunc(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Dependents, "dependents", false, dependentsHelp)

	return cmd
}

func newDepsCyclesCmd(runFunc func(context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   "cycles",
		Short: "List dependency cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunc(cmd.Context())
		},
	}
}

func newDepsCheckCmd(runFunc func(context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check every dependency constraint against current versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunc(cmd.Context())
		},
	}
}

func newDepsImportCmd(runFunc func(context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   "import <agent>",
		Short: "Record dependencies declared in a Go agent's go.mod",
		Long: "Read the go.mod of a Go agent in the workspace and record a dependency on every\n" +
			"other workspace agent whose module it requires, constrained to the required release.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunc(cmd.Context(), args[0])
		},
	}
}
