package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// ImpactRunFunc is the handler of the "impact" command, injected by the
// wiring layer.
type ImpactRunFunc func(ctx context.Context, opts VersionTargetOptions) error

// NewImpactCmd creates the "impact" command.
func NewImpactCmd(runFunc ImpactRunFunc) *cobra.Command {
	var opts VersionTargetOptions

	return &cobra.Command{
		Use:   "impact <agent> <new-version>",
		Short: "Show which agents a new version affects and the order to update them",
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
