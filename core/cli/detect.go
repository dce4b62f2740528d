package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// DetectOptions holds the parsed arguments for "detect".
type DetectOptions struct {
	OldDir string
	NewDir string
	Guide  bool
}

// DetectRunFunc is the handler of the "detect" command, injected by the
// wiring layer.
type DetectRunFunc func(ctx context.Context, opts DetectOptions) error

// NewDetectCmd creates the "detect" command.
func NewDetectCmd(runFunc DetectRunFunc) *cobra.Command {
	var opts DetectOptions

	cmd := &cobra.Command{
		Use:   "detect <old-dir> <new-dir>",
		Short: "Detect breaking API changes between two source trees",
		Long: "Extract the public API of Go and Python sources in two directories and report\n" +
			"removed functions, changed signatures, removed classes and changed constants.",
		Args: cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			opts.OldDir, opts.NewDir = args[0], args[1]
			return validateDetectArgs(opts)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunc(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Guide, "guide", false, "Print a Markdown migration guide instead of the report")

	return cmd
}

func validateDetectArgs(opts DetectOptions) error {
	for _, dir := range []string{opts.OldDir, opts.NewDir} {
		info, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("path does not exist: %s", dir)
			}
			return fmt.Errorf("cannot access path: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("path is not a directory: %s", dir)
		}
	}
	return nil
}
