package cli

import (
	"context"

	"github.com/spf13/cobra"

	"equipment-reminders/internal/service"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Force bool
}

// NewSweepCommand runs one sweep and prints its report as JSON.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep now",
		Long: `Run one reminder sweep and print the report.

A reminder fires at most once per day, so repeated sweeps on the same day
only report skips. --force ignores the lead-time milestones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "fire every pending reminder regardless of milestone")
	return cmd
}

func runSweep(cmd *cobra.Command, opts *SweepOptions) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts.RootOptions, appOptions{withBot: true})
	if err != nil {
		return wrapExitError(ExitCommandError, "failed to start", err)
	}
	defer a.Close()

	if a.cfg.SweepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.SweepTimeout)
		defer cancel()
	}

	report, err := a.sweeper.Sweep(ctx, service.SweepOptions{Force: opts.Force})
	if err != nil {
		return wrapExitError(ExitCommandError, "sweep failed", err)
	}

	if err := printJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if len(report.Errors) > 0 {
		return &ExitError{Code: ExitFailure, Message: "sweep finished with errors"}
	}
	return nil
}
