package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/portable"
	"github.com/adamancini/hatch/internal/proc"
)

type watchdogOptions struct {
	PID      int
	Target   string
	Staged   string
	Interval time.Duration
	Relaunch bool
}

func newWatchdogCmd(globals func() globalOptions) *cobra.Command {
	opts := watchdogOptions{Relaunch: true}

	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Replace a portable executable once its process exits",
		Long: `Wait for the process with the given PID to exit, then move the staged
executable over the target and start it. The previous executable is kept
as <target>.backup until the move succeeds and restored if it fails.

This command is launched by a portable application handing off its own
replacement; it is not meant to be run by hand.`,
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchdog(cmd.Context(), cmd.ErrOrStderr(), globals(), opts, nil)
		},
	}

	cmd.Flags().IntVar(&opts.PID, "pid", 0, "Process to wait for")
	cmd.Flags().StringVar(&opts.Target, "target", "", "Executable to replace")
	cmd.Flags().StringVar(&opts.Staged, "staged", "", "New executable")
	cmd.Flags().DurationVar(&opts.Interval, "interval", portable.DefaultPollInterval, "Poll interval")
	cmd.Flags().BoolVar(&opts.Relaunch, "relaunch", true, "Start the new executable after the swap")
	_ = cmd.MarkFlagRequired("pid")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("staged")

	return cmd
}

// runWatchdog swaps the executable. A nil runner uses the real process
// runner.
func runWatchdog(ctx context.Context, stderr io.Writer, g globalOptions, opts watchdogOptions, runner proc.Runner) error {
	if opts.PID <= 0 {
		return fmt.Errorf("invalid pid %d", opts.PID)
	}
	logger := newLogger(stderr, g).WithPrefix("watchdog")

	if runner == nil {
		runner = proc.NewExecRunner(logger)
	}
	if !opts.Relaunch {
		runner = nil
	}

	return portable.Swap(ctx, portable.SwapOptions{
		PID:      opts.PID,
		Target:   opts.Target,
		Staged:   opts.Staged,
		Interval: opts.Interval,
		Runner:   runner,
		Logger:   logger,
	})
}
