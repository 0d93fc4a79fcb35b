package portable

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/adamancini/hatch/internal/proc"
)

// SwapOptions describe one watchdog run.
type SwapOptions struct {
	PID      int
	Target   string
	Staged   string
	Interval time.Duration
	// Runner relaunches the new executable. Nil skips the relaunch.
	Runner proc.Runner
	Logger *log.Logger
}

// Swap waits for PID to exit and then replaces Target with Staged, keeping
// Target.backup until the move succeeds. On failure the backup is restored
// and the error returned. It is the in-process version of the watchdog
// script.
func Swap(ctx context.Context, opts SwapOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "watchdog"})
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	logger.Info("waiting for process to quit", "pid", opts.PID, "target", opts.Target)
	if err := waitForExit(ctx, opts.PID, interval); err != nil {
		return err
	}

	backup := opts.Target + ".backup"

	// 1. Create backup of current executable
	logger.Info("creating backup", "path", backup)
	if err := copyFile(opts.Target, backup, 0755); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	// 2. Move staged executable over the original
	logger.Info("moving new version", "from", opts.Staged)
	if err := os.Rename(opts.Staged, opts.Target); err != nil {
		if rbErr := rollback(opts.Target, backup); rbErr != nil {
			logger.Error("restore from backup failed", "err", rbErr)
		}
		return fmt.Errorf("failed to replace executable: %w", err)
	}

	// 3. Set executable permissions
	if err := os.Chmod(opts.Target, 0755); err != nil {
		if rbErr := rollback(opts.Target, backup); rbErr != nil {
			logger.Error("restore from backup failed", "err", rbErr)
		}
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	// 4. Remove backup on success
	_ = os.Remove(backup)

	if opts.Runner != nil {
		logger.Info("starting new version", "path", opts.Target)
		if err := opts.Runner.Spawn(ctx, opts.Target); err != nil {
			return fmt.Errorf("failed to relaunch %s: %w", opts.Target, err)
		}
	}
	return nil
}

// rollback restores the backup over target.
func rollback(target, backup string) error {
	if _, err := os.Stat(backup); os.IsNotExist(err) {
		return fmt.Errorf("backup not found: %s", backup)
	}
	if err := os.Rename(backup, target); err != nil {
		return fmt.Errorf("failed to restore from backup: %w", err)
	}
	if err := os.Chmod(target, 0755); err != nil {
		return fmt.Errorf("failed to set permissions on restored executable: %w", err)
	}
	return nil
}

// waitForExit polls until pid is gone. There is no retry limit; only ctx
// stops it.
func waitForExit(ctx context.Context, pid int, interval time.Duration) error {
	if pid <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for processAlive(pid) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
