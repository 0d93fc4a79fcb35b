// Package proc starts external processes: detached installers and watchdogs,
// short-lived helper commands, and the platform's default file handler.
package proc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

var (
	// ErrNotFound indicates the executable does not exist.
	ErrNotFound = errors.New("executable not found")

	// ErrPermissionDenied indicates the OS refused to start the process,
	// including when the executable requires elevation.
	ErrPermissionDenied = errors.New("permission denied")
)

// Runner starts a process and returns without waiting for it to exit.
type Runner interface {
	Spawn(ctx context.Context, path string, args ...string) error
}

// CommandRunner runs a command to completion and returns its combined output.
// This allows for mocking in tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner implements Runner and CommandRunner with os/exec.
type ExecRunner struct {
	logger *log.Logger
}

// NewExecRunner creates an ExecRunner. A nil logger logs to stderr.
func NewExecRunner(logger *log.Logger) *ExecRunner {
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "proc"})
	}
	return &ExecRunner{logger: logger}
}

// Spawn starts path detached from the current process. The child survives
// the caller's exit; ctx only guards the start.
func (r *ExecRunner) Spawn(ctx context.Context, path string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(path, args...)
	detach(cmd)

	r.logger.Info("spawn", "path", path, "args", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return Classify(err)
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		r.logger.Warn("release process handle", "pid", pid, "err", err)
	}
	r.logger.Debug("spawned", "path", path, "pid", pid)
	return nil
}

// Run executes name and waits for it.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	r.logger.Debug("run", "name", name, "args", strings.Join(args, " "))

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, fmt.Errorf("%s exited with code %d: %w", name, exitErr.ExitCode(), err)
		}
		return output, Classify(err)
	}
	return output, nil
}

// Classify maps a process start error onto ErrNotFound or
// ErrPermissionDenied, keeping the original error in the chain. Other errors
// are returned unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPermissionDenied):
		return err
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission), elevationRequired(err):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return err
}
