package proc

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// Opener opens a file with the platform's default handler.
type Opener interface {
	Open(ctx context.Context, path string) error
}

// DefaultOpener shells out to xdg-open, open or start.
type DefaultOpener struct {
	runner CommandRunner
	goos   string
}

// NewOpener creates an opener that runs the handler through runner.
func NewOpener(runner CommandRunner) *DefaultOpener {
	return &DefaultOpener{runner: runner, goos: runtime.GOOS}
}

// Open hands path to the default handler.
func (o *DefaultOpener) Open(ctx context.Context, path string) error {
	name, args := openCommand(o.goos, path)
	output, err := o.runner.Run(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("open %s with %s: %w\nOutput: %s", path, name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func openCommand(goos, path string) (string, []string) {
	switch goos {
	case "windows":
		// The empty argument is the window title start expects first.
		return "cmd", []string{"/c", "start", "", path}
	case "darwin":
		return "open", []string{path}
	default:
		return "xdg-open", []string{path}
	}
}
