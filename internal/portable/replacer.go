// Package portable replaces a relocatable single-executable distribution
// in place. The running process cannot overwrite its own image, so it
// stages the new binary, hands off to a detached watchdog and quits.
package portable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/adamancini/hatch/internal/failure"
	"github.com/adamancini/hatch/internal/proc"
	"github.com/adamancini/hatch/internal/templates"
	"github.com/adamancini/hatch/internal/types"
)

// DefaultPollInterval is how often the watchdog checks whether the host
// process has exited.
const DefaultPollInterval = 2 * time.Second

// ErrNoMarker indicates the host is not running as a portable executable.
var ErrNoMarker = errors.New("portable executable marker is not set")

// ErrNoHostPID indicates the process to wait for is unknown: no PID was
// given and this process is not the portable executable.
var ErrNoHostPID = errors.New("host process id is not set")

// Host is the application being replaced.
type Host interface {
	// PortableExecutable returns the path of the running portable
	// executable, or false when the marker is absent.
	PortableExecutable() (string, bool)
	// Quit asks the application to exit. It must not block on the watchdog.
	Quit()
}

// Replacer performs the stage, handoff and quit sequence.
type Replacer struct {
	host         Host
	runner       proc.Runner
	mode         types.WatchdogMode
	pollInterval time.Duration
	self         string
	pid          int
	executable   func() (string, error)
	goos         string
	logger       *log.Logger
}

// Option configures a Replacer.
type Option func(*Replacer)

// WithWatchdogMode selects the script or binary watchdog.
func WithWatchdogMode(m types.WatchdogMode) Option {
	return func(r *Replacer) { r.mode = m }
}

// WithPollInterval sets the watchdog's polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(r *Replacer) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithPID sets the process the watchdog waits for. Without it the watchdog
// waits for this process, which requires it to be the portable executable.
func WithPID(pid int) Option {
	return func(r *Replacer) {
		if pid > 0 {
			r.pid = pid
		}
	}
}

// WithSelf sets the program that runs the binary watchdog. It defaults to
// the current executable.
func WithSelf(path string) Option {
	return func(r *Replacer) { r.self = path }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Replacer) { r.logger = l }
}

// NewReplacer creates a Replacer for host that launches the watchdog
// through runner.
func NewReplacer(host Host, runner proc.Runner, opts ...Option) *Replacer {
	r := &Replacer{
		host:         host,
		runner:       runner,
		mode:         types.WatchdogScript,
		pollInterval: DefaultPollInterval,
		executable:   os.Executable,
		goos:         runtime.GOOS,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "portable"})
	}
	return r
}

// Replace stages newBinary beside the running executable, launches the
// watchdog and quits the host. It returns once the watchdog is launched;
// the swap itself happens after the host exits.
func (r *Replacer) Replace(ctx context.Context, newBinary string) error {
	target, ok := r.host.PortableExecutable()
	if !ok || target == "" {
		return failure.Configuration("replace portable executable", ErrNoMarker)
	}
	pid, err := r.hostPID(target)
	if err != nil {
		return failure.Configuration("replace portable executable", err)
	}

	staged := target + ".new"
	r.logger.Info("staging new version", "target", target, "staged", staged, "from", newBinary)
	if err := stage(newBinary, staged); err != nil {
		return failure.Process("stage new version", err)
	}

	var launchErr error
	var script string
	if r.mode.IsBinary() {
		launchErr = r.launchBinary(ctx, target, staged, pid)
	} else {
		script, launchErr = r.launchScript(ctx, target, staged)
	}
	if launchErr != nil {
		_ = os.Remove(staged)
		if script != "" {
			_ = os.Remove(script)
		}
		return failure.Process("launch watchdog", launchErr)
	}

	r.logger.Info("watchdog started, quitting application", "mode", r.mode, "pid", pid)
	r.host.Quit()
	return nil
}

// hostPID returns the process the watchdog waits for.
func (r *Replacer) hostPID(target string) (int, error) {
	if r.pid > 0 {
		return r.pid, nil
	}
	if exe, err := r.executable(); err == nil && samePath(exe, target) {
		return os.Getpid(), nil
	}
	return 0, ErrNoHostPID
}

func samePath(a, b string) bool {
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return ra == rb
}

func (r *Replacer) watchdogData(target, staged string, pid int) templates.WatchdogData {
	interval := int(r.pollInterval / time.Second)
	if interval < 1 {
		interval = 1
	}
	return templates.WatchdogData{
		PID:             pid,
		Target:          target,
		Backup:          target + ".backup",
		Staged:          staged,
		Base:            filepath.Base(target),
		IntervalSeconds: interval,
	}
}

// WriteScript renders the watchdog script for target into its directory
// and returns the script path.
func (r *Replacer) WriteScript(target, staged string) (string, error) {
	pid, err := r.hostPID(target)
	if err != nil {
		return "", err
	}
	name := templates.WatchdogName(r.goos)
	content, err := templates.Render(name, r.watchdogData(target, staged, pid))
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(name)
	script := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+"-update"+ext)
	if r.goos == "windows" {
		script = filepath.Join(filepath.Dir(target), "update"+ext)
	}
	if err := os.WriteFile(script, content, 0755); err != nil {
		return "", fmt.Errorf("write watchdog script: %w", err)
	}
	r.logger.Debug("watchdog script written", "path", script)
	return script, nil
}

func (r *Replacer) launchScript(ctx context.Context, target, staged string) (string, error) {
	script, err := r.WriteScript(target, staged)
	if err != nil {
		return "", err
	}
	if r.goos == "windows" {
		return script, r.runner.Spawn(ctx, "cmd", "/c", "start", "/min", "", script)
	}
	return script, r.runner.Spawn(ctx, "/bin/sh", script)
}

func (r *Replacer) launchBinary(ctx context.Context, target, staged string, pid int) error {
	self := r.self
	if self == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate watchdog binary: %w", err)
		}
		self = exe
	}
	return r.runner.Spawn(ctx, self, "watchdog",
		"--pid", strconv.Itoa(pid),
		"--target", target,
		"--staged", staged,
		"--interval", r.pollInterval.String())
}

// stage moves src to dst, copying when a rename is not possible.
func stage(src, dst string) error {
	_ = os.Remove(dst)
	if err := os.Rename(src, dst); err == nil {
		return os.Chmod(dst, 0755)
	}
	if err := copyFile(src, dst, 0755); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}
