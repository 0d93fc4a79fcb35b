package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/adamancini/hatch/internal/config"
	"github.com/adamancini/hatch/internal/failure"
	"github.com/adamancini/hatch/internal/proc"
	"github.com/adamancini/hatch/internal/signature"
	"github.com/adamancini/hatch/internal/types"
)

var (
	// ErrSignatureInvalid indicates the installer is not signed by an
	// allowed publisher.
	ErrSignatureInvalid = errors.New("installer is not signed by the application owner")

	// ErrNoElevateHelper indicates elevation is needed but no helper is
	// configured.
	ErrNoElevateHelper = errors.New("no elevation helper configured")
)

// ErrorHandler receives every terminal install failure.
type ErrorHandler func(error)

// Transition is one recorded state change.
type Transition struct {
	From   types.State
	To     types.State
	At     time.Time
	Reason string
}

// Orchestrator runs the verify, install, elevate state machine.
//
// Only one Session may be installed at a time per application instance.
// The orchestrator does not enforce this; callers own the session.
type Orchestrator struct {
	runner        proc.Runner
	opener        proc.Opener
	verifier      signature.Verifier
	publishers    []string
	args          config.InstallerArgs
	elevateHelper string
	onError       ErrorHandler
	logger        *log.Logger
	now           func() time.Time

	state   types.State
	history []Transition
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithVerifier sets the signature verifier and the publisher allow-list.
// An empty allow-list skips verification.
func WithVerifier(v signature.Verifier, publishers []string) Option {
	return func(o *Orchestrator) {
		o.verifier = v
		o.publishers = publishers
	}
}

// WithOpener sets the default-handler fallback for a missing installer.
func WithOpener(op proc.Opener) Option {
	return func(o *Orchestrator) { o.opener = op }
}

// WithInstallerArgs sets the installer's argument conventions.
func WithInstallerArgs(args config.InstallerArgs) Option {
	return func(o *Orchestrator) { o.args = args }
}

// WithElevateHelper sets the program used to re-run the installer with
// elevated privileges. It receives the installer path followed by the
// installer arguments.
func WithElevateHelper(path string) Option {
	return func(o *Orchestrator) { o.elevateHelper = path }
}

// WithErrorHandler sets where terminal failures are dispatched.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *Orchestrator) { o.onError = h }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an Orchestrator spawning through runner.
func NewOrchestrator(runner proc.Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner: runner,
		args:   config.Default().Installer.Args,
		now:    time.Now,
		state:  types.StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "install"})
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() types.State {
	return o.state
}

// History returns the transitions of the last Install call.
func (o *Orchestrator) History() []Transition {
	return append([]Transition(nil), o.history...)
}

// Install verifies and runs the session's installer. It never retries
// beyond a single elevation attempt. Failures are returned in the Outcome
// and also sent to the ErrorHandler.
func (o *Orchestrator) Install(ctx context.Context, s Session) Outcome {
	o.state = types.StateIdle
	o.history = nil

	o.transition(s, types.StateVerifying, "")
	if out, ok := o.verify(ctx, s); !ok {
		return out
	}

	args := o.args.Build(s.Silent, s.ForceRunAfter, s.InstallDir, s.PackagePath)

	if s.AdminRightsRequired {
		o.transition(s, types.StateElevating, "admin rights required")
		return o.elevate(ctx, s, args)
	}

	o.transition(s, types.StateInstalling, "")
	err := o.runner.Spawn(ctx, s.InstallerPath, args...)
	switch {
	case err == nil:
		o.transition(s, types.StateDone, "")
		return Outcome{Kind: types.OutcomeInstalled}

	case errors.Is(err, proc.ErrPermissionDenied):
		o.logger.Info("installer spawn denied, retrying through elevation helper", "session", s.ID, "err", err)
		o.transition(s, types.StateElevating, "permission denied")
		return o.elevate(ctx, s, args)

	case errors.Is(err, proc.ErrNotFound):
		return o.openWithDefaultHandler(ctx, s, err)

	default:
		return o.fail(s, ReasonProcessError, failure.Process("spawn installer", err))
	}
}

func (o *Orchestrator) verify(ctx context.Context, s Session) (Outcome, bool) {
	if len(o.publishers) == 0 {
		o.logger.Debug("no publisher allow-list, skipping signature verification", "session", s.ID)
		return Outcome{}, true
	}
	if o.verifier == nil {
		return o.fail(s, ReasonVerificationError, failure.Configuration("verify signature", signature.ErrNoCommand)), false
	}

	matched, err := o.verifier.Verify(ctx, o.publishers, s.InstallerPath)
	if err != nil {
		if failure.KindOf(err) == "" {
			err = failure.Verification("verify signature", err)
		}
		return o.fail(s, ReasonVerificationError, err), false
	}
	if matched == "" {
		err := failure.Verification("verify signature",
			fmt.Errorf("%w: expected one of [%s]", ErrSignatureInvalid, strings.Join(o.publishers, ", ")))
		return o.fail(s, ReasonSignatureInvalid, err), false
	}

	o.logger.Info("installer signature verified", "session", s.ID, "publisher", matched)
	return Outcome{}, true
}

// elevate re-runs the installer through the elevation helper exactly once.
func (o *Orchestrator) elevate(ctx context.Context, s Session, args []string) Outcome {
	o.transition(s, types.StateInstalling, "elevated")
	if o.elevateHelper == "" {
		return o.fail(s, ReasonElevationFailed, failure.Configuration("elevate installer", ErrNoElevateHelper))
	}

	elevated := append([]string{s.InstallerPath}, args...)
	if err := o.runner.Spawn(ctx, o.elevateHelper, elevated...); err != nil {
		kind := types.KindProcess
		if errors.Is(err, proc.ErrPermissionDenied) {
			kind = types.KindPermission
		}
		return o.fail(s, ReasonElevationFailed, failure.New(kind, "elevate installer", err))
	}

	o.transition(s, types.StateDone, "")
	return Outcome{Kind: types.OutcomeElevatedRelaunch}
}

func (o *Orchestrator) openWithDefaultHandler(ctx context.Context, s Session, spawnErr error) Outcome {
	o.logger.Info("installer not executable, opening with default handler", "session", s.ID, "path", s.InstallerPath, "err", spawnErr)
	if o.opener == nil {
		return o.fail(s, ReasonOpenFailed, failure.Process("open installer", spawnErr))
	}
	if err := o.opener.Open(ctx, s.InstallerPath); err != nil {
		return o.fail(s, ReasonOpenFailed, failure.Process("open installer", err))
	}
	o.transition(s, types.StateDone, ReasonOpenedByHandler)
	return Outcome{Kind: types.OutcomeInstalled, Reason: ReasonOpenedByHandler}
}

func (o *Orchestrator) fail(s Session, reason string, err error) Outcome {
	o.transition(s, types.StateFailed, reason)
	o.logger.Error("install failed", "session", s.ID, "reason", reason, "err", err)
	if o.onError != nil {
		o.onError(err)
	}
	return Outcome{Kind: types.OutcomeFailed, Reason: reason, Err: err}
}

func (o *Orchestrator) transition(s Session, next types.State, reason string) {
	if !o.state.CanTransition(next) {
		o.logger.Warn("unexpected state transition", "session", s.ID, "from", o.state, "to", next)
	}
	o.history = append(o.history, Transition{From: o.state, To: next, At: o.now(), Reason: reason})
	o.logger.Debug("state", "session", s.ID, "from", o.state, "to", next, "reason", reason)
	o.state = next
}
