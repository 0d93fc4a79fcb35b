package cmd

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/adamancini/hatch/internal/cache"
	"github.com/adamancini/hatch/internal/config"
	"github.com/adamancini/hatch/internal/failure"
	"github.com/adamancini/hatch/internal/install"
	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/portable"
	"github.com/adamancini/hatch/internal/proc"
	"github.com/adamancini/hatch/internal/progress"
	"github.com/adamancini/hatch/internal/signature"
	"github.com/adamancini/hatch/internal/types"
	"github.com/adamancini/hatch/internal/update"
)

// runtimeEnv is everything a command needs after the global flags and the
// config file are resolved.
type runtimeEnv struct {
	cfg     *config.Config
	cfgPath string
	format  output.Format
	out     *output.Writer
	logger  *log.Logger
	cache   *cache.Manager
	host    *update.EnvHost
	runner  *proc.ExecRunner
	hostPID int
}

func newLogger(w io.Writer, g globalOptions) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{Prefix: "hatch"})
	switch {
	case g.Verbose:
		logger.SetLevel(log.DebugLevel)
	case g.Quiet:
		logger.SetLevel(log.ErrorLevel)
	}
	return logger
}

func newRuntimeEnv(stdout, stderr io.Writer, g globalOptions) (*runtimeEnv, error) {
	format, err := output.ParseFormat(g.Output)
	if err != nil {
		return nil, err
	}

	cfg, cfgPath, err := config.LoadOrDefault(g.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if g.CacheDir != "" {
		cfg.CacheDir = g.CacheDir
	}
	if g.Variant != "" {
		v, err := types.ParseVariant(g.Variant)
		if err != nil {
			return nil, err
		}
		cfg.Variant = v
	}

	var c *cache.Manager
	if cfg.CacheDir != "" {
		c = cache.NewManagerWithDir(cfg.CacheDir)
	} else {
		app := g.App
		if app == "" {
			app = "hatch"
		}
		if c, err = cache.NewManager(app); err != nil {
			return nil, err
		}
	}

	logger := newLogger(stderr, g)
	host := update.NewEnvHost(g.AppVersion, func() {
		logger.Info("update handed off, exiting")
	})
	host.MarkerEnv = cfg.Portable.MarkerEnv

	return &runtimeEnv{
		cfg:     cfg,
		cfgPath: cfgPath,
		format:  format,
		out:     output.NewWriter(stdout, format),
		logger:  logger,
		cache:   c,
		host:    host,
		runner:  proc.NewExecRunner(logger.WithPrefix("proc")),
		hostPID: g.HostPID,
	}, nil
}

func (e *runtimeEnv) variant() types.Variant {
	return update.ResolveVariant(e.cfg.Variant, e.host)
}

func (e *runtimeEnv) headers() http.Header {
	h := http.Header{}
	for k, v := range e.cfg.RequestHeaders {
		h.Set(k, v)
	}
	return h
}

func (e *runtimeEnv) orchestrator() *install.Orchestrator {
	// A nil verifier with publishers configured fails every install, so
	// only wrap the command when one is set.
	var verifier signature.Verifier
	if e.cfg.Signature.Command != "" {
		verifier = signature.NewCommandVerifier(e.runner, e.cfg.Signature.Command, e.cfg.Signature.Args,
			signature.WithLogger(e.logger.WithPrefix("signature")))
	}

	return install.NewOrchestrator(e.runner,
		install.WithVerifier(verifier, e.cfg.PublisherName),
		install.WithOpener(proc.NewOpener(e.runner)),
		install.WithInstallerArgs(e.cfg.Installer.Args),
		install.WithElevateHelper(e.cfg.Installer.ElevateHelper),
		install.WithErrorHandler(func(err error) {
			e.logger.Debug("install failure", "kind", failure.KindOf(err), "err", err)
		}),
		install.WithLogger(e.logger.WithPrefix("install")),
	)
}

func (e *runtimeEnv) replacer() *portable.Replacer {
	return portable.NewReplacer(e.host, e.runner,
		portable.WithPID(e.hostPID),
		portable.WithWatchdogMode(e.cfg.Portable.Watchdog),
		portable.WithPollInterval(time.Duration(e.cfg.Portable.PollIntervalSeconds)*time.Second),
		portable.WithLogger(e.logger.WithPrefix("portable")),
	)
}

// updater wires the variant selected for this host into an Updater.
// platform overrides artifact selection when non-nil.
func (e *runtimeEnv) updater(platform *update.Platform) (*update.Updater, error) {
	variant, err := update.NewVariant(e.variant(), update.Deps{
		Installer:       e.orchestrator(),
		InstallerConfig: e.cfg.Installer,
		Replacer:        e.replacer(),
	})
	if err != nil {
		return nil, err
	}

	opts := []update.Option{
		update.WithLogger(e.logger.WithPrefix("update")),
		update.WithObserver(progressLogger(e.logger)),
	}
	if platform != nil {
		opts = append(opts, update.WithTargetPlatform(*platform))
	}
	return update.New(e.cfg, e.host, variant, e.cache, opts...), nil
}

// checker builds a release checker for the installed version and variant.
func (e *runtimeEnv) checker(platform *update.Platform) *update.ReleaseChecker {
	dl := update.NewHTTPDownloader(update.WithDownloadLogger(e.logger.WithPrefix("download")))
	c := update.NewReleaseChecker(e.host.Version(), dl).
		WithHeaders(e.headers()).
		WithPortable(e.variant().IsPortable())
	if platform != nil {
		c = c.WithPlatform(*platform)
	}
	return c
}

// progressLogger logs download progress at debug level, once per tenth.
func progressLogger(logger *log.Logger) progress.Observer {
	var mu sync.Mutex
	last := -1
	return progress.ObserverFunc(func(info progress.Info) {
		if info.Total <= 0 {
			return
		}
		step := int(info.Percent) / 10
		mu.Lock()
		if step == last {
			mu.Unlock()
			return
		}
		last = step
		mu.Unlock()
		logger.Debug("download progress", "percent", fmt.Sprintf("%.0f%%", info.Percent), "bytes", info.Transferred, "rate", info.BytesPerSecond)
	})
}

// parsePlatform parses "os/arch". An empty string means the running host.
func parsePlatform(s string) (*update.Platform, error) {
	if s == "" {
		return nil, nil
	}
	goos, arch, ok := strings.Cut(s, "/")
	if !ok || goos == "" || arch == "" {
		return nil, fmt.Errorf("invalid platform %q, want os/arch", s)
	}
	p := update.Platform{OS: goos, Arch: arch}
	if !p.IsSupported() {
		return nil, fmt.Errorf("unsupported platform: %s", s)
	}
	return &p, nil
}
