// Package update runs one update cycle: it picks the artifact for this
// host, downloads it (differentially when a cached base exists), verifies
// and publishes it into the cache, and hands it to the installer or
// portable variant.
package update

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/adamancini/hatch/internal/blockmap"
	"github.com/adamancini/hatch/internal/cache"
	"github.com/adamancini/hatch/internal/checksum"
	"github.com/adamancini/hatch/internal/config"
	"github.com/adamancini/hatch/internal/differential"
	"github.com/adamancini/hatch/internal/failure"
	"github.com/adamancini/hatch/internal/install"
	"github.com/adamancini/hatch/internal/progress"
	"github.com/adamancini/hatch/internal/state"
	"github.com/adamancini/hatch/internal/types"
)

// ErrWebInstallerDisabled indicates the release only offers a web
// installer but web installers are disabled.
var ErrWebInstallerDisabled = errors.New("web installers are disabled")

// errNoBase means there is no cached artifact to diff against.
var errNoBase = errors.New("no cached artifact")

// rejectedSuffix names a download kept after failing its checksum. The
// next prune removes it.
const rejectedSuffix = ".rejected"

// Updater downloads and installs releases.
type Updater struct {
	cfg        *config.Config
	host       Host
	variant    Variant
	cache      *cache.Manager
	store      *state.Store
	downloader Downloader
	engine     *differential.Engine
	platform   Platform
	headers    http.Header
	observer   progress.Observer
	now        func() time.Time
	logger     *log.Logger
}

// Option configures an Updater.
type Option func(*Updater)

// WithDownloader sets the full-file downloader.
func WithDownloader(d Downloader) Option {
	return func(u *Updater) { u.downloader = d }
}

// WithEngine sets the differential engine.
func WithEngine(e *differential.Engine) Option {
	return func(u *Updater) { u.engine = e }
}

// WithTargetPlatform overrides the detected platform used for artifact
// selection.
func WithTargetPlatform(p Platform) Option {
	return func(u *Updater) { u.platform = p }
}

// WithObserver subscribes to download progress.
func WithObserver(o progress.Observer) Option {
	return func(u *Updater) { u.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(u *Updater) { u.logger = l }
}

// New creates an Updater. The downloaded-update record lives in the cache
// directory.
func New(cfg *config.Config, host Host, variant Variant, c *cache.Manager, opts ...Option) *Updater {
	u := &Updater{
		cfg:      cfg,
		host:     host,
		variant:  variant,
		cache:    c,
		store:    state.NewStore(c.Dir()),
		platform: Detect(),
		headers:  http.Header{},
		now:      time.Now,
	}
	for k, v := range cfg.RequestHeaders {
		u.headers.Set(k, v)
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "update"})
	}
	if u.downloader == nil {
		u.downloader = NewHTTPDownloader(WithDownloadLogger(u.logger))
	}
	if u.engine == nil {
		u.engine = differential.NewEngine(
			differential.WithHeaders(u.headers),
			differential.WithConcurrency(cfg.Differential.Concurrency),
			differential.WithMultiRange(cfg.Differential.MultiRange),
			differential.WithMaxRangesPerRequest(cfg.Differential.MaxRangesPerRequest),
			differential.WithLogger(u.logger.WithPrefix("differential")),
		)
	}
	return u
}

// Store returns the downloaded-update record store.
func (u *Updater) Store() *state.Store {
	return u.store
}

// Download fetches the release's artifact for this host into the cache and
// records it. Differential failures fall back to a full download unless
// the differential diagnostic mode is on.
func (u *Updater) Download(ctx context.Context, rel *Release) (*state.Record, error) {
	task, err := u.variant.PlanDownload(rel, u.platform)
	if err != nil {
		return nil, failure.Configuration("plan download", err)
	}
	a := task.Artifact

	if task.WebPackage && u.cfg.DisableWebInstaller {
		return nil, failure.Configuration("download", fmt.Errorf("unable to download version %s: %w", rel.Version, ErrWebInstallerDisabled))
	}

	name := artifactName(a)
	u.logger.Info("downloading update", "version", rel.Version, "url", a.URL, "variant", u.variant.Kind(), "web", task.WebPackage)

	var differentialUsed bool
	installerPath, err := u.fetch(ctx, name, a.URL, a.Checksum, task.Differential, &differentialUsed, func(tmp string, obs progress.Observer) (*differential.Result, error) {
		return u.differentialInstaller(ctx, rel.Version, a, tmp, obs)
	})
	if err != nil {
		return nil, err
	}

	var packagePath, packageName string
	if task.WebPackage {
		p := a.PackageInfo
		packageName = artifactName(ArtifactDescriptor{URL: p.URL})
		var packageDifferential bool
		packagePath, err = u.fetch(ctx, packageName, p.URL, p.Checksum, p.BlockMapSize > 0, &packageDifferential, func(tmp string, obs progress.Observer) (*differential.Result, error) {
			return u.differentialPackage(ctx, p, tmp, obs)
		})
		if err != nil {
			return nil, err
		}
	}

	keep := []string{name}
	if packageName != "" {
		keep = append(keep, packageName)
	}
	if res, err := u.cache.Prune(keep...); err != nil {
		u.logger.Warn("failed to prune pending downloads", "err", err)
	} else if len(res.Deleted) > 0 {
		u.logger.Debug("pruned pending downloads", "deleted", len(res.Deleted))
	}

	sum := a.Checksum
	if sum == "" {
		if sum, err = checksum.File(installerPath); err != nil {
			return nil, failure.Process("download", err)
		}
	}

	rec := &state.Record{
		Version:             NormalizeVersion(rel.Version),
		FileName:            name,
		InstallerPath:       installerPath,
		PackagePath:         packagePath,
		CacheDir:            u.cache.Dir(),
		Checksum:            sum,
		Size:                a.Size,
		AdminRightsRequired: u.cfg.Installer.AdminRightsRequired,
		Differential:        differentialUsed,
		DownloadedAt:        u.now().UTC(),
	}
	if err := u.store.Save(rec); err != nil {
		return nil, failure.Process("download", err)
	}

	u.logger.Info("update downloaded", "version", rec.Version, "path", installerPath, "differential", differentialUsed)
	return rec, nil
}

// fetch writes one file to a pending temp path, trying reconstruct first
// when allowed, verifies it and publishes it under name.
func (u *Updater) fetch(ctx context.Context, name, url, sum string, tryDifferential bool, used *bool, reconstruct func(tmp string, obs progress.Observer) (*differential.Result, error)) (string, error) {
	tmp, err := u.cache.TempPath(name)
	if err != nil {
		return "", failure.Process("download", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.Remove(tmp)
		}
	}()

	// Both attempts report against one byte count.
	obs := progress.Monotonic(u.observer)

	if tryDifferential && u.cfg.Differential.IsEnabled() {
		_, err := reconstruct(tmp, obs)
		switch {
		case err == nil:
			*used = true
		case errors.Is(err, errNoBase):
			u.logger.Info("no cached artifact, skipping differential download", "file", name)
		case ctx.Err() != nil:
			return "", ctx.Err()
		case u.cfg.Differential.Diagnostic:
			return "", err
		case !failure.Recoverable(err):
			return "", err
		default:
			u.logger.Warn("cannot download differentially, falling back to full download", "file", name, "kind", failure.KindOf(err), "err", err)
		}
	}

	if !*used {
		opts := Options{
			Headers:          u.headers,
			ExpectedChecksum: sum,
			Observer:         obs,
			RejectedPath:     u.cache.PendingPath(name + rejectedSuffix),
		}
		if err := u.downloader.Download(ctx, url, tmp, opts); err != nil {
			return "", err
		}
	}

	final, err := u.cache.Publish(tmp, name)
	if err != nil {
		return "", failure.Process("download", err)
	}
	published = true
	return final, nil
}

func (u *Updater) differentialInstaller(ctx context.Context, version string, a ArtifactDescriptor, dest string, obs progress.Observer) (*differential.Result, error) {
	old := u.cache.CurrentInstaller()
	if !cache.Exists(old) {
		return nil, errNoBase
	}

	oldURL, newURL, err := BlockMapURLs(a.URL, u.host.Version(), version)
	if err != nil {
		return nil, failure.Configuration("differential download", err)
	}
	u.logger.Debug("downloading block maps", "old", oldURL, "new", newURL)

	oldMap, newMap, err := fetchBlockMaps(ctx, u.downloader, oldURL, newURL, Options{Headers: u.headers})
	if err != nil {
		return nil, err
	}

	return u.engine.Reconstruct(ctx, differential.Request{
		OldFile:     old,
		OldMap:      oldMap,
		NewURL:      a.URL,
		NewMap:      newMap,
		Destination: dest,
		Checksum:    a.Checksum,
		Observer:    obs,
	})
}

func (u *Updater) differentialPackage(ctx context.Context, p *PackageFileInfo, dest string, obs progress.Observer) (*differential.Result, error) {
	old := u.cache.CurrentPackage()
	if !cache.Exists(old) {
		return nil, errNoBase
	}

	oldMap, err := readEmbeddedBlockMap(old)
	if err != nil {
		return nil, failure.Corruption("differential download", err)
	}
	newMap, err := u.engine.FetchEmbeddedBlockMap(ctx, p.URL, p.Size, p.BlockMapSize)
	if err != nil {
		return nil, err
	}

	return u.engine.Reconstruct(ctx, differential.Request{
		OldFile:     old,
		OldMap:      oldMap,
		NewURL:      p.URL,
		NewMap:      newMap,
		Destination: dest,
		Size:        p.Size,
		Checksum:    p.Checksum,
		Observer:    obs,
	})
}

func readEmbeddedBlockMap(path string) (*blockmap.BlockMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	m, _, err := blockmap.ReadEmbedded(f, info.Size())
	return m, err
}

// Install activates the downloaded update. The installer is re-hashed
// first; a mismatch fails without deleting it. After a successful install
// the artifacts become the cached base for the next differential cycle.
func (u *Updater) Install(ctx context.Context) install.Outcome {
	rec, err := u.store.Read()
	if err != nil {
		return install.Outcome{Kind: types.OutcomeFailed, Reason: ReasonNoDownload, Err: failure.Configuration("install", err)}
	}
	if err := rec.Verify(); err != nil {
		u.logger.Error("downloaded update failed verification, keeping it for inspection", "path", rec.InstallerPath, "err", err)
		return install.Outcome{Kind: types.OutcomeFailed, Reason: ReasonChecksumMismatch, Err: failure.Verification("install", err)}
	}

	out := u.variant.Install(ctx, rec)
	if !out.Kind.IsSuccess() {
		return out
	}

	if u.variant.Kind() == types.VariantInstaller {
		if err := u.cache.Promote(rec.InstallerPath, u.cache.CurrentInstaller()); err != nil {
			u.logger.Warn("failed to cache installer for differential updates", "err", err)
		}
		if rec.PackagePath != "" {
			if err := u.cache.Promote(rec.PackagePath, u.cache.CurrentPackage()); err != nil {
				u.logger.Warn("failed to cache package for differential updates", "err", err)
			}
		}
	}
	if err := u.store.Clear(); err != nil {
		u.logger.Warn("failed to clear downloaded update record", "err", err)
	}
	return out
}
