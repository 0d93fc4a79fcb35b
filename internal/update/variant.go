package update

import (
	"context"
	"fmt"

	"github.com/adamancini/hatch/internal/config"
	"github.com/adamancini/hatch/internal/install"
	"github.com/adamancini/hatch/internal/state"
	"github.com/adamancini/hatch/internal/types"
)

// Reasons attached to outcomes produced outside the install orchestrator.
const (
	ReasonWatchdogLaunched = "watchdog-launched"
	ReasonReplaceFailed    = "replace-failed"
	ReasonNoDownload       = "no-downloaded-update"
	ReasonChecksumMismatch = "checksum-mismatch"
)

// Task is what a variant downloads for a release.
type Task struct {
	Artifact ArtifactDescriptor
	// Differential allows reconstructing the artifact from the cached one.
	Differential bool
	// WebPackage means the artifact is a web installer whose package file
	// is downloaded alongside it.
	WebPackage bool
}

// Variant is one distribution flavour. The set is closed: installer and
// portable, chosen once by NewVariant.
type Variant interface {
	Kind() types.Variant
	PlanDownload(rel *Release, p Platform) (Task, error)
	Install(ctx context.Context, rec *state.Record) install.Outcome
}

// Installer runs an install session. *install.Orchestrator implements it.
type Installer interface {
	Install(ctx context.Context, s install.Session) install.Outcome
}

// SelfReplacer swaps the running executable. *portable.Replacer
// implements it.
type SelfReplacer interface {
	Replace(ctx context.Context, newBinary string) error
}

// Deps are the collaborators variants are built from. Only the ones the
// selected variant needs must be set.
type Deps struct {
	Installer       Installer
	InstallerConfig config.InstallerConfig
	Replacer        SelfReplacer
}

// NewVariant returns the variant for tag.
func NewVariant(tag types.Variant, deps Deps) (Variant, error) {
	switch tag {
	case types.VariantInstaller:
		if deps.Installer == nil {
			return nil, fmt.Errorf("installer variant requires an installer")
		}
		return &installerVariant{installer: deps.Installer, cfg: deps.InstallerConfig}, nil
	case types.VariantPortable:
		if deps.Replacer == nil {
			return nil, fmt.Errorf("portable variant requires a replacer")
		}
		return &portableVariant{replacer: deps.Replacer}, nil
	default:
		return nil, tag.Validate()
	}
}

type installerVariant struct {
	installer Installer
	cfg       config.InstallerConfig
}

func (v *installerVariant) Kind() types.Variant { return types.VariantInstaller }

func (v *installerVariant) PlanDownload(rel *Release, p Platform) (Task, error) {
	a, err := SelectArtifact(rel.Files, p.Extension(), ExcludedTokens(false))
	if err != nil {
		return Task{}, err
	}
	web := a.IsWebInstaller()
	return Task{Artifact: a, Differential: !web, WebPackage: web}, nil
}

func (v *installerVariant) Install(ctx context.Context, rec *state.Record) install.Outcome {
	s := install.NewSession(rec.InstallerPath, rec.PackagePath, v.cfg)
	s.AdminRightsRequired = s.AdminRightsRequired || rec.AdminRightsRequired
	return v.installer.Install(ctx, s)
}

type portableVariant struct {
	replacer SelfReplacer
}

func (v *portableVariant) Kind() types.Variant { return types.VariantPortable }

func (v *portableVariant) PlanDownload(rel *Release, p Platform) (Task, error) {
	a, err := SelectArtifact(rel.Files, p.Extension(), ExcludedTokens(true))
	if err != nil {
		return Task{}, err
	}
	return Task{Artifact: a}, nil
}

func (v *portableVariant) Install(ctx context.Context, rec *state.Record) install.Outcome {
	if err := v.replacer.Replace(ctx, rec.InstallerPath); err != nil {
		return install.Outcome{Kind: types.OutcomeFailed, Reason: ReasonReplaceFailed, Err: err}
	}
	return install.Outcome{Kind: types.OutcomeInstalled, Reason: ReasonWatchdogLaunched}
}

// ResolveVariant returns configured when set. Otherwise the host is
// portable when it carries the portable marker.
func ResolveVariant(configured types.Variant, host Host) types.Variant {
	if configured != "" {
		return configured
	}
	if _, ok := host.PortableExecutable(); ok {
		return types.VariantPortable
	}
	return types.VariantInstaller
}
