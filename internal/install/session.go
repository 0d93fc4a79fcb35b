// Package install verifies a downloaded installer and runs it, escalating
// privileges or falling back to the default file handler when the first
// spawn fails.
package install

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/adamancini/hatch/internal/config"
	"github.com/adamancini/hatch/internal/types"
)

// Session is one install attempt. It is built right before Install and
// discarded afterwards.
type Session struct {
	ID                  string
	InstallerPath       string
	PackagePath         string
	Silent              bool
	ForceRunAfter       bool
	AdminRightsRequired bool
	InstallDir          string
}

// NewSession creates a session for installerPath with the flags from cfg.
func NewSession(installerPath, packagePath string, cfg config.InstallerConfig) Session {
	return Session{
		ID:                  uuid.NewString(),
		InstallerPath:       installerPath,
		PackagePath:         packagePath,
		Silent:              cfg.Silent,
		ForceRunAfter:       cfg.ForceRunAfter,
		AdminRightsRequired: cfg.AdminRightsRequired,
		InstallDir:          cfg.InstallDir,
	}
}

// Reasons attached to failed outcomes.
const (
	ReasonSignatureInvalid  = "signature-invalid"
	ReasonVerificationError = "verification-error"
	ReasonProcessError      = "process-error"
	ReasonElevationFailed   = "elevation-failed"
	ReasonOpenFailed        = "open-failed"
	ReasonOpenedByHandler   = "opened-by-default-handler"
)

// Outcome is the result of an install attempt.
type Outcome struct {
	Kind   types.OutcomeKind
	Reason string
	Err    error
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
}
