// Package types provides type-safe constants for the hatch update engine.
//
// This package centralizes the enumerated types shared across the engine
// (plan range sources, distribution variants, install states, outcomes and
// error kinds), replacing magic strings with typed constants that carry
// validation methods.
//
// SYNC REQUIREMENT: Variant values must stay in sync with the `variant`
// key accepted by internal/config (validate.go).
package types

import (
	"fmt"
	"strings"
)

// RangeSource says where the bytes of a planned range come from.
type RangeSource string

const (
	// SourceReuseOld copies the bytes from the cached old file.
	SourceReuseOld RangeSource = "reuse-old"
	// SourceFetchNew fetches the bytes from the network.
	SourceFetchNew RangeSource = "fetch-new"
)

// Validate checks if the RangeSource is a valid value.
func (s RangeSource) Validate() error {
	switch s {
	case SourceReuseOld, SourceFetchNew:
		return nil
	case "":
		return fmt.Errorf("range source is required")
	default:
		return fmt.Errorf("invalid range source '%s' (must be reuse-old or fetch-new)", s)
	}
}

// String returns the string representation of the RangeSource.
func (s RangeSource) String() string {
	return string(s)
}

// IsReuse returns true if the range is copied from the old file.
func (s RangeSource) IsReuse() bool {
	return s == SourceReuseOld
}

// IsFetch returns true if the range is fetched from the network.
func (s RangeSource) IsFetch() bool {
	return s == SourceFetchNew
}

// Variant is the distribution flavour an Updater is built for.
type Variant string

const (
	// VariantInstaller runs a separate installer executable.
	VariantInstaller Variant = "installer"
	// VariantPortable replaces a relocatable single executable in place.
	VariantPortable Variant = "portable"
)

// AllVariants returns all valid variants.
func AllVariants() []Variant {
	return []Variant{VariantInstaller, VariantPortable}
}

// Validate checks if the Variant is a valid value.
func (v Variant) Validate() error {
	switch v {
	case VariantInstaller, VariantPortable:
		return nil
	case "":
		return fmt.Errorf("variant is required")
	default:
		return fmt.Errorf("invalid variant '%s' (must be installer or portable)", v)
	}
}

// String returns the string representation of the Variant.
func (v Variant) String() string {
	return string(v)
}

// IsPortable returns true for the portable variant.
func (v Variant) IsPortable() bool {
	return v == VariantPortable
}

// ParseVariant parses a string into a Variant.
// Returns an error if the string is not a valid variant.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if err := v.Validate(); err != nil {
		return "", err
	}
	return v, nil
}

// State is a state of the install orchestrator.
type State string

const (
	StateIdle       State = "idle"
	StateVerifying  State = "verifying"
	StateInstalling State = "installing"
	StateElevating  State = "elevating"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// String returns the string representation of the State.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true for done and failed.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether the orchestrator may move from s to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateIdle:
		return next == StateVerifying
	case StateVerifying:
		return next == StateInstalling || next == StateElevating || next == StateFailed
	case StateInstalling:
		return next == StateElevating || next == StateDone || next == StateFailed
	case StateElevating:
		return next == StateInstalling
	default:
		return false
	}
}

// OutcomeKind classifies the result of an install attempt.
type OutcomeKind string

const (
	OutcomeInstalled        OutcomeKind = "installed"
	OutcomeElevatedRelaunch OutcomeKind = "elevated-relaunch"
	OutcomeFailed           OutcomeKind = "failed"
)

// String returns the string representation of the OutcomeKind.
func (k OutcomeKind) String() string {
	return string(k)
}

// IsSuccess returns true unless the outcome is failed.
func (k OutcomeKind) IsSuccess() bool {
	return k == OutcomeInstalled || k == OutcomeElevatedRelaunch
}

// ErrorKind is the error taxonomy used by internal/failure.
type ErrorKind string

const (
	// KindConfiguration is a missing marker or environment value. Fatal.
	KindConfiguration ErrorKind = "configuration"
	// KindNetwork is a transport failure during a fetch.
	KindNetwork ErrorKind = "network"
	// KindVerification is a signature or whole-file checksum mismatch.
	KindVerification ErrorKind = "verification"
	// KindPermission is a spawn denied for lack of privilege.
	KindPermission ErrorKind = "permission"
	// KindProcess is any other spawn or exec failure.
	KindProcess ErrorKind = "process"
	// KindCorruption is a reconstructed file that does not match its block map.
	KindCorruption ErrorKind = "corruption"
)

// AllErrorKinds returns all valid error kinds.
func AllErrorKinds() []ErrorKind {
	return []ErrorKind{KindConfiguration, KindNetwork, KindVerification, KindPermission, KindProcess, KindCorruption}
}

// String returns the string representation of the ErrorKind.
func (k ErrorKind) String() string {
	return string(k)
}

// Validate checks if the ErrorKind is a valid value.
func (k ErrorKind) Validate() error {
	for _, known := range AllErrorKinds() {
		if k == known {
			return nil
		}
	}
	return fmt.Errorf("invalid error kind '%s'", k)
}

// WatchdogMode selects how a portable executable is swapped after exit.
type WatchdogMode string

const (
	// WatchdogScript writes a platform shell script that performs the swap.
	WatchdogScript WatchdogMode = "script"
	// WatchdogBinary re-runs this program's watchdog command.
	WatchdogBinary WatchdogMode = "binary"
)

// Validate checks if the WatchdogMode is a valid value. Empty is allowed
// and means script.
func (m WatchdogMode) Validate() error {
	switch m {
	case WatchdogScript, WatchdogBinary, "":
		return nil
	default:
		return fmt.Errorf("invalid watchdog mode '%s' (must be script or binary)", m)
	}
}

// String returns the string representation of the WatchdogMode.
func (m WatchdogMode) String() string {
	if m == "" {
		return string(WatchdogScript)
	}
	return string(m)
}

// IsBinary returns true when the swap is done by this program.
func (m WatchdogMode) IsBinary() bool {
	return m == WatchdogBinary
}
