package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for valid values. Zero values are
// accepted and later replaced by defaults.
func Validate(c *Config) error {
	var errors []string

	for i, name := range c.PublisherName {
		if strings.TrimSpace(name) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("publisherName[%d]", i),
				Message: "publisher name cannot be empty",
			}.Error())
		}
	}

	if c.Variant != "" {
		if err := c.Variant.Validate(); err != nil {
			errors = append(errors, ValidationError{Field: "variant", Message: err.Error()}.Error())
		}
	}

	if err := validateInstallerArgs(c.Installer.Args); err != nil {
		errors = append(errors, err.Error())
	}

	if c.Signature.Command == "" && len(c.Signature.Args) > 0 {
		errors = append(errors, ValidationError{
			Field:   "signature.command",
			Message: "command is required when args are set",
		}.Error())
	}

	if err := validateDifferential(c.Differential); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.Portable.Watchdog.Validate(); err != nil {
		errors = append(errors, ValidationError{Field: "portable.watchdog", Message: err.Error()}.Error())
	}
	if c.Portable.PollIntervalSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "portable.pollIntervalSeconds",
			Message: "must not be negative",
		}.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateInstallerArgs(a InstallerArgs) error {
	if a.InstallDir != "" && !strings.Contains(a.InstallDir, "{dir}") {
		return ValidationError{
			Field:   "installer.args.installDir",
			Message: "must contain the {dir} placeholder",
		}
	}
	if a.PackageFile != "" && !strings.Contains(a.PackageFile, "{path}") {
		return ValidationError{
			Field:   "installer.args.packageFile",
			Message: "must contain the {path} placeholder",
		}
	}
	return nil
}

func validateDifferential(d DifferentialConfig) error {
	if d.Concurrency < 0 {
		return ValidationError{
			Field:   "differential.concurrency",
			Message: "must not be negative",
		}
	}
	if d.MaxRangesPerRequest < 0 {
		return ValidationError{
			Field:   "differential.maxRangesPerRequest",
			Message: "must not be negative",
		}
	}
	return nil
}
