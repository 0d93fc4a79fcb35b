// Package config handles app-update configuration parsing and location
// resolution.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adamancini/hatch/internal/types"
)

// DefaultMarkerEnv is the environment variable a portable launcher sets to
// the path of the running executable.
const DefaultMarkerEnv = "PORTABLE_EXECUTABLE_FILE"

// ErrNotFound indicates no configuration file exists in any standard
// location. Callers fall back to Default().
var ErrNotFound = errors.New("no app-update configuration found")

// Config is the parsed app-update file.
type Config struct {
	// PublisherName is the signer allow-list. It may be written as a single
	// string or a list. Empty means signatures are not checked.
	PublisherName []string `yaml:"-" toml:"-" json:"-"`

	// Variant forces installer or portable; empty detects it from the host.
	Variant types.Variant `yaml:"variant,omitempty" toml:"variant,omitempty" json:"variant,omitempty"`

	// CacheDir overrides the update cache directory.
	CacheDir string `yaml:"cacheDir,omitempty" toml:"cacheDir,omitempty" json:"cacheDir,omitempty"`

	// DisableWebInstaller rejects artifacts that ship a separate package file.
	DisableWebInstaller bool `yaml:"disableWebInstaller,omitempty" toml:"disableWebInstaller,omitempty" json:"disableWebInstaller,omitempty"`

	// RequestHeaders are sent with every download request.
	RequestHeaders map[string]string `yaml:"requestHeaders,omitempty" toml:"requestHeaders,omitempty" json:"requestHeaders,omitempty"`

	Installer    InstallerConfig    `yaml:"installer" toml:"installer" json:"installer"`
	Signature    SignatureConfig    `yaml:"signature" toml:"signature" json:"signature"`
	Differential DifferentialConfig `yaml:"differential" toml:"differential" json:"differential"`
	Portable     PortableConfig     `yaml:"portable" toml:"portable" json:"portable"`
}

// InstallerConfig controls how the downloaded installer is run.
type InstallerConfig struct {
	Args                InstallerArgs `yaml:"args" toml:"args" json:"args"`
	ElevateHelper       string        `yaml:"elevateHelper,omitempty" toml:"elevateHelper,omitempty" json:"elevateHelper,omitempty"`
	InstallDir          string        `yaml:"installDir,omitempty" toml:"installDir,omitempty" json:"installDir,omitempty"`
	Silent              bool          `yaml:"silent,omitempty" toml:"silent,omitempty" json:"silent,omitempty"`
	ForceRunAfter       bool          `yaml:"forceRunAfter,omitempty" toml:"forceRunAfter,omitempty" json:"forceRunAfter,omitempty"`
	AdminRightsRequired bool          `yaml:"adminRightsRequired,omitempty" toml:"adminRightsRequired,omitempty" json:"adminRightsRequired,omitempty"`
}

// InstallerArgs are the command-line conventions of the installer.
// InstallDir must contain {dir} and PackageFile must contain {path}.
type InstallerArgs struct {
	Updated     string `yaml:"updated,omitempty" toml:"updated,omitempty" json:"updated,omitempty"`
	Silent      string `yaml:"silent,omitempty" toml:"silent,omitempty" json:"silent,omitempty"`
	ForceRun    string `yaml:"forceRun,omitempty" toml:"forceRun,omitempty" json:"forceRun,omitempty"`
	InstallDir  string `yaml:"installDir,omitempty" toml:"installDir,omitempty" json:"installDir,omitempty"`
	PackageFile string `yaml:"packageFile,omitempty" toml:"packageFile,omitempty" json:"packageFile,omitempty"`
}

// Build assembles the installer argument list. The updated marker is
// always first.
func (a InstallerArgs) Build(silent, forceRun bool, installDir, packageFile string) []string {
	args := []string{a.Updated}
	if silent {
		args = append(args, a.Silent)
	}
	if forceRun {
		args = append(args, a.ForceRun)
	}
	if installDir != "" {
		args = append(args, strings.ReplaceAll(a.InstallDir, "{dir}", installDir))
	}
	if packageFile != "" {
		// Only the key=value form is understood by the installer.
		args = append(args, strings.ReplaceAll(a.PackageFile, "{path}", packageFile))
	}
	return args
}

// SignatureConfig names the external signature tool. Args may contain
// {file}.
type SignatureConfig struct {
	Command string   `yaml:"command,omitempty" toml:"command,omitempty" json:"command,omitempty"`
	Args    []string `yaml:"args,omitempty" toml:"args,omitempty" json:"args,omitempty"`
}

// DifferentialConfig tunes the differential download.
type DifferentialConfig struct {
	Enabled             *bool `yaml:"enabled,omitempty" toml:"enabled,omitempty" json:"enabled,omitempty"`
	Concurrency         int   `yaml:"concurrency,omitempty" toml:"concurrency,omitempty" json:"concurrency,omitempty"`
	MultiRange          bool  `yaml:"multiRange,omitempty" toml:"multiRange,omitempty" json:"multiRange,omitempty"`
	MaxRangesPerRequest int   `yaml:"maxRangesPerRequest,omitempty" toml:"maxRangesPerRequest,omitempty" json:"maxRangesPerRequest,omitempty"`
	// Diagnostic surfaces differential failures instead of silently
	// falling back to a full download.
	Diagnostic bool `yaml:"diagnostic,omitempty" toml:"diagnostic,omitempty" json:"diagnostic,omitempty"`
}

// IsEnabled reports whether differential download should be attempted.
// It defaults to true.
func (d DifferentialConfig) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// PortableConfig controls the portable self-replacement.
type PortableConfig struct {
	Watchdog            types.WatchdogMode `yaml:"watchdog,omitempty" toml:"watchdog,omitempty" json:"watchdog,omitempty"`
	MarkerEnv           string             `yaml:"markerEnv,omitempty" toml:"markerEnv,omitempty" json:"markerEnv,omitempty"`
	PollIntervalSeconds int                `yaml:"pollIntervalSeconds,omitempty" toml:"pollIntervalSeconds,omitempty" json:"pollIntervalSeconds,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	applyDefaults(c)
	return c
}

func applyDefaults(c *Config) {
	a := &c.Installer.Args
	if a.Updated == "" {
		a.Updated = "--updated"
	}
	if a.Silent == "" {
		a.Silent = "/S"
	}
	if a.ForceRun == "" {
		a.ForceRun = "--force-run"
	}
	if a.InstallDir == "" {
		a.InstallDir = "/D={dir}"
	}
	if a.PackageFile == "" {
		a.PackageFile = "--package-file={path}"
	}
	if c.Differential.Concurrency == 0 {
		c.Differential.Concurrency = 4
	}
	if c.Differential.MaxRangesPerRequest == 0 {
		c.Differential.MaxRangesPerRequest = 64
	}
	if c.Portable.Watchdog == "" {
		c.Portable.Watchdog = types.WatchdogScript
	}
	if c.Portable.MarkerEnv == "" {
		c.Portable.MarkerEnv = DefaultMarkerEnv
	}
	if c.Portable.PollIntervalSeconds == 0 {
		c.Portable.PollIntervalSeconds = 2
	}
}

// FileNames are the configuration file names looked up in each directory.
var FileNames = []string{
	"app-update.yml",
	"app-update.yaml",
	"app-update.toml",
	"app-update.json",
}

// Find searches for a configuration file in the standard locations and
// returns ErrNotFound when there is none.
func Find(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv("HATCH_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	for _, dir := range searchDirs() {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", ErrNotFound
}

// searchDirs lists the XDG config directory, then the executable's
// directory and its resources subdirectory.
func searchDirs() []string {
	var dirs []string

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		if home, err := os.UserHomeDir(); err == nil {
			xdgConfig = filepath.Join(home, ".config")
		}
	}
	if xdgConfig != "" {
		dirs = append(dirs, filepath.Join(xdgConfig, "hatch"))
	}

	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		dirs = append(dirs, dir, filepath.Join(dir, "resources"))
	}
	return dirs
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	cfg, err := parse(content, format)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// LoadOrDefault finds and loads the configuration, returning Default()
// with an empty path when no file exists.
func LoadOrDefault(explicitPath string) (*Config, string, error) {
	path, err := Find(explicitPath)
	if errors.Is(err, ErrNotFound) {
		return Default(), "", nil
	}
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
