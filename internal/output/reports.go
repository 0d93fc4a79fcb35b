package output

import (
	"fmt"
	"strings"
	"time"
)

// RangeLine is one range of a download plan.
type RangeLine struct {
	Start  int64  `json:"start" yaml:"start"`
	End    int64  `json:"end" yaml:"end"`
	Source string `json:"source" yaml:"source"`
}

// PlanReport summarizes a differential download plan.
type PlanReport struct {
	Size       int64       `json:"size" yaml:"size"`
	ReuseBytes int64       `json:"reuse_bytes" yaml:"reuse_bytes"`
	FetchBytes int64       `json:"fetch_bytes" yaml:"fetch_bytes"`
	Ranges     []RangeLine `json:"ranges" yaml:"ranges"`
}

func (r PlanReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Size:   %d bytes\n", r.Size)
	fmt.Fprintf(&b, "Reuse:  %d bytes (%s)\n", r.ReuseBytes, percent(r.ReuseBytes, r.Size))
	fmt.Fprintf(&b, "Fetch:  %d bytes (%s)\n", r.FetchBytes, percent(r.FetchBytes, r.Size))
	fmt.Fprintf(&b, "Ranges: %d\n", len(r.Ranges))
	for _, rl := range r.Ranges {
		fmt.Fprintf(&b, "  %-9s [%d, %d)\n", rl.Source, rl.Start, rl.End)
	}
	return strings.TrimRight(b.String(), "\n")
}

// BlockMapReport describes a generated block map.
type BlockMapReport struct {
	File     string `json:"file" yaml:"file"`
	Output   string `json:"output" yaml:"output"`
	Size     int64  `json:"size" yaml:"size"`
	Blocks   int    `json:"blocks" yaml:"blocks"`
	Checksum string `json:"checksum" yaml:"checksum"`
	Embedded bool   `json:"embedded,omitempty" yaml:"embedded,omitempty"`
}

func (r BlockMapReport) String() string {
	where := "written to " + r.Output
	if r.Embedded {
		where = "embedded in " + r.Output
	}
	return fmt.Sprintf("%s: %d bytes, %d blocks, sha256 %s\nBlock map %s", r.File, r.Size, r.Blocks, r.Checksum, where)
}

// CheckReport describes the result of an update check.
type CheckReport struct {
	CurrentVersion string `json:"current_version" yaml:"current_version"`
	LatestVersion  string `json:"latest_version" yaml:"latest_version"`
	Available      bool   `json:"available" yaml:"available"`
	Artifact       string `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	ReleaseNotes   string `json:"release_notes,omitempty" yaml:"release_notes,omitempty"`
}

func (r CheckReport) String() string {
	if !r.Available {
		return fmt.Sprintf("Current version: %s\nAlready running latest version", r.CurrentVersion)
	}
	s := fmt.Sprintf("Current version: %s\nLatest version:  %s available", r.CurrentVersion, r.LatestVersion)
	if r.Artifact != "" {
		s += "\nArtifact:        " + r.Artifact
	}
	if r.ReleaseNotes != "" {
		s += "\n\nRelease notes:\n" + r.ReleaseNotes
	}
	return s
}

// DownloadReport describes a completed download.
type DownloadReport struct {
	Version       string `json:"version" yaml:"version"`
	InstallerPath string `json:"installer_path" yaml:"installer_path"`
	PackagePath   string `json:"package_path,omitempty" yaml:"package_path,omitempty"`
	Differential  bool   `json:"differential" yaml:"differential"`
	Size          int64  `json:"size,omitempty" yaml:"size,omitempty"`
}

func (r DownloadReport) String() string {
	mode := "full"
	if r.Differential {
		mode = "differential"
	}
	s := fmt.Sprintf("Downloaded %s (%s)\n  Installer: %s", r.Version, mode, r.InstallerPath)
	if r.PackagePath != "" {
		s += "\n  Package:   " + r.PackagePath
	}
	return s
}

// InstallReport describes an install outcome.
type InstallReport struct {
	Outcome string `json:"outcome" yaml:"outcome"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r InstallReport) String() string {
	s := "Outcome: " + r.Outcome
	if r.Reason != "" {
		s += " (" + r.Reason + ")"
	}
	if r.Error != "" {
		s += "\nError:   " + r.Error
	}
	return s
}

// PendingFile is a file in the cache's pending directory.
type PendingFile struct {
	Name       string    `json:"name" yaml:"name"`
	Size       int64     `json:"size" yaml:"size"`
	ModifiedAt time.Time `json:"modified_at" yaml:"modified_at"`
	Temporary  bool      `json:"temporary,omitempty" yaml:"temporary,omitempty"`
}

// StatusReport describes the cache and the downloaded update, if any.
type StatusReport struct {
	Version          string        `json:"version" yaml:"version"`
	Variant          string        `json:"variant" yaml:"variant"`
	ConfigPath       string        `json:"config_path,omitempty" yaml:"config_path,omitempty"`
	CacheDir         string        `json:"cache_dir" yaml:"cache_dir"`
	CachedInstaller  bool          `json:"cached_installer" yaml:"cached_installer"`
	CachedPackage    bool          `json:"cached_package" yaml:"cached_package"`
	DownloadedUpdate string        `json:"downloaded_update,omitempty" yaml:"downloaded_update,omitempty"`
	Pending          []PendingFile `json:"pending" yaml:"pending"`
}

func (r StatusReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Version:  %s (%s)\n", r.Version, r.Variant)
	if r.ConfigPath != "" {
		fmt.Fprintf(&b, "Config:   %s\n", r.ConfigPath)
	} else {
		b.WriteString("Config:   defaults\n")
	}
	fmt.Fprintf(&b, "Cache:    %s\n", r.CacheDir)
	fmt.Fprintf(&b, "  cached installer: %s\n", yesNo(r.CachedInstaller))
	fmt.Fprintf(&b, "  cached package:   %s\n", yesNo(r.CachedPackage))
	if r.DownloadedUpdate != "" {
		fmt.Fprintf(&b, "Downloaded update: %s\n", r.DownloadedUpdate)
	} else {
		b.WriteString("Downloaded update: none\n")
	}
	if len(r.Pending) > 0 {
		b.WriteString("Pending:\n")
		for _, p := range r.Pending {
			tag := ""
			if p.Temporary {
				tag = " (incomplete)"
			}
			fmt.Fprintf(&b, "  %s  %d bytes  %s%s\n", p.ModifiedAt.Format(time.RFC3339), p.Size, p.Name, tag)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// CleanReport lists what a cache cleanup removed.
type CleanReport struct {
	Deleted []string `json:"deleted" yaml:"deleted"`
	Kept    int      `json:"kept" yaml:"kept"`
}

func (r CleanReport) String() string {
	if len(r.Deleted) == 0 {
		return fmt.Sprintf("Nothing to clean (%d kept)", r.Kept)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Removed %d file(s), kept %d\n", len(r.Deleted), r.Kept)
	for _, name := range r.Deleted {
		fmt.Fprintf(&b, "  %s\n", name)
	}
	return strings.TrimRight(b.String(), "\n")
}

func percent(part, total int64) string {
	if total <= 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(total))
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
