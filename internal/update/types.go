package update

import (
	"context"
	"net/http"

	"github.com/adamancini/hatch/internal/progress"
)

// PackageFileInfo describes the secondary payload a web installer fetches
// at install time. The package carries its own block map at the end of the
// file; BlockMapSize is the length of that embedded payload.
type PackageFileInfo struct {
	URL          string `json:"url" yaml:"url"`
	Size         int64  `json:"size" yaml:"size"`
	Checksum     string `json:"checksum" yaml:"checksum"`
	BlockMapSize int64  `json:"blockMapSize,omitempty" yaml:"blockMapSize,omitempty"`
}

// ArtifactDescriptor is a resolved remote artifact. It is immutable once
// resolved.
type ArtifactDescriptor struct {
	URL         string           `json:"url" yaml:"url"`
	Name        string           `json:"name,omitempty" yaml:"name,omitempty"`
	Size        int64            `json:"size" yaml:"size"`
	Checksum    string           `json:"checksum" yaml:"checksum"`
	Version     string           `json:"version,omitempty" yaml:"version,omitempty"`
	SignerHint  string           `json:"signerHint,omitempty" yaml:"signerHint,omitempty"`
	PackageInfo *PackageFileInfo `json:"packageInfo,omitempty" yaml:"packageInfo,omitempty"`
}

// IsWebInstaller reports whether the artifact fetches a secondary package.
func (a ArtifactDescriptor) IsWebInstaller() bool {
	return a.PackageInfo != nil && a.PackageInfo.URL != ""
}

// FileName is Name, or the last element of the URL path.
func (a ArtifactDescriptor) FileName() string {
	return artifactName(a)
}

// Release is the resolved description of the latest version: the files
// published for it and their metadata.
type Release struct {
	Version      string               `json:"version" yaml:"version"`
	ReleaseDate  string               `json:"releaseDate,omitempty" yaml:"releaseDate,omitempty"`
	ReleaseNotes string               `json:"releaseNotes,omitempty" yaml:"releaseNotes,omitempty"`
	Files        []ArtifactDescriptor `json:"files" yaml:"files"`
}

// UpdateInfo describes an available update
type UpdateInfo struct {
	Available      bool                // Whether an update is available
	CurrentVersion string              // Currently installed version
	LatestVersion  string              // Latest available version
	ReleaseNotes   string              // Release notes/changelog
	Artifact       *ArtifactDescriptor // Artifact selected for this host, nil if none
}

// Platform describes the current system platform
type Platform struct {
	OS   string // Operating system (darwin, linux, windows)
	Arch string // Architecture (amd64, arm64)
}

// Host is the application being updated.
type Host interface {
	// Quit asks the application to exit.
	Quit()
	// Version returns the running version.
	Version() string
	// PortableExecutable returns the path of the running portable
	// executable, or false when the portable marker is absent.
	PortableExecutable() (string, bool)
}

// Options configure a single download.
type Options struct {
	Headers          http.Header
	ExpectedChecksum string
	Observer         progress.Observer

	// RejectedPath keeps a download that fails ExpectedChecksum under
	// this name. Empty discards it.
	RejectedPath string
}

// Downloader fetches whole files.
type Downloader interface {
	// Download writes url to dest. dest only appears once the transfer
	// completed and, when ExpectedChecksum is set, verified.
	Download(ctx context.Context, url, dest string, opts Options) error
	// DownloadToBuffer returns the body of url.
	DownloadToBuffer(ctx context.Context, url string, opts Options) ([]byte, error)
}
