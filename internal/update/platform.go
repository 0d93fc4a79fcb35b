package update

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"runtime"
	"strings"
)

// ErrNoArtifact indicates no published file fits this host.
var ErrNoArtifact = errors.New("no matching artifact")

// Detect returns the current platform (OS and architecture)
func Detect() Platform {
	return Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}

// Extension returns the artifact extension installers use on this
// platform.
func (p Platform) Extension() string {
	switch p.OS {
	case "windows":
		return "exe"
	case "darwin":
		return "zip"
	default:
		return "AppImage"
	}
}

// IsSupported returns true if this platform is supported
func (p Platform) IsSupported() bool {
	supportedPlatforms := map[string][]string{
		"darwin":  {"amd64", "arm64"},
		"linux":   {"amd64", "arm64"},
		"windows": {"amd64", "arm64", "386"},
	}

	archs, ok := supportedPlatforms[p.OS]
	if !ok {
		return false
	}

	for _, arch := range archs {
		if p.Arch == arch {
			return true
		}
	}

	return false
}

// ExcludedTokens returns the name fragments that rule an artifact out: a
// portable build never takes a "setup" installer and an installer build
// never takes a "USB" portable image.
func ExcludedTokens(portable bool) []string {
	if portable {
		return []string{"setup"}
	}
	return []string{"USB"}
}

// artifactName returns the file name of a, falling back to its URL path.
func artifactName(a ArtifactDescriptor) string {
	if a.Name != "" {
		return a.Name
	}
	if u, err := url.Parse(a.URL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(a.URL)
}

// SelectArtifact returns the first file with extension ext whose name
// contains none of the excluded tokens. When nothing passes the filter it
// falls back to the first file with the extension, then to the first file.
func SelectArtifact(files []ArtifactDescriptor, ext string, exclude []string) (ArtifactDescriptor, error) {
	if len(files) == 0 {
		return ArtifactDescriptor{}, fmt.Errorf("%w: release has no files", ErrNoArtifact)
	}

	suffix := "." + strings.ToLower(strings.TrimPrefix(ext, "."))
	var withExt []ArtifactDescriptor
	for _, f := range files {
		if strings.HasSuffix(strings.ToLower(artifactName(f)), suffix) {
			withExt = append(withExt, f)
		}
	}

	for _, f := range withExt {
		if !containsAny(artifactName(f), exclude) {
			return f, nil
		}
	}
	if len(withExt) > 0 {
		return withExt[0], nil
	}
	return files[0], nil
}

func containsAny(name string, tokens []string) bool {
	lower := strings.ToLower(name)
	for _, t := range tokens {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
