package update

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/adamancini/hatch/internal/failure"
)

// ReleaseChecker reads a resolved release description and compares it with
// the running version. Resolving which description to read is the feed
// provider's job; the checker only consumes its result.
type ReleaseChecker struct {
	currentVersion string
	downloader     Downloader
	headers        http.Header
	platform       Platform
	portable       bool
}

// NewReleaseChecker creates a checker for currentVersion.
func NewReleaseChecker(currentVersion string, downloader Downloader) *ReleaseChecker {
	return &ReleaseChecker{
		currentVersion: currentVersion,
		downloader:     downloader,
		platform:       Detect(),
	}
}

// WithHeaders sets request headers used when the release is remote.
func (c *ReleaseChecker) WithHeaders(h http.Header) *ReleaseChecker {
	c.headers = h
	return c
}

// WithPortable selects artifacts for a portable build.
func (c *ReleaseChecker) WithPortable(portable bool) *ReleaseChecker {
	c.portable = portable
	return c
}

// WithPlatform overrides the detected platform.
func (c *ReleaseChecker) WithPlatform(p Platform) *ReleaseChecker {
	c.platform = p
	return c
}

// ReadRelease loads a release description from an http(s) URL or a local
// path. YAML and JSON are both accepted.
func (c *ReleaseChecker) ReadRelease(ctx context.Context, source string) (*Release, error) {
	var data []byte
	if isRemote(source) {
		var err error
		data, err = c.downloader.DownloadToBuffer(ctx, source, Options{Headers: c.headers})
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		data, err = os.ReadFile(source)
		if err != nil {
			return nil, failure.Configuration("read release", err)
		}
	}
	return ParseRelease(data)
}

// ParseRelease decodes a release description.
func ParseRelease(data []byte) (*Release, error) {
	var rel Release
	if err := yaml.Unmarshal(data, &rel); err != nil {
		return nil, failure.Configuration("parse release", fmt.Errorf("failed to decode release: %w", err))
	}
	if rel.Version == "" {
		return nil, failure.Configuration("parse release", fmt.Errorf("release has no version"))
	}
	if len(rel.Files) == 0 {
		return nil, failure.Configuration("parse release", fmt.Errorf("%w: release %s lists no files", ErrNoArtifact, rel.Version))
	}
	for i := range rel.Files {
		if rel.Files[i].Version == "" {
			rel.Files[i].Version = rel.Version
		}
	}
	return &rel, nil
}

// Check compares rel against the running version and selects the artifact
// this host would download.
func (c *ReleaseChecker) Check(rel *Release) (*UpdateInfo, error) {
	cmp, err := CompareVersions(rel.Version, c.currentVersion)
	if err != nil {
		return nil, failure.Configuration("check for update", err)
	}

	artifact, err := SelectArtifact(rel.Files, c.platform.Extension(), ExcludedTokens(c.portable))
	if err != nil {
		return nil, failure.Configuration("check for update", err)
	}

	return &UpdateInfo{
		Available:      cmp > 0,
		CurrentVersion: NormalizeVersion(c.currentVersion),
		LatestVersion:  NormalizeVersion(rel.Version),
		ReleaseNotes:   rel.ReleaseNotes,
		Artifact:       &artifact,
	}, nil
}

func isRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
