package update

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/adamancini/hatch/internal/failure"
	"github.com/adamancini/hatch/internal/types"
)

const releaseYAML = `version: 2.0.0
releaseNotes: fixes
files:
  - url: https://example.com/App-USB-2.0.0.exe
    size: 100
    checksum: aa
  - url: https://example.com/App-Setup-2.0.0.exe
    size: 200
    checksum: bb
    packageInfo:
      url: https://example.com/app-2.0.0-x64.nsis.7z
      size: 5000
      checksum: cc
      blockMapSize: 321
`

func quietDownloader() *HTTPDownloader {
	return NewHTTPDownloader(WithDownloadLogger(log.New(io.Discard)))
}

func TestParseRelease(t *testing.T) {
	rel, err := ParseRelease([]byte(releaseYAML))
	if err != nil {
		t.Fatalf("ParseRelease() error = %v", err)
	}
	if rel.Version != "2.0.0" || len(rel.Files) != 2 {
		t.Fatalf("ParseRelease() = %+v", rel)
	}
	if rel.Files[1].Version != "2.0.0" {
		t.Error("file version should default to the release version")
	}
	if !rel.Files[1].IsWebInstaller() || rel.Files[1].PackageInfo.BlockMapSize != 321 {
		t.Errorf("package info = %+v", rel.Files[1].PackageInfo)
	}

	json := `{"version": "1.0.0", "files": [{"url": "https://example.com/a.exe", "size": 1, "checksum": "x"}]}`
	if _, err := ParseRelease([]byte(json)); err != nil {
		t.Errorf("ParseRelease(json) error = %v", err)
	}
}

func TestParseReleaseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not yaml", data: "version: [1"},
		{name: "no version", data: "files:\n  - url: a.exe\n"},
		{name: "no files", data: "version: 1.0.0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRelease([]byte(tt.data))
			if !failure.Is(err, types.KindConfiguration) {
				t.Errorf("ParseRelease() error = %v, want configuration error", err)
			}
		})
	}
}

func TestReadRelease(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(releaseYAML))
	}))
	defer server.Close()

	checker := NewReleaseChecker("1.0.0", quietDownloader()).
		WithHeaders(http.Header{"Authorization": []string{"token abc"}})

	rel, err := checker.ReadRelease(context.Background(), server.URL+"/latest.yml")
	if err != nil {
		t.Fatalf("ReadRelease(remote) error = %v", err)
	}
	if rel.Version != "2.0.0" {
		t.Errorf("Version = %s", rel.Version)
	}

	path := filepath.Join(t.TempDir(), "latest.yml")
	if err := os.WriteFile(path, []byte(releaseYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := checker.ReadRelease(context.Background(), path); err != nil {
		t.Errorf("ReadRelease(local) error = %v", err)
	}

	if _, err := checker.ReadRelease(context.Background(), filepath.Join(t.TempDir(), "missing.yml")); !failure.Is(err, types.KindConfiguration) {
		t.Errorf("ReadRelease(missing) error = %v", err)
	}
}

func TestCheck(t *testing.T) {
	rel, err := ParseRelease([]byte(releaseYAML))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name          string
		current       string
		portable      bool
		wantAvailable bool
		wantURL       string
	}{
		{name: "older installer", current: "1.9.0", wantAvailable: true, wantURL: "https://example.com/App-Setup-2.0.0.exe"},
		{name: "same version", current: "v2.0.0", wantAvailable: false, wantURL: "https://example.com/App-Setup-2.0.0.exe"},
		{name: "newer prerelease", current: "2.1.0-beta.1", wantAvailable: false, wantURL: "https://example.com/App-Setup-2.0.0.exe"},
		{name: "portable", current: "1.0.0", portable: true, wantAvailable: true, wantURL: "https://example.com/App-USB-2.0.0.exe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewReleaseChecker(tt.current, quietDownloader()).
				WithPlatform(Platform{OS: "windows", Arch: "amd64"}).
				WithPortable(tt.portable)

			info, err := checker.Check(rel)
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if info.Available != tt.wantAvailable {
				t.Errorf("Available = %v, want %v", info.Available, tt.wantAvailable)
			}
			if info.Artifact.URL != tt.wantURL {
				t.Errorf("Artifact = %s, want %s", info.Artifact.URL, tt.wantURL)
			}
			if info.LatestVersion != "2.0.0" {
				t.Errorf("LatestVersion = %s", info.LatestVersion)
			}
		})
	}

	if _, err := NewReleaseChecker("garbage", quietDownloader()).Check(rel); err == nil {
		t.Error("expected error for invalid current version")
	}
}
