// Package cache manages the update cache directory: the slots holding the
// currently installed artifact, which differential downloads diff against,
// and the pending directory new downloads are written to.
package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// InstallerFileName is the slot holding the installed version's installer.
	InstallerFileName = "installer.exe"
	// PackageFileName is the slot holding the installed version's web package.
	PackageFileName = "package.7z"
	// PendingDirName holds downloads that are not installed yet.
	PendingDirName = "pending"

	tempSuffix = ".tmp"
)

// EntryInfo describes a file in the pending directory.
type EntryInfo struct {
	Name       string    `json:"name" yaml:"name"`
	Path       string    `json:"path" yaml:"path"`
	Size       int64     `json:"size" yaml:"size"`
	ModifiedAt time.Time `json:"modified_at" yaml:"modified_at"`
	Temporary  bool      `json:"temporary,omitempty" yaml:"temporary,omitempty"`
}

// Manager handles cache operations.
type Manager struct {
	dir string
}

// NewManager creates a cache manager for the default directory of app.
func NewManager(app string) (*Manager, error) {
	dir, err := DefaultDir(app)
	if err != nil {
		return nil, err
	}
	return &Manager{dir: dir}, nil
}

// NewManagerWithDir creates a cache manager with a custom directory.
func NewManagerWithDir(dir string) *Manager {
	return &Manager{dir: dir}
}

// DefaultDir returns the default cache directory path for app.
func DefaultDir(app string) (string, error) {
	// Use XDG_CACHE_HOME or default to ~/.cache
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		var err error
		cacheDir, err = os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine cache directory: %w", err)
		}
	}
	return filepath.Join(cacheDir, app+"-updater"), nil
}

// Dir returns the cache directory path.
func (m *Manager) Dir() string {
	return m.dir
}

// PendingDir returns the directory new downloads are published to.
func (m *Manager) PendingDir() string {
	return filepath.Join(m.dir, PendingDirName)
}

// CurrentInstaller returns the slot of the installed version's installer.
func (m *Manager) CurrentInstaller() string {
	return filepath.Join(m.dir, InstallerFileName)
}

// CurrentPackage returns the slot of the installed version's package file.
func (m *Manager) CurrentPackage() string {
	return filepath.Join(m.dir, PackageFileName)
}

// PendingPath returns the final path of a pending download named name.
func (m *Manager) PendingPath(name string) string {
	return filepath.Join(m.PendingDir(), filepath.Base(name))
}

// TempPath returns a temporary path in the pending directory for a
// download that will be published as name. The directory is created.
func (m *Manager) TempPath(name string) (string, error) {
	if err := os.MkdirAll(m.PendingDir(), 0755); err != nil {
		return "", fmt.Errorf("failed to create pending directory: %w", err)
	}
	f, err := os.CreateTemp(m.PendingDir(), filepath.Base(name)+".*"+tempSuffix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// Publish renames a verified temporary file into its pending slot and
// returns the final path. Callers verify before publishing so a later cycle
// never sees a half-written artifact under a final name.
func (m *Manager) Publish(tempPath, name string) (string, error) {
	final := m.PendingPath(name)
	if err := os.Rename(tempPath, final); err != nil {
		return "", fmt.Errorf("failed to publish %s: %w", name, err)
	}
	return final, nil
}

// Promote copies an installed artifact into a current slot so the next
// cycle can diff against it.
func (m *Manager) Promote(src, slot string) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(m.dir, "."+filepath.Base(slot)+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), slot); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to promote %s: %w", filepath.Base(slot), err)
	}
	return nil
}

// Exists reports whether path exists as a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// List returns pending entries sorted by modification time (newest first).
func (m *Manager) List() ([]EntryInfo, error) {
	entries, err := os.ReadDir(m.PendingDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []EntryInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read pending directory: %w", err)
	}

	var infos []EntryInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, EntryInfo{
			Name:       entry.Name(),
			Path:       filepath.Join(m.PendingDir(), entry.Name()),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
			Temporary:  strings.HasSuffix(entry.Name(), tempSuffix),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModifiedAt.After(infos[j].ModifiedAt)
	})

	return infos, nil
}

// Clean removes the pending directory and everything in it.
func (m *Manager) Clean() error {
	if err := os.RemoveAll(m.PendingDir()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clean pending directory: %w", err)
	}
	return nil
}
