// Package state persists the "downloaded update" record that lets an
// update be downloaded now and installed later.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adamancini/hatch/internal/checksum"
)

// FileName is the record file inside the cache directory.
const FileName = "update-info.yaml"

// ErrNoRecord indicates no update has been downloaded.
var ErrNoRecord = errors.New("no downloaded update")

// Record describes a verified download waiting to be installed.
type Record struct {
	Version             string    `yaml:"version"`
	FileName            string    `yaml:"fileName"`
	InstallerPath       string    `yaml:"installerPath"`
	PackagePath         string    `yaml:"packagePath,omitempty"`
	CacheDir            string    `yaml:"cacheDir"`
	Checksum            string    `yaml:"checksum"`
	Size                int64     `yaml:"size,omitempty"`
	AdminRightsRequired bool      `yaml:"adminRightsRequired,omitempty"`
	Differential        bool      `yaml:"differential,omitempty"`
	DownloadedAt        time.Time `yaml:"downloadedAt"`
}

// Verify checks that the installer on disk still matches the record.
func (r *Record) Verify() error {
	if r.InstallerPath == "" {
		return fmt.Errorf("record has no installer path")
	}
	if r.Checksum == "" {
		return fmt.Errorf("record has no checksum")
	}
	return checksum.VerifyFile(r.InstallerPath, r.Checksum)
}

// Reader defines the interface for reading the current record.
type Reader interface {
	Read() (*Record, error)
}

// Store reads and writes the record as YAML.
type Store struct {
	path string
}

// NewStore creates a store for the record in cacheDir.
func NewStore(cacheDir string) *Store {
	return &Store{path: filepath.Join(cacheDir, FileName)}
}

// Path returns the record file path.
func (s *Store) Path() string {
	return s.path
}

// Read implements Reader.
func (s *Store) Read() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoRecord
		}
		return nil, fmt.Errorf("failed to read %s: %w", FileName, err)
	}

	var r Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if r.InstallerPath == "" {
		return nil, ErrNoRecord
	}
	return &r, nil
}

// Save writes the record atomically.
func (s *Store) Save(r *Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Clear removes the record. A missing record is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove record: %w", err)
	}
	return nil
}
