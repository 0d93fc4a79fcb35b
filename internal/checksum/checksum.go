// Package checksum computes and verifies the hex SHA-256 digests used for
// whole files, block-map blocks and downloaded artifacts.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// ErrMismatch indicates a computed digest does not match the expected one.
var ErrMismatch = errors.New("checksum mismatch")

// MismatchError provides details about a verification failure.
// It wraps ErrMismatch so callers can use errors.Is for classification.
type MismatchError struct {
	Subject  string
	Expected string
	Got      string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s (expected %s, got %s)", e.Subject, e.Expected, e.Got)
}

// Unwrap returns ErrMismatch.
func (e *MismatchError) Unwrap() error { return ErrMismatch }

// New returns the hash used for every digest in the engine.
func New() hash.Hash { return sha256.New() }

// Bytes returns the hex digest of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Reader streams r through the hash and returns the hex digest and the
// number of bytes read.
func Reader(r io.Reader) (string, int64, error) {
	h := New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// File returns the hex digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	sum, _, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("hashing file %s: %w", path, err)
	}
	return sum, nil
}

// Equal compares two hex digests case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Verify compares got against expected and returns a *MismatchError
// naming subject on mismatch.
func Verify(subject, expected, got string) error {
	if Equal(expected, got) {
		return nil
	}
	return &MismatchError{Subject: subject, Expected: strings.ToLower(expected), Got: got}
}

// VerifyFile hashes the file at path and compares it with expected.
func VerifyFile(path, expected string) error {
	got, err := File(path)
	if err != nil {
		return err
	}
	return Verify(path, expected, got)
}
