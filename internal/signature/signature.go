// Package signature checks that a downloaded installer is signed by one of
// the application's trusted publishers.
package signature

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/adamancini/hatch/internal/failure"
	"github.com/adamancini/hatch/internal/proc"
)

// FilePlaceholder is replaced by the artifact path in verifier arguments.
const FilePlaceholder = "{file}"

// ErrNoCommand indicates no verification command is configured for this
// platform while publishers are.
var ErrNoCommand = errors.New("no signature verification command configured")

// Verifier reports which allowed publisher signed the file at path.
// An empty name with a nil error means the signer matched none of them.
type Verifier interface {
	Verify(ctx context.Context, publishers []string, path string) (string, error)
}

// CommandVerifier runs an external signature tool and matches the signer
// fields in its output against the allow-list.
type CommandVerifier struct {
	runner  proc.CommandRunner
	command string
	args    []string
	logger  *log.Logger
}

// Option configures a CommandVerifier.
type Option func(*CommandVerifier)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(v *CommandVerifier) { v.logger = l }
}

// NewCommandVerifier creates a verifier that runs command with args. Any
// {file} in args is replaced by the artifact path; without a placeholder
// the path is appended.
func NewCommandVerifier(runner proc.CommandRunner, command string, args []string, opts ...Option) *CommandVerifier {
	v := &CommandVerifier{
		runner:  runner,
		command: command,
		args:    args,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "signature"})
	}
	return v
}

// Verify implements Verifier.
func (v *CommandVerifier) Verify(ctx context.Context, publishers []string, path string) (string, error) {
	if v.command == "" {
		return "", failure.Configuration("verify signature", ErrNoCommand)
	}

	output, err := v.runner.Run(ctx, v.command, expandArgs(v.args, path)...)
	if err != nil {
		return "", failure.Verification("verify signature", err)
	}

	signers := ParseSigners(string(output))
	v.logger.Debug("signature tool output parsed", "path", path, "signers", strings.Join(signers, "; "))

	if match := Match(publishers, signers); match != "" {
		v.logger.Info("publisher verified", "path", path, "publisher", match)
		return match, nil
	}
	v.logger.Warn("signer not in allow-list", "path", path, "signers", strings.Join(signers, "; "))
	return "", nil
}

func expandArgs(args []string, path string) []string {
	out := make([]string, 0, len(args)+1)
	replaced := false
	for _, a := range args {
		if strings.Contains(a, FilePlaceholder) {
			a = strings.ReplaceAll(a, FilePlaceholder, path)
			replaced = true
		}
		out = append(out, a)
	}
	if !replaced {
		out = append(out, path)
	}
	return out
}

// ParseSigners extracts signer names from signature tool output. It reads
// "Subject:" and "Authority=" lines and the CN= and O= components of
// distinguished names, returning each distinct value once in order.
func ParseSigners(output string) []string {
	var signers []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.Trim(strings.TrimSpace(s), `"`)
		if s == "" || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		signers = append(signers, s)
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case hasPrefixFold(line, "Subject:"):
			line = strings.TrimSpace(line[len("Subject:"):])
		case hasPrefixFold(line, "Authority="):
			add(line[len("Authority="):])
			continue
		}
		for _, field := range splitDN(line) {
			key, value, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			switch strings.ToUpper(strings.TrimSpace(key)) {
			case "CN", "O":
				add(value)
			}
		}
	}
	return signers
}

// splitDN splits a distinguished name on commas outside double quotes.
func splitDN(dn string) []string {
	var fields []string
	var b strings.Builder
	quoted := false
	for _, r := range dn {
		switch {
		case r == '"':
			quoted = !quoted
			b.WriteRune(r)
		case r == ',' && !quoted:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(fields, b.String())
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// Match returns the first publisher equal, ignoring case, to one of the
// signers, or "" when none is.
func Match(publishers, signers []string) string {
	for _, p := range publishers {
		for _, s := range signers {
			if strings.EqualFold(strings.TrimSpace(p), s) {
				return p
			}
		}
	}
	return ""
}

// StaticVerifier reports a fixed signer. It is meant for tests and for
// platforms where the signer is established out of band.
type StaticVerifier struct {
	Signer string
	Err    error

	Calls int
}

// Verify implements Verifier.
func (s *StaticVerifier) Verify(_ context.Context, publishers []string, _ string) (string, error) {
	s.Calls++
	if s.Err != nil {
		return "", s.Err
	}
	return Match(publishers, []string{s.Signer}), nil
}
