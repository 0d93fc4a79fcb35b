// Package interactive provides interactive prompts for user confirmation.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/adamancini/hatch/internal/state"
)

// Response represents the user's response to a prompt.
type Response int

const (
	ResponseYes   Response = iota // Install now
	ResponseNo                    // Do nothing
	ResponseLater                 // Keep the download, install on a later run
)

func (r Response) String() string {
	switch r {
	case ResponseYes:
		return "yes"
	case ResponseLater:
		return "later"
	default:
		return "no"
	}
}

// Prompter handles interactive prompts.
type Prompter struct {
	out     io.Writer
	scanner *bufio.Scanner
}

// NewPrompterWithIO creates a prompter reading answers from in.
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		out:     out,
		scanner: bufio.NewScanner(in),
	}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// prompt displays a question and reads the response.
func (p *Prompter) prompt(format string, args ...interface{}) Response {
	_, _ = fmt.Fprintf(p.out, format, args...)
	_, _ = fmt.Fprint(p.out, " [y/n/l] ")

	if !p.scanner.Scan() {
		return ResponseNo
	}

	input := strings.ToLower(strings.TrimSpace(p.scanner.Text()))
	switch input {
	case "y", "yes":
		return ResponseYes
	case "n", "no":
		return ResponseNo
	case "l", "later":
		return ResponseLater
	default:
		// Default to no for invalid input
		_, _ = fmt.Fprintln(p.out, "Invalid response, not installing.")
		return ResponseNo
	}
}

// ConfirmInstall describes the downloaded update and asks whether to
// install it now.
func (p *Prompter) ConfirmInstall(rec *state.Record) Response {
	_, _ = fmt.Fprintln(p.out, "\nDownloaded update:")
	_, _ = fmt.Fprintf(p.out, "  Version:   %s\n", rec.Version)
	_, _ = fmt.Fprintf(p.out, "  Installer: %s\n", rec.InstallerPath)
	if rec.PackagePath != "" {
		_, _ = fmt.Fprintf(p.out, "  Package:   %s\n", rec.PackagePath)
	}
	if rec.Size > 0 {
		_, _ = fmt.Fprintf(p.out, "  Size:      %s\n", FormatBytes(rec.Size))
	}
	if rec.AdminRightsRequired {
		_, _ = fmt.Fprintln(p.out, "  Requires administrator rights")
	}

	resp := p.prompt("\nInstall %s now? The application will restart.", rec.Version)
	switch resp {
	case ResponseLater:
		_, _ = fmt.Fprintln(p.out, "The update stays downloaded and can be installed later.")
	case ResponseNo:
		_, _ = fmt.Fprintln(p.out, "Aborted.")
	}
	return resp
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
