// Package templates provides the embedded watchdog scripts used to swap a
// portable executable after it exits.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
)

//go:embed *.tmpl
var templatesFS embed.FS

// Template is an embedded watchdog script.
type Template struct {
	Name    string
	Content []byte
}

// WatchdogData is the input of the watchdog templates.
type WatchdogData struct {
	PID             int
	Target          string
	Backup          string
	Staged          string
	Base            string
	IntervalSeconds int
}

// Get returns a template by name.
func Get(name string) (*Template, error) {
	content, err := templatesFS.ReadFile(name + ".tmpl")
	if err != nil {
		if pathErr, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("template '%s' not found: %w", name, pathErr)
		}
		return nil, fmt.Errorf("failed to read template '%s': %w", name, err)
	}

	return &Template{
		Name:    name,
		Content: content,
	}, nil
}

// WatchdogName returns the watchdog template for goos.
func WatchdogName(goos string) string {
	if goos == "windows" {
		return "watchdog.cmd"
	}
	return "watchdog.sh"
}

var funcs = template.FuncMap{
	"shquote":  ShellQuote,
	"cmdquote": CmdQuote,
}

// Render executes the named template with data. Batch scripts get CRLF
// line endings.
func Render(name string, data any) ([]byte, error) {
	tmpl, err := Get(name)
	if err != nil {
		return nil, err
	}

	t, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(tmpl.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", name, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template '%s': %w", name, err)
	}

	out := buf.Bytes()
	if strings.HasSuffix(name, ".cmd") {
		out = bytes.ReplaceAll(out, []byte("\n"), []byte("\r\n"))
	}
	return out, nil
}

// ShellQuote quotes s for POSIX sh.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// CmdQuote quotes a path for cmd.exe. Double quotes cannot appear in
// Windows paths, so they are dropped.
func CmdQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "") + `"`
}
