package templates

import (
	"bytes"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"watchdog.sh", false},
		{"watchdog.cmd", false},
		{"nonexistent", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Get(tt.name)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Get(%s) expected error, got nil", tt.name)
				}
				return
			}

			if err != nil {
				t.Fatalf("Get(%s) unexpected error: %v", tt.name, err)
			}
			if tmpl.Name != tt.name {
				t.Errorf("Get(%s) name = %s", tt.name, tmpl.Name)
			}
			if len(tmpl.Content) == 0 {
				t.Errorf("Get(%s) returned empty content", tt.name)
			}
		})
	}
}

func TestWatchdogName(t *testing.T) {
	if WatchdogName("windows") != "watchdog.cmd" {
		t.Error("windows should use the batch watchdog")
	}
	for _, goos := range []string{"linux", "darwin", "freebsd"} {
		if WatchdogName(goos) != "watchdog.sh" {
			t.Errorf("%s should use the shell watchdog", goos)
		}
	}
}

func testData() WatchdogData {
	return WatchdogData{
		PID:             4242,
		Target:          "/opt/My App/app",
		Backup:          "/opt/My App/app.backup",
		Staged:          "/opt/My App/app.new",
		Base:            "app",
		IntervalSeconds: 2,
	}
}

func TestRenderShell(t *testing.T) {
	out, err := Render("watchdog.sh", testData())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	script := string(out)

	for _, want := range []string{
		"#!/bin/sh",
		"target='/opt/My App/app'",
		"backup='/opt/My App/app.backup'",
		"staged='/opt/My App/app.new'",
		"pid=4242",
		`[ -d "/proc/$1" ]`,
		`ps -p "$1"`,
		`while alive "$pid"; do`,
		"sleep 2",
		`mv -f "$backup" "$target"`,
		`rm -f "$0"`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q", want)
		}
	}
	if strings.Contains(script, "\r\n") {
		t.Error("shell script must use LF line endings")
	}
}

func TestRenderBatch(t *testing.T) {
	data := testData()
	data.Target = `C:\Apps\My App\app.exe`
	data.Backup = `C:\Apps\My App\app.exe.backup`
	data.Staged = `C:\Apps\My App\app.exe.new`

	out, err := Render("watchdog.cmd", data)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if !bytes.Contains(out, []byte("\r\n")) || bytes.Contains(bytes.ReplaceAll(out, []byte("\r\n"), nil), []byte("\n")) {
		t.Error("batch script must use CRLF line endings only")
	}
	for _, want := range []string{
		`tasklist /FI "PID eq 4242"`,
		`move /y "C:\Apps\My App\app.exe.new" "C:\Apps\My App\app.exe"`,
		`move /y "C:\Apps\My App\app.exe.backup" "C:\Apps\My App\app.exe"`,
		`start "" "C:\Apps\My App\app.exe"`,
		"timeout /t 2",
	} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("script missing %q", want)
		}
	}
}

func TestRenderMissingField(t *testing.T) {
	if _, err := Render("watchdog.sh", map[string]any{"PID": 1}); err == nil {
		t.Error("expected error for missing template data")
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := ShellQuote(tt.in); got != tt.want {
			t.Errorf("ShellQuote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCmdQuote(t *testing.T) {
	if got := CmdQuote(`C:\a "b"`); got != `"C:\a b"` {
		t.Errorf("CmdQuote() = %s", got)
	}
}
