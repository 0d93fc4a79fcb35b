package interactive

import (
	"bytes"
	"strings"
	"testing"

	"github.com/adamancini/hatch/internal/state"
)

func TestPrompterResponses(t *testing.T) {
	tests := []struct {
		input string
		want  Response
	}{
		{"y\n", ResponseYes},
		{"YES\n", ResponseYes},
		{"n\n", ResponseNo},
		{"l\n", ResponseLater},
		{"later\n", ResponseLater},
		{"", ResponseNo},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			p := NewPrompterWithIO(strings.NewReader(tt.input), &bytes.Buffer{})
			if got := p.prompt("Test prompt?"); got != tt.want {
				t.Errorf("prompt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrompterInvalidResponse(t *testing.T) {
	output := &bytes.Buffer{}
	p := NewPrompterWithIO(strings.NewReader("invalid\n"), output)

	if resp := p.prompt("Test prompt?"); resp != ResponseNo {
		t.Errorf("expected ResponseNo for invalid input, got %v", resp)
	}
	if !strings.Contains(output.String(), "Invalid response") {
		t.Errorf("expected 'Invalid response' message in output")
	}
}

func TestConfirmInstall(t *testing.T) {
	rec := &state.Record{
		Version:             "2.0.0",
		InstallerPath:       "/cache/pending/App Setup 2.0.0.exe",
		PackagePath:         "/cache/pending/app.7z",
		Size:                3 << 20,
		AdminRightsRequired: true,
	}

	output := &bytes.Buffer{}
	p := NewPrompterWithIO(strings.NewReader("l\n"), output)

	if resp := p.ConfirmInstall(rec); resp != ResponseLater {
		t.Fatalf("ConfirmInstall() = %v", resp)
	}

	out := output.String()
	for _, want := range []string{"2.0.0", "App Setup 2.0.0.exe", "app.7z", "3.0 MiB", "administrator", "installed later"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 30, "5.0 GiB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %s, want %s", tt.n, got, tt.want)
		}
	}
}
