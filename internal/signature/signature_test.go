package signature

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/adamancini/hatch/internal/failure"
	"github.com/adamancini/hatch/internal/types"
)

type fakeRunner struct {
	output []byte
	err    error
	calls  [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.output, f.err
}

func TestParseSigners(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []string
	}{
		{
			name:   "authenticode subject",
			output: "Subject: CN=Acme Corp, O=Acme Corp, L=Berlin, C=DE\n",
			want:   []string{"Acme Corp"},
		},
		{
			name:   "bare distinguished name",
			output: "CN=\"Acme, Inc.\", O=Acme Holdings, C=US",
			want:   []string{"Acme, Inc.", "Acme Holdings"},
		},
		{
			name: "codesign authorities",
			output: "Executable=/Applications/App.app\n" +
				"Authority=Developer ID Application: Acme (TEAM123)\n" +
				"Authority=Apple Root CA\n",
			want: []string{"Developer ID Application: Acme (TEAM123)", "Apple Root CA"},
		},
		{
			name:   "no signer",
			output: "NotSigned\n",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSigners(tt.output)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseSigners() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	signers := []string{"Acme Corp", "Acme Root"}

	if got := Match([]string{"Other", "ACME CORP"}, signers); got != "ACME CORP" {
		t.Errorf("Match() = %q, want case-insensitive match", got)
	}
	if got := Match([]string{"Other"}, signers); got != "" {
		t.Errorf("Match() = %q, want no match", got)
	}
	if got := Match(nil, signers); got != "" {
		t.Errorf("Match() with empty allow-list = %q", got)
	}
}

func TestCommandVerifier(t *testing.T) {
	runner := &fakeRunner{output: []byte("Subject: CN=Acme Corp, O=Acme Corp\n")}
	v := NewCommandVerifier(runner, "powershell", []string{"-Command", "Get-AuthenticodeSignature '{file}'"}, WithLogger(log.New(io.Discard)))

	got, err := v.Verify(context.Background(), []string{"Acme Corp"}, `C:\tmp\setup.exe`)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != "Acme Corp" {
		t.Errorf("Verify() = %q, want Acme Corp", got)
	}

	want := []string{"powershell", "-Command", `Get-AuthenticodeSignature 'C:\tmp\setup.exe'`}
	if !reflect.DeepEqual(runner.calls[0], want) {
		t.Errorf("command = %q, want %q", runner.calls[0], want)
	}
}

func TestCommandVerifier_Mismatch(t *testing.T) {
	runner := &fakeRunner{output: []byte("Subject: CN=Mallory\n")}
	v := NewCommandVerifier(runner, "verify", nil, WithLogger(log.New(io.Discard)))

	got, err := v.Verify(context.Background(), []string{"Acme Corp"}, "/tmp/setup.exe")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != "" {
		t.Errorf("Verify() = %q, want no match", got)
	}
	if strings.Join(runner.calls[0], " ") != "verify /tmp/setup.exe" {
		t.Errorf("path should be appended without placeholder: %q", runner.calls[0])
	}
}

func TestCommandVerifier_Errors(t *testing.T) {
	runner := &fakeRunner{err: errors.New("tool crashed")}
	v := NewCommandVerifier(runner, "verify", nil, WithLogger(log.New(io.Discard)))

	_, err := v.Verify(context.Background(), []string{"Acme"}, "/tmp/x")
	if !failure.Is(err, types.KindVerification) {
		t.Errorf("Verify() error = %v, want verification kind", err)
	}

	unconfigured := NewCommandVerifier(runner, "", nil, WithLogger(log.New(io.Discard)))
	_, err = unconfigured.Verify(context.Background(), []string{"Acme"}, "/tmp/x")
	if !errors.Is(err, ErrNoCommand) || !failure.Is(err, types.KindConfiguration) {
		t.Errorf("Verify() error = %v, want ErrNoCommand", err)
	}
}

func TestStaticVerifier(t *testing.T) {
	v := &StaticVerifier{Signer: "Acme"}
	if got, _ := v.Verify(context.Background(), []string{"acme"}, "x"); got != "acme" {
		t.Errorf("Verify() = %q", got)
	}
	if got, _ := v.Verify(context.Background(), []string{"Other"}, "x"); got != "" {
		t.Errorf("Verify() = %q", got)
	}
	if v.Calls != 2 {
		t.Errorf("Calls = %d, want 2", v.Calls)
	}
}
