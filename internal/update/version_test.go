package update

import (
	"testing"
)

func TestValidVersion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "simple version", input: "0.8.2", want: true},
		{name: "version with v prefix", input: "v0.8.2", want: true},
		{name: "version with prerelease", input: "1.0.0-rc.1", want: true},
		{name: "version with build metadata", input: "1.0.0+build.5", want: true},
		{name: "invalid format", input: "invalid", want: false},
		{name: "missing patch", input: "1.0", want: true},
		{name: "empty string", input: "", want: false},
		{name: "double prefix", input: "vv1.0.0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidVersion(tt.input); got != tt.want {
				t.Errorf("ValidVersion(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name    string
		v1      string
		v2      string
		want    int
		wantErr bool
	}{
		{name: "equal", v1: "1.2.3", v2: "v1.2.3", want: 0},
		{name: "major greater", v1: "2.0.0", v2: "1.9.9", want: 1},
		{name: "minor less", v1: "1.1.0", v2: "1.2.0", want: -1},
		{name: "patch greater", v1: "1.0.10", v2: "1.0.9", want: 1},
		{name: "stable beats prerelease", v1: "1.0.0", v2: "1.0.0-rc.1", want: 1},
		{name: "prerelease ordering", v1: "1.0.0-alpha", v2: "1.0.0-beta", want: -1},
		{name: "numeric prerelease ordering", v1: "1.0.0-rc.2", v2: "1.0.0-rc.10", want: -1},
		{name: "build metadata ignored", v1: "1.0.0+a", v2: "1.0.0+b", want: 0},
		{name: "invalid v1", v1: "x", v2: "1.0.0", wantErr: true},
		{name: "invalid v2", v1: "1.0.0", v2: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompareVersions(tt.v1, tt.v2)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CompareVersions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.v1, tt.v2, got, tt.want)
			}
		})
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"v1.0.0", "1.0.0"},
		{"1.0.0", "1.0.0"},
		{" v2.1.0-rc.1 ", "2.1.0-rc.1"},
	}

	for _, tt := range tests {
		if got := NormalizeVersion(tt.input); got != tt.want {
			t.Errorf("NormalizeVersion(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
