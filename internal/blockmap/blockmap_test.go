package blockmap

import (
	"bytes"
	"compress/gzip"
	"errors"
	"strings"
	"testing"

	"github.com/adamancini/hatch/internal/checksum"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       *BlockMap
		wantErr bool
	}{
		{
			name: "contiguous",
			m: &BlockMap{Checksum: "x", Size: 150, Blocks: []Block{
				{Offset: 0, Size: 100, Checksum: "h1"},
				{Offset: 100, Size: 50, Checksum: "h2"},
			}},
		},
		{name: "nil", m: nil, wantErr: true},
		{name: "missing checksum", m: &BlockMap{Size: 0}, wantErr: true},
		{name: "empty file", m: &BlockMap{Checksum: "x"}},
		{
			name: "gap",
			m: &BlockMap{Checksum: "x", Size: 150, Blocks: []Block{
				{Offset: 0, Size: 100, Checksum: "h1"},
				{Offset: 110, Size: 40, Checksum: "h2"},
			}},
			wantErr: true,
		},
		{
			name: "short coverage",
			m: &BlockMap{Checksum: "x", Size: 200, Blocks: []Block{
				{Offset: 0, Size: 100, Checksum: "h1"},
			}},
			wantErr: true,
		},
		{
			name: "zero size block",
			m: &BlockMap{Checksum: "x", Size: 0, Blocks: []Block{
				{Offset: 0, Size: 0, Checksum: "h1"},
			}},
			wantErr: true,
		},
		{
			name: "block without checksum",
			m: &BlockMap{Checksum: "x", Size: 10, Blocks: []Block{
				{Offset: 0, Size: 10},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefghij"), 25) // 250 bytes

	m, err := Build(bytes.NewReader(data), 100)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if m.Size != 250 {
		t.Errorf("Size = %d, want 250", m.Size)
	}
	if len(m.Blocks) != 3 {
		t.Fatalf("len(Blocks) = %d, want 3", len(m.Blocks))
	}
	if m.Blocks[2].Offset != 200 || m.Blocks[2].Size != 50 {
		t.Errorf("last block = %+v", m.Blocks[2])
	}
	if m.Checksum != checksum.Bytes(data) {
		t.Error("whole-file checksum mismatch")
	}
	if m.Blocks[0].Checksum != checksum.Bytes(data[:100]) {
		t.Error("first block checksum mismatch")
	}
	if err := m.Validate(); err != nil {
		t.Errorf("built map does not validate: %v", err)
	}
}

func TestParseRoundTrip(t *testing.T) {
	m, err := Build(strings.NewReader(strings.Repeat("z", 1000)), 256)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	encoded, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Checksum != m.Checksum || got.Size != m.Size || len(got.Blocks) != len(m.Blocks) {
		t.Errorf("Parse() = %+v, want %+v", got, m)
	}
	if got.Version != FormatVersion {
		t.Errorf("Version = %q", got.Version)
	}
}

func gzipString(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"nil payload", nil, ErrEmpty},
		{"not gzip", []byte("plain text"), ErrMalformed},
		{"empty json", gzipString(t, ""), ErrEmpty},
		{"bad json", gzipString(t, "{not json"), ErrMalformed},
		{"invalid coverage", gzipString(t, `{"checksum":"x","size":10,"blocks":[{"offset":0,"size":5,"checksum":"a"}]}`), ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParse_LegacyFiles(t *testing.T) {
	payload := `{"version":"2","checksum":"whole","files":[{"name":"file","offset":0,"checksums":["a","b"],"sizes":[100,60]}]}`

	m, err := Parse(gzipString(t, payload))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if m.Size != 160 {
		t.Errorf("Size = %d, want 160", m.Size)
	}
	if m.Blocks[1].Offset != 100 || m.Blocks[1].Checksum != "b" {
		t.Errorf("second block = %+v", m.Blocks[1])
	}
}

func TestEmbedded(t *testing.T) {
	data := []byte(strings.Repeat("package-bytes-", 40))
	m, err := Build(bytes.NewReader(data), 128)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var file bytes.Buffer
	file.Write(data)
	payloadLen, err := AppendEmbedded(&file, m)
	if err != nil {
		t.Fatalf("AppendEmbedded() error = %v", err)
	}

	got, gotLen, err := ReadEmbedded(bytes.NewReader(file.Bytes()), int64(file.Len()))
	if err != nil {
		t.Fatalf("ReadEmbedded() error = %v", err)
	}
	if gotLen != payloadLen {
		t.Errorf("payload length = %d, want %d", gotLen, payloadLen)
	}
	if got.Checksum != m.Checksum {
		t.Error("embedded checksum mismatch")
	}

	tail := file.Bytes()[file.Len()-int(TailLength(payloadLen)):]
	fromTail, err := ParseTail(tail)
	if err != nil {
		t.Fatalf("ParseTail() error = %v", err)
	}
	if fromTail.Size != int64(len(data)) {
		t.Errorf("tail map size = %d", fromTail.Size)
	}

	if _, err := ParseTail(tail[1:]); !errors.Is(err, ErrMalformed) {
		t.Errorf("ParseTail(truncated) error = %v, want ErrMalformed", err)
	}
}

func TestReadEmbedded_TooSmall(t *testing.T) {
	_, _, err := ReadEmbedded(bytes.NewReader([]byte{1, 2}), 2)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("ReadEmbedded() error = %v, want ErrMalformed", err)
	}
}
