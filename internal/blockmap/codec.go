package blockmap

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// trailerLen is the size of the big-endian payload length that follows an
// embedded block map.
const trailerLen = 4

// maxPayload bounds the decompressed size of a block map.
const maxPayload = 64 << 20

// legacyFile is the per-file layout emitted by packaging tools: offsets are
// implied by the running sum of sizes.
type legacyFile struct {
	Name      string   `json:"name"`
	Offset    int64    `json:"offset"`
	Checksums []string `json:"checksums"`
	Sizes     []int64  `json:"sizes"`
}

type wireBlockMap struct {
	BlockMap
	Files []legacyFile `json:"files,omitempty"`
}

// Parse decodes a gzip-compressed JSON block map and validates it.
// An empty payload returns ErrEmpty; anything undecodable wraps ErrMalformed.
func Parse(data []byte) (*BlockMap, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer func() { _ = zr.Close() }()

	raw, err := io.ReadAll(io.LimitReader(zr, maxPayload+1))
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrMalformed, err)
	}
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	if len(raw) > maxPayload {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrMalformed, maxPayload)
	}

	return decode(raw)
}

func decode(raw []byte) (*BlockMap, error) {
	var w wireBlockMap
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	m := w.BlockMap
	if len(m.Blocks) == 0 && len(w.Files) > 0 {
		f := w.Files[0]
		blocks, err := FromSizes(f.Offset, f.Sizes, f.Checksums)
		if err != nil {
			return nil, err
		}
		m.Blocks = blocks
		if m.Size == 0 && len(blocks) > 0 {
			m.Size = blocks[len(blocks)-1].End()
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Encode writes m as gzip-compressed JSON.
func Encode(w io.Writer, m *BlockMap) error {
	if m.Version == "" {
		m.Version = FormatVersion
	}
	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(m); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode block map: %w", err)
	}
	return zw.Close()
}

// Marshal returns the encoded form of m.
func Marshal(m *BlockMap) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AppendEmbedded writes the encoded block map followed by its big-endian
// uint32 length, the trailer layout used by web-installer package files.
func AppendEmbedded(w io.Writer, m *BlockMap) (int64, error) {
	payload, err := Marshal(m)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(payload); err != nil {
		return 0, err
	}
	var trailer [trailerLen]byte
	binary.BigEndian.PutUint32(trailer[:], uint32(len(payload)))
	if _, err := w.Write(trailer[:]); err != nil {
		return 0, err
	}
	return int64(len(payload)), nil
}

// ReadEmbedded reads the block map embedded at the end of a file of the
// given size.
func ReadEmbedded(r io.ReaderAt, size int64) (*BlockMap, int64, error) {
	if size < trailerLen {
		return nil, 0, fmt.Errorf("%w: file too small for embedded block map", ErrMalformed)
	}
	var trailer [trailerLen]byte
	if _, err := r.ReadAt(trailer[:], size-trailerLen); err != nil {
		return nil, 0, fmt.Errorf("read block map trailer: %w", err)
	}
	payloadLen := int64(binary.BigEndian.Uint32(trailer[:]))
	if payloadLen == 0 || payloadLen > size-trailerLen {
		return nil, 0, fmt.Errorf("%w: embedded payload length %d", ErrMalformed, payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := r.ReadAt(payload, size-trailerLen-payloadLen); err != nil {
		return nil, 0, fmt.Errorf("read embedded block map: %w", err)
	}
	m, err := Parse(payload)
	if err != nil {
		return nil, 0, err
	}
	return m, payloadLen, nil
}

// TailLength returns how many trailing bytes must be fetched to read an
// embedded block map whose payload is payloadLen bytes long.
func TailLength(payloadLen int64) int64 {
	return payloadLen + trailerLen
}

// ParseTail decodes a fetched tail (payload followed by the length
// trailer) and checks that the trailer agrees with the payload.
func ParseTail(tail []byte) (*BlockMap, error) {
	if len(tail) < trailerLen {
		return nil, fmt.Errorf("%w: tail too short", ErrMalformed)
	}
	payloadLen := int(binary.BigEndian.Uint32(tail[len(tail)-trailerLen:]))
	if payloadLen != len(tail)-trailerLen {
		return nil, fmt.Errorf("%w: trailer says %d bytes, got %d", ErrMalformed, payloadLen, len(tail)-trailerLen)
	}
	return Parse(tail[:payloadLen])
}
