package blockmap

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/adamancini/hatch/internal/checksum"
)

// DefaultBlockSize is the chunk size used by Build when none is given.
const DefaultBlockSize = 64 << 10

// Build splits r into fixed-size blocks and returns its block map.
func Build(r io.Reader, blockSize int64) (*BlockMap, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	whole := checksum.New()
	buf := make([]byte, blockSize)
	m := &BlockMap{Version: FormatVersion}

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := buf[:n]
			_, _ = whole.Write(chunk)
			m.Blocks = append(m.Blocks, Block{
				Offset:   m.Size,
				Size:     int64(n),
				Checksum: checksum.Bytes(chunk),
			})
			m.Size += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read block at %d: %w", m.Size, err)
		}
	}

	m.Checksum = hex.EncodeToString(whole.Sum(nil))
	return m, nil
}

// BuildFile builds the block map of the file at path.
func BuildFile(path string, blockSize int64) (*BlockMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Build(f, blockSize)
}
