// Package blockmap describes a file as an ordered sequence of checksummed
// blocks so two versions of the same logical file can be diffed chunk by
// chunk.
package blockmap

import (
	"errors"
	"fmt"
)

// FormatVersion is written into every encoded block map.
const FormatVersion = "2"

var (
	// ErrEmpty indicates an empty block-map payload.
	ErrEmpty = errors.New("block map is empty")

	// ErrMalformed indicates a payload that could not be decoded or that
	// violates the block-map invariants.
	ErrMalformed = errors.New("malformed block map")
)

// Block is one checksummed chunk of a file.
type Block struct {
	Offset   int64  `json:"offset"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// End returns the exclusive end offset of the block.
func (b Block) End() int64 {
	return b.Offset + b.Size
}

// BlockMap is the whole-file checksum plus the ordered block list.
type BlockMap struct {
	Version  string  `json:"version"`
	Checksum string  `json:"checksum"`
	Size     int64   `json:"size"`
	Blocks   []Block `json:"blocks"`
}

// Validate checks that the blocks are contiguous, start at zero and cover
// exactly Size bytes.
func (m *BlockMap) Validate() error {
	if m == nil {
		return ErrEmpty
	}
	if m.Checksum == "" {
		return fmt.Errorf("%w: missing whole-file checksum", ErrMalformed)
	}
	if m.Size > 0 && len(m.Blocks) == 0 {
		return fmt.Errorf("%w: no blocks for %d bytes", ErrMalformed, m.Size)
	}

	var next int64
	for i, b := range m.Blocks {
		if b.Offset != next {
			return fmt.Errorf("%w: block %d starts at %d, want %d", ErrMalformed, i, b.Offset, next)
		}
		if b.Size <= 0 {
			return fmt.Errorf("%w: block %d has size %d", ErrMalformed, i, b.Size)
		}
		if b.Checksum == "" {
			return fmt.Errorf("%w: block %d has no checksum", ErrMalformed, i)
		}
		next = b.End()
	}

	if next != m.Size {
		return fmt.Errorf("%w: blocks cover %d bytes, declared size is %d", ErrMalformed, next, m.Size)
	}
	return nil
}

// FromSizes builds the block list from parallel size and checksum slices
// starting at offset. It is how block maps produced by packaging tools
// that store sizes instead of offsets are normalized.
func FromSizes(offset int64, sizes []int64, checksums []string) ([]Block, error) {
	if len(sizes) != len(checksums) {
		return nil, fmt.Errorf("%w: %d sizes but %d checksums", ErrMalformed, len(sizes), len(checksums))
	}
	blocks := make([]Block, len(sizes))
	for i, size := range sizes {
		blocks[i] = Block{Offset: offset, Size: size, Checksum: checksums[i]}
		offset += size
	}
	return blocks, nil
}
