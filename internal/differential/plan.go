// Package differential reconstructs a new file from a cached old file and
// two block maps, fetching only the byte ranges the old file cannot supply.
package differential

import (
	"fmt"

	"github.com/adamancini/hatch/internal/blockmap"
	"github.com/adamancini/hatch/internal/types"
)

// Range is one contiguous span of the new file.
type Range struct {
	Start  int64
	End    int64 // exclusive
	Source types.RangeSource

	// OldOffset is where a reuse range starts in the old file.
	OldOffset int64
	// Blocks are the old-file blocks backing a reuse range, in order.
	// Their checksums are re-verified while the bytes are copied.
	Blocks []blockmap.Block
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("%s[%d,%d)", r.Source, r.Start, r.End)
}

// Plan is an ordered, gapless, non-overlapping cover of [0, Size).
type Plan struct {
	Size   int64
	Ranges []Range
}

// ComputePlan compares the old and new block maps. A new block whose
// checksum and size match any old block is reused from the old file
// regardless of position; everything else is fetched. Adjacent ranges of
// the same kind are coalesced to minimize copies and requests.
func ComputePlan(oldMap, newMap *blockmap.BlockMap) (*Plan, error) {
	if err := oldMap.Validate(); err != nil {
		return nil, fmt.Errorf("old block map: %w", err)
	}
	if err := newMap.Validate(); err != nil {
		return nil, fmt.Errorf("new block map: %w", err)
	}

	type key struct {
		checksum string
		size     int64
	}
	index := make(map[key]blockmap.Block, len(oldMap.Blocks))
	for _, b := range oldMap.Blocks {
		k := key{b.Checksum, b.Size}
		if _, seen := index[k]; !seen {
			index[k] = b
		}
	}

	plan := &Plan{Size: newMap.Size}
	for _, nb := range newMap.Blocks {
		old, ok := index[key{nb.Checksum, nb.Size}]
		if ok {
			plan.addReuse(nb, old)
		} else {
			plan.addFetch(nb.Offset, nb.End())
		}
	}
	return plan, nil
}

func (p *Plan) last() *Range {
	if len(p.Ranges) == 0 {
		return nil
	}
	return &p.Ranges[len(p.Ranges)-1]
}

func (p *Plan) addReuse(nb, old blockmap.Block) {
	if l := p.last(); l != nil && l.Source.IsReuse() && l.End == nb.Offset && l.OldOffset+l.Len() == old.Offset {
		l.End = nb.End()
		l.Blocks = append(l.Blocks, old)
		return
	}
	p.Ranges = append(p.Ranges, Range{
		Start:     nb.Offset,
		End:       nb.End(),
		Source:    types.SourceReuseOld,
		OldOffset: old.Offset,
		Blocks:    []blockmap.Block{old},
	})
}

func (p *Plan) addFetch(start, end int64) {
	if l := p.last(); l != nil && l.Source.IsFetch() && l.End == start {
		l.End = end
		return
	}
	p.Ranges = append(p.Ranges, Range{Start: start, End: end, Source: types.SourceFetchNew})
}

// Extend grows the plan to size by fetching the bytes past the current
// end. It is used when the file carries data the block map does not
// describe, such as an embedded block-map trailer.
func (p *Plan) Extend(size int64) {
	if size <= p.Size {
		return
	}
	p.addFetch(p.Size, size)
	p.Size = size
}

// Validate checks the cover invariant.
func (p *Plan) Validate() error {
	var next int64
	for i, r := range p.Ranges {
		if err := r.Source.Validate(); err != nil {
			return fmt.Errorf("range %d: %w", i, err)
		}
		if r.Start != next {
			return fmt.Errorf("range %d starts at %d, want %d", i, r.Start, next)
		}
		if r.End <= r.Start {
			return fmt.Errorf("range %d is empty", i)
		}
		next = r.End
	}
	if next != p.Size {
		return fmt.Errorf("plan covers %d bytes, want %d", next, p.Size)
	}
	return nil
}

// FetchRanges returns the ranges that must come from the network.
func (p *Plan) FetchRanges() []Range {
	var out []Range
	for _, r := range p.Ranges {
		if r.Source.IsFetch() {
			out = append(out, r)
		}
	}
	return out
}

// ReuseRanges returns the ranges copied from the old file.
func (p *Plan) ReuseRanges() []Range {
	var out []Range
	for _, r := range p.Ranges {
		if r.Source.IsReuse() {
			out = append(out, r)
		}
	}
	return out
}

// FetchBytes returns the number of bytes to download.
func (p *Plan) FetchBytes() int64 {
	var n int64
	for _, r := range p.FetchRanges() {
		n += r.Len()
	}
	return n
}

// ReuseBytes returns the number of bytes copied locally.
func (p *Plan) ReuseBytes() int64 {
	return p.Size - p.FetchBytes()
}
