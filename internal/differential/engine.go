package differential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/adamancini/hatch/internal/blockmap"
	"github.com/adamancini/hatch/internal/checksum"
	"github.com/adamancini/hatch/internal/failure"
	"github.com/adamancini/hatch/internal/progress"
)

const (
	// DefaultConcurrency bounds parallel single-range requests.
	DefaultConcurrency = 4
	// DefaultMaxRangesPerRequest bounds how many ranges one multi-range
	// request asks for.
	DefaultMaxRangesPerRequest = 64
)

// Request describes one reconstruction.
type Request struct {
	OldFile     string
	OldMap      *blockmap.BlockMap
	NewURL      string
	NewMap      *blockmap.BlockMap
	Destination string

	// Size and Checksum override NewMap's whole-file values when the new
	// file is longer than what its block map describes.
	Size     int64
	Checksum string

	// Observer replaces the engine's observer for this request.
	Observer progress.Observer
}

func (r Request) size() int64 {
	if r.Size > 0 {
		return r.Size
	}
	return r.NewMap.Size
}

func (r Request) checksum() string {
	if r.Checksum != "" {
		return r.Checksum
	}
	return r.NewMap.Checksum
}

// Result summarizes a successful reconstruction.
type Result struct {
	Plan     *Plan
	Reused   int64
	Fetched  int64
	Requests int64
	Duration time.Duration
}

// Engine is the differential transfer engine.
type Engine struct {
	client              *http.Client
	headers             http.Header
	concurrency         int
	multiRange          bool
	maxRangesPerRequest int
	observer            progress.Observer
	logger              *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient sets the client used for range requests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithHeaders adds headers to every range request.
func WithHeaders(h http.Header) Option {
	return func(e *Engine) { e.headers = h.Clone() }
}

// WithConcurrency bounds the single-range fan-out.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMultiRange makes the engine ask for several ranges per request.
// Use only when the server is known to answer multipart/byteranges.
func WithMultiRange(enabled bool) Option {
	return func(e *Engine) { e.multiRange = enabled }
}

// WithMaxRangesPerRequest bounds the size of a multi-range request.
func WithMaxRangesPerRequest(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRangesPerRequest = n
		}
	}
}

// WithObserver subscribes to byte progress.
func WithObserver(o progress.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		client:              &http.Client{},
		concurrency:         DefaultConcurrency,
		maxRangesPerRequest: DefaultMaxRangesPerRequest,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "differential"})
	}
	return e
}

// Reconstruct builds req.Destination from the old file plus fetched ranges
// and verifies the whole-file checksum. Every failure is a *failure.Error;
// the caller decides whether to fall back to a full download. On failure
// nothing is left at Destination.
func (e *Engine) Reconstruct(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	if req.OldMap == nil || req.NewMap == nil {
		return nil, failure.Corruption("reconstruct", blockmap.ErrEmpty)
	}
	plan, err := ComputePlan(req.OldMap, req.NewMap)
	if err != nil {
		return nil, failure.Corruption("compute plan", err)
	}
	plan.Extend(req.size())
	if err := plan.Validate(); err != nil {
		return nil, failure.Corruption("compute plan", err)
	}

	e.logger.Info("differential download",
		"url", req.NewURL,
		"size", plan.Size,
		"reuse", plan.ReuseBytes(),
		"fetch", plan.FetchBytes(),
		"ranges", len(plan.Ranges))

	if err := os.Remove(req.Destination); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, failure.Corruption("reconstruct", fmt.Errorf("remove stale destination: %w", err))
	}

	dir, base := filepath.Split(req.Destination)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.part")
	if err != nil {
		return nil, failure.Corruption("reconstruct", fmt.Errorf("create temp file: %w", err))
	}
	published := false
	defer func() {
		if !published {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Truncate(plan.Size); err != nil {
		return nil, failure.Corruption("reconstruct", fmt.Errorf("presize destination: %w", err))
	}

	observer := e.observer
	if req.Observer != nil {
		observer = req.Observer
	}
	tracker := progress.NewTracker(plan.Size, observer)

	if reuse := plan.ReuseRanges(); len(reuse) > 0 {
		if err := copyReused(req.OldFile, reuse, tmp, tracker); err != nil {
			return nil, err
		}
	}

	var requests atomic.Int64
	if fetch := plan.FetchRanges(); len(fetch) > 0 {
		if err := e.fetchRanges(ctx, req.NewURL, fetch, tmp, tracker, &requests); err != nil {
			return nil, err
		}
	}

	if err := tmp.Sync(); err != nil {
		return nil, failure.Corruption("reconstruct", fmt.Errorf("sync: %w", err))
	}
	got, n, err := checksum.Reader(io.NewSectionReader(tmp, 0, plan.Size))
	if err != nil {
		return nil, failure.Corruption("reconstruct", fmt.Errorf("hash result: %w", err))
	}
	if n != plan.Size {
		return nil, failure.Corruption("reconstruct", fmt.Errorf("result has %d bytes, want %d", n, plan.Size))
	}
	if err := checksum.Verify(req.Destination, req.checksum(), got); err != nil {
		return nil, failure.Corruption("reconstruct", err)
	}

	if err := tmp.Close(); err != nil {
		return nil, failure.Corruption("reconstruct", fmt.Errorf("close: %w", err))
	}
	if err := os.Rename(tmp.Name(), req.Destination); err != nil {
		return nil, failure.Corruption("reconstruct", fmt.Errorf("publish: %w", err))
	}
	published = true

	res := &Result{
		Plan:     plan,
		Reused:   plan.ReuseBytes(),
		Fetched:  plan.FetchBytes(),
		Requests: requests.Load(),
		Duration: time.Since(started),
	}
	e.logger.Info("differential download complete",
		"reused", res.Reused,
		"fetched", res.Fetched,
		"requests", res.Requests,
		"duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

// copyReused copies every reuse range from the old file, re-hashing each
// backing block as it is read.
func copyReused(oldFile string, ranges []Range, dst io.WriterAt, tracker *progress.Tracker) error {
	f, err := os.Open(oldFile)
	if err != nil {
		return failure.Corruption("reuse old file", err)
	}
	defer func() { _ = f.Close() }()

	for _, r := range ranges {
		offset := r.Start
		for _, b := range r.Blocks {
			h := checksum.New()
			w := io.MultiWriter(io.NewOffsetWriter(dst, offset), h, tracker.Writer())
			n, err := io.Copy(w, io.NewSectionReader(f, b.Offset, b.Size))
			if err != nil {
				return failure.Corruption("reuse old file", fmt.Errorf("copy block at %d: %w", b.Offset, err))
			}
			if n != b.Size {
				return failure.Corruption("reuse old file", fmt.Errorf("old file truncated at block %d", b.Offset))
			}
			if err := checksum.Verify(fmt.Sprintf("old block at %d", b.Offset), b.Checksum, fmt.Sprintf("%x", h.Sum(nil))); err != nil {
				return failure.Corruption("reuse old file", err)
			}
			offset += b.Size
		}
	}
	return nil
}
