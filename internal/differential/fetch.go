package differential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/adamancini/hatch/internal/blockmap"
	"github.com/adamancini/hatch/internal/failure"
	"github.com/adamancini/hatch/internal/progress"
)

// fetchRanges downloads every range into dst. Writes are positional, so
// completion order does not matter.
func (e *Engine) fetchRanges(ctx context.Context, url string, ranges []Range, dst io.WriterAt, tracker *progress.Tracker, requests *atomic.Int64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	if e.multiRange && len(ranges) > 1 {
		for _, group := range chunk(ranges, e.maxRangesPerRequest) {
			g.Go(func() error {
				return e.fetchMulti(gctx, url, group, dst, tracker, requests)
			})
		}
	} else {
		for _, r := range ranges {
			g.Go(func() error {
				return e.fetchOne(gctx, url, r, dst, tracker, requests)
			})
		}
	}

	return g.Wait()
}

func chunk(ranges []Range, size int) [][]Range {
	var out [][]Range
	for len(ranges) > size {
		out = append(out, ranges[:size:size])
		ranges = ranges[size:]
	}
	if len(ranges) > 0 {
		out = append(out, ranges)
	}
	return out
}

func (e *Engine) newRequest(ctx context.Context, url, rangeHeader string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, failure.Network("create request", err)
	}
	for k, vs := range e.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Range", rangeHeader)
	req.Header.Set("Accept-Encoding", "identity")
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "hatch-updater")
	}
	return req, nil
}

func (e *Engine) do(req *http.Request, requests *atomic.Int64) (*http.Response, error) {
	requests.Add(1)
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, failure.Network("range request", err)
	}
	return resp, nil
}

// fetchOne downloads a single range. A 200 response means the server
// ignored the Range header; the requested window is then cut out of the
// full body instead of writing the whole body at the range offset.
func (e *Engine) fetchOne(ctx context.Context, url string, r Range, dst io.WriterAt, tracker *progress.Tracker, requests *atomic.Int64) error {
	req, err := e.newRequest(ctx, url, fmt.Sprintf("bytes=%d-%d", r.Start, r.End-1))
	if err != nil {
		return err
	}
	resp, err := e.do(req, requests)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if resp.ContentLength >= 0 && resp.ContentLength != r.Len() {
			return failure.Network("range request", fmt.Errorf("%s: got %d bytes", r, resp.ContentLength))
		}
		return copyRange(resp.Body, r, dst, tracker)
	case http.StatusOK:
		if resp.ContentLength >= 0 && resp.ContentLength < r.End {
			return failure.Network("range request", fmt.Errorf("%s: full body has only %d bytes", r, resp.ContentLength))
		}
		e.logger.Warn("server ignored range header, slicing full body", "range", r.String(), "length", resp.ContentLength)
		if _, err := io.CopyN(io.Discard, resp.Body, r.Start); err != nil {
			return failure.Network("range request", fmt.Errorf("skip to %d: %w", r.Start, err))
		}
		return copyRange(resp.Body, r, dst, tracker)
	default:
		return failure.Network("range request", fmt.Errorf("%s: unexpected status %s", r, resp.Status))
	}
}

// fetchMulti asks for a group of ranges in one request and dispatches the
// multipart/byteranges answer. Ranges the server did not return are
// fetched one by one.
func (e *Engine) fetchMulti(ctx context.Context, url string, group []Range, dst io.WriterAt, tracker *progress.Tracker, requests *atomic.Int64) error {
	specs := make([]string, len(group))
	for i, r := range group {
		specs[i] = fmt.Sprintf("%d-%d", r.Start, r.End-1)
	}
	req, err := e.newRequest(ctx, url, "bytes="+strings.Join(specs, ","))
	if err != nil {
		return err
	}
	resp, err := e.do(req, requests)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	pending := make(map[int64]Range, len(group))
	for _, r := range group {
		pending[r.Start] = r
	}

	switch resp.StatusCode {
	case http.StatusOK:
		e.logger.Warn("server ignored multi-range header, slicing full body", "ranges", len(group))
		return sliceBody(resp.Body, 0, group, dst, tracker)

	case http.StatusPartialContent:
		mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		if err == nil && mediaType == "multipart/byteranges" {
			if err := readParts(multipart.NewReader(resp.Body, params["boundary"]), pending, dst, tracker); err != nil {
				return err
			}
		} else {
			start, end, err := parseContentRange(resp.Header.Get("Content-Range"))
			if err != nil {
				return failure.Network("multi-range request", err)
			}
			if err := writeSpan(resp.Body, start, end, pending, dst, tracker); err != nil {
				return err
			}
		}

	default:
		return failure.Network("multi-range request", fmt.Errorf("unexpected status %s", resp.Status))
	}

	for _, r := range pending {
		e.logger.Debug("range missing from multipart response, fetching alone", "range", r.String())
		if err := e.fetchOne(ctx, url, r, dst, tracker, requests); err != nil {
			return err
		}
	}
	return nil
}

func readParts(mr *multipart.Reader, pending map[int64]Range, dst io.WriterAt, tracker *progress.Tracker) error {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return failure.Network("multi-range request", fmt.Errorf("read part: %w", err))
		}
		start, end, err := parseContentRange(part.Header.Get("Content-Range"))
		if err != nil {
			_ = part.Close()
			return failure.Network("multi-range request", err)
		}
		err = writeSpan(part, start, end, pending, dst, tracker)
		_ = part.Close()
		if err != nil {
			return err
		}
	}
}

// writeSpan writes the body of a response part covering [start, end) and
// marks every pending range it fully contains as done.
func writeSpan(body io.Reader, start, end int64, pending map[int64]Range, dst io.WriterAt, tracker *progress.Tracker) error {
	var covered []Range
	for _, r := range pending {
		if r.Start >= start && r.End <= end {
			covered = append(covered, r)
		}
	}
	if len(covered) == 0 {
		return failure.Network("multi-range request", fmt.Errorf("unrequested span [%d,%d)", start, end))
	}
	if err := sliceBody(body, start, covered, dst, tracker); err != nil {
		return err
	}
	for _, r := range covered {
		delete(pending, r.Start)
	}
	return nil
}

// sliceBody streams a body whose first byte is at file offset base,
// copying each range (sorted by start) to its offset and discarding the
// bytes in between.
func sliceBody(body io.Reader, base int64, ranges []Range, dst io.WriterAt, tracker *progress.Tracker) error {
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	pos := base
	for _, r := range sorted {
		if r.Start < pos {
			return failure.Network("range request", fmt.Errorf("overlapping span at %d", r.Start))
		}
		if _, err := io.CopyN(io.Discard, body, r.Start-pos); err != nil {
			return failure.Network("range request", fmt.Errorf("skip to %d: %w", r.Start, err))
		}
		if err := copyRange(body, r, dst, tracker); err != nil {
			return err
		}
		pos = r.End
	}
	return nil
}

func copyRange(body io.Reader, r Range, dst io.WriterAt, tracker *progress.Tracker) error {
	w := io.MultiWriter(io.NewOffsetWriter(dst, r.Start), tracker.Writer())
	n, err := io.CopyN(w, body, r.Len())
	if err != nil {
		return failure.Network("range request", fmt.Errorf("%s: copied %d of %d bytes: %w", r, n, r.Len(), err))
	}
	return nil
}

// parseContentRange parses "bytes start-end/total" into [start, end+1).
func parseContentRange(header string) (int64, int64, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", header)
	}
	span, _, _ := strings.Cut(spec, "/")
	first, last, ok := strings.Cut(span, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", header)
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid Content-Range %q: %w", header, err)
	}
	end, err := strconv.ParseInt(strings.TrimSpace(last), 10, 64)
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", header)
	}
	return start, end + 1, nil
}

// FetchEmbeddedBlockMap reads the block map embedded at the end of the
// remote file of fileSize bytes whose payload is payloadLen bytes long.
func (e *Engine) FetchEmbeddedBlockMap(ctx context.Context, url string, fileSize, payloadLen int64) (*blockmap.BlockMap, error) {
	tail := blockmap.TailLength(payloadLen)
	if tail > fileSize {
		return nil, failure.Corruption("fetch embedded block map", fmt.Errorf("tail of %d bytes exceeds file size %d", tail, fileSize))
	}
	r := Range{Start: fileSize - tail, End: fileSize}
	buf := make([]byte, tail)

	var requests atomic.Int64
	if err := e.fetchOne(ctx, url, r, shiftedWriter{buf: buf, base: r.Start}, nil, &requests); err != nil {
		return nil, err
	}
	m, err := blockmap.ParseTail(buf)
	if err != nil {
		return nil, failure.Corruption("fetch embedded block map", err)
	}
	return m, nil
}

// shiftedWriter maps absolute file offsets onto a buffer holding the
// window starting at base.
type shiftedWriter struct {
	buf  []byte
	base int64
}

func (s shiftedWriter) WriteAt(p []byte, off int64) (int, error) {
	off -= s.base
	if off < 0 || off+int64(len(p)) > int64(len(s.buf)) {
		return 0, io.ErrShortWrite
	}
	return copy(s.buf[off:], p), nil
}
