package differential

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/adamancini/hatch/internal/blockmap"
	"github.com/adamancini/hatch/internal/checksum"
	"github.com/adamancini/hatch/internal/failure"
	"github.com/adamancini/hatch/internal/progress"
	"github.com/adamancini/hatch/internal/types"
)

const testBlockSize = 16

// fixture holds an old file on disk, the new content behind a test server
// and the block maps of both.
type fixture struct {
	dir      string
	oldPath  string
	oldMap   *blockmap.BlockMap
	newData  []byte
	newMap   *blockmap.BlockMap
	server   *httptest.Server
	requests atomic.Int64
	ranges   []string
	mu       sync.Mutex
}

func newFixture(t *testing.T, oldData, newData []byte, handler func(f *fixture) http.HandlerFunc) *fixture {
	t.Helper()

	f := &fixture{dir: t.TempDir(), newData: newData}
	f.oldPath = filepath.Join(f.dir, "old.bin")
	if err := os.WriteFile(f.oldPath, oldData, 0644); err != nil {
		t.Fatalf("write old file: %v", err)
	}

	var err error
	if f.oldMap, err = blockmap.Build(bytes.NewReader(oldData), testBlockSize); err != nil {
		t.Fatalf("build old map: %v", err)
	}
	if f.newMap, err = blockmap.Build(bytes.NewReader(newData), testBlockSize); err != nil {
		t.Fatalf("build new map: %v", err)
	}

	if handler == nil {
		handler = serveRanges
	}
	f.server = httptest.NewServer(handler(f))
	t.Cleanup(f.server.Close)
	return f
}

// serveRanges answers single and multi-range requests like a compliant server.
func serveRanges(f *fixture) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		f.mu.Lock()
		f.ranges = append(f.ranges, r.Header.Get("Range"))
		f.mu.Unlock()
		http.ServeContent(w, r, "new.bin", time.Time{}, bytes.NewReader(f.newData))
	}
}

// ignoreRanges always returns the whole body with 200 OK.
func ignoreRanges(f *fixture) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(f.newData)
	}
}

func (f *fixture) request(dest string) Request {
	return Request{
		OldFile:     f.oldPath,
		OldMap:      f.oldMap,
		NewURL:      f.server.URL + "/new.bin",
		NewMap:      f.newMap,
		Destination: dest,
	}
}

func quietEngine(opts ...Option) *Engine {
	return NewEngine(append([]Option{WithLogger(log.New(io.Discard))}, opts...)...)
}

func block(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, testBlockSize)
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func assertFile(t *testing.T, path string, want []byte) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("content mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
}

func assertNoPartials(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".part") {
			t.Errorf("partial file left behind: %s", e.Name())
		}
	}
}

func TestReconstruct_ScenarioA(t *testing.T) {
	a := bytes.Repeat([]byte("A"), 100)
	b := bytes.Repeat([]byte("B"), 50)
	c := bytes.Repeat([]byte("C"), 60)
	oldData := concat(a, b)
	newData := concat(a, c)

	f := newFixture(t, oldData, newData, nil)
	f.oldMap = &blockmap.BlockMap{Checksum: checksum.Bytes(oldData), Size: 150, Blocks: []blockmap.Block{
		{Offset: 0, Size: 100, Checksum: checksum.Bytes(a)},
		{Offset: 100, Size: 50, Checksum: checksum.Bytes(b)},
	}}
	f.newMap = &blockmap.BlockMap{Checksum: checksum.Bytes(newData), Size: 160, Blocks: []blockmap.Block{
		{Offset: 0, Size: 100, Checksum: checksum.Bytes(a)},
		{Offset: 100, Size: 60, Checksum: checksum.Bytes(c)},
	}}

	dest := filepath.Join(f.dir, "new.bin")
	res, err := quietEngine().Reconstruct(context.Background(), f.request(dest))
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}

	assertFile(t, dest, newData)
	if res.Reused != 100 || res.Fetched != 60 {
		t.Errorf("reused/fetched = %d/%d, want 100/60", res.Reused, res.Fetched)
	}
	if len(f.ranges) != 1 || f.ranges[0] != "bytes=100-159" {
		t.Errorf("range requests = %v, want [bytes=100-159]", f.ranges)
	}
	info, _ := os.Stat(dest)
	if info.Size() != 160 {
		t.Errorf("result size = %d, want 160", info.Size())
	}
}

func TestReconstruct_AllBlocksReused(t *testing.T) {
	oldData := concat(block('a'), block('b'), block('c'))
	newData := concat(block('c'), block('a'), block('b'), block('a'))

	f := newFixture(t, oldData, newData, func(f *fixture) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.requests.Add(1)
			http.Error(w, "should not be called", http.StatusTeapot)
		}
	})

	dest := filepath.Join(f.dir, "new.bin")
	res, err := quietEngine().Reconstruct(context.Background(), f.request(dest))
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}

	assertFile(t, dest, newData)
	if f.requests.Load() != 0 || res.Requests != 0 {
		t.Errorf("expected zero fetches, got %d", f.requests.Load())
	}
}

func TestReconstruct_NoBlocksMatch(t *testing.T) {
	oldData := concat(block('a'), block('b'))
	newData := concat(block('x'), block('y'), []byte("tail"))

	f := newFixture(t, oldData, newData, nil)

	dest := filepath.Join(f.dir, "new.bin")
	res, err := quietEngine().Reconstruct(context.Background(), f.request(dest))
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}

	assertFile(t, dest, newData)
	if res.Reused != 0 {
		t.Errorf("Reused = %d, want 0", res.Reused)
	}
	// Adjacent misses coalesce into one request.
	if f.requests.Load() != 1 {
		t.Errorf("requests = %d, want 1", f.requests.Load())
	}
}

func TestReconstruct_Idempotent(t *testing.T) {
	oldData := concat(block('a'), block('b'), block('c'), block('d'))
	newData := concat(block('a'), block('x'), block('c'), block('y'), block('d'))

	f := newFixture(t, oldData, newData, nil)
	engine := quietEngine()

	first := filepath.Join(f.dir, "first.bin")
	second := filepath.Join(f.dir, "second.bin")
	if _, err := engine.Reconstruct(context.Background(), f.request(first)); err != nil {
		t.Fatalf("first Reconstruct() error = %v", err)
	}
	if _, err := engine.Reconstruct(context.Background(), f.request(second)); err != nil {
		t.Fatalf("second Reconstruct() error = %v", err)
	}

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if !bytes.Equal(a, b) || !bytes.Equal(a, newData) {
		t.Error("reconstruction is not idempotent")
	}
}

func TestReconstruct_ChecksumMismatchLeavesNothing(t *testing.T) {
	oldData := concat(block('a'), block('b'))
	newData := concat(block('a'), block('z'))

	f := newFixture(t, oldData, newData, nil)
	f.newMap.Checksum = checksum.Bytes([]byte("something else"))

	dest := filepath.Join(f.dir, "new.bin")
	_, err := quietEngine().Reconstruct(context.Background(), f.request(dest))
	if err == nil {
		t.Fatal("expected checksum failure")
	}
	if !failure.Is(err, types.KindCorruption) {
		t.Errorf("error kind = %v, want corruption", failure.KindOf(err))
	}
	if !errors.Is(err, checksum.ErrMismatch) {
		t.Errorf("error should wrap checksum.ErrMismatch: %v", err)
	}
	if !failure.Recoverable(err) {
		t.Error("checksum mismatch must be recoverable by full download")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("destination must not exist after failure")
	}
	assertNoPartials(t, f.dir)
}

func TestReconstruct_RemovesStaleDestinationOnFailure(t *testing.T) {
	f := newFixture(t, block('a'), block('b'), nil)
	f.newMap.Checksum = "00"

	dest := filepath.Join(f.dir, "new.bin")
	if err := os.WriteFile(dest, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := quietEngine().Reconstruct(context.Background(), f.request(dest)); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("stale destination must not stay visible")
	}
}

func TestReconstruct_ServerIgnoresRange(t *testing.T) {
	oldData := concat(block('a'), block('b'), block('c'))
	newData := concat(block('a'), block('x'), block('c'), block('y'))

	f := newFixture(t, oldData, newData, ignoreRanges)

	dest := filepath.Join(f.dir, "new.bin")
	if _, err := quietEngine().Reconstruct(context.Background(), f.request(dest)); err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	assertFile(t, dest, newData)
	if f.requests.Load() != 2 {
		t.Errorf("requests = %d, want 2", f.requests.Load())
	}
}

func TestReconstruct_MultiRange(t *testing.T) {
	oldData := concat(block('a'), block('b'), block('c'), block('d'))
	newData := concat(block('x'), block('b'), block('y'), block('d'), block('z'))

	f := newFixture(t, oldData, newData, nil)

	dest := filepath.Join(f.dir, "new.bin")
	res, err := quietEngine(WithMultiRange(true)).Reconstruct(context.Background(), f.request(dest))
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	assertFile(t, dest, newData)
	if f.requests.Load() != 1 || res.Requests != 1 {
		t.Errorf("requests = %d, want 1 multi-range request", f.requests.Load())
	}
	if len(f.ranges) == 0 || strings.Count(f.ranges[0], ",") != 2 {
		t.Errorf("Range header = %v, want three ranges", f.ranges)
	}
}

func TestReconstruct_MultiRangeServerIgnoresRange(t *testing.T) {
	oldData := concat(block('a'), block('b'), block('c'))
	newData := concat(block('x'), block('b'), block('y'))

	f := newFixture(t, oldData, newData, ignoreRanges)

	dest := filepath.Join(f.dir, "new.bin")
	if _, err := quietEngine(WithMultiRange(true)).Reconstruct(context.Background(), f.request(dest)); err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	assertFile(t, dest, newData)
}

func TestReconstruct_ConcurrentFanOut(t *testing.T) {
	var oldParts, newParts [][]byte
	for i := 0; i < 12; i++ {
		oldParts = append(oldParts, block(byte('a'+i)))
		if i%2 == 0 {
			newParts = append(newParts, block(byte('A'+i)))
		} else {
			newParts = append(newParts, block(byte('a'+i)))
		}
	}
	newData := concat(newParts...)
	f := newFixture(t, concat(oldParts...), newData, nil)

	var ticks []progress.Info
	var mu sync.Mutex
	observer := progress.ObserverFunc(func(info progress.Info) {
		mu.Lock()
		ticks = append(ticks, info)
		mu.Unlock()
	})

	dest := filepath.Join(f.dir, "new.bin")
	_, err := quietEngine(WithConcurrency(3), WithObserver(observer)).Reconstruct(context.Background(), f.request(dest))
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	assertFile(t, dest, newData)
	if f.requests.Load() != 6 {
		t.Errorf("requests = %d, want 6", f.requests.Load())
	}

	var last int64
	for _, tick := range ticks {
		if tick.Transferred < last {
			t.Fatalf("progress went backwards: %d < %d", tick.Transferred, last)
		}
		last = tick.Transferred
	}
	if last != int64(len(newData)) {
		t.Errorf("final progress = %d, want %d", last, len(newData))
	}
}

func TestReconstruct_CorruptedOldBlock(t *testing.T) {
	oldData := concat(block('a'), block('b'))
	newData := concat(block('a'), block('c'))

	f := newFixture(t, oldData, newData, nil)
	// The cached file changed after its block map was recorded.
	if err := os.WriteFile(f.oldPath, concat(block('q'), block('b')), 0644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(f.dir, "new.bin")
	_, err := quietEngine().Reconstruct(context.Background(), f.request(dest))
	if !failure.Is(err, types.KindCorruption) {
		t.Fatalf("error = %v, want corruption", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("destination must not exist after failure")
	}
}

func TestReconstruct_ServerError(t *testing.T) {
	f := newFixture(t, block('a'), block('b'), func(f *fixture) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	})

	dest := filepath.Join(f.dir, "new.bin")
	_, err := quietEngine().Reconstruct(context.Background(), f.request(dest))
	if !failure.Is(err, types.KindNetwork) {
		t.Fatalf("error = %v, want network", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("destination must not exist after failure")
	}
	assertNoPartials(t, f.dir)
}

func TestReconstruct_Cancelled(t *testing.T) {
	f := newFixture(t, block('a'), block('b'), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(f.dir, "new.bin")
	_, err := quietEngine().Reconstruct(ctx, f.request(dest))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("destination must not exist after cancellation")
	}
}

func TestReconstruct_MissingBlockMap(t *testing.T) {
	_, err := quietEngine().Reconstruct(context.Background(), Request{Destination: filepath.Join(t.TempDir(), "x")})
	if !errors.Is(err, blockmap.ErrEmpty) {
		t.Errorf("error = %v, want ErrEmpty", err)
	}
}

func TestReconstruct_SizeOverride(t *testing.T) {
	oldData := concat(block('a'), block('b'))
	body := concat(block('a'), block('c'))
	newData := concat(body, []byte("TRAILER"))

	f := newFixture(t, oldData, newData, nil)
	f.newMap, _ = blockmap.Build(bytes.NewReader(body), testBlockSize)

	req := f.request(filepath.Join(f.dir, "new.bin"))
	req.Size = int64(len(newData))
	req.Checksum = checksum.Bytes(newData)

	if _, err := quietEngine().Reconstruct(context.Background(), req); err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	assertFile(t, req.Destination, newData)
}

func TestFetchEmbeddedBlockMap(t *testing.T) {
	payload := bytes.Repeat([]byte("package"), 30)
	m, err := blockmap.Build(bytes.NewReader(payload), testBlockSize)
	if err != nil {
		t.Fatal(err)
	}
	var file bytes.Buffer
	file.Write(payload)
	payloadLen, err := blockmap.AppendEmbedded(&file, m)
	if err != nil {
		t.Fatal(err)
	}

	f := newFixture(t, nil, file.Bytes(), nil)

	got, err := quietEngine().FetchEmbeddedBlockMap(context.Background(), f.server.URL, int64(file.Len()), payloadLen)
	if err != nil {
		t.Fatalf("FetchEmbeddedBlockMap() error = %v", err)
	}
	if got.Checksum != m.Checksum {
		t.Error("embedded block map checksum mismatch")
	}

	if _, err := quietEngine().FetchEmbeddedBlockMap(context.Background(), f.server.URL, 3, payloadLen); err == nil {
		t.Error("expected error when tail exceeds file size")
	}
}
