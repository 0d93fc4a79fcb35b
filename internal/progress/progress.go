// Package progress reports byte-level transfer progress to subscribers.
package progress

import (
	"sync"
	"time"
)

// Info is one progress tick.
type Info struct {
	Total          int64   // bytes expected, 0 if unknown
	Transferred    int64   // bytes landed so far, never decreases
	Delta          int64   // bytes landed since the previous tick
	Percent        float64 // 0-100, 0 when Total is unknown
	BytesPerSecond int64
}

// Observer receives progress ticks.
type Observer interface {
	OnProgress(Info)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Info)

// OnProgress calls f.
func (f ObserverFunc) OnProgress(info Info) { f(info) }

// Tracker aggregates progress from concurrent writers and emits ticks that
// are monotonically non-decreasing. It is safe for concurrent use; ticks
// are delivered while holding the tracker's lock, one at a time.
type Tracker struct {
	mu          sync.Mutex
	observer    Observer
	total       int64
	transferred int64
	started     time.Time
	now         func() time.Time
}

// NewTracker returns a tracker for total bytes. A nil observer makes every
// call a no-op apart from bookkeeping.
func NewTracker(total int64, observer Observer) *Tracker {
	return &Tracker{
		observer: observer,
		total:    total,
		started:  time.Now(),
		now:      time.Now,
	}
}

// Add records n more bytes and emits a tick. Non-positive n is ignored.
func (t *Tracker) Add(n int64) {
	if t == nil || n <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.transferred += n
	if t.total > 0 && t.transferred > t.total {
		t.transferred = t.total
	}
	if t.observer == nil {
		return
	}

	info := Info{
		Total:       t.total,
		Transferred: t.transferred,
		Delta:       n,
	}
	if t.total > 0 {
		info.Percent = float64(t.transferred) * 100 / float64(t.total)
	}
	if elapsed := t.now().Sub(t.started).Seconds(); elapsed > 0 {
		info.BytesPerSecond = int64(float64(t.transferred) / elapsed)
	}
	t.observer.OnProgress(info)
}

// Monotonic wraps o for observers shared by consecutive attempts at the
// same file, such as a differential download followed by a full one. Ticks
// below the highest Transferred already delivered are dropped and Delta is
// taken against it. A nil o yields nil.
func Monotonic(o Observer) Observer {
	if o == nil {
		return nil
	}
	return &monotonic{observer: o}
}

type monotonic struct {
	mu       sync.Mutex
	observer Observer
	high     int64
	seen     bool
}

func (m *monotonic) OnProgress(info Info) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen && info.Transferred <= m.high {
		return
	}
	if m.seen {
		info.Delta = info.Transferred - m.high
	}
	m.high = info.Transferred
	m.seen = true
	m.observer.OnProgress(info)
}

// Transferred returns the bytes recorded so far.
func (t *Tracker) Transferred() int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferred
}

// Writer returns an io.Writer that records every write into the tracker.
func (t *Tracker) Writer() *CountingWriter {
	return &CountingWriter{tracker: t}
}

// CountingWriter forwards byte counts to a Tracker. Use with io.TeeReader
// or io.MultiWriter.
type CountingWriter struct {
	tracker *Tracker
}

// Write records len(p) bytes.
func (w *CountingWriter) Write(p []byte) (int, error) {
	w.tracker.Add(int64(len(p)))
	return len(p), nil
}
