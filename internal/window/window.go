// Package window implements a fixed-capacity, time-stamped recency window.
package window

import (
	"errors"
	"iter"
	"sync"
	"time"
)

// DefaultCapacity is used when configuration leaves capacity unset
const DefaultCapacity = 100

// ErrInvalidCapacity is returned for capacity <= 0
var ErrInvalidCapacity = errors.New("window: capacity must be positive")

// Stamped is anything carrying an event time
type Stamped interface {
	Stamp() time.Time
}

// Window holds the most recent items, oldest evicted first.
// Safe for concurrent use.
type Window[T Stamped] struct {
	mu    sync.Mutex
	buf   []T
	start int // index of oldest item
	size  int
}

// New creates a window holding at most capacity items
func New[T Stamped](capacity int) (*Window[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Window[T]{buf: make([]T, capacity)}, nil
}

// Push appends item, evicting the oldest when full
func (w *Window[T]) Push(item T) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = item
		w.size++
		return
	}
	w.buf[w.start] = item
	w.start = (w.start + 1) % len(w.buf)
}

// Items returns a copy of the contents, oldest first
func (w *Window[T]) Items() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot()
}

func (w *Window[T]) snapshot() []T {
	out := make([]T, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// WithinLast yields, oldest first, the longest suffix of items whose
// stamp is no more than d before now. The scan runs over a snapshot taken
// when WithinLast is called, so later pushes are not observed.
func (w *Window[T]) WithinLast(d time.Duration, now time.Time) iter.Seq[T] {
	items := w.Items()

	first := len(items)
	for first > 0 && now.Sub(items[first-1].Stamp()) <= d {
		first--
	}
	suffix := items[first:]

	return func(yield func(T) bool) {
		for _, item := range suffix {
			if !yield(item) {
				return
			}
		}
	}
}

// CountWithinLast returns the number of items WithinLast would yield
func (w *Window[T]) CountWithinLast(d time.Duration, now time.Time) int {
	n := 0
	for range w.WithinLast(d, now) {
		n++
	}
	return n
}

// Len returns the number of items held
func (w *Window[T]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Cap returns the fixed capacity
func (w *Window[T]) Cap() int {
	return len(w.buf)
}

// Clear drops every item
func (w *Window[T]) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.buf)
	w.start = 0
	w.size = 0
}
