package arbitrage

import (
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// History is a bounded ring buffer of closed arbitrages. Once full, each Add
// evicts the oldest entry.
type History struct {
	mu    sync.Mutex
	buf   []domain.Arbitrage
	start int // index of the oldest entry
	n     int
}

func NewHistory(capacity int) *History {
	return &History{buf: make([]domain.Arbitrage, max(capacity, 1))}
}

// Add appends a, evicting the oldest entry when at capacity.
func (h *History) Add(a domain.Arbitrage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = a
		h.n++
		return
	}
	h.buf[h.start] = a
	h.start = (h.start + 1) % len(h.buf)
}

// Resize changes the capacity, keeping the newest entries.
func (h *History) Resize(capacity int) {
	capacity = max(capacity, 1)
	h.mu.Lock()
	defer h.mu.Unlock()
	if capacity == len(h.buf) {
		return
	}
	entries := h.newestFirst()
	if len(entries) > capacity {
		entries = entries[:capacity]
	}
	buf := make([]domain.Arbitrage, capacity)
	for i, a := range entries {
		buf[len(entries)-1-i] = a
	}
	h.buf, h.start, h.n = buf, 0, len(entries)
}

// Range returns entries that ended at or after since, newest first, at most
// take of them. A zero since or non-positive take means no limit.
func (h *History) Range(since time.Time, take int) []domain.Arbitrage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Arbitrage, 0, h.n)
	for _, a := range h.newestFirst() {
		if !since.IsZero() && a.EndedAt.Before(since) {
			continue
		}
		out = append(out, a)
		if take > 0 && len(out) == take {
			break
		}
	}
	return out
}

// FindByConversionPath returns the most recent entry with the given path.
func (h *History) FindByConversionPath(path string) (domain.Arbitrage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range h.newestFirst() {
		if a.ConversionPath() == path {
			return a, nil
		}
	}
	return domain.Arbitrage{}, fmt.Errorf("arbitrage history: %q: %w", path, domain.ErrNotFound)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

func (h *History) Cap() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buf)
}

// newestFirst must be called with mu held.
func (h *History) newestFirst() []domain.Arbitrage {
	out := make([]domain.Arbitrage, h.n)
	for i := range h.n {
		out[i] = h.buf[(h.start+h.n-1-i)%len(h.buf)]
	}
	return out
}
