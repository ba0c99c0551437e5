// Package orderbook keeps the latest validated order book per (source, pair).
package orderbook

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

type bookKey struct {
	source string
	pair   domain.AssetPair
}

// Filter narrows GetAll. Zero fields match everything.
type Filter struct {
	Exchange  string
	AssetPair domain.AssetPair
}

// Store is safe for concurrent use. Writers to different keys never contend;
// entries older than the expiration window are dropped on read.
type Store struct {
	books      sync.Map // bookKey -> *domain.OrderBook
	size       atomic.Int64
	expiration func() time.Duration
	now        func() time.Time
}

// NewStore creates a store whose freshness window is read from expiration on
// every access, so settings changes apply immediately.
func NewStore(expiration func() time.Duration) *Store {
	return &Store{expiration: expiration, now: time.Now}
}

// WithClock replaces the time source. For tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Upsert replaces the book for (b.Source, b.AssetPair).
func (s *Store) Upsert(b domain.OrderBook) {
	k := bookKey{source: b.Source, pair: b.AssetPair}
	if _, loaded := s.books.Swap(k, &b); !loaded {
		s.size.Add(1)
	}
}

// Get returns the fresh book for exactly (source, pair).
func (s *Store) Get(source string, pair domain.AssetPair) (domain.OrderBook, bool) {
	k := bookKey{source: source, pair: pair}
	v, ok := s.books.Load(k)
	if !ok {
		return domain.OrderBook{}, false
	}
	b := v.(*domain.OrderBook)
	if !s.fresh(b, s.now(), s.expiration()) {
		s.evict(k, b)
		return domain.OrderBook{}, false
	}
	return *b, true
}

// Find returns the fresh book of source quoted as pair, reversing a book
// stored for the reversed pair. A direct book wins over a reversed one.
func (s *Store) Find(source string, pair domain.AssetPair) (domain.OrderBook, bool) {
	if b, ok := s.Get(source, pair); ok {
		return b, true
	}
	if b, ok := s.Get(source, pair.Reverse()); ok {
		return b.Reverse(), true
	}
	return domain.OrderBook{}, false
}

// GetAll returns every fresh book matching f, ordered by source then pair.
// Sources are matched case-sensitively.
func (s *Store) GetAll(f Filter) []domain.OrderBook {
	now, exp := s.now(), s.expiration()
	var out []domain.OrderBook
	s.books.Range(func(key, value any) bool {
		k, b := key.(bookKey), value.(*domain.OrderBook)
		if !s.fresh(b, now, exp) {
			s.evict(k, b)
			return true
		}
		if f.Exchange != "" && f.Exchange != k.source {
			return true
		}
		if f.AssetPair.Valid() && f.AssetPair != k.pair {
			return true
		}
		out = append(out, *b)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].AssetPair.String() < out[j].AssetPair.String()
	})
	return out
}

// Sources lists, sorted, the sources holding a fresh book for pair in either
// orientation.
func (s *Store) Sources(pair domain.AssetPair) []string {
	now, exp := s.now(), s.expiration()
	seen := make(map[string]struct{})
	s.books.Range(func(key, value any) bool {
		k, b := key.(bookKey), value.(*domain.OrderBook)
		if k.pair.IsEqualOrReversed(pair) && s.fresh(b, now, exp) {
			seen[k.source] = struct{}{}
		}
		return true
	})
	out := make([]string, 0, len(seen))
	for src := range seen {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// Len is the number of stored books, stale ones included until read.
func (s *Store) Len() int {
	return int(s.size.Load())
}

func (s *Store) fresh(b *domain.OrderBook, now time.Time, exp time.Duration) bool {
	return now.Sub(b.Timestamp) <= exp
}

// evict removes k only if it still holds b, so a concurrent Upsert survives.
func (s *Store) evict(k bookKey, b *domain.OrderBook) {
	if s.books.CompareAndDelete(k, b) {
		s.size.Add(-1)
	}
}
