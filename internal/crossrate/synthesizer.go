// Package crossrate derives best bid/ask rates for configured target pairs
// from stored order books, directly or through one intermediate asset.
package crossrate

import (
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
	"github.com/alanyoungcy/arbdetector/internal/orderbook"
)

// pathKey identifies a conversion path by its logical legs, independent of
// the orientation the books are stored in.
type pathKey struct {
	target       domain.AssetPair
	source1      string
	intermediate string // empty for a direct path
	source2      string
}

// Synthesizer keeps every cross rate of every target pair up to date. A
// single lock guards the rate set; order-book reads go to the lock-free
// store.
type Synthesizer struct {
	books    *orderbook.Store
	settings func() domain.Settings
	now      func() time.Time

	mu    sync.RWMutex
	rates map[domain.AssetPair]map[pathKey]domain.CrossRate
}

func NewSynthesizer(books *orderbook.Store, settings func() domain.Settings) *Synthesizer {
	return &Synthesizer{
		books:    books,
		settings: settings,
		now:      time.Now,
		rates:    make(map[domain.AssetPair]map[pathKey]domain.CrossRate),
	}
}

// WithClock replaces the time source. For tests.
func (s *Synthesizer) WithClock(now func() time.Time) *Synthesizer {
	s.now = now
	return s
}

// OnUpdate recomputes the paths that use the book of (source, pair) and
// leaves every other path untouched.
func (s *Synthesizer) OnUpdate(source string, pair domain.AssetPair) {
	st := s.settings()
	if !st.AllowsSource(source) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, target := range st.TargetPairs() {
		if pair.IsEqualOrReversed(target) {
			s.recompute(pathKey{target: target, source1: source})
		}
		for _, mid := range intermediates(st, target) {
			first := domain.AssetPair{Base: target.Base, Quote: mid}
			second := domain.AssetPair{Base: mid, Quote: target.Quote}
			if pair.IsEqualOrReversed(first) {
				for _, s2 := range s.sources(st, second) {
					s.recompute(pathKey{target: target, source1: source, intermediate: mid, source2: s2})
				}
			}
			if pair.IsEqualOrReversed(second) {
				for _, s1 := range s.sources(st, first) {
					s.recompute(pathKey{target: target, source1: s1, intermediate: mid, source2: source})
				}
			}
		}
	}
}

// Rebuild discards every rate and recomputes all paths, for use after the
// target or intermediate assets change.
func (s *Synthesizer) Rebuild() {
	st := s.settings()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rates = make(map[domain.AssetPair]map[pathKey]domain.CrossRate)
	for _, target := range st.TargetPairs() {
		for _, src := range s.sources(st, target) {
			s.recompute(pathKey{target: target, source1: src})
		}
		for _, mid := range intermediates(st, target) {
			firsts := s.sources(st, domain.AssetPair{Base: target.Base, Quote: mid})
			seconds := s.sources(st, domain.AssetPair{Base: mid, Quote: target.Quote})
			for _, s1 := range firsts {
				for _, s2 := range seconds {
					s.recompute(pathKey{target: target, source1: s1, intermediate: mid, source2: s2})
				}
			}
		}
	}
}

// CrossRates returns every fresh cross rate ordered by pair and path.
func (s *Synthesizer) CrossRates() []domain.CrossRate {
	now, exp := s.now(), s.settings().Expiration()

	s.mu.RLock()
	var out []domain.CrossRate
	for _, byPath := range s.rates {
		out = appendFresh(out, byPath, now, exp)
	}
	s.mu.RUnlock()

	sortRates(out)
	return out
}

// CrossRatesFor returns the fresh cross rates of one target pair.
func (s *Synthesizer) CrossRatesFor(pair domain.AssetPair) []domain.CrossRate {
	now, exp := s.now(), s.settings().Expiration()

	s.mu.RLock()
	out := appendFresh(nil, s.rates[pair], now, exp)
	s.mu.RUnlock()

	sortRates(out)
	return out
}

// recompute must be called with mu held.
func (s *Synthesizer) recompute(k pathKey) {
	rate, ok := s.compute(k)
	byPath := s.rates[k.target]
	if !ok {
		if byPath != nil {
			delete(byPath, k)
		}
		return
	}
	if byPath == nil {
		byPath = make(map[pathKey]domain.CrossRate)
		s.rates[k.target] = byPath
	}
	byPath[k] = rate
}

func (s *Synthesizer) compute(k pathKey) (domain.CrossRate, bool) {
	if k.intermediate == "" {
		leg, ok := s.leg(k.source1, k.target)
		if !ok {
			return domain.CrossRate{}, false
		}
		return Synthesize(k.target, leg)
	}
	first, ok := s.leg(k.source1, domain.AssetPair{Base: k.target.Base, Quote: k.intermediate})
	if !ok {
		return domain.CrossRate{}, false
	}
	second, ok := s.leg(k.source2, domain.AssetPair{Base: k.intermediate, Quote: k.target.Quote})
	if !ok {
		return domain.CrossRate{}, false
	}
	return Synthesize(k.target, first, second)
}

// leg reads the fresh book of source for pair, preferring the pair as quoted
// over its reverse.
func (s *Synthesizer) leg(source string, pair domain.AssetPair) (Leg, bool) {
	if b, ok := s.books.Get(source, pair); ok {
		return Leg{Hop: domain.Hop{Source: source, AssetPair: pair}, Book: b}, true
	}
	if b, ok := s.books.Get(source, pair.Reverse()); ok {
		return Leg{Hop: domain.Hop{Source: source, AssetPair: pair.Reverse()}, Book: b.Reverse()}, true
	}
	return Leg{}, false
}

func (s *Synthesizer) sources(st domain.Settings, pair domain.AssetPair) []string {
	all := s.books.Sources(pair)
	out := all[:0]
	for _, src := range all {
		if st.AllowsSource(src) {
			out = append(out, src)
		}
	}
	return out
}

func intermediates(st domain.Settings, target domain.AssetPair) []string {
	out := make([]string, 0, len(st.IntermediateAssets))
	for _, mid := range st.IntermediateAssets {
		if !target.Contains(mid) {
			out = append(out, mid)
		}
	}
	return out
}

func appendFresh(out []domain.CrossRate, byPath map[pathKey]domain.CrossRate, now time.Time, exp time.Duration) []domain.CrossRate {
	for _, r := range byPath {
		if now.Sub(r.Timestamp) <= exp {
			out = append(out, r)
		}
	}
	return out
}

func sortRates(rates []domain.CrossRate) {
	sort.Slice(rates, func(i, j int) bool {
		if rates[i].AssetPair != rates[j].AssetPair {
			return rates[i].AssetPair.String() < rates[j].AssetPair.String()
		}
		return rates[i].Key() < rates[j].Key()
	})
}
