// Package matrix builds cross-exchange spread tables for one asset pair and
// snapshots them periodically.
package matrix

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
	"github.com/alanyoungcy/arbdetector/internal/orderbook"
)

// RateSource provides the fresh cross rates of one target pair.
type RateSource interface {
	CrossRatesFor(pair domain.AssetPair) []domain.CrossRate
}

// Builder assembles matrices from the order-book store, falling back to
// single-exchange synthesized rates for exchanges without a direct book.
type Builder struct {
	books    *orderbook.Store
	rates    RateSource
	settings func() domain.Settings
	now      func() time.Time
}

func NewBuilder(books *orderbook.Store, rates RateSource, settings func() domain.Settings) *Builder {
	return &Builder{books: books, rates: rates, settings: settings, now: time.Now}
}

// WithClock replaces the time source. For tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// AssetPairs lists the pairs matrices are offered for: the configured
// matrix pairs, or every target pair when none are configured.
func (b *Builder) AssetPairs() []domain.AssetPair {
	st := b.settings()
	if len(st.MatrixAssetPairs) == 0 {
		return st.TargetPairs()
	}
	out := make([]domain.AssetPair, 0, len(st.MatrixAssetPairs))
	for _, s := range st.MatrixAssetPairs {
		if p, err := domain.ParseAssetPair(s); err == nil {
			out = append(out, p)
		}
	}
	return out
}

type row struct {
	exchange domain.MatrixExchange
	ask, bid *domain.VolumePrice
}

// Build returns the matrix for pair. Cells[i][j] is the spread of buying on
// exchange i and selling on exchange j, after fees.
func (b *Builder) Build(pair domain.AssetPair, fees domain.Fees) (domain.Matrix, error) {
	if !pair.Valid() {
		return domain.Matrix{}, fmt.Errorf("%w: asset pair %q", domain.ErrInvalidArgument, pair)
	}
	if badFee(fees.DepositFee) || badFee(fees.TradingFee) {
		return domain.Matrix{}, fmt.Errorf("%w: fees must be finite and not negative", domain.ErrInvalidArgument)
	}

	st := b.settings()
	synth := b.synthesizedByExchange(pair)
	names := b.exchanges(st, pair, synth)

	rows := make([]row, len(names))
	for i, name := range names {
		r := row{exchange: domain.MatrixExchange{Name: name}}
		if book, ok := b.books.Find(name, pair); ok {
			r.exchange.Actual = true
			if a, ok := book.BestAsk(); ok {
				r.ask = &a
			}
			if bid, ok := book.BestBid(); ok {
				r.bid = &bid
			}
		} else if s, ok := synth[name]; ok {
			r.ask, r.bid = s.ask, s.bid
		}
		applyFees(&r, feesFor(st, name, fees))
		rows[i] = r
	}

	m := domain.Matrix{
		AssetPair: pair,
		Exchanges: make([]domain.MatrixExchange, len(rows)),
		Asks:      make([]*domain.VolumePrice, len(rows)),
		Bids:      make([]*domain.VolumePrice, len(rows)),
		Cells:     make([][]*domain.MatrixCell, len(rows)),
		DateTime:  b.now().UTC(),
	}
	for i, r := range rows {
		m.Exchanges[i], m.Asks[i], m.Bids[i] = r.exchange, r.ask, r.bid
		m.Cells[i] = make([]*domain.MatrixCell, len(rows))
		for j, c := range rows {
			if i == j || r.ask == nil || c.bid == nil {
				continue
			}
			m.Cells[i][j] = &domain.MatrixCell{
				Spread: c.bid.Price - r.ask.Price,
				Volume: min(r.ask.Volume, c.bid.Volume),
			}
		}
	}
	return m, nil
}

// exchanges returns the configured matrix exchanges in their configured
// order, or every exchange with data for pair ordered by name.
func (b *Builder) exchanges(st domain.Settings, pair domain.AssetPair, synth map[string]row) []string {
	if len(st.MatrixExchanges) > 0 {
		out := make([]string, 0, len(st.MatrixExchanges))
		for _, name := range st.MatrixExchanges {
			if !slices.Contains(out, name) {
				out = append(out, name)
			}
		}
		return out
	}
	seen := make(map[string]struct{})
	for _, src := range b.books.Sources(pair) {
		seen[src] = struct{}{}
	}
	for src := range synth {
		seen[src] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for src := range seen {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// synthesizedByExchange keeps, per exchange, the lowest ask and highest bid
// among cross rates whose hops all come from that exchange.
func (b *Builder) synthesizedByExchange(pair domain.AssetPair) map[string]row {
	out := make(map[string]row)
	for _, r := range b.rates.CrossRatesFor(pair) {
		if len(r.ConversionPath) == 0 || r.Source != r.ConversionPath[0].Source {
			continue
		}
		cur := out[r.Source]
		if r.BestAsk != nil && (cur.ask == nil || r.BestAsk.Price < cur.ask.Price) {
			a := *r.BestAsk
			cur.ask = &a
		}
		if r.BestBid != nil && (cur.bid == nil || r.BestBid.Price > cur.bid.Price) {
			bid := *r.BestBid
			cur.bid = &bid
		}
		out[r.Source] = cur
	}
	return out
}

func feesFor(st domain.Settings, exchange string, override domain.Fees) domain.ExchangeFees {
	f := st.ExchangeFees[exchange]
	if override.DepositFee != nil {
		f.DepositFee = *override.DepositFee
	}
	if override.TradingFee != nil {
		f.TradingFee = *override.TradingFee
	}
	return f
}

// applyFees raises the ask by the trading and deposit fees and lowers the
// bid by the trading fee. Fees are percentages.
func applyFees(r *row, f domain.ExchangeFees) {
	if r.ask != nil {
		r.ask.Price *= (1 + f.TradingFee/100) * (1 + f.DepositFee/100)
	}
	if r.bid != nil {
		r.bid.Price *= 1 - f.TradingFee/100
	}
}

// badFee reports a negative, NaN or infinite fee.
func badFee(v *float64) bool {
	return v != nil && !(*v >= 0 && !math.IsInf(*v, 1))
}
