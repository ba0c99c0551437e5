// Package arbitrage detects crossed markets between cross rates of the same
// asset pair and keeps their lifecycle and history.
package arbitrage

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// RateSource provides the current fresh cross-rate set.
type RateSource interface {
	CrossRates() []domain.CrossRate
}

// pairFilter decides whether buying on ask and selling on bid is considered.
type pairFilter func(ask, bid domain.CrossRate) bool

// findCrossed compares every ordered pair of distinct cross rates within a
// target pair and returns an arbitrage wherever the bid of one is above the
// ask of the other. A panic while processing a target pair is turned into an
// error naming that pair.
func findCrossed(rates []domain.CrossRate, keep pairFilter) (found []domain.Arbitrage, err error) {
	groups := make(map[domain.AssetPair][]domain.CrossRate)
	for _, r := range rates {
		groups[r.AssetPair] = append(groups[r.AssetPair], r)
	}
	pairs := make([]domain.AssetPair, 0, len(groups))
	for p := range groups {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].String() < pairs[j].String() })

	for _, p := range pairs {
		if found, err = scanGroup(p, groups[p], keep, found); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func scanGroup(pair domain.AssetPair, group []domain.CrossRate, keep pairFilter, found []domain.Arbitrage) (out []domain.Arbitrage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: scanning %s: %v", domain.ErrInternal, pair, r)
		}
	}()
	for i, x := range group {
		if x.BestAsk == nil {
			continue
		}
		for j, y := range group {
			if i == j || y.BestBid == nil || x.Key() == y.Key() {
				continue
			}
			if y.BestBid.Price <= x.BestAsk.Price {
				continue
			}
			if keep != nil && !keep(x, y) {
				continue
			}
			found = append(found, domain.NewArbitrage(x, y, *x.BestAsk, *y.BestBid))
		}
	}
	return found, nil
}

func sortByPnL(arbs []domain.Arbitrage) {
	sort.SliceStable(arbs, func(i, j int) bool {
		if arbs[i].PnL != arbs[j].PnL {
			return arbs[i].PnL > arbs[j].PnL
		}
		return arbs[i].Key() < arbs[j].Key()
	})
}

func arbAttrs(a domain.Arbitrage) []any {
	return []any{
		slog.String("asset_pair", a.AssetPair.String()),
		slog.String("conversion_path", a.ConversionPath()),
		slog.Float64("spread", a.Spread),
		slog.Float64("volume", a.Volume),
		slog.Float64("pnl", a.PnL),
	}
}
