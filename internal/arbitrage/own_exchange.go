package arbitrage

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// OwnExchangeDetector finds, on demand, arbitrages in which exactly one leg
// is on the operator's own exchange. The global thresholds do not apply;
// each query brings its own filter.
type OwnExchangeDetector struct {
	rates    RateSource
	settings func() domain.Settings
}

func NewOwnExchangeDetector(rates RateSource, settings func() domain.Settings) *OwnExchangeDetector {
	return &OwnExchangeDetector{rates: rates, settings: settings}
}

// Find scans the current cross rates for q, highest PnL first.
func (o *OwnExchangeDetector) Find(q domain.OwnExchangeQuery) ([]domain.OwnExchangeArbitrage, error) {
	if q.Own == "" {
		q.Own = o.settings().OwnExchange
	}
	if q.Own == "" {
		return nil, fmt.Errorf("%w: own exchange is not configured", domain.ErrInvalidArgument)
	}
	q.Property = strings.ToLower(strings.TrimSpace(q.Property))
	if q.Property != "" {
		if _, err := q.Value(domain.Arbitrage{}); err != nil {
			return nil, err
		}
	}

	found, err := findCrossed(o.rates.CrossRates(), func(ask, bid domain.CrossRate) bool {
		askOwn, bidOwn := ask.Source == q.Own, bid.Source == q.Own
		if askOwn == bidOwn {
			return false
		}
		other := bid.Source
		if bidOwn {
			other = ask.Source
		}
		return q.Target == "" || q.Target == other
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.OwnExchangeArbitrage, 0, len(found))
	sortByPnL(found)
	for _, a := range found {
		if q.Property != "" {
			v, _ := q.Value(a)
			if v < q.MinValue {
				continue
			}
		}
		oa := domain.OwnExchangeArbitrage{Arbitrage: a, Own: q.Own}
		if a.AskSynth.Source == q.Own {
			oa.Direction, oa.Target = domain.DirectionBuy, a.BidSynth.Source
		} else {
			oa.Direction, oa.Target = domain.DirectionSell, a.AskSynth.Source
		}
		out = append(out, oa)
	}
	return out, nil
}
