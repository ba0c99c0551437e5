package domain

import (
	"strings"
	"time"
)

// Hop is one order book used by a conversion path.
type Hop struct {
	Source    string    `json:"source"`
	AssetPair AssetPair `json:"asset_pair"`
}

func (h Hop) String() string {
	return h.Source + "-" + h.AssetPair.String()
}

// ConversionPath is the ordered list of order books a cross rate was
// synthesized from. It holds one hop for a direct rate, two for a chained one.
type ConversionPath []Hop

func (p ConversionPath) String() string {
	parts := make([]string, len(p))
	for i, h := range p {
		parts[i] = h.String()
	}
	return strings.Join(parts, " & ")
}

// Source is the shared hop source, or the hop sources joined with "-" when
// the path spans exchanges.
func (p ConversionPath) Source() string {
	if len(p) == 0 {
		return ""
	}
	sources := make([]string, 0, len(p))
	same := true
	for _, h := range p {
		sources = append(sources, h.Source)
		if h.Source != p[0].Source {
			same = false
		}
	}
	if same {
		return p[0].Source
	}
	return strings.Join(sources, "-")
}

// References reports whether the path uses the book of (source, pair).
func (p ConversionPath) References(source string, pair AssetPair) bool {
	for _, h := range p {
		if h.Source == source && h.AssetPair == pair {
			return true
		}
	}
	return false
}

// CrossRate is a best bid/ask for a target pair, either read directly from
// one order book or synthesized through an intermediate asset. A missing side
// is nil. Timestamp is that of the oldest hop.
type CrossRate struct {
	Source         string         `json:"source"`
	AssetPair      AssetPair      `json:"asset_pair"`
	BestAsk        *VolumePrice   `json:"best_ask,omitempty"`
	BestBid        *VolumePrice   `json:"best_bid,omitempty"`
	ConversionPath ConversionPath `json:"conversion_path"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Key identifies the cross rate within its target pair.
func (c CrossRate) Key() string {
	return c.AssetPair.String() + "|" + c.ConversionPath.String()
}

// IsDirect reports whether the rate comes from a single order book.
func (c CrossRate) IsDirect() bool {
	return len(c.ConversionPath) == 1
}
