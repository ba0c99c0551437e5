package domain

import (
	"fmt"
	"time"
)

// Arbitrage is a crossed market between two cross rates of the same pair:
// buy at Ask (from AskSynth) and sell at Bid (from BidSynth).
type Arbitrage struct {
	ID        string      `json:"id"`
	AssetPair AssetPair   `json:"asset_pair"`
	Ask       VolumePrice `json:"ask"`
	Bid       VolumePrice `json:"bid"`
	AskSynth  CrossRate   `json:"ask_synth"`
	BidSynth  CrossRate   `json:"bid_synth"`
	Spread    float64     `json:"spread"`
	Volume    float64     `json:"volume"`
	PnL       float64     `json:"pnl"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at"`
}

// NewArbitrage computes spread, volume and PnL for buying at ask on one cross
// rate and selling at bid on another.
func NewArbitrage(askSynth, bidSynth CrossRate, ask, bid VolumePrice) Arbitrage {
	spread := bid.Price - ask.Price
	volume := min(ask.Volume, bid.Volume)
	return Arbitrage{
		AssetPair: askSynth.AssetPair,
		Ask:       ask,
		Bid:       bid,
		AskSynth:  askSynth,
		BidSynth:  bidSynth,
		Spread:    spread,
		Volume:    volume,
		PnL:       spread * volume,
	}
}

// Key is the identity used to recognise the same opportunity across scans.
func (a Arbitrage) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		a.AssetPair, a.AskSynth.Source, a.AskSynth.ConversionPath, a.BidSynth.Source, a.BidSynth.ConversionPath)
}

// ConversionPath describes both legs, ask side first.
func (a Arbitrage) ConversionPath() string {
	return "(" + a.AskSynth.ConversionPath.String() + ") > (" + a.BidSynth.ConversionPath.String() + ")"
}

// Duration is how long the opportunity has been observed.
func (a Arbitrage) Duration() time.Duration {
	return a.EndedAt.Sub(a.StartedAt)
}

// Direction of an own-exchange arbitrage, seen from the own exchange.
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

// OwnExchangeArbitrage is an arbitrage where exactly one leg is on the
// operator's own exchange.
type OwnExchangeArbitrage struct {
	Arbitrage
	Own       string `json:"own"`
	Target    string `json:"target"`
	Direction string `json:"direction"`
}

// Properties an own-exchange query can filter on.
const (
	PropertySpread = "spread"
	PropertyVolume = "volume"
	PropertyPnL    = "pnl"
)

// OwnExchangeQuery narrows an own-exchange scan. Own defaults to the
// configured own exchange; Target and Property are optional.
type OwnExchangeQuery struct {
	Own      string
	Target   string
	Property string
	MinValue float64
}

// Value returns the property of a that q filters on.
func (q OwnExchangeQuery) Value(a Arbitrage) (float64, error) {
	switch q.Property {
	case PropertySpread:
		return a.Spread, nil
	case PropertyVolume:
		return a.Volume, nil
	case PropertyPnL:
		return a.PnL, nil
	}
	return 0, fmt.Errorf("%w: unknown property %q", ErrInvalidArgument, q.Property)
}

// Arbitrage lifecycle events.
const (
	EventArbitrageOpened = "arbitrage_opened"
	EventArbitrageClosed = "arbitrage_closed"
)

// ArbitrageEvent is the payload published when an arbitrage opens or closes.
type ArbitrageEvent struct {
	Event          string    `json:"event"`
	ID             string    `json:"id"`
	AssetPair      AssetPair `json:"asset_pair"`
	ConversionPath string    `json:"conversion_path"`
	Spread         float64   `json:"spread"`
	Volume         float64   `json:"volume"`
	PnL            float64   `json:"pnl"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

// NewArbitrageEvent builds the event payload for a.
func NewArbitrageEvent(event string, a Arbitrage) ArbitrageEvent {
	return ArbitrageEvent{
		Event:          event,
		ID:             a.ID,
		AssetPair:      a.AssetPair,
		ConversionPath: a.ConversionPath(),
		Spread:         a.Spread,
		Volume:         a.Volume,
		PnL:            a.PnL,
		StartedAt:      a.StartedAt,
		EndedAt:        a.EndedAt,
	}
}
