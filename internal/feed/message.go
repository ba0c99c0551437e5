// Package feed delivers order-book snapshots from the outside world to the
// engine, over WebSocket connections or the Redis signal bus.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// Handler consumes decoded order-book updates. *engine.Engine implements it.
type Handler interface {
	Handle(ctx context.Context, u domain.OrderBookUpdate) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u domain.OrderBookUpdate) error

func (f HandlerFunc) Handle(ctx context.Context, u domain.OrderBookUpdate) error {
	return f(ctx, u)
}

// levelMessage is one price level. Volume may be signed; the engine
// normalises it.
type levelMessage struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// orderBookMessage is the wire shape shared by every transport:
//
//	{"source":"kraken","asset_pair":"BTC/USD","timestamp":"2025-01-31T12:00:00Z",
//	 "asks":[{"price":100.5,"volume":2}],"bids":[{"price":100.1,"volume":1.5}]}
//
// timestamp is RFC 3339 or Unix milliseconds; when absent the engine stamps
// the receive time.
type orderBookMessage struct {
	Source    string          `json:"source"`
	AssetPair string          `json:"asset_pair"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Asks      []levelMessage  `json:"asks"`
	Bids      []levelMessage  `json:"bids"`
}

// Decode parses a payload holding either one message or a JSON array of them.
func Decode(data []byte) ([]domain.OrderBookUpdate, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("feed: empty payload")
	}

	var msgs []orderBookMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("feed: decode batch: %w", err)
		}
	} else {
		var m orderBookMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("feed: decode message: %w", err)
		}
		msgs = []orderBookMessage{m}
	}

	out := make([]domain.OrderBookUpdate, 0, len(msgs))
	for i, m := range msgs {
		u, err := m.update()
		if err != nil {
			return nil, fmt.Errorf("feed: message %d: %w", i, err)
		}
		out = append(out, u)
	}
	return out, nil
}

func (m orderBookMessage) update() (domain.OrderBookUpdate, error) {
	pair, err := domain.ParseAssetPair(m.AssetPair)
	if err != nil {
		return domain.OrderBookUpdate{}, err
	}
	ts, err := parseTimestamp(m.Timestamp)
	if err != nil {
		return domain.OrderBookUpdate{}, err
	}
	return domain.OrderBookUpdate{
		Source:    strings.TrimSpace(m.Source),
		AssetPair: pair,
		Timestamp: ts,
		Asks:      levels(m.Asks),
		Bids:      levels(m.Bids),
	}, nil
}

func levels(in []levelMessage) []domain.VolumePrice {
	out := make([]domain.VolumePrice, len(in))
	for i, l := range in {
		out[i] = domain.VolumePrice{Price: l.Price, Volume: l.Volume}
	}
	return out
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp: %v", domain.ErrInvalidArgument, err)
		}
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q", domain.ErrInvalidArgument, s)
		}
		return t.UTC(), nil
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %s", domain.ErrInvalidArgument, raw)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// dispatch decodes data and hands each update to h. It returns the number of
// updates accepted and the first error met; later updates are still handled.
func dispatch(ctx context.Context, h Handler, data []byte) (int, error) {
	updates, err := Decode(data)
	if err != nil {
		return 0, err
	}
	var (
		accepted int
		first    error
	)
	for _, u := range updates {
		if err := h.Handle(ctx, u); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		accepted++
	}
	return accepted, first
}
