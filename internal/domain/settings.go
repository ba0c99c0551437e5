package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// ExchangeFees are the configured fees of one exchange, in percent.
type ExchangeFees struct {
	DepositFee float64 `json:"deposit_fee"`
	TradingFee float64 `json:"trading_fee"`
}

// Settings is the runtime configuration of the detection core. Values are
// treated as immutable once published; change them by publishing a copy.
type Settings struct {
	HistoryMaxSize               int     `json:"history_max_size"`
	ExpirationTimeInSeconds      int     `json:"expiration_time_in_seconds"`
	ExecutionDelayInMilliseconds int     `json:"execution_delay_in_milliseconds"`
	MinimumPnL                   float64 `json:"minimum_pnl"`
	MinimumVolume                float64 `json:"minimum_volume"`
	MinSpread                    float64 `json:"min_spread"`

	BaseAssets         []string `json:"base_assets"`
	IntermediateAssets []string `json:"intermediate_assets"`
	QuoteAsset         string   `json:"quote_asset"`
	Exchanges          []string `json:"exchanges"`
	OwnExchange        string   `json:"own_exchange"`

	MatrixAssetPairs               []string                `json:"matrix_asset_pairs"`
	MatrixExchanges                []string                `json:"matrix_exchanges"`
	MatrixHistoryAssetPairs        []string                `json:"matrix_history_asset_pairs"`
	MatrixHistoryIntervalInSeconds int                     `json:"matrix_history_interval_in_seconds"`
	ExchangeFees                   map[string]ExchangeFees `json:"exchange_fees"`
}

// Expiration is the freshness window for order books.
func (s Settings) Expiration() time.Duration {
	return time.Duration(s.ExpirationTimeInSeconds) * time.Second
}

// ExecutionDelay is the pause between detection scans.
func (s Settings) ExecutionDelay() time.Duration {
	return time.Duration(s.ExecutionDelayInMilliseconds) * time.Millisecond
}

// MatrixHistoryInterval is the pause between matrix snapshots; zero disables them.
func (s Settings) MatrixHistoryInterval() time.Duration {
	return time.Duration(s.MatrixHistoryIntervalInSeconds) * time.Second
}

// TargetPairs returns BASE/QUOTE for every configured base asset.
func (s Settings) TargetPairs() []AssetPair {
	out := make([]AssetPair, 0, len(s.BaseAssets))
	for _, b := range s.BaseAssets {
		out = append(out, AssetPair{Base: b, Quote: s.QuoteAsset})
	}
	return out
}

// AllowsSource reports whether books from source take part in synthesis.
func (s Settings) AllowsSource(source string) bool {
	return len(s.Exchanges) == 0 || slices.Contains(s.Exchanges, source)
}

// Normalized returns a copy with asset names upper-cased and trimmed.
func (s Settings) Normalized() Settings {
	out := s.Clone()
	out.QuoteAsset = strings.ToUpper(strings.TrimSpace(s.QuoteAsset))
	out.BaseAssets = upperAll(s.BaseAssets)
	out.IntermediateAssets = upperAll(s.IntermediateAssets)
	return out
}

// Clone returns a copy that shares no slices or maps with s.
func (s Settings) Clone() Settings {
	out := s
	out.BaseAssets = slices.Clone(s.BaseAssets)
	out.IntermediateAssets = slices.Clone(s.IntermediateAssets)
	out.Exchanges = slices.Clone(s.Exchanges)
	out.MatrixAssetPairs = slices.Clone(s.MatrixAssetPairs)
	out.MatrixExchanges = slices.Clone(s.MatrixExchanges)
	out.MatrixHistoryAssetPairs = slices.Clone(s.MatrixHistoryAssetPairs)
	if s.ExchangeFees != nil {
		out.ExchangeFees = maps.Clone(s.ExchangeFees)
	}
	return out
}

func upperAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Validate reports every problem with s, wrapped in ErrInvalidSettings.
func (s Settings) Validate() error {
	var errs []string

	if strings.TrimSpace(s.QuoteAsset) == "" {
		errs = append(errs, "quote_asset is required")
	}
	if len(s.BaseAssets) == 0 {
		errs = append(errs, "base_assets must not be empty")
	}
	for _, b := range s.BaseAssets {
		if strings.TrimSpace(b) == "" {
			errs = append(errs, "base_assets contains an empty asset")
		} else if strings.EqualFold(strings.TrimSpace(b), strings.TrimSpace(s.QuoteAsset)) {
			errs = append(errs, fmt.Sprintf("base asset %q equals quote_asset", b))
		}
	}
	if s.HistoryMaxSize <= 0 {
		errs = append(errs, "history_max_size must be positive")
	}
	if s.ExpirationTimeInSeconds <= 0 {
		errs = append(errs, "expiration_time_in_seconds must be positive")
	}
	if s.ExecutionDelayInMilliseconds <= 0 {
		errs = append(errs, "execution_delay_in_milliseconds must be positive")
	}
	if s.MinimumPnL < 0 {
		errs = append(errs, "minimum_pnl must not be negative")
	}
	if s.MinimumVolume < 0 {
		errs = append(errs, "minimum_volume must not be negative")
	}
	if s.MinSpread < 0 {
		errs = append(errs, "min_spread must not be negative")
	}
	if s.MatrixHistoryIntervalInSeconds < 0 {
		errs = append(errs, "matrix_history_interval_in_seconds must not be negative")
	}
	for _, p := range slices.Concat(s.MatrixAssetPairs, s.MatrixHistoryAssetPairs) {
		if _, err := ParseAssetPair(p); err != nil {
			errs = append(errs, fmt.Sprintf("invalid matrix asset pair %q", p))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(s.ExchangeFees)) {
		if f := s.ExchangeFees[name]; f.DepositFee < 0 || f.TradingFee < 0 {
			errs = append(errs, fmt.Sprintf("fees of exchange %q must not be negative", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(errs, "; "))
	}
	return nil
}
