package domain

import "time"

// MatrixExchange is a row/column header of a Matrix. Actual is false when the
// exchange has no direct book and its prices come from a synthesized rate.
type MatrixExchange struct {
	Name   string `json:"name"`
	Actual bool   `json:"actual"`
}

// MatrixCell compares buying on the row exchange with selling on the column
// exchange.
type MatrixCell struct {
	Spread float64 `json:"spread"`
	Volume float64 `json:"volume"`
}

// Matrix is a cross-exchange spread table for one asset pair. Asks[i] and
// Bids[i] are the best prices of Exchanges[i]; Cells[i][j] is
// Bids[j] - Asks[i], nil on the diagonal or where either side is missing.
type Matrix struct {
	AssetPair AssetPair        `json:"asset_pair"`
	Exchanges []MatrixExchange `json:"exchanges"`
	Asks      []*VolumePrice   `json:"asks"`
	Bids      []*VolumePrice   `json:"bids"`
	Cells     [][]*MatrixCell  `json:"cells"`
	DateTime  time.Time        `json:"date_time"`
}

// Fees are optional per-query overrides in percent. Nil means "use the
// configured value for the exchange".
type Fees struct {
	DepositFee *float64
	TradingFee *float64
}
