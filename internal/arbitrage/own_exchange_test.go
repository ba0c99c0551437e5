package arbitrage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

func TestOwnExchangeFind(t *testing.T) {
	rates := &staticRates{}
	rates.set(
		direct("lykke", 100, 5, 99, 5),
		direct("kraken", 95, 1, 94, 1),
		direct("bitstamp", 102, 2, 101, 2),
		direct("binance", 103, 1, 102, 10),
	)
	settings := domain.Settings{OwnExchange: "lykke"}
	o := NewOwnExchangeDetector(rates, func() domain.Settings { return settings })

	got, err := o.Find(domain.OwnExchangeQuery{})
	require.NoError(t, err)
	// lykke vs kraken (sell on lykke), bitstamp and binance (buy on lykke).
	// bitstamp vs binance is crossed too but involves no own leg.
	require.Len(t, got, 3)
	for _, a := range got {
		assert.Equal(t, "lykke", a.Own)
		assert.NotEqual(t, a.AskSynth.Source == "lykke", a.BidSynth.Source == "lykke")
	}
	assert.Equal(t, "binance", got[0].Target)
	assert.Equal(t, domain.DirectionBuy, got[0].Direction)
	assert.InDelta(t, 10.0, got[0].PnL, 1e-9)

	sells, err := o.Find(domain.OwnExchangeQuery{Target: "kraken"})
	require.NoError(t, err)
	require.Len(t, sells, 1)
	assert.Equal(t, domain.DirectionSell, sells[0].Direction)

	none, err := o.Find(domain.OwnExchangeQuery{Target: "Kraken"})
	require.NoError(t, err)
	assert.Empty(t, none)

	big, err := o.Find(domain.OwnExchangeQuery{Property: "Volume", MinValue: 2})
	require.NoError(t, err)
	require.Len(t, big, 2)
}

func TestOwnExchangeFindErrors(t *testing.T) {
	o := NewOwnExchangeDetector(&staticRates{}, func() domain.Settings { return domain.Settings{} })

	_, err := o.Find(domain.OwnExchangeQuery{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = o.Find(domain.OwnExchangeQuery{Own: "lykke", Property: "colour"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
