package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

// fakeService records the arguments it was called with.
type fakeService struct {
	books     []domain.OrderBook
	arbs      []domain.Arbitrage
	settings  domain.Settings
	err       error
	exchange  string
	pair      domain.AssetPair
	since     time.Time
	take      int
	path      string
	own       domain.OwnExchangeQuery
	fees      domain.Fees
	from, to  time.Time
	setCalled bool
}

func (f *fakeService) OrderBooks(_ context.Context, exchange string, pair domain.AssetPair) ([]domain.OrderBook, error) {
	f.exchange, f.pair = exchange, pair
	return f.books, f.err
}

func (f *fakeService) CrossRates(context.Context) ([]domain.CrossRate, error) {
	return []domain.CrossRate{}, f.err
}

func (f *fakeService) Arbitrages(context.Context) ([]domain.Arbitrage, error) {
	return f.arbs, f.err
}

func (f *fakeService) ArbitrageHistory(_ context.Context, since time.Time, take int) ([]domain.Arbitrage, error) {
	f.since, f.take = since, take
	return f.arbs, f.err
}

func (f *fakeService) ArbitrageFromHistory(_ context.Context, path string) (domain.Arbitrage, error) {
	f.path = path
	if f.err != nil {
		return domain.Arbitrage{}, f.err
	}
	return f.arbs[0], nil
}

func (f *fakeService) OwnExchangeArbitrages(_ context.Context, q domain.OwnExchangeQuery) ([]domain.OwnExchangeArbitrage, error) {
	f.own = q
	return nil, f.err
}

func (f *fakeService) Matrix(_ context.Context, pair domain.AssetPair, fees domain.Fees) (domain.Matrix, error) {
	f.pair, f.fees = pair, fees
	return domain.Matrix{AssetPair: pair}, f.err
}

func (f *fakeService) MatrixAssetPairs(context.Context) ([]domain.AssetPair, error) {
	return []domain.AssetPair{domain.NewAssetPair("BTC", "USDT")}, f.err
}

func (f *fakeService) MatrixHistory(_ context.Context, pair domain.AssetPair, at time.Time) (domain.Matrix, error) {
	f.pair, f.to = pair, at
	return domain.Matrix{AssetPair: pair, DateTime: at}, f.err
}

func (f *fakeService) MatrixHistoryTimestamps(_ context.Context, pair domain.AssetPair, from, to time.Time) ([]time.Time, error) {
	f.pair, f.from, f.to = pair, from, to
	return []time.Time{from}, f.err
}

func (f *fakeService) MatrixHistoryAssetPairs(_ context.Context, from, to time.Time) ([]domain.AssetPair, error) {
	f.from, f.to = from, to
	return nil, f.err
}

func (f *fakeService) Settings(context.Context) (domain.Settings, error) {
	return f.settings, nil
}

func (f *fakeService) SetSettings(_ context.Context, s domain.Settings) error {
	f.setCalled = true
	if err := s.Validate(); err != nil {
		return err
	}
	f.settings = s
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrInvalidArgument, http.StatusBadRequest},
		{fmt.Errorf("holder: %w", domain.ErrInvalidSettings), http.StatusBadRequest},
		{domain.ErrUnavailable, http.StatusServiceUnavailable},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrInternal, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestOrderBooksFilters(t *testing.T) {
	svc := &fakeService{books: []domain.OrderBook{{Source: "binance"}}}
	h := NewMarketHandler(svc, discard())

	rec := serve(t, h.OrderBooks, http.MethodGet, "/api/orderbooks?exchange=binance&assetPair=btc-usdt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "binance", svc.exchange)
	assert.Equal(t, domain.NewAssetPair("BTC", "USDT"), svc.pair)

	rec = serve(t, h.OrderBooks, http.MethodGet, "/api/orderbooks?assetPair=BTC", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArbitrageHistoryParams(t *testing.T) {
	svc := &fakeService{}
	h := NewArbitrageHandler(svc, discard())

	rec := serve(t, h.History, http.MethodGet, "/api/arbitrages/history?since=2025-01-31T12:00:00Z&take=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC), svc.since)
	assert.Equal(t, 5, svc.take)

	rec = serve(t, h.History, http.MethodGet, "/api/arbitrages/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.since.IsZero())
	assert.Equal(t, defaultHistoryTake, svc.take)

	rec = serve(t, h.History, http.MethodGet, "/api/arbitrages/history?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h.History, http.MethodGet, "/api/arbitrages/history?take=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArbitrageFromHistory(t *testing.T) {
	svc := &fakeService{arbs: []domain.Arbitrage{{ID: "a1"}}}
	h := NewArbitrageHandler(svc, discard())

	rec := serve(t, h.FromHistory, http.MethodGet, "/api/arbitrages/history/path?conversionPath=x", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "x", svc.path)
	assert.Contains(t, rec.Body.String(), `"id":"a1"`)

	rec = serve(t, h.FromHistory, http.MethodGet, "/api/arbitrages/history/path", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = fmt.Errorf("history: %w", domain.ErrNotFound)
	rec = serve(t, h.FromHistory, http.MethodGet, "/api/arbitrages/history/path?conversionPath=y", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOwnExchangeQuery(t *testing.T) {
	svc := &fakeService{}
	h := NewArbitrageHandler(svc, discard())

	rec := serve(t, h.OwnExchange, http.MethodGet, "/api/arbitrages/own?source=myex&target=kraken&property=PnL&minValue=2.5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OwnExchangeQuery{Own: "myex", Target: "kraken", Property: "PnL", MinValue: 2.5}, svc.own)

	rec = serve(t, h.OwnExchange, http.MethodGet, "/api/arbitrages/own?minValue=lots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h.OwnExchange, http.MethodGet, "/api/arbitrages/own?minValue=NaN", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatrixFees(t *testing.T) {
	svc := &fakeService{}
	h := NewMatrixHandler(svc, discard())

	rec := serve(t, h.Get, http.MethodGet, "/api/matrix?assetPair=ETH/BTC&tradingFee=0.2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.NewAssetPair("ETH", "BTC"), svc.pair)
	assert.Nil(t, svc.fees.DepositFee)
	require.NotNil(t, svc.fees.TradingFee)
	assert.InDelta(t, 0.2, *svc.fees.TradingFee, 1e-12)

	rec = serve(t, h.Get, http.MethodGet, "/api/matrix", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "assetPair is required")

	for _, v := range []string{"NaN", "Inf", "-Inf"} {
		rec = serve(t, h.Get, http.MethodGet, "/api/matrix?assetPair=BTC/USD&tradingFee="+v, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, v)
		assert.Contains(t, errorBody(t, rec), "tradingFee must be a finite number")
	}
}

func TestMatrixHistoryRanges(t *testing.T) {
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	old := nowUTC
	nowUTC = func() time.Time { return now }
	t.Cleanup(func() { nowUTC = old })

	svc := &fakeService{}
	h := NewMatrixHandler(svc, discard())

	rec := serve(t, h.HistoryTimestamps, http.MethodGet, "/api/matrix/history/timestamps?assetPair=BTC/USDT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, now, svc.to)
	assert.Equal(t, now.Add(-24*time.Hour), svc.from)

	rec = serve(t, h.HistoryAssetPairs, http.MethodGet,
		"/api/matrix/history/pairs?from=2025-01-02T00:00:00Z&to=2025-01-01T00:00:00Z", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h.History, http.MethodGet, "/api/matrix/history?assetPair=BTC/USDT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, now, svc.to)

	svc.err = fmt.Errorf("%w: matrix history is not configured", domain.ErrUnavailable)
	rec = serve(t, h.History, http.MethodGet, "/api/matrix/history?assetPair=BTC/USDT", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSettingsUpdate(t *testing.T) {
	valid := domain.Settings{
		HistoryMaxSize:                 10,
		ExpirationTimeInSeconds:        5,
		ExecutionDelayInMilliseconds:   100,
		BaseAssets:                     []string{"BTC"},
		QuoteAsset:                     "USDT",
		Exchanges:                      []string{"binance", "kraken"},
		MatrixHistoryIntervalInSeconds: 60,
	}
	svc := &fakeService{settings: valid}
	h := NewSettingsHandler(svc, discard())

	rejected := valid
	rejected.QuoteAsset = ""
	body, err := json.Marshal(rejected)
	require.NoError(t, err)

	rec := serve(t, h.Update, http.MethodPut, "/api/settings", string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, svc.setCalled)
	assert.Equal(t, "USDT", svc.settings.QuoteAsset, "rejected settings must not replace the active ones")

	rec = serve(t, h.Update, http.MethodPut, "/api/settings", `{"unknown_field":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h.Get, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"quote_asset":"USDT"`)
}

func TestInternalErrorsAreNotEchoed(t *testing.T) {
	svc := &fakeService{err: errors.New("pq: connection refused to 10.0.0.5")}
	h := NewArbitrageHandler(svc, discard())

	rec := serve(t, h.List, http.MethodGet, "/api/arbitrages", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", errorBody(t, rec))
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler("full", map[string]Pinger{
		"postgres": func(context.Context) error { return nil },
	}, discard())
	rec := serve(t, h.HealthCheck, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status       string            `json:"status"`
		Mode         string            `json:"mode"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "full", body.Mode)
	assert.Equal(t, "ok", body.Dependencies["postgres"])

	h = NewHealthHandler("full", map[string]Pinger{
		"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
	}, discard())
	rec = serve(t, h.HealthCheck, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeReplayer struct {
	after string
	count int
	err   error
}

func (f *fakeReplayer) Replay(_ context.Context, lastID string, count int) ([]domain.ArbitrageEvent, string, error) {
	f.after, f.count = lastID, count
	if f.err != nil {
		return nil, lastID, f.err
	}
	return []domain.ArbitrageEvent{{Event: domain.EventArbitrageOpened, ID: "a1"}}, "7-0", nil
}

func TestEventsReplay(t *testing.T) {
	rep := &fakeReplayer{}
	h := NewEventsHandler(rep, discard())

	rec := serve(t, h.Replay, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rep.after)
	assert.Equal(t, 100, rep.count)

	var body struct {
		Events []domain.ArbitrageEvent `json:"events"`
		LastID string                  `json:"last_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "7-0", body.LastID)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "a1", body.Events[0].ID)

	rec = serve(t, h.Replay, http.MethodGet, "/api/events?after=7-0&count=5000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7-0", rep.after)
	assert.Equal(t, maxReplayCount, rep.count)

	rep.err = domain.ErrInvalidArgument
	rec = serve(t, h.Replay, http.MethodGet, "/api/events?after=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
