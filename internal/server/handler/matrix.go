package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbdetector/internal/domain"
	"github.com/alanyoungcy/arbdetector/internal/query"
)

// MatrixHandler serves live and historical exchange matrices.
type MatrixHandler struct {
	svc    query.Service
	logger *slog.Logger
}

func NewMatrixHandler(svc query.Service, logger *slog.Logger) *MatrixHandler {
	return &MatrixHandler{svc: svc, logger: logger}
}

// Get builds the live matrix for a pair. The fee parameters, in percent,
// override the configured per-exchange fees.
// GET /api/matrix?assetPair=BTC/USDT&depositFee=0.1&tradingFee=0.2
func (h *MatrixHandler) Get(w http.ResponseWriter, r *http.Request) {
	pair, err := assetPairParam(r, "assetPair", true)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	var fees domain.Fees
	if fees.DepositFee, err = floatParam(r, "depositFee"); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if fees.TradingFee, err = floatParam(r, "tradingFee"); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	m, err := h.svc.Matrix(r.Context(), pair, fees)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// AssetPairs lists the pairs a live matrix can be built for.
// GET /api/matrix/pairs
func (h *MatrixHandler) AssetPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.svc.MatrixAssetPairs(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

// History returns the latest snapshot taken at or before at (now if absent).
// GET /api/matrix/history?assetPair=BTC/USDT&at=2025-01-01T00:00:00Z
func (h *MatrixHandler) History(w http.ResponseWriter, r *http.Request) {
	pair, err := assetPairParam(r, "assetPair", true)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	at, err := timeParam(r, "at")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if at.IsZero() {
		at = nowUTC()
	}
	m, err := h.svc.MatrixHistory(r.Context(), pair, at)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HistoryTimestamps lists snapshot times for a pair in [from, to].
// GET /api/matrix/history/timestamps?assetPair=BTC/USDT&from=...&to=...
func (h *MatrixHandler) HistoryTimestamps(w http.ResponseWriter, r *http.Request) {
	pair, err := assetPairParam(r, "assetPair", true)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	from, to, err := rangeParams(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	ts, err := h.svc.MatrixHistoryTimestamps(r.Context(), pair, from, to)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

// HistoryAssetPairs lists pairs that have snapshots in [from, to].
// GET /api/matrix/history/pairs?from=...&to=...
func (h *MatrixHandler) HistoryAssetPairs(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeParams(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pairs, err := h.svc.MatrixHistoryAssetPairs(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

// rangeParams reads from/to. to defaults to now and from to a day before to.
func rangeParams(r *http.Request) (from, to time.Time, err error) {
	if from, err = timeParam(r, "from"); err != nil {
		return
	}
	if to, err = timeParam(r, "to"); err != nil {
		return
	}
	if to.IsZero() {
		to = nowUTC()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if from.After(to) {
		err = invalid("from must not be after to")
	}
	return
}

// nowUTC is second-aligned so default times repeat across requests.
var nowUTC = func() time.Time { return time.Now().UTC().Truncate(time.Second) }
