package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/arbdetector/internal/query"
)

// MarketHandler serves the live order books and synthesized cross rates.
type MarketHandler struct {
	svc    query.Service
	logger *slog.Logger
}

func NewMarketHandler(svc query.Service, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{svc: svc, logger: logger}
}

// OrderBooks lists fresh order books, optionally filtered.
// GET /api/orderbooks?exchange=binance&assetPair=BTC/USDT
func (h *MarketHandler) OrderBooks(w http.ResponseWriter, r *http.Request) {
	pair, err := assetPairParam(r, "assetPair", false)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	books, err := h.svc.OrderBooks(r.Context(), strings.TrimSpace(r.URL.Query().Get("exchange")), pair)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// CrossRates lists every fresh synthesized rate.
// GET /api/crossrates
func (h *MarketHandler) CrossRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.svc.CrossRates(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}
