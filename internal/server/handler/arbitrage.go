package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/arbdetector/internal/domain"
	"github.com/alanyoungcy/arbdetector/internal/query"
)

const (
	defaultHistoryTake = 100
	maxHistoryTake     = 1000
)

// ArbitrageHandler serves open, historical and own-exchange arbitrages.
type ArbitrageHandler struct {
	svc    query.Service
	logger *slog.Logger
}

func NewArbitrageHandler(svc query.Service, logger *slog.Logger) *ArbitrageHandler {
	return &ArbitrageHandler{svc: svc, logger: logger}
}

// List returns the currently open arbitrages.
// GET /api/arbitrages
func (h *ArbitrageHandler) List(w http.ResponseWriter, r *http.Request) {
	arbs, err := h.svc.Arbitrages(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, arbs)
}

// History returns closed arbitrages, newest first.
// GET /api/arbitrages/history?since=2025-01-01T00:00:00Z&take=50
func (h *ArbitrageHandler) History(w http.ResponseWriter, r *http.Request) {
	since, err := timeParam(r, "since")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	take, err := intParam(r, "take", defaultHistoryTake)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if take == 0 || take > maxHistoryTake {
		take = maxHistoryTake
	}
	arbs, err := h.svc.ArbitrageHistory(r.Context(), since, take)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, arbs)
}

// FromHistory returns the latest closed arbitrage with the given path.
// GET /api/arbitrages/history/path?conversionPath=...
func (h *ArbitrageHandler) FromHistory(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("conversionPath"))
	if path == "" {
		writeServiceError(w, r, h.logger, invalid("conversionPath is required"))
		return
	}
	a, err := h.svc.ArbitrageFromHistory(r.Context(), path)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// OwnExchange runs an on-demand own-exchange scan.
// GET /api/arbitrages/own?target=kraken&source=myex&property=pnl&minValue=10
func (h *ArbitrageHandler) OwnExchange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minValue, err := floatParam(r, "minValue")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	oq := domain.OwnExchangeQuery{
		Own:      strings.TrimSpace(q.Get("source")),
		Target:   strings.TrimSpace(q.Get("target")),
		Property: q.Get("property"),
	}
	if minValue != nil {
		oq.MinValue = *minValue
	}
	arbs, err := h.svc.OwnExchangeArbitrages(r.Context(), oq)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, arbs)
}
