package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/arbdetector/internal/domain"
)

const maxReplayCount = 1000

// EventReplayer reads the durable arbitrage event stream.
type EventReplayer interface {
	Replay(ctx context.Context, lastID string, count int) ([]domain.ArbitrageEvent, string, error)
}

// EventsHandler lets clients catch up on events missed while disconnected
// from the WebSocket hub.
type EventsHandler struct {
	events EventReplayer
	logger *slog.Logger
}

func NewEventsHandler(events EventReplayer, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{events: events, logger: logger}
}

type replayResponse struct {
	Events []domain.ArbitrageEvent `json:"events"`
	LastID string                  `json:"last_id"`
}

// Replay returns events recorded after the given stream ID.
// GET /api/events?after=0&count=100
func (h *EventsHandler) Replay(w http.ResponseWriter, r *http.Request) {
	after := strings.TrimSpace(r.URL.Query().Get("after"))
	if after == "" {
		after = "0"
	}
	count, err := intParam(r, "count", 100)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if count == 0 || count > maxReplayCount {
		count = maxReplayCount
	}
	events, last, err := h.events.Replay(r.Context(), after, count)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if events == nil {
		events = []domain.ArbitrageEvent{}
	}
	writeJSON(w, http.StatusOK, replayResponse{Events: events, LastID: last})
}
