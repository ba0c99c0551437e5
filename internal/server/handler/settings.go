package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbdetector/internal/domain"
	"github.com/alanyoungcy/arbdetector/internal/query"
)

const maxSettingsBody = 1 << 20

// SettingsHandler reads and replaces the detector settings.
type SettingsHandler struct {
	svc    query.Service
	logger *slog.Logger
}

func NewSettingsHandler(svc query.Service, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{svc: svc, logger: logger}
}

// Get returns the active settings.
// GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Settings(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Update validates and publishes a complete settings document. A rejected
// document leaves the active settings untouched.
// PUT /api/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var s domain.Settings
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.svc.SetSettings(r.Context(), s); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	active, err := h.svc.Settings(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "settings updated")
	writeJSON(w, http.StatusOK, active)
}
