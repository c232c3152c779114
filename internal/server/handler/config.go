package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ExecToggler exposes the runtime auto-execute switch.
type ExecToggler interface {
	AutoExecute() bool
	SetAutoExecute(enabled bool)
}

// ConfigHandler serves the runtime configuration endpoint.
type ConfigHandler struct {
	exec   ExecToggler
	logger *slog.Logger
}

// NewConfigHandler creates a ConfigHandler over the given toggler.
func NewConfigHandler(exec ExecToggler, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{
		exec:   exec,
		logger: logger.With(slog.String("handler", "config")),
	}
}

type configUpdate struct {
	AutoExecute *bool `json:"auto_execute"`
}

// UpdateConfig toggles runtime settings. Only auto_execute is mutable;
// threshold and venue changes require a restart.
// POST /api/config
func (h *ConfigHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var upd configUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if upd.AutoExecute == nil {
		writeError(w, http.StatusBadRequest, "auto_execute is required")
		return
	}

	h.exec.SetAutoExecute(*upd.AutoExecute)
	h.logger.InfoContext(r.Context(), "auto-execute updated",
		slog.Bool("auto_execute", *upd.AutoExecute),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"auto_execute": h.exec.AutoExecute(),
	})
}

// GetConfig returns the current runtime settings.
// GET /api/config
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"auto_execute": h.exec.AutoExecute(),
	})
}
