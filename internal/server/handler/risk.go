package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/risk"
)

// RiskView is the part of the risk manager the API reads and controls.
type RiskView interface {
	Summary() risk.Summary
	Positions() []risk.TrackedPosition
	Alerts(n int) []domain.Alert
	EmergencyStop(reason string)
	ResetBreaker()
}

// RiskHandler serves status, alerts and the breaker controls.
type RiskHandler struct {
	mode    string
	started time.Time
	risk    RiskView
	inv     InventoryView
	logger  *slog.Logger
}

// NewRiskHandler creates a RiskHandler. inv may be nil.
func NewRiskHandler(mode string, rv RiskView, inv InventoryView, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{
		mode:    mode,
		started: time.Now(),
		risk:    rv,
		inv:     inv,
		logger:  logger.With(slog.String("handler", "risk")),
	}
}

// GetStatus responds with the mode, the risk summary and inventory totals.
// GET /api/status
func (h *RiskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"risk":           h.risk.Summary(),
	}
	if h.inv != nil {
		resp["inventory"] = h.inv.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListAlerts responds with the most recent alerts, newest first.
// GET /api/alerts?limit=50&level=warning
func (h *RiskHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)
	minLevel := domain.AlertLevel(strings.ToLower(r.URL.Query().Get("level")))

	alerts := h.risk.Alerts(limit)
	out := make([]alertDTO, 0, len(alerts))
	for _, a := range alerts {
		if minLevel != "" && a.Level.Rank() < minLevel.Rank() {
			continue
		}
		out = append(out, toAlertDTO(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out, "count": len(out)})
}

type stopRequest struct {
	Reason string `json:"reason"`
}

// EmergencyStop opens the breaker until an explicit reset.
// POST /api/risk/emergency-stop
func (h *RiskHandler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "manual stop via API"
	}

	h.risk.EmergencyStop(req.Reason)
	h.logger.WarnContext(r.Context(), "emergency stop requested",
		slog.String("reason", req.Reason),
		slog.String("remote_addr", r.RemoteAddr),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "stopped",
		"circuit_breaker": h.risk.Summary().Breaker,
	})
}

// Reset closes the breaker and clears a manual stop.
// POST /api/risk/reset
func (h *RiskHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.risk.ResetBreaker()
	h.logger.InfoContext(r.Context(), "breaker reset requested",
		slog.String("remote_addr", r.RemoteAddr),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "reset",
		"circuit_breaker": h.risk.Summary().Breaker,
	})
}
