package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/spread"
)

// OpportunitySource exposes the most recent scan.
type OpportunitySource interface {
	Latest() ([]domain.ArbitrageOpportunity, time.Time)
}

// SpreadView is the read side of the spread calculator.
type SpreadView interface {
	Stats() spread.Stats
	History(marketID string) []float64
	SpreadVolatility(marketID string) float64
}

// DecisionSource exposes recently admitted decisions.
type DecisionSource interface {
	RecentDecisions(limit int) []domain.Decision
}

// MarketHandler serves scanner, spread and decision views.
type MarketHandler struct {
	opps      OpportunitySource
	spreads   SpreadView
	decisions DecisionSource
}

// NewMarketHandler creates a MarketHandler. Any source may be nil; its
// endpoint then answers 503.
func NewMarketHandler(opps OpportunitySource, spreads SpreadView, decisions DecisionSource) *MarketHandler {
	return &MarketHandler{opps: opps, spreads: spreads, decisions: decisions}
}

// ListOpportunities responds with the last scan's opportunities.
// GET /api/opportunities?type=cross_venue&limit=20
func (h *MarketHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	if h.opps == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not running")
		return
	}
	limit := parseLimit(r, 100, 500)
	typ := domain.ArbType(strings.ToLower(r.URL.Query().Get("type")))

	opps, scannedAt := h.opps.Latest()
	out := make([]opportunityDTO, 0, len(opps))
	for _, o := range opps {
		if typ != "" && o.Type != typ {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, toOpportunityDTO(o))
	}

	resp := map[string]any{"opportunities": out, "count": len(out)}
	if !scannedAt.IsZero() {
		resp["scanned_at"] = scannedAt.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSpreadStats responds with adjustment totals, or with one market's
// history when ?market= is given.
// GET /api/spread/stats
func (h *MarketHandler) GetSpreadStats(w http.ResponseWriter, r *http.Request) {
	if h.spreads == nil {
		writeError(w, http.StatusServiceUnavailable, "market maker not running")
		return
	}
	if id := r.URL.Query().Get("market"); id != "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"market_id":  id,
			"history":    h.spreads.History(id),
			"volatility": h.spreads.SpreadVolatility(id),
		})
		return
	}
	writeJSON(w, http.StatusOK, h.spreads.Stats())
}

// ListDecisions responds with recently admitted decisions, newest first.
// GET /api/decisions?limit=50
func (h *MarketHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	if h.decisions == nil {
		writeError(w, http.StatusServiceUnavailable, "market maker not running")
		return
	}
	ds := h.decisions.RecentDecisions(parseLimit(r, 50, 500))
	out := make([]decisionDTO, 0, len(ds))
	for _, d := range ds {
		out = append(out, toDecisionDTO(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": out, "count": len(out)})
}
