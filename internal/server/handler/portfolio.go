package handler

import (
	"net/http"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/inventory"
	"github.com/alanyoungcy/binarymm/internal/risk"
)

// InventoryView is the read side of the inventory manager.
type InventoryView interface {
	Positions() []domain.Position
	Position(marketID string) (domain.Position, bool)
	Recommend(marketID string) inventory.HedgeRecommendation
	Portfolio() inventory.PortfolioRisk
	Stats() inventory.Stats
}

// PortfolioHandler serves inventory and tracked positions.
type PortfolioHandler struct {
	inv  InventoryView
	risk RiskView
}

// NewPortfolioHandler creates a PortfolioHandler. rv may be nil.
func NewPortfolioHandler(inv InventoryView, rv RiskView) *PortfolioHandler {
	return &PortfolioHandler{inv: inv, risk: rv}
}

// GetPortfolio responds with portfolio risk, every inventory position and
// the risk layer's tracked entries.
// GET /api/portfolio
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	positions := h.inv.Positions()
	out := make([]positionDTO, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionDTO(p))
	}

	resp := map[string]any{
		"portfolio": h.inv.Portfolio(),
		"positions": out,
	}
	if h.risk != nil {
		resp["tracked"] = h.risk.Positions()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPosition responds with one market's position and hedge recommendation.
// GET /api/positions/{id}
func (h *PortfolioHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, ok := h.inv.Position(id)
	if !ok {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}

	resp := map[string]any{
		"position":       toPositionDTO(p),
		"recommendation": toRecommendationDTO(h.inv.Recommend(id)),
	}
	if h.risk != nil {
		var tracked []risk.TrackedPosition
		for _, tp := range h.risk.Positions() {
			if tp.MarketID == id {
				tracked = append(tracked, tp)
			}
		}
		resp["tracked"] = tracked
	}
	writeJSON(w, http.StatusOK, resp)
}

// Compile-time interface checks.
var (
	_ InventoryView = (*inventory.Manager)(nil)
	_ RiskView      = (*risk.Manager)(nil)
)
