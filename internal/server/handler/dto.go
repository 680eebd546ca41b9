package handler

import (
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/inventory"
)

type positionDTO struct {
	MarketID      string    `json:"market_id"`
	YesAmount     float64   `json:"yes_amount"`
	NoAmount      float64   `json:"no_amount"`
	NetExposure   float64   `json:"net_exposure"`
	AvgYesPrice   float64   `json:"avg_yes_price"`
	AvgNoPrice    float64   `json:"avg_no_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	Tier          string    `json:"risk_tier"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toPositionDTO(p domain.Position) positionDTO {
	return positionDTO{
		MarketID:      p.MarketID,
		YesAmount:     p.YesAmount,
		NoAmount:      p.NoAmount,
		NetExposure:   p.NetExposure,
		AvgYesPrice:   p.AvgYesPrice,
		AvgNoPrice:    p.AvgNoPrice,
		UnrealizedPnL: p.UnrealizedPnL,
		Tier:          string(p.Tier),
		UpdatedAt:     p.UpdatedAt,
	}
}

type recommendationDTO struct {
	ShouldHedge bool    `json:"should_hedge"`
	Side        string  `json:"side,omitempty"`
	Token       string  `json:"token,omitempty"`
	Amount      float64 `json:"amount"`
	Urgency     string  `json:"urgency"`
	Reason      string  `json:"reason"`
}

func toRecommendationDTO(r inventory.HedgeRecommendation) recommendationDTO {
	return recommendationDTO{
		ShouldHedge: r.ShouldHedge,
		Side:        string(r.Side),
		Token:       string(r.Token),
		Amount:      r.Amount,
		Urgency:     string(r.Urgency),
		Reason:      r.Reason,
	}
}

type alertDTO struct {
	ID        string         `json:"id"`
	Level     string         `json:"level"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	MarketID  string         `json:"market_id,omitempty"`
	Action    string         `json:"action,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

func toAlertDTO(a domain.Alert) alertDTO {
	return alertDTO{
		ID:        a.ID,
		Level:     string(a.Level),
		Type:      a.Type,
		Message:   a.Message,
		MarketID:  a.MarketID,
		Action:    a.Action,
		Timestamp: a.Timestamp,
		Details:   a.Details,
	}
}

type legDTO struct {
	MarketID string  `json:"market_id"`
	Venue    string  `json:"venue"`
	Question string  `json:"question,omitempty"`
	YesPrice float64 `json:"yes_price"`
	NoPrice  float64 `json:"no_price"`
}

func toLegDTO(s domain.MarketSnapshot) legDTO {
	return legDTO{
		MarketID: s.MarketID,
		Venue:    string(s.Venue),
		Question: s.Question,
		YesPrice: s.YesPrice,
		NoPrice:  s.NoPrice,
	}
}

type opportunityDTO struct {
	ID             string             `json:"id"`
	Type           string             `json:"type"`
	MarketA        legDTO             `json:"market_a"`
	MarketB        *legDTO            `json:"market_b,omitempty"`
	ProfitPercent  float64            `json:"profit_percent"`
	ProfitAbsolute float64            `json:"profit_absolute"`
	Confidence     float64            `json:"confidence"`
	Action         string             `json:"action"`
	Details        map[string]float64 `json:"details,omitempty"`
	DetectedAt     time.Time          `json:"detected_at"`
}

func toOpportunityDTO(o domain.ArbitrageOpportunity) opportunityDTO {
	dto := opportunityDTO{
		ID:             o.ID,
		Type:           string(o.Type),
		MarketA:        toLegDTO(o.MarketA),
		ProfitPercent:  o.ProfitPercent,
		ProfitAbsolute: o.ProfitAbsolute,
		Confidence:     o.Confidence,
		Action:         o.Action,
		Details:        o.Details,
		DetectedAt:     o.DetectedAt,
	}
	if o.MarketB != nil {
		b := toLegDTO(*o.MarketB)
		dto.MarketB = &b
	}
	return dto
}

type decisionDTO struct {
	ID         string    `json:"id"`
	MarketID   string    `json:"market_id"`
	Action     string    `json:"action"`
	Token      string    `json:"token,omitempty"`
	Size       float64   `json:"size"`
	LimitPrice float64   `json:"limit_price,omitempty"`
	BidPrice   float64   `json:"bid_price,omitempty"`
	AskPrice   float64   `json:"ask_price,omitempty"`
	Reason     string    `json:"reason"`
	Confidence float64   `json:"confidence"`
	Priority   string    `json:"priority"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

func toDecisionDTO(d domain.Decision) decisionDTO {
	return decisionDTO{
		ID:         d.ID,
		MarketID:   d.MarketID,
		Action:     string(d.Action),
		Token:      string(d.Token),
		Size:       d.Size,
		LimitPrice: d.LimitPrice,
		BidPrice:   d.BidPrice,
		AskPrice:   d.AskPrice,
		Reason:     d.Reason,
		Confidence: d.Confidence,
		Priority:   d.Priority.String(),
		Source:     d.Source,
		CreatedAt:  d.CreatedAt,
	}
}
