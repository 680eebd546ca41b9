package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// DailyReport is everything archived at the end of a trading day.
type DailyReport struct {
	Snapshot      domain.RiskSnapshot
	Positions     []domain.Position
	Alerts        []domain.Alert
	Opportunities []domain.ArbitrageOpportunity
}

// ReportArchiver writes daily reports as JSONL, one record per line with a
// "kind" field: a single "snapshot" line first, then "position", "alert"
// and "opportunity" lines.
type ReportArchiver struct {
	writer domain.BlobWriter
}

// NewReportArchiver creates a ReportArchiver.
func NewReportArchiver(w domain.BlobWriter) *ReportArchiver {
	return &ReportArchiver{writer: w}
}

// ReportPath is the object path for day, partitioned by year and month:
//
//	reports/daily/2026/03/2026-03-01.jsonl
func ReportPath(day time.Time) string {
	d := day.UTC()
	return fmt.Sprintf("reports/daily/%s/%s.jsonl", d.Format("2006/01"), d.Format(time.DateOnly))
}

// Archive uploads r and returns its path.
func (a *ReportArchiver) Archive(ctx context.Context, r DailyReport) (string, error) {
	buf, err := EncodeReport(r)
	if err != nil {
		return "", fmt.Errorf("s3blob: encode daily report: %w", err)
	}

	path := ReportPath(r.Snapshot.Day)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: upload daily report: %w", err)
	}
	return path, nil
}

type snapshotRecord struct {
	Kind        string    `json:"kind"`
	Day         string    `json:"day"`
	DailyPnL    string    `json:"daily_pnl"`
	PeakPnL     string    `json:"peak_pnl"`
	Breaker     string    `json:"breaker"`
	Trades      int       `json:"trades"`
	VolumeUSD   string    `json:"volume_usd"`
	AlertCount  int       `json:"alert_count"`
	OpenMarkets int       `json:"open_markets"`
	RiskLevel   string    `json:"risk_level"`
	TakenAt     time.Time `json:"taken_at"`
}

type positionRecord struct {
	Kind          string    `json:"kind"`
	MarketID      string    `json:"market_id"`
	YesAmount     float64   `json:"yes_amount"`
	NoAmount      float64   `json:"no_amount"`
	NetExposure   float64   `json:"net_exposure"`
	AvgYesPrice   float64   `json:"avg_yes_price"`
	AvgNoPrice    float64   `json:"avg_no_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	Tier          string    `json:"tier"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type alertRecord struct {
	Kind      string         `json:"kind"`
	ID        string         `json:"id"`
	Level     string         `json:"level"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	MarketID  string         `json:"market_id,omitempty"`
	Action    string         `json:"action,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

type opportunityRecord struct {
	Kind           string             `json:"kind"`
	ID             string             `json:"id"`
	Type           string             `json:"type"`
	MarketA        string             `json:"market_a"`
	MarketB        string             `json:"market_b,omitempty"`
	ProfitPercent  float64            `json:"profit_percent"`
	ProfitAbsolute float64            `json:"profit_absolute"`
	Confidence     float64            `json:"confidence"`
	Action         string             `json:"action"`
	Details        map[string]float64 `json:"details,omitempty"`
	DetectedAt     time.Time          `json:"detected_at"`
}

// EncodeReport renders r as JSONL.
func EncodeReport(r DailyReport) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	s := r.Snapshot
	if err := enc.Encode(snapshotRecord{
		Kind:        "snapshot",
		Day:         s.Day.UTC().Format(time.DateOnly),
		DailyPnL:    s.DailyPnL.StringFixed(6),
		PeakPnL:     s.PeakPnL.StringFixed(6),
		Breaker:     s.Breaker,
		Trades:      s.Trades,
		VolumeUSD:   s.VolumeUSD.StringFixed(2),
		AlertCount:  s.AlertCount,
		OpenMarkets: s.OpenMarkets,
		RiskLevel:   string(s.RiskLevel),
		TakenAt:     s.TakenAt,
	}); err != nil {
		return nil, err
	}

	for _, p := range r.Positions {
		if err := enc.Encode(positionRecord{
			Kind:          "position",
			MarketID:      p.MarketID,
			YesAmount:     p.YesAmount,
			NoAmount:      p.NoAmount,
			NetExposure:   p.NetExposure,
			AvgYesPrice:   p.AvgYesPrice,
			AvgNoPrice:    p.AvgNoPrice,
			UnrealizedPnL: p.UnrealizedPnL,
			Tier:          string(p.Tier),
			UpdatedAt:     p.UpdatedAt,
		}); err != nil {
			return nil, err
		}
	}

	for _, a := range r.Alerts {
		if err := enc.Encode(alertRecord{
			Kind:      "alert",
			ID:        a.ID,
			Level:     string(a.Level),
			Type:      a.Type,
			Message:   a.Message,
			MarketID:  a.MarketID,
			Action:    a.Action,
			Timestamp: a.Timestamp,
			Details:   a.Details,
		}); err != nil {
			return nil, err
		}
	}

	for _, o := range r.Opportunities {
		rec := opportunityRecord{
			Kind:           "opportunity",
			ID:             o.ID,
			Type:           string(o.Type),
			MarketA:        o.MarketA.MarketID,
			ProfitPercent:  o.ProfitPercent,
			ProfitAbsolute: o.ProfitAbsolute,
			Confidence:     o.Confidence,
			Action:         o.Action,
			Details:        o.Details,
			DetectedAt:     o.DetectedAt,
		}
		if o.MarketB != nil {
			rec.MarketB = o.MarketB.MarketID
		}
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
