// Package notify delivers risk alerts. Every alert is counted, published on
// the signal bus and journaled; alerts at or above the configured level are
// also pushed to the operator channels (Telegram, Discord, Lark).
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/metrics"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Config controls alert routing.
type Config struct {
	// MinLevel is the lowest level pushed to senders. Bus and journal
	// receive every alert.
	MinLevel domain.AlertLevel
	// Buffer is the queue between the risk layer and delivery.
	Buffer int
}

// Notifier queues alerts from the risk layer and delivers them from Run.
// Handle never blocks; when the queue is full the alert is dropped and logged.
type Notifier struct {
	senders  []Sender
	minLevel domain.AlertLevel
	bus      domain.SignalBus
	journal  domain.AlertJournal
	queue    chan domain.Alert
	logger   *slog.Logger
}

// NewNotifier creates a Notifier. bus and journal may be nil.
func NewNotifier(cfg Config, senders []Sender, bus domain.SignalBus, journal domain.AlertJournal, logger *slog.Logger) *Notifier {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.MinLevel == "" {
		cfg.MinLevel = domain.AlertWarning
	}
	return &Notifier{
		senders:  senders,
		minLevel: cfg.MinLevel,
		bus:      bus,
		journal:  journal,
		queue:    make(chan domain.Alert, cfg.Buffer),
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Handle counts a and queues it for delivery. It is the risk manager's
// alert handler.
func (n *Notifier) Handle(a domain.Alert) {
	metrics.AlertsRaised.WithLabelValues(string(a.Level)).Inc()
	select {
	case n.queue <- a:
	default:
		n.logger.Warn("alert queue full, dropping alert",
			slog.String("alert_id", a.ID),
			slog.String("type", a.Type),
		)
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-n.queue:
			if err := n.Deliver(ctx, a); err != nil {
				n.logger.WarnContext(ctx, "alert delivery incomplete",
					slog.String("alert_id", a.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Deliver publishes, journals and, when the level qualifies, pushes a.
// Every destination is attempted.
func (n *Notifier) Deliver(ctx context.Context, a domain.Alert) error {
	var errs []error
	if n.bus != nil {
		payload, err := EncodeAlert(a)
		if err != nil {
			return fmt.Errorf("notify: encode alert %s: %w", a.ID, err)
		}
		if err := n.bus.Publish(ctx, domain.ChannelAlerts, payload); err != nil {
			errs = append(errs, fmt.Errorf("publish alert %s: %w", a.ID, err))
		}
	}
	if n.journal != nil {
		if err := n.journal.RecordAlert(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("journal alert %s: %w", a.ID, err))
		}
	}
	if a.Level.Rank() >= n.minLevel.Rank() {
		title, message := FormatAlert(a)
		if err := n.dispatch(ctx, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyAll sends a notification to all senders regardless of level.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch iterates over all senders and sends the notification. A single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// FormatAlert renders a as a title and a plain-text body.
func FormatAlert(a domain.Alert) (string, string) {
	title := fmt.Sprintf("[%s] %s", strings.ToUpper(string(a.Level)), a.Type)

	var b strings.Builder
	b.WriteString(a.Message)
	if a.MarketID != "" {
		fmt.Fprintf(&b, "\nmarket: %s", a.MarketID)
	}
	if a.Action != "" {
		fmt.Fprintf(&b, "\naction: %s", a.Action)
	}
	fmt.Fprintf(&b, "\ntime: %s", a.Timestamp.UTC().Format(time.DateTime))
	return title, b.String()
}

type alertEvent struct {
	ID        string         `json:"id"`
	Level     string         `json:"level"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	MarketID  string         `json:"market_id,omitempty"`
	Action    string         `json:"action,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// EncodeAlert renders a as the JSON payload published on the alerts channel.
func EncodeAlert(a domain.Alert) ([]byte, error) {
	return json.Marshal(alertEvent{
		ID:        a.ID,
		Level:     string(a.Level),
		Type:      a.Type,
		Message:   a.Message,
		MarketID:  a.MarketID,
		Action:    a.Action,
		Timestamp: a.Timestamp,
		Details:   a.Details,
	})
}
