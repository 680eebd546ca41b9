package venue

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/metrics"
)

// SnapshotSink receives every fresh snapshot.
type SnapshotSink interface {
	HandleSnapshot(ctx context.Context, snap domain.MarketSnapshot) error
}

// PollerConfig controls the poll cadence.
type PollerConfig struct {
	Interval    time.Duration
	Timeout     time.Duration
	Concurrency int
}

// DefaultPollerConfig polls every 5s with a 4s per-call timeout.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{Interval: 5 * time.Second, Timeout: 4 * time.Second, Concurrency: 8}
}

// Poller fetches snapshots for the tracked markets on a fixed interval and
// remembers the last good snapshot per market. A failed call leaves the
// previous snapshot in place.
type Poller struct {
	cfg     PollerConfig
	markets []Market
	listers map[domain.Venue]Lister
	sink    SnapshotSink
	logger  *slog.Logger

	mu   sync.RWMutex
	last map[string]domain.MarketSnapshot
}

// NewPoller creates a poller. Markets whose venue has no lister are only
// updated through HandleSnapshot. sink may be nil.
func NewPoller(cfg PollerConfig, markets []Market, listers map[domain.Venue]Lister, sink SnapshotSink, logger *slog.Logger) *Poller {
	def := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	return &Poller{
		cfg:     cfg,
		markets: markets,
		listers: listers,
		sink:    sink,
		logger:  logger.With(slog.String("component", "venue_poller")),
		last:    make(map[string]domain.MarketSnapshot),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "venue poller started",
		slog.Int("markets", len(p.markets)),
		slog.Duration("interval", p.cfg.Interval),
	)
	_ = p.PollOnce(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches every polled market concurrently. Failures are logged,
// counted and returned joined; they never discard the last known snapshot.
func (p *Poller) PollOnce(ctx context.Context) error {
	var (
		errMu sync.Mutex
		errs  []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, m := range p.markets {
		lister := p.listers[m.Venue]
		if lister == nil {
			continue
		}
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, p.cfg.Timeout)
			snap, err := lister.Snapshot(cctx, m)
			cancel()
			if err != nil {
				metrics.VenuePollErrors.WithLabelValues(string(m.Venue)).Inc()
				p.logger.WarnContext(ctx, "venue poll failed, keeping last snapshot",
					slog.String("market_id", m.ID),
					slog.String("venue", string(m.Venue)),
					slog.String("error", err.Error()),
				)
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
				return nil
			}
			p.record(gctx, snap)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// HandleSnapshot accepts a snapshot pushed from outside the poller, such as
// a venue without a public API publishing over the bus.
func (p *Poller) HandleSnapshot(ctx context.Context, snap domain.MarketSnapshot) error {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	for _, m := range p.markets {
		if m.ID == snap.MarketID {
			snap = complete(snap, m, snap.Timestamp)
			break
		}
	}
	return p.record(ctx, snap)
}

func (p *Poller) record(ctx context.Context, snap domain.MarketSnapshot) error {
	p.mu.Lock()
	if prev, ok := p.last[snap.MarketID]; ok && snap.Timestamp.Before(prev.Timestamp) {
		p.mu.Unlock()
		return nil
	}
	p.last[snap.MarketID] = snap
	p.mu.Unlock()

	if p.sink == nil {
		return nil
	}
	if err := p.sink.HandleSnapshot(ctx, snap); err != nil && !errors.Is(err, domain.ErrNotFound) {
		p.logger.WarnContext(ctx, "snapshot sink failed",
			slog.String("market_id", snap.MarketID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// Snapshots returns the last known snapshot of every market, ordered by
// market ID.
func (p *Poller) Snapshots() []domain.MarketSnapshot {
	p.mu.RLock()
	out := make([]domain.MarketSnapshot, 0, len(p.last))
	for _, s := range p.last {
		out = append(out, s)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// Snapshot returns the last known snapshot of one market.
func (p *Poller) Snapshot(marketID string) (domain.MarketSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.last[marketID]
	return s, ok
}
