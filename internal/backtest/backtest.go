// Package backtest replays historical bars of one binary market through the
// pricer and the execution policy and reports how the resulting trades
// would have performed.
package backtest

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/marketmaker"
	"github.com/alanyoungcy/binarymm/internal/pricing"
)

// ErrUnsupportedStyle is returned for execution styles that need a live
// inventory to quote against.
var ErrUnsupportedStyle = errors.New("backtest: execution style needs live inventory")

// Bar is one observation of the market and its underlying.
type Bar struct {
	Time       time.Time
	Underlying float64
	YesPrice   float64
	NoPrice    float64
	Liquidity  float64
}

// Market describes the contract being replayed. A zero Expiry means the
// contract never settles inside the data.
type Market struct {
	ID          string
	Symbol      string
	StrikePrice float64
	Expiry      time.Time
}

// Config controls capital accounting.
type Config struct {
	InitialCapital float64
	Commission     float64 // fraction of notional charged on entry and exit
	StakeFraction  float64 // share of capital committed per trade
	MinStake       float64
	Warmup         int // bars observed before the first decision
}

// DefaultConfig returns the backtest defaults.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 1000,
		Commission:     0.001,
		StakeFraction:  0.1,
		MinStake:       1,
		Warmup:         30,
	}
}

// Trade is one round trip.
type Trade struct {
	Token      domain.Token `json:"token"`
	OpenedAt   time.Time    `json:"opened_at"`
	ClosedAt   time.Time    `json:"closed_at"`
	EntryPrice float64      `json:"entry_price"`
	ExitPrice  float64      `json:"exit_price"`
	Shares     float64      `json:"shares"`
	Cost       float64      `json:"cost"` // stake plus entry commission
	PnL        float64      `json:"pnl"`
	Reason     string       `json:"reason"`
}

// EquityPoint is the marked-to-market capital after a bar.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Result summarises a run.
type Result struct {
	InitialCapital float64       `json:"initial_capital"`
	FinalCapital   float64       `json:"final_capital"`
	TotalPnL       float64       `json:"total_pnl"`
	TotalReturn    float64       `json:"total_return"`
	Wins           int           `json:"wins"`
	Losses         int           `json:"losses"`
	WinRate        float64       `json:"win_rate"`
	MaxDrawdown    float64       `json:"max_drawdown"`
	Settled        bool          `json:"settled"`
	Trades         []Trade       `json:"trades"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
}

// Runner replays bars. It holds at most one position at a time.
type Runner struct {
	cfg    Config
	pricer *pricing.Pricer
	vol    *pricing.VolatilityEstimator
	exec   *marketmaker.Execution
	logger *slog.Logger
}

// NewRunner creates a Runner. Only taker and hybrid execution can be
// replayed.
func NewRunner(cfg Config, pricer *pricing.Pricer, vol *pricing.VolatilityEstimator, exec *marketmaker.Execution, logger *slog.Logger) (*Runner, error) {
	if exec.Style() == marketmaker.StyleMaker {
		return nil, ErrUnsupportedStyle
	}
	def := DefaultConfig()
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = def.InitialCapital
	}
	if cfg.StakeFraction <= 0 || cfg.StakeFraction > 1 {
		cfg.StakeFraction = def.StakeFraction
	}
	if cfg.Warmup <= 0 {
		cfg.Warmup = 1
	}
	if cfg.Commission < 0 {
		cfg.Commission = 0
	}
	return &Runner{
		cfg:    cfg,
		pricer: pricer,
		vol:    vol,
		exec:   exec,
		logger: logger.With(slog.String("component", "backtest")),
	}, nil
}

type position struct {
	token    domain.Token
	openedAt time.Time
	entry    float64
	shares   float64
	cost     float64
}

// run is the mutable state of one replay.
type run struct {
	cfg     Config
	capital float64
	pos     *position
	res     Result
}

// Run replays bars in order. Bars at or after the market's expiry settle
// any open position at 1 or 0 per share and end the replay; a position
// still open after the last bar is closed at that bar's price.
func (r *Runner) Run(m Market, bars []Bar) (Result, error) {
	if len(bars) == 0 {
		return Result{}, errors.New("backtest: no bars")
	}
	if m.StrikePrice <= 0 {
		return Result{}, fmt.Errorf("backtest: market %s has no strike price", m.ID)
	}

	st := &run{cfg: r.cfg, capital: r.cfg.InitialCapital}
	st.res.InitialCapital = r.cfg.InitialCapital

	closes := make([]float64, 0, len(bars))
	last := bars[0]
	for i, bar := range bars {
		if i > 0 && bar.Time.Before(last.Time) {
			return Result{}, fmt.Errorf("backtest: bar %d at %s is out of order", i, bar.Time.Format(time.RFC3339))
		}
		last = bar

		if !m.Expiry.IsZero() && !bar.Time.Before(m.Expiry) {
			st.settle(bar, m.StrikePrice)
			st.mark(bar)
			st.res.Settled = true
			break
		}

		closes = append(closes, bar.Underlying)
		if i+1 >= r.cfg.Warmup {
			r.step(st, m, bar, closes)
		}
		st.mark(bar)
	}

	if st.pos != nil {
		st.close(last, priceOf(last, st.pos.token), "end of data")
		st.res.EquityCurve[len(st.res.EquityCurve)-1].Equity = st.capital
	}

	st.finish()
	r.logger.Info("backtest complete",
		slog.String("market_id", m.ID),
		slog.Int("bars", len(bars)),
		slog.Int("trades", len(st.res.Trades)),
		slog.Float64("total_return", st.res.TotalReturn),
		slog.Float64("max_drawdown", st.res.MaxDrawdown),
	)
	return st.res, nil
}

// step prices the bar and acts on the first directional decision: open
// when flat, close when it favours the other token.
func (r *Runner) step(st *run, m Market, bar Bar, closes []float64) {
	snap := domain.MarketSnapshot{
		MarketID:        m.ID,
		Symbol:          m.Symbol,
		YesPrice:        bar.YesPrice,
		NoPrice:         bar.NoPrice,
		Liquidity:       bar.Liquidity,
		StrikePrice:     m.StrikePrice,
		UnderlyingPrice: bar.Underlying,
		Timestamp:       bar.Time,
	}
	if !m.Expiry.IsZero() {
		snap.ExpirySeconds = m.Expiry.Sub(bar.Time).Seconds()
	}

	sigma := r.vol.Historical(closes)
	pr := r.pricer.Analyze(snap, sigma)
	for _, d := range r.exec.Decide(marketmaker.Input{Snapshot: snap, Pricing: pr}) {
		if d.Action != domain.ActionBuyYes && d.Action != domain.ActionBuyNo {
			continue
		}
		switch {
		case st.pos == nil:
			st.open(bar, d)
		case st.pos.token != d.Token:
			st.close(bar, priceOf(bar, st.pos.token), "edge reversed")
		}
		return
	}
}

func (st *run) open(bar Bar, d domain.Decision) {
	price := d.LimitPrice
	if price <= 0 || price >= 1 {
		return
	}
	stake := math.Min(st.capital*st.cfg.StakeFraction, d.Size*price)
	stake = math.Min(stake, st.capital/(1+st.cfg.Commission))
	if stake < st.cfg.MinStake {
		return
	}
	cost := stake * (1 + st.cfg.Commission)
	st.capital -= cost
	st.pos = &position{
		token:    d.Token,
		openedAt: bar.Time,
		entry:    price,
		shares:   stake / price,
		cost:     cost,
	}
}

func (st *run) close(bar Bar, price float64, reason string) {
	p := st.pos
	proceeds := p.shares * price
	net := proceeds - proceeds*st.cfg.Commission
	st.capital += net
	st.res.Trades = append(st.res.Trades, Trade{
		Token:      p.token,
		OpenedAt:   p.openedAt,
		ClosedAt:   bar.Time,
		EntryPrice: p.entry,
		ExitPrice:  price,
		Shares:     p.shares,
		Cost:       p.cost,
		PnL:        net - p.cost,
		Reason:     reason,
	})
	st.pos = nil
}

// settle pays 1 per share to the winning token: yes when the underlying
// finishes above the strike.
func (st *run) settle(bar Bar, strike float64) {
	if st.pos == nil {
		return
	}
	yesWins := bar.Underlying > strike
	payout := 0.0
	if (st.pos.token == domain.TokenYes) == yesWins {
		payout = 1
	}
	st.close(bar, payout, "settled")
}

func (st *run) mark(bar Bar) {
	equity := st.capital
	if st.pos != nil {
		equity += st.pos.shares * priceOf(bar, st.pos.token)
	}
	st.res.EquityCurve = append(st.res.EquityCurve, EquityPoint{Time: bar.Time, Equity: equity})
}

func (st *run) finish() {
	res := &st.res
	res.FinalCapital = st.capital
	res.TotalPnL = st.capital - res.InitialCapital
	res.TotalReturn = res.TotalPnL / res.InitialCapital
	for _, t := range res.Trades {
		switch {
		case t.PnL > 0:
			res.Wins++
		case t.PnL < 0:
			res.Losses++
		}
	}
	if n := len(res.Trades); n > 0 {
		res.WinRate = float64(res.Wins) / float64(n)
	}
	res.MaxDrawdown = MaxDrawdown(res.EquityCurve)
}

// MaxDrawdown is the largest peak-to-trough fall of the curve as a
// fraction of the peak.
func MaxDrawdown(curve []EquityPoint) float64 {
	var peak, maxDD float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			maxDD = math.Max(maxDD, (peak-p.Equity)/peak)
		}
	}
	return maxDD
}

func priceOf(bar Bar, tok domain.Token) float64 {
	if tok == domain.TokenNo {
		return bar.NoPrice
	}
	return bar.YesPrice
}
