package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// Rejection is returned when an admission check fails. It unwraps to one
// of the domain sentinel errors. RetryAfter is set for state faults that
// clear on their own (pauses, cooldowns, breaker cooldown).
type Rejection struct {
	Reason     string
	Err        error
	RetryAfter time.Duration
}

func (r *Rejection) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry in %s)", r.Reason, r.RetryAfter.Round(time.Second))
	}
	return r.Reason
}

func (r *Rejection) Unwrap() error { return r.Err }

func reject(err error, retry time.Duration, format string, args ...any) *Rejection {
	return &Rejection{Reason: fmt.Sprintf(format, args...), Err: err, RetryAfter: retry}
}

// Category returns a short label for a rejection, used for metrics.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrEmergencyStop):
		return "emergency_stop"
	case errors.Is(err, domain.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, domain.ErrVolatilityPause):
		return "volatility_pause"
	case errors.Is(err, domain.ErrCooldown):
		return "cooldown"
	case errors.Is(err, domain.ErrSizeLimit):
		return "size_limit"
	case errors.Is(err, domain.ErrDailyLoss):
		return "daily_loss"
	case errors.Is(err, domain.ErrDrawdown):
		return "drawdown"
	case errors.Is(err, domain.ErrTradeLimit):
		return "trade_limit"
	default:
		return "other"
	}
}
