package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrLockHeld        = errors.New("lock already held")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrUnknownVenue    = errors.New("unknown venue")
	ErrInvalidFill     = errors.New("invalid fill")
	ErrCircuitOpen     = errors.New("circuit breaker open")
	ErrEmergencyStop   = errors.New("emergency stop active")
	ErrVolatilityPause = errors.New("volatility pause active")
	ErrCooldown        = errors.New("cooldown active")
	ErrSizeLimit       = errors.New("size exceeds position cap")
	ErrDailyLoss       = errors.New("daily loss limit reached")
	ErrDrawdown        = errors.New("max drawdown exceeded")
	ErrTradeLimit      = errors.New("trade limit reached")
)
