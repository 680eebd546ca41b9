package domain

import "time"

// AlertLevel is the severity of an Alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Rank orders levels from info (0) to critical (2).
func (l AlertLevel) Rank() int {
	switch l {
	case AlertWarning:
		return 1
	case AlertCritical:
		return 2
	default:
		return 0
	}
}

// Alert is emitted by the risk layer for the notification component.
type Alert struct {
	ID        string
	Level     AlertLevel
	Type      string
	Message   string
	MarketID  string
	Action    string // recommended action, e.g. CLOSE_POSITION
	Timestamp time.Time
	Details   map[string]any
}
