package risk

import (
	"sync"
	"time"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

// alertLog is a bounded, oldest-evicted record of alerts.
type alertLog struct {
	mu    sync.RWMutex
	limit int
	items []domain.Alert
	total int
}

func newAlertLog(limit int) *alertLog {
	if limit <= 0 {
		limit = 500
	}
	return &alertLog{limit: limit}
}

func (l *alertLog) add(a domain.Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, a)
	if len(l.items) > l.limit {
		l.items = l.items[len(l.items)-l.limit:]
	}
	l.total++
}

// recent returns up to n alerts, newest first.
func (l *alertLog) recent(n int) []domain.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.items) {
		n = len(l.items)
	}
	out := make([]domain.Alert, 0, n)
	for i := len(l.items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.items[i])
	}
	return out
}

func (l *alertLog) countSince(t time.Time) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, a := range l.items {
		if !a.Timestamp.Before(t) {
			n++
		}
	}
	return n
}

// countBetween counts alerts raised in [from, to).
func (l *alertLog) countBetween(from, to time.Time) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, a := range l.items {
		if !a.Timestamp.Before(from) && a.Timestamp.Before(to) {
			n++
		}
	}
	return n
}

func (l *alertLog) count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}
