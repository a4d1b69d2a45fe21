package snapshot

import (
	"time"

	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/timestamp"
	"github.com/magabrotheeeer/subscription-snapshot/internal/models"
)

const (
	// MinExpiringDays и MaxExpiringDays ограничивают окно "expiring".
	MinExpiringDays = 1
	MaxExpiringDays = 90
	// DefaultExpiringDays используется, если окно не задано.
	DefaultExpiringDays = 7

	dayMillis = int64(24 * time.Hour / time.Millisecond)
)

// ClampExpiringDays приводит окно к диапазону [1, 90].
func ClampExpiringDays(days int) int {
	return clamp(days, MinExpiringDays, MaxExpiringDays)
}

// Classify определяет состояние подписки по моменту окончания end.
//
// Неразрешённый end expired. Иначе diff = end - now в миллисекундах:
// diff <= 0 expired, diff <= windowDays суток expiring, больше active.
func Classify(end timestamp.Result, now time.Time, windowDays int) models.Status {
	if !end.Resolved() {
		return models.StatusExpired
	}

	diff := end.Instant.Sub(now).Milliseconds()
	switch {
	case diff <= 0:
		return models.StatusExpired
	case diff <= int64(ClampExpiringDays(windowDays))*dayMillis:
		return models.StatusExpiring
	default:
		return models.StatusActive
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
