package snapshot

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/civil"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/timestamp"
	"github.com/magabrotheeeer/subscription-snapshot/internal/models"
)

// MonthlyRevenue суммирует оплаченные платежи, чей момент попадает в [start, end)
// текущего гражданского месяца опорной зоны. Платежи без разрешимого момента не учитываются.
func MonthlyRevenue(n *timestamp.Normalizer, rows []models.PaymentRow, now time.Time) float64 {
	start, end := civil.MonthBounds(n.Zone(), now)

	sum := decimal.Zero
	for _, row := range rows {
		if !row.IsPaid() {
			continue
		}
		at := PaymentTime(n, row)
		if !at.Resolved() || at.Instant.Before(start) || !at.Instant.Before(end) {
			continue
		}
		sum = sum.Add(models.AmountDecimal(row.Amount))
	}
	return sum.InexactFloat64()
}

// Eligible сообщает, учитывается ли подписчик в участниках каналов: роль, отличная
// от "user", учитывается всегда, обычный подписчик пока подписка не истекла.
func Eligible(u models.Subscriber) bool {
	if !u.IsUserRole() {
		return true
	}
	return u.Status != models.StatusExpired
}

// ChannelMembers считает подходящих подписчиков, в чьих тарифах есть канал с именем name.
func ChannelMembers(users []models.Subscriber, name string) int {
	return lo.CountBy(users, func(u models.Subscriber) bool {
		return Eligible(u) && lo.Contains(u.Plan, name)
	})
}

// Channels считает участников для каждого канала из настроек.
func Channels(users []models.Subscriber, descriptors []models.ChannelDescriptor) []models.Channel {
	return lo.Map(descriptors, func(d models.ChannelDescriptor, _ int) models.Channel {
		return models.Channel{Name: d.Name, Members: ChannelMembers(users, d.Name)}
	})
}

// ComputeStats считает агрегаты по полному списку подписчиков.
func ComputeStats(users []models.Subscriber) models.Stats {
	byStatus := func(statuses ...models.Status) int {
		return lo.CountBy(users, func(u models.Subscriber) bool { return lo.Contains(statuses, u.Status) })
	}
	roleUser := lo.CountBy(users, func(u models.Subscriber) bool { return u.IsUserRole() })

	return models.Stats{
		Total:            len(users),
		Active:           byStatus(models.StatusActive),
		Expiring:         byStatus(models.StatusExpiring),
		Expired:          byStatus(models.StatusExpired),
		ActiveOrExpiring: byStatus(models.StatusActive, models.StatusExpiring),
		RoleUserCount:    roleUser,
		RoleOtherCount:   len(users) - roleUser,
	}
}
