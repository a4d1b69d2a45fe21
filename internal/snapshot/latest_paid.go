package snapshot

import (
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/timestamp"
	"github.com/magabrotheeeer/subscription-snapshot/internal/models"
)

// LatestPaid самый свежий успешный платёж подписчика.
type LatestPaid struct {
	Amount float64
	At     timestamp.Result
}

// PaymentTime возвращает первый разрешившийся момент цепочки
// paid_at → tx_timestamp → updated_at → created_at.
func PaymentTime(n *timestamp.Normalizer, row models.PaymentRow) timestamp.Result {
	return n.First(row.TimestampChain()...)
}

// ResolveLatestPaid строит отображение subscriber id → последний оплаченный платёж.
//
// Учитываются только платежи со статусом "paid" и известным подписчиком. Кандидат
// вытесняет текущего, только если его момент строго позже; неразрешённый момент
// считается самым ранним, поэтому среди неразрешённых остаётся первый встреченный.
func ResolveLatestPaid(n *timestamp.Normalizer, rows []models.PaymentRow) map[int64]LatestPaid {
	latest := make(map[int64]LatestPaid)
	for _, row := range rows {
		if !row.IsPaid() {
			continue
		}
		uid, ok := models.ParseID(row.TelegramID)
		if !ok {
			continue
		}

		candidate := LatestPaid{
			Amount: models.ParseAmount(row.Amount),
			At:     PaymentTime(n, row),
		}
		incumbent, seen := latest[uid]
		if !seen || candidate.At.After(incumbent.At) {
			latest[uid] = candidate
		}
	}
	return latest
}
