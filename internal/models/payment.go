package models

import (
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentStatusPaid единственный статус платежа, имеющий особый смысл.
const PaymentStatusPaid = "paid"

// PaymentRow строка таблицы payments как есть, все колонки текстом.
type PaymentRow struct {
	ID            sql.NullString `db:"id"`
	TelegramID    sql.NullString `db:"telegram_id"`
	UserName      sql.NullString `db:"user_name"`
	Amount        sql.NullString `db:"amount"`
	Status        sql.NullString `db:"status"`
	PaidAt        sql.NullString `db:"paid_at"`
	TxTimestamp   sql.NullString `db:"tx_timestamp"`
	UpdatedAt     sql.NullString `db:"updated_at"`
	CreatedAt     sql.NullString `db:"created_at"`
	Plan          sql.NullString `db:"plan"`
	Method        sql.NullString `db:"method"`
	WalletAddress sql.NullString `db:"wallet_address"`
	TxFrom        sql.NullString `db:"tx_from"`
}

// PaymentColumns колонки payments, которые читает снапшот.
var PaymentColumns = []string{
	"id", "telegram_id", "user_name", "amount", "status", "paid_at", "tx_timestamp",
	"updated_at", "created_at", "plan", "method", "wallet_address", "tx_from",
}

// IsPaid сообщает, что статус платежа "paid" без учёта регистра.
func (p PaymentRow) IsPaid() bool {
	return p.Status.Valid && strings.ToLower(p.Status.String) == PaymentStatusPaid
}

// TimestampChain возвращает кандидатов на время платежа в порядке приоритета.
func (p PaymentRow) TimestampChain() []sql.NullString {
	return []sql.NullString{p.PaidAt, p.TxTimestamp, p.UpdatedAt, p.CreatedAt}
}

// Payment проекция платежа в снапшоте.
type Payment struct {
	ID            *int64  `json:"id"`
	SubscriberID  *int64  `json:"subscriber_id"`
	UserName      string  `json:"user_name"`
	Amount        float64 `json:"amount"`
	Status        *string `json:"status"`
	PaidAt        *string `json:"paid_at"`
	Plan          *string `json:"plan"`
	Method        *string `json:"method"`
	WalletAddress *string `json:"wallet_address,omitempty"`
	WalletFrom    *string `json:"wallet_from,omitempty"`
}

// NewPayment строит проекцию платежа из строки хранилища.
func NewPayment(row PaymentRow) Payment {
	p := Payment{
		UserName:      row.UserName.String,
		Amount:        ParseAmount(row.Amount),
		Status:        NullableString(row.Status),
		PaidAt:        NullableString(row.PaidAt),
		Plan:          NullableString(row.Plan),
		Method:        NullableString(row.Method),
		WalletAddress: NullableString(row.WalletAddress),
		WalletFrom:    NullableString(row.TxFrom),
	}
	if id, ok := ParseID(row.ID); ok {
		p.ID = &id
	}
	if uid, ok := ParseID(row.TelegramID); ok {
		p.SubscriberID = &uid
	}
	if p.UserName == "" {
		p.UserName = strings.TrimSpace(row.TelegramID.String)
	}
	return p
}

// AmountDecimal разбирает сумму платежа; отсутствующее или нечисловое значение даёт 0.
func AmountDecimal(raw sql.NullString) decimal.Decimal {
	if !raw.Valid {
		return decimal.Zero
	}
	text := strings.TrimSpace(raw.String)
	if text == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseAmount AmountDecimal в виде float64 для JSON.
func ParseAmount(raw sql.NullString) float64 {
	return AmountDecimal(raw).InexactFloat64()
}
