// Package models содержит проекции строк хранилища (пользователи бота, платежи,
// настройки каналов) и структуры снапшота, который отдаётся слою представления.
package models

import (
	"database/sql"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RoleUser роль по умолчанию для обычного подписчика.
const RoleUser = "user"

// Status состояние жизненного цикла подписки.
type Status string

const (
	StatusActive   Status = "active"
	StatusExpiring Status = "expiring"
	StatusExpired  Status = "expired"
)

// SubscriberRow строка таблицы users как есть. Все колонки читаются как текст,
// отсутствующие в схеме колонки приходят как NULL.
type SubscriberRow struct {
	TelegramID       sql.NullString `db:"telegram_id"`
	UserName         sql.NullString `db:"user_name"`
	FirstName        sql.NullString `db:"first_name"`
	SubscriptionPlan sql.NullString `db:"subscription_plan"`
	SubscriptionEnd  sql.NullString `db:"subscription_end"`
	JobTitle         sql.NullString `db:"job_title"`
}

// SubscriberColumns колонки users, которые читает снапшот.
var SubscriberColumns = []string{
	"telegram_id", "user_name", "first_name", "subscription_plan", "subscription_end", "job_title",
}

// Subscriber проекция подписчика в снапшоте.
type Subscriber struct {
	ID               int64    `json:"id"`
	UserName         string   `json:"user_name"`
	FirstName        *string  `json:"first_name"`
	Plan             []string `json:"plan"`
	SubscriptionEnd  *string  `json:"subscription_end"`
	Status           Status   `json:"status"`
	Role             string   `json:"role"`
	LatestPaidAmount *float64 `json:"latest_paid_amount,omitempty"`
}

// IsUserRole сообщает, что у подписчика стандартная роль "user".
func (s Subscriber) IsUserRole() bool {
	return IsUserRole(s.Role)
}

// IsUserRole сравнивает роль с "user" без учёта регистра.
func IsUserRole(role string) bool {
	return strings.ToLower(role) == RoleUser
}

// Role возвращает роль из job_title; пустое или отсутствующее значение даёт "user".
func Role(raw sql.NullString) string {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return RoleUser
	}
	return raw.String
}

// ParsePlans разбирает сериализованный список тарифов. Некорректный JSON или не-массив
// дают пустой список, нестроковые элементы отбрасываются.
func ParsePlans(raw sql.NullString) []string {
	plans := []string{}
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return plans
	}

	var items []any
	if err := json.Unmarshal([]byte(raw.String), &items); err != nil {
		return plans
	}
	for _, item := range items {
		if name, ok := item.(string); ok {
			plans = append(plans, name)
		}
	}
	return plans
}

// ParseID разбирает числовой идентификатор. Значения вида "42.0" тоже принимаются.
func ParseID(raw sql.NullString) (int64, bool) {
	if !raw.Valid {
		return 0, false
	}
	text := strings.TrimSpace(raw.String)
	if id, err := strconv.ParseInt(text, 10, 64); err == nil {
		return id, true
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsInf(f, 0) && f == math.Trunc(f) {
		return int64(f), true
	}
	return 0, false
}

// NullableString возвращает указатель на значение или nil для NULL.
func NullableString(raw sql.NullString) *string {
	if !raw.Valid {
		return nil
	}
	v := raw.String
	return &v
}
