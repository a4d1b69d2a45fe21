package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/civil"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/timestamp"
	"github.com/magabrotheeeer/subscription-snapshot/internal/models"
)

type fakeStore struct {
	subscribers []models.SubscriberRow
	payments    []models.PaymentRow
	channels    string
	hasChannels bool
	err         error

	lastLimit int
}

func (f *fakeStore) ListSubscribers(context.Context) ([]models.SubscriberRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.subscribers, nil
}

// ListRecentPayments отдаёт первые limit платежей; фикстуры уже упорядочены по убыванию created_at.
func (f *fakeStore) ListRecentPayments(_ context.Context, limit int) ([]models.PaymentRow, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.payments) {
		return f.payments[:limit], nil
	}
	return f.payments, nil
}

func (f *fakeStore) ListPaidPayments(context.Context) ([]models.PaymentRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	var paid []models.PaymentRow
	for _, p := range f.payments {
		if p.IsPaid() {
			paid = append(paid, p)
		}
	}
	return paid, nil
}

func (f *fakeStore) ChannelSetting(context.Context) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	return f.channels, f.hasChannels, nil
}

func text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func kyiv(t *testing.T) *timestamp.Normalizer {
	t.Helper()
	zone, err := civil.LoadZone("Europe/Kyiv")
	require.NoError(t, err)
	return timestamp.New(zone)
}

func newTestBuilder(t *testing.T, store Store, now time.Time) *Builder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBuilder(store, kyiv(t), DefaultExpiringDays, logger).
		WithClock(func() time.Time { return now })
}

func resolved(t time.Time) timestamp.Result {
	return timestamp.Result{Instant: t, Shape: timestamp.ShapeIsoOffset}
}

func TestClassify(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	tests := []struct {
		name string
		end  timestamp.Result
		days int
		want models.Status
	}{
		{name: "unresolved", end: timestamp.Unresolved, days: 7, want: models.StatusExpired},
		{name: "in the past", end: resolved(now.Add(-time.Millisecond)), days: 7, want: models.StatusExpired},
		{name: "exactly now", end: resolved(now), days: 7, want: models.StatusExpired},
		{name: "one ms ahead", end: resolved(now.Add(time.Millisecond)), days: 7, want: models.StatusExpiring},
		{name: "window edge", end: resolved(now.Add(7 * day)), days: 7, want: models.StatusExpiring},
		{name: "past window edge", end: resolved(now.Add(7*day + time.Millisecond)), days: 7, want: models.StatusActive},
		{name: "window clamped up", end: resolved(now.Add(day)), days: 0, want: models.StatusExpiring},
		{name: "window clamped down", end: resolved(now.Add(91 * day)), days: 365, want: models.StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.end, now, tt.days))
		})
	}
}

func TestBuilder_Normalize(t *testing.T) {
	b := newTestBuilder(t, &fakeStore{}, time.Now())

	tests := []struct {
		name string
		in   Params
		want Params
	}{
		{name: "defaults", in: Params{}, want: Params{PaymentsLimit: 120, ExpiringDays: 7}},
		{name: "clamped high", in: Params{PaymentsLimit: 10000, ExpiringDays: 1000}, want: Params{PaymentsLimit: 500, ExpiringDays: 90}},
		{name: "negative clamped low", in: Params{PaymentsLimit: -5, ExpiringDays: -1}, want: Params{PaymentsLimit: 1, ExpiringDays: 1}},
		{name: "flag kept", in: Params{PaymentsLimit: 10, ExpiringDays: 30, IncludeNonUser: true}, want: Params{PaymentsLimit: 10, ExpiringDays: 30, IncludeNonUser: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Normalize(tt.in))
		})
	}
}

func TestResolveLatestPaid(t *testing.T) {
	n := kyiv(t)

	rows := []models.PaymentRow{
		{TelegramID: text("1"), Amount: text("10"), Status: text("paid"), PaidAt: text("2024-01-01 10:00")},
		{TelegramID: text("1"), Amount: text("30"), Status: text("paid"), PaidAt: text("2024-03-01 10:00")},
		{TelegramID: text("1"), Amount: text("20"), Status: text("paid"), PaidAt: text("2024-02-01 10:00")},
		{TelegramID: text("1"), Amount: text("99"), Status: text("pending"), PaidAt: text("2025-01-01 10:00")},
		{TelegramID: text("2"), Amount: text("5"), Status: text("paid")},
		{TelegramID: text("2"), Amount: text("6"), Status: text("paid"), PaidAt: text("garbage")},
		{TelegramID: text("3"), Amount: text("7"), Status: text("paid"), CreatedAt: text("2024-01-01 00:00:00")},
		{TelegramID: text("3"), Amount: text("8"), Status: text("PAID"), TxTimestamp: text("2024-01-02T00:00:00Z")},
		{TelegramID: text("x"), Amount: text("100"), Status: text("paid"), PaidAt: text("2024-01-01")},
	}

	latest := ResolveLatestPaid(n, rows)

	require.Len(t, latest, 3)
	assert.Equal(t, float64(30), latest[1].Amount)
	assert.Equal(t, float64(5), latest[2].Amount, "unresolved candidates never displace the first one")
	assert.Equal(t, float64(8), latest[3].Amount)
}

func TestResolveLatestPaid_ResolvedBeatsUnresolved(t *testing.T) {
	rows := []models.PaymentRow{
		{TelegramID: text("1"), Amount: text("1"), Status: text("paid")},
		{TelegramID: text("1"), Amount: text("2"), Status: text("paid"), UpdatedAt: text("01.02.2024")},
	}

	latest := ResolveLatestPaid(kyiv(t), rows)
	assert.Equal(t, float64(2), latest[1].Amount)
}

func TestMonthlyRevenue(t *testing.T) {
	n := kyiv(t)
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	paid := func(amount, at string) models.PaymentRow {
		return models.PaymentRow{Amount: text(amount), Status: text("paid"), PaidAt: text(at)}
	}

	tests := []struct {
		name string
		rows []models.PaymentRow
		want float64
	}{
		{name: "empty", rows: nil, want: 0},
		{name: "just before start", rows: []models.PaymentRow{paid("10", "2024-02-29T21:59:59.999Z")}, want: 0},
		{name: "at start", rows: []models.PaymentRow{paid("10", "2024-02-29T22:00:00Z")}, want: 10},
		{name: "civil start", rows: []models.PaymentRow{paid("10", "2024-03-01 00:00:00")}, want: 10},
		{name: "just before end", rows: []models.PaymentRow{paid("10", "2024-03-31T20:59:59.999Z")}, want: 10},
		{name: "at end", rows: []models.PaymentRow{paid("10", "2024-03-31T21:00:00Z")}, want: 0},
		{name: "unresolved skipped", rows: []models.PaymentRow{paid("10", "")}, want: 0},
		{name: "not paid skipped", rows: []models.PaymentRow{{Amount: text("10"), Status: text("refunded"), PaidAt: text("2024-03-10")}}, want: 0},
		{
			name: "decimal sum",
			rows: []models.PaymentRow{paid("0.1", "2024-03-02"), paid("0.2", "2024-03-03"), paid("bad", "2024-03-04")},
			want: 0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MonthlyRevenue(n, tt.rows, now))
		})
	}
}

func TestChannels(t *testing.T) {
	users := []models.Subscriber{
		{ID: 1, Plan: []string{"A"}, Status: models.StatusActive, Role: "user"},
		{ID: 2, Plan: []string{"A", "B"}, Status: models.StatusExpiring, Role: "user"},
		{ID: 3, Plan: []string{"A"}, Status: models.StatusExpired, Role: "user"},
		{ID: 4, Plan: []string{"B"}, Status: models.StatusExpired, Role: "moderator"},
		{ID: 5, Plan: []string{}, Status: models.StatusActive, Role: "admin"},
	}

	got := Channels(users, []models.ChannelDescriptor{{Name: "A"}, {Name: "B"}, {Name: "C"}})

	assert.Equal(t, []models.Channel{
		{Name: "A", Members: 2},
		{Name: "B", Members: 2},
		{Name: "C", Members: 0},
	}, got)
	assert.Empty(t, Channels(users, []models.ChannelDescriptor{}))
}

func TestComputeStats(t *testing.T) {
	users := []models.Subscriber{
		{Status: models.StatusActive, Role: "user"},
		{Status: models.StatusActive, Role: "User"},
		{Status: models.StatusExpiring, Role: "user"},
		{Status: models.StatusExpired, Role: "moderator"},
		{Status: models.StatusExpired, Role: "user"},
	}

	assert.Equal(t, models.Stats{
		Total:            5,
		Active:           2,
		Expiring:         1,
		Expired:          2,
		ActiveOrExpiring: 3,
		RoleUserCount:    4,
		RoleOtherCount:   1,
	}, ComputeStats(users))
}

func TestBuilder_Build(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	store := &fakeStore{
		subscribers: []models.SubscriberRow{
			{TelegramID: text("1"), UserName: text("alice"), FirstName: text("Alice"), SubscriptionPlan: text(`["A"]`), SubscriptionEnd: text("2099-01-01")},
			{TelegramID: text("2"), UserName: text("bob"), SubscriptionPlan: text(`["A","B"]`), SubscriptionEnd: text("2024-03-18 12:00")},
			{TelegramID: text("3"), UserName: text("carol"), SubscriptionPlan: text(`oops`), SubscriptionEnd: text("not a date")},
			{TelegramID: text("4"), UserName: text("mod"), SubscriptionPlan: text(`["B"]`), JobTitle: text("moderator")},
		},
		payments: []models.PaymentRow{
			{ID: text("11"), TelegramID: text("2"), Amount: text("25"), Status: text("paid"), PaidAt: text("2024-03-10 09:00:00"), CreatedAt: text("2024-03-10 09:00:00")},
			{ID: text("10"), TelegramID: text("1"), Amount: text("50"), Status: text("paid"), PaidAt: text("2020-01-01 00:00:00"), CreatedAt: text("2020-01-01 00:00:00")},
			{ID: text("9"), TelegramID: text("3"), Amount: text("15"), Status: text("pending"), CreatedAt: text("2019-01-01 00:00:00")},
		},
		channels:    `[{"name":"A"},{"name":"B"}]`,
		hasChannels: true,
	}

	snap, err := newTestBuilder(t, store, now).Build(context.Background(), Params{})
	require.NoError(t, err)

	assert.Equal(t, DefaultPaymentsLimit, store.lastLimit)

	require.Len(t, snap.Users, 3, "non-user roles are hidden by default")
	alice := snap.Users[0]
	assert.Equal(t, int64(1), alice.ID)
	assert.Equal(t, models.StatusActive, alice.Status)
	require.NotNil(t, alice.FirstName)
	assert.Equal(t, "Alice", *alice.FirstName)
	require.NotNil(t, alice.SubscriptionEnd)
	assert.Equal(t, "2099-01-01 21:59:00", *alice.SubscriptionEnd)
	require.NotNil(t, alice.LatestPaidAmount)
	assert.Equal(t, float64(50), *alice.LatestPaidAmount)

	bob := snap.Users[1]
	assert.Equal(t, models.StatusExpiring, bob.Status)
	assert.Equal(t, []string{"A", "B"}, bob.Plan)

	carol := snap.Users[2]
	assert.Equal(t, models.StatusExpired, carol.Status)
	assert.Nil(t, carol.SubscriptionEnd)
	assert.Equal(t, []string{}, carol.Plan)
	assert.Nil(t, carol.LatestPaidAmount)

	assert.Len(t, snap.Payments, 3)
	assert.Equal(t, []models.Channel{{Name: "A", Members: 2}, {Name: "B", Members: 2}}, snap.Channels)
	assert.Equal(t, models.Stats{
		Total:            4,
		Active:           1,
		Expiring:         1,
		Expired:          2,
		ActiveOrExpiring: 2,
		RoleUserCount:    3,
		RoleOtherCount:   1,
		RevenueThisMonth: 25,
	}, snap.Stats)
}

func TestBuilder_Build_IncludeNonUserAndLimit(t *testing.T) {
	store := &fakeStore{
		subscribers: []models.SubscriberRow{
			{TelegramID: text("1"), JobTitle: text("admin")},
			{TelegramID: text("2")},
		},
		payments: []models.PaymentRow{
			{ID: text("3"), TelegramID: text("2"), Amount: text("1"), Status: text("paid"), PaidAt: text("2024-03-01")},
			{ID: text("2"), TelegramID: text("2"), Amount: text("2"), Status: text("paid"), PaidAt: text("2024-03-20")},
		},
	}

	snap, err := newTestBuilder(t, store, time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC)).
		Build(context.Background(), Params{PaymentsLimit: 1, IncludeNonUser: true})
	require.NoError(t, err)

	assert.Len(t, snap.Users, 2)
	assert.Len(t, snap.Payments, 1)
	require.NotNil(t, snap.Users[1].LatestPaidAmount)
	assert.Equal(t, float64(1), *snap.Users[1].LatestPaidAmount, "latest paid is resolved over the bounded list")
	assert.Equal(t, float64(3), snap.Stats.RevenueThisMonth, "revenue uses every paid payment")
	assert.Equal(t, []models.Channel{}, snap.Channels)
}

func TestBuilder_Build_SubMillisecondClock(t *testing.T) {
	store := &fakeStore{
		subscribers: []models.SubscriberRow{
			{TelegramID: text("1"), SubscriptionEnd: text("2024-03-15T10:00:00.001Z")},
		},
	}
	now := time.Date(2024, 3, 15, 10, 0, 0, 500_000, time.UTC)

	snap, err := newTestBuilder(t, store, now).Build(context.Background(), Params{})
	require.NoError(t, err)

	require.Len(t, snap.Users, 1)
	assert.Equal(t, models.StatusExpiring, snap.Users[0].Status, "end one millisecond ahead is not expired")
}

func TestBuilder_Build_EmptyStore(t *testing.T) {
	snap, err := newTestBuilder(t, &fakeStore{}, time.Now()).Build(context.Background(), Params{})
	require.NoError(t, err)

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"users": [],
		"payments": [],
		"channels": [],
		"stats": {"total":0,"active":0,"expiring":0,"expired":0,"active_or_expiring":0,"role_user_count":0,"role_other_count":0,"revenue_this_month":0}
	}`, string(raw))
}

func TestBuilder_Build_StoreError(t *testing.T) {
	storeErr := errors.New("database is locked")

	snap, err := newTestBuilder(t, &fakeStore{err: storeErr}, time.Now()).Build(context.Background(), Params{})
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, storeErr)
}

func TestBuilder_Build_Deterministic(t *testing.T) {
	store := &fakeStore{
		subscribers: []models.SubscriberRow{
			{TelegramID: text("1"), SubscriptionPlan: text(`["A"]`), SubscriptionEnd: text("2024-04-01")},
			{TelegramID: text("2"), SubscriptionPlan: text(`["A"]`), SubscriptionEnd: text("01.03.2024 10:00")},
		},
		payments: []models.PaymentRow{
			{ID: text("1"), TelegramID: text("1"), Amount: text("10"), Status: text("paid"), PaidAt: text("2024-03-05T10:00:00+02:00")},
		},
		channels: `[{"name":"A"}]`,
	}
	b := newTestBuilder(t, store, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))

	first, err := b.Build(context.Background(), Params{})
	require.NoError(t, err)
	second, err := b.Build(context.Background(), Params{})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	c, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(c))
}
