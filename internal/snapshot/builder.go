// Package snapshot собирает снимок состояния подписок и платежей из строк хранилища:
// классифицирует подписчиков, находит последние оплаты, считает выручку за текущий
// месяц опорной зоны и участников каналов.
//
// Все функции пакета, кроме Builder.Build, чистые: момент "сейчас" фиксируется один раз
// на запрос и передаётся явно, чтобы статусы и окно выручки не расходились.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"

	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/timestamp"
	"github.com/magabrotheeeer/subscription-snapshot/internal/models"
)

const (
	// DefaultPaymentsLimit размер списка платежей по умолчанию.
	DefaultPaymentsLimit = 120
	MinPaymentsLimit     = 1
	MaxPaymentsLimit     = 500

	endLayout = "2006-01-02 15:04:05"
)

var buildDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "snapshot_build_duration_seconds",
		Help:    "Duration of snapshot builds.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"result"},
)

// Store хранилище, из которого читаются строки. Отсутствующая таблица
// должна давать пустой результат, а не ошибку.
type Store interface {
	ListSubscribers(ctx context.Context) ([]models.SubscriberRow, error)
	ListRecentPayments(ctx context.Context, limit int) ([]models.PaymentRow, error)
	ListPaidPayments(ctx context.Context) ([]models.PaymentRow, error)
	ChannelSetting(ctx context.Context) (string, bool, error)
}

// Params параметры запроса снапшота. Нулевые значения означают «по умолчанию».
type Params struct {
	PaymentsLimit  int
	ExpiringDays   int
	IncludeNonUser bool
}

// Builder собирает снапшоты.
type Builder struct {
	store       Store
	norm        *timestamp.Normalizer
	defaultDays int
	now         func() time.Time
	log         *slog.Logger
}

// NewBuilder создаёт Builder. defaultDays окно "expiring" для запросов без явного значения.
func NewBuilder(store Store, norm *timestamp.Normalizer, defaultDays int, log *slog.Logger) *Builder {
	if defaultDays == 0 {
		defaultDays = DefaultExpiringDays
	}
	return &Builder{
		store:       store,
		norm:        norm,
		defaultDays: ClampExpiringDays(defaultDays),
		now:         time.Now,
		log:         log,
	}
}

// WithClock подменяет источник текущего времени.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Normalize применяет значения по умолчанию и ограничения к параметрам.
func (b *Builder) Normalize(p Params) Params {
	if p.PaymentsLimit == 0 {
		p.PaymentsLimit = DefaultPaymentsLimit
	}
	if p.ExpiringDays == 0 {
		p.ExpiringDays = b.defaultDays
	}
	p.PaymentsLimit = clamp(p.PaymentsLimit, MinPaymentsLimit, MaxPaymentsLimit)
	p.ExpiringDays = ClampExpiringDays(p.ExpiringDays)
	return p
}

// Build читает строки из хранилища и собирает снапшот. Ошибка возвращается только
// если хранилище недоступно; некорректные поля деградируют до значений по умолчанию.
func (b *Builder) Build(ctx context.Context, p Params) (*models.Snapshot, error) {
	const op = "snapshot.Build"
	start := time.Now()

	snap, err := b.build(ctx, b.Normalize(p))
	if err != nil {
		buildDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	buildDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	return snap, nil
}

func (b *Builder) build(ctx context.Context, p Params) (*models.Snapshot, error) {
	// Нормализованные даты имеют точность до миллисекунды, now тоже.
	now := b.now().Truncate(time.Millisecond)

	subscriberRows, err := b.store.ListSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := b.store.ListRecentPayments(ctx, p.PaymentsLimit)
	if err != nil {
		return nil, err
	}
	paid, err := b.store.ListPaidPayments(ctx)
	if err != nil {
		return nil, err
	}
	channelRaw, _, err := b.store.ChannelSetting(ctx)
	if err != nil {
		return nil, err
	}

	latest := ResolveLatestPaid(b.norm, recent)

	all := make([]models.Subscriber, 0, len(subscriberRows))
	for _, row := range subscriberRows {
		all = append(all, b.subscriber(row, latest, now, p.ExpiringDays))
	}

	users := all
	if !p.IncludeNonUser {
		users = lo.Filter(all, func(u models.Subscriber, _ int) bool { return u.IsUserRole() })
	}

	stats := ComputeStats(all)
	stats.RevenueThisMonth = MonthlyRevenue(b.norm, paid, now)

	snap := &models.Snapshot{
		Users:    users,
		Payments: lo.Map(recent, func(row models.PaymentRow, _ int) models.Payment { return models.NewPayment(row) }),
		Channels: Channels(all, models.ParseChannels(channelRaw)),
		Stats:    stats,
	}

	b.log.Debug("snapshot built",
		slog.Int("users", len(snap.Users)),
		slog.Int("users_total", stats.Total),
		slog.Int("payments", len(snap.Payments)),
		slog.Int("paid_payments", len(paid)),
		slog.Int("channels", len(snap.Channels)),
	)
	return snap, nil
}

func (b *Builder) subscriber(row models.SubscriberRow, latest map[int64]LatestPaid, now time.Time, days int) models.Subscriber {
	id, ok := models.ParseID(row.TelegramID)
	end := b.norm.NormalizeAny(row.SubscriptionEnd)

	s := models.Subscriber{
		ID:        id,
		UserName:  row.UserName.String,
		FirstName: models.NullableString(row.FirstName),
		Plan:      models.ParsePlans(row.SubscriptionPlan),
		Status:    Classify(end, now, days),
		Role:      models.Role(row.JobTitle),
	}
	if end.Resolved() {
		formatted := end.Instant.UTC().Format(endLayout)
		s.SubscriptionEnd = &formatted
	}
	if lp, found := latest[id]; ok && found {
		amount := lp.Amount
		s.LatestPaidAmount = &amount
	}
	return s
}
