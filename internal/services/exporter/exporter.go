// Package exporter периодически пересобирает снапшот и раскладывает его по приёмникам:
// JSON-файл для статической сборки дашборда, кеш Redis и событие snapshot.updated в RabbitMQ.
package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-snapshot/internal/models"
	"github.com/magabrotheeeer/subscription-snapshot/internal/snapshot"
)

// Builder строит снапшот.
type Builder interface {
	Build(ctx context.Context, p snapshot.Params) (*models.Snapshot, error)
}

// Cache сохраняет готовый снапшот.
type Cache interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Options настройки экспорта. Пустые OutputPath и CacheKey отключают соответствующий приёмник.
type Options struct {
	Interval      time.Duration
	WatchPath     string
	OutputPath    string
	CacheKey      string
	CacheTTL      time.Duration
	PaymentsLimit int
	Exchange      string
	RoutingKey    string
}

// Event сообщение об обновлении снапшота.
type Event struct {
	ID       string    `json:"id"`
	BuiltAt  time.Time `json:"built_at"`
	Users    int       `json:"users"`
	Payments int       `json:"payments"`
	Channels int       `json:"channels"`
}

type Service struct {
	builder   Builder
	cache     Cache
	publisher rabbitmq.Publisher
	opts      Options
	log       *slog.Logger
	now       func() time.Time

	lastMod  time.Time
	lastSize int64
}

// NewService создает новый экземпляр Service. Приёмники кеша и событий подключаются отдельно.
func NewService(builder Builder, opts Options, log *slog.Logger) *Service {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	return &Service{
		builder: builder,
		opts:    opts,
		log:     log,
		now:     time.Now,
	}
}

// WithCache подключает кеш.
func (s *Service) WithCache(c Cache) *Service {
	s.cache = c
	return s
}

// WithPublisher подключает публикацию событий.
func (s *Service) WithPublisher(p rabbitmq.Publisher) *Service {
	s.publisher = p
	return s
}

// Run экспортирует снапшот сразу и затем на каждом тике, если база изменилась.
// Без WatchPath снапшот пересобирается на каждом тике.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("exporter started",
		slog.Duration("interval", s.opts.Interval),
		slog.String("watch", s.opts.WatchPath),
	)
	s.tick(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("exporter stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if !s.changed() {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error("failed to export snapshot", sl.Err(err))
	}
}

// changed сообщает, изменился ли файл базы с прошлой проверки.
func (s *Service) changed() bool {
	if s.opts.WatchPath == "" {
		return true
	}
	info, err := os.Stat(s.opts.WatchPath)
	if err != nil {
		s.log.Warn("cannot stat database file", slog.String("path", s.opts.WatchPath), sl.Err(err))
		return false
	}
	if info.ModTime().Equal(s.lastMod) && info.Size() == s.lastSize {
		return false
	}
	s.lastMod = info.ModTime()
	s.lastSize = info.Size()
	s.log.Info("database change detected", slog.Time("mtime", s.lastMod))
	return true
}

// RunOnce строит снапшот и отправляет его во все подключённые приёмники. Ошибка
// возвращается только при сбое построения; сбои приёмников логируются.
func (s *Service) RunOnce(ctx context.Context) (*models.Snapshot, error) {
	const op = "exporter.RunOnce"

	snap, err := s.builder.Build(ctx, snapshot.Params{PaymentsLimit: s.opts.PaymentsLimit})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.opts.OutputPath != "" {
		if err := WriteFile(s.opts.OutputPath, snap); err != nil {
			s.log.Error("failed to write snapshot file", sl.Op(op), sl.Err(err))
		}
	}
	if s.cache != nil && s.opts.CacheKey != "" {
		if err := s.cache.Set(ctx, s.opts.CacheKey, snap, s.opts.CacheTTL); err != nil {
			s.log.Error("failed to cache snapshot", sl.Op(op), sl.Err(err))
		}
	}
	if s.publisher != nil {
		event := s.event(snap)
		if err := rabbitmq.PublishMessage(s.publisher, s.opts.Exchange, s.opts.RoutingKey, event.ID, event); err != nil {
			s.log.Error("failed to publish snapshot event", sl.Op(op), sl.Err(err))
		}
	}

	s.log.Info("snapshot exported",
		slog.Int("users", len(snap.Users)),
		slog.Int("payments", len(snap.Payments)),
	)
	return snap, nil
}

func (s *Service) event(snap *models.Snapshot) Event {
	return Event{
		ID:       uuid.NewString(),
		BuiltAt:  s.now().UTC(),
		Users:    len(snap.Users),
		Payments: len(snap.Payments),
		Channels: len(snap.Channels),
	}
}

// WriteFile записывает снапшот в path с отступами. Файл подменяется атомарно,
// так что читатель никогда не видит частично записанный JSON.
func WriteFile(path string, snap *models.Snapshot) error {
	const op = "exporter.WriteFile"

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
