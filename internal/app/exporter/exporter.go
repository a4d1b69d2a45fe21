// Package exporter собирает фоновый экспорт снапшота: хранилище бота, кеш Redis
// и канал RabbitMQ подключаются, только если они настроены.
package exporter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-snapshot/internal/app"
	"github.com/magabrotheeeer/subscription-snapshot/internal/cache"
	"github.com/magabrotheeeer/subscription-snapshot/internal/config"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/rabbitmq"
	exporterservice "github.com/magabrotheeeer/subscription-snapshot/internal/services/exporter"
	"github.com/magabrotheeeer/subscription-snapshot/internal/storage"
)

// App представляет приложение экспорта.
type App struct {
	service *exporterservice.Service
	db      *storage.Storage
	cache   *cache.Cache
	conn    *amqp.Connection
	ch      *amqp.Channel
	logger  *slog.Logger
}

// New создает новый экземпляр приложения экспорта.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, builder, err := app.OpenSnapshot(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{db: db, logger: logger}

	a.service = exporterservice.NewService(builder, Options(cfg), logger)

	if cfg.RedisConnection.Address != "" {
		a.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("cache not initialized: %w", err)
		}
		a.service.WithCache(a.cache)
	}

	if cfg.RabbitMQ.URL != "" {
		a.conn, err = rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
		}
		a.ch, err = rabbitmq.SetupChannel(a.conn, cfg.RabbitMQ.Exchange, nil)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
		}
		a.service.WithPublisher(a.ch)
	}

	return a, nil
}

// Options переводит конфигурацию в настройки экспорта. Для SQLite без DSN
// отслеживается файл базы, для остальных снапшот пересобирается на каждом тике.
func Options(cfg *config.Config) exporterservice.Options {
	opts := exporterservice.Options{
		Interval:      cfg.Exporter.Interval,
		OutputPath:    cfg.Exporter.OutputPath,
		CacheKey:      cfg.Exporter.CacheKey,
		CacheTTL:      cfg.Exporter.CacheTTL,
		PaymentsLimit: cfg.Exporter.PaymentsLimit,
		Exchange:      cfg.RabbitMQ.Exchange,
		RoutingKey:    cfg.RabbitMQ.RoutingKey,
	}
	if cfg.Storage.Driver == storage.DriverSQLite && cfg.Storage.DSN == "" {
		opts.WatchPath = cfg.Storage.Path
	}
	return opts
}

// Run запускает экспорт до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := a.service.Run(ctx)
	a.logger.Info("shutting down exporter")
	a.close()
	return err
}

// RunOnce выполняет один экспорт и освобождает ресурсы.
func (a *App) RunOnce(ctx context.Context) error {
	defer a.close()
	_, err := a.service.RunOnce(ctx)
	return err
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", slog.Any("err", err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", slog.Any("err", err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close cache", slog.Any("err", err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", slog.Any("err", err))
	}
}
