// Package app собирает общие зависимости приложений: хранилище бота и построитель снапшотов.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/subscription-snapshot/internal/config"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/civil"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/timestamp"
	"github.com/magabrotheeeer/subscription-snapshot/internal/snapshot"
	"github.com/magabrotheeeer/subscription-snapshot/internal/storage"
)

// OpenSnapshot открывает хранилище и создаёт построитель снапшотов поверх него.
// Хранилище закрывает вызывающая сторона.
func OpenSnapshot(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Storage, *snapshot.Builder, error) {
	const op = "app.OpenSnapshot"

	zone, err := civil.LoadZone(cfg.Snapshot.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	logger.Info("storage opened",
		slog.String("driver", db.Driver()),
		slog.String("timezone", zone.Name()),
	)

	builder := snapshot.NewBuilder(db, timestamp.New(zone), cfg.Snapshot.ExpiringDays, logger)
	return db, builder, nil
}
