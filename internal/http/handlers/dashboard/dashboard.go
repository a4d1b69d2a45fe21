// Package dashboard отдаёт снапшот подписок для дашборда.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-snapshot/internal/http/response"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-snapshot/internal/models"
	"github.com/magabrotheeeer/subscription-snapshot/internal/snapshot"
)

// Service строит снапшот по параметрам запроса.
type Service interface {
	Build(ctx context.Context, p snapshot.Params) (*models.Snapshot, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary      Снапшот подписок
// @Description  Подписчики, последние платежи, каналы и агрегаты на текущий момент
// @Tags         dashboard
// @Produce      json
// @Param        payments_limit    query  int     false  "Размер списка платежей (1..500, по умолчанию 120)"
// @Param        expiring_days     query  int     false  "Окно статуса expiring в днях (1..90)"
// @Param        include_non_user  query  string  false  "1, true или yes, чтобы включить не-пользователей"
// @Success      200  {object}  models.Snapshot
// @Failure      401  {object}  response.ErrorResponse
// @Failure      429  {object}  response.ErrorResponse
// @Failure      500  {object}  response.ErrorResponse
// @Security     BearerAuth
// @Router       /dashboard [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.dashboard.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	params := ParseParams(r.URL.Query())
	snap, err := h.service.Build(r.Context(), params)
	if err != nil {
		log.Error("failed to build snapshot", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to build snapshot"))
		return
	}

	log.Info("snapshot served",
		slog.Int("users", len(snap.Users)),
		slog.Int("payments", len(snap.Payments)),
	)
	render.JSON(w, r, snap)
}
