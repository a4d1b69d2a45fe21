// Package health отвечает на проверки живости сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-snapshot/internal/http/response"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/sl"
)

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	log   *slog.Logger
	store Pinger
}

func New(log *slog.Logger, store Pinger) *Handler {
	return &Handler{
		log:   log,
		store: store,
	}
}

// ServeHTTP godoc
// @Summary      Проверка состояния
// @Tags         health
// @Produce      json
// @Success      200  {object}  response.HealthResponse
// @Failure      503  {object}  response.HealthResponse
// @Router       /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health.ServeHTTP"

	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Error("store unreachable",
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Err(err),
		)
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.HealthResponse{Status: "error", Store: "unreachable"})
		return
	}
	render.JSON(w, r, response.HealthResponse{Status: "ok"})
}
