// Package dashboard собирает HTTP-сервер, отдающий снапшот подписок.
package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	// Регистрация Swagger-спецификации.
	_ "github.com/magabrotheeeer/subscription-snapshot/docs"
	"github.com/magabrotheeeer/subscription-snapshot/internal/config"
	dashboardhandler "github.com/magabrotheeeer/subscription-snapshot/internal/http/handlers/dashboard"
	"github.com/magabrotheeeer/subscription-snapshot/internal/http/handlers/health"
	"github.com/magabrotheeeer/subscription-snapshot/internal/http/middlewarectx"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, store health.Pinger, service dashboardhandler.Service) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middlewarectx.Metrics,
		corsHandler(cfg.CORS),
	)

	r.Get("/health", health.New(logger, store).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		if cfg.Auth.Enabled() {
			r.Use(middlewarectx.TokenGuard(middlewarectx.NewTokens(cfg.Auth), logger))
		} else {
			logger.Warn("no api token configured, /api is open")
		}
		r.Get("/dashboard", dashboardhandler.New(logger, service).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}

func corsHandler(cfg config.CORS) func(http.Handler) http.Handler {
	origins := cfg.Origins
	if cfg.AllowAll() {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "X-API-Key", "Content-Type"},
		MaxAge:         300,
	})
}
