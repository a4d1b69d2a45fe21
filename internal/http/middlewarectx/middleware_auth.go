// Package middlewarectx содержит HTTP middleware дашборда: проверку токена доступа,
// ограничение частоты запросов и сбор метрик.
//
// TokenGuard извлекает кандидата из заголовка Authorization (Bearer), затем из
// X-API-Key, затем из параметра token и проверяет его через TokenVerifier.
// В случае неудачи возвращает HTTP 401 Unauthorized.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-snapshot/internal/http/response"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// Subject ключ контекста, под которым лежит subject принятого токена.
const Subject Key = "subject"

// TokenVerifier проверяет предъявленный токен и возвращает subject.
type TokenVerifier interface {
	Verify(token string) (subject string, ok bool)
}

// ExtractToken возвращает токен запроса: Bearer-заголовок, затем X-API-Key, затем ?token=.
func ExtractToken(r *http.Request) string {
	var headerToken string
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		if parts := strings.Split(auth, " "); len(parts) > 1 {
			headerToken = parts[1]
		}
	}

	for _, candidate := range []string{headerToken, r.Header.Get("X-API-Key"), r.URL.Query().Get("token")} {
		if candidate != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

// TokenGuard возвращает middleware, пропускающий только запросы с принятым токеном.
func TokenGuard(verifier TokenVerifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.TokenGuard"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			token := ExtractToken(r)
			if token == "" {
				log.Warn("missing access token")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("Unauthorized"))
				return
			}

			subject, ok := verifier.Verify(token)
			if !ok {
				log.Warn("invalid access token")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("Unauthorized"))
				return
			}

			ctx := context.WithValue(r.Context(), Subject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
