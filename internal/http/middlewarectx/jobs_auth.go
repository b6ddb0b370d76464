// Package middlewarectx содержит HTTP middleware биллингового сервиса:
// авторизацию служебных эндпоинтов запуска задач и ограничение частоты
// запросов.
package middlewarectx

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/taskflowhq/billing-service/internal/http/response"
	"github.com/taskflowhq/billing-service/internal/lib/jwt"
	"github.com/taskflowhq/billing-service/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// Caller — ключ для имени вызывающего сервиса в контексте.
const Caller Key = "caller"

// CronSecretHeader заголовок с общим секретом планировщика.
const CronSecretHeader = "X-Cron-Secret"

// JobsAuthMiddleware возвращает middleware, пропускающий запрос, если он
// несёт либо общий секрет планировщика в X-Cron-Secret, либо валидный
// служебный JWT в Authorization. Иначе — 401.
func JobsAuthMiddleware(cronSecret string, maker jwt.Maker, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JobsAuthMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			if secret := r.Header.Get(CronSecretHeader); secret != "" && cronSecret != "" {
				if subtle.ConstantTimeCompare([]byte(secret), []byte(cronSecret)) == 1 {
					ctx := context.WithValue(r.Context(), Caller, "cron")
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				log.Error("invalid cron secret")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("unauthorized"))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := maker.ParseToken(tokenStr)
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			ctx := context.WithValue(r.Context(), Caller, claims.Service)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
