// Package billing предоставляет маршруты биллингового сервиса.
package billing

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/taskflowhq/billing-service/internal/config"
	"github.com/taskflowhq/billing-service/internal/http/handlers/billing/changeplan"
	"github.com/taskflowhq/billing-service/internal/http/handlers/billing/checkout"
	"github.com/taskflowhq/billing-service/internal/http/handlers/billing/paymentlist"
	"github.com/taskflowhq/billing-service/internal/http/handlers/billing/planlist"
	"github.com/taskflowhq/billing-service/internal/http/handlers/billing/portal"
	"github.com/taskflowhq/billing-service/internal/http/handlers/billing/webhook"
	"github.com/taskflowhq/billing-service/internal/http/handlers/health"
	"github.com/taskflowhq/billing-service/internal/http/handlers/jobs"
	"github.com/taskflowhq/billing-service/internal/http/middlewarectx"
	"github.com/taskflowhq/billing-service/internal/lib/jwt"
	billingservice "github.com/taskflowhq/billing-service/internal/services/billing"
	"github.com/taskflowhq/billing-service/internal/services/expiry"
	"github.com/taskflowhq/billing-service/internal/services/reconciler"
	"github.com/taskflowhq/billing-service/internal/services/reminder"
)

// Services собирает зависимости роутера в одном месте.
type Services struct {
	Billing     *billingservice.Service
	Reconciler  *reconciler.Service
	Reminder    *reminder.Service
	Expiry      *expiry.Service
	JWTMaker    jwt.Maker
	HealthCheck health.Checker
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, svc *Services, cfg *config.Config) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Get("/billing/plans", planlist.New(logger, svc.Billing).ServeHTTP)
			r.Get("/billing/payments", paymentlist.New(logger, svc.Billing).ServeHTTP)
			r.Post("/billing/checkout", checkout.New(logger, svc.Billing).ServeHTTP)
			r.Post("/billing/portal", portal.New(logger, svc.Billing).ServeHTTP)
			r.Post("/billing/subscription", changeplan.New(logger, svc.Billing).ServeHTTP)
		})

		// Webhook endpoint (подпись проверяется в обработчике)
		r.Post("/billing/webhook", webhook.New(logger, svc.Reconciler, cfg.Stripe.WebhookSecret).ServeHTTP)

		// Ручной запуск фоновых задач
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JobsAuthMiddleware(cfg.CronSecret, svc.JWTMaker, logger))
			r.Post("/jobs/reminders", jobs.NewReminders(logger, svc.Reminder).ServeHTTP)
			r.Post("/jobs/expire", jobs.NewExpire(logger, svc.Expiry).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger, svc.HealthCheck).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
