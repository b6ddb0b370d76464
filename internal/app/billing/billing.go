// Package billing собирает HTTP-приложение биллингового сервиса:
// хранилище, миграции, кэш, платёжный шлюз, бизнес-сервисы и роутер.
package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/taskflowhq/billing-service/internal/cache"
	"github.com/taskflowhq/billing-service/internal/config"
	"github.com/taskflowhq/billing-service/internal/lib/jwt"
	"github.com/taskflowhq/billing-service/internal/lib/rabbitmq"
	"github.com/taskflowhq/billing-service/internal/lib/sl"
	"github.com/taskflowhq/billing-service/internal/migrations"
	"github.com/taskflowhq/billing-service/internal/paymentgateway"
	billingservice "github.com/taskflowhq/billing-service/internal/services/billing"
	"github.com/taskflowhq/billing-service/internal/services/catalog"
	"github.com/taskflowhq/billing-service/internal/services/expiry"
	"github.com/taskflowhq/billing-service/internal/services/reconciler"
	"github.com/taskflowhq/billing-service/internal/services/reminder"
	"github.com/taskflowhq/billing-service/internal/storage/repository"
)

// App HTTP-приложение биллингового сервиса.
type App struct {
	server   *http.Server
	logger   *slog.Logger
	db       *repository.Storage
	amqpConn *amqp.Connection
}

// New собирает приложение из конфигурации.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	// Redis необязателен: без него каталог читается из базы напрямую.
	var planCache catalog.Cache
	if cfg.AddressRedis != "" {
		cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			return nil, err
		}
		planCache = cacheRedis
	} else {
		logger.Warn("redis address is not set, plan cache disabled")
	}

	// RabbitMQ необязателен: без него напоминания создаются без писем.
	var amqpConn *amqp.Connection
	var publisher reminder.Publisher
	if cfg.RabbitMQURL != "" {
		amqpConn, err = rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			return nil, err
		}
		ch, err := rabbitmq.SetupChannel(amqpConn, rabbitmq.GetNotificationQueues())
		if err != nil {
			return nil, err
		}
		publisher = reminder.NewQueuePublisher(ch)
	} else {
		logger.Warn("rabbitmq url is not set, reminder emails disabled")
	}

	gateway := paymentgateway.NewClient(cfg.Stripe.SecretKey, logger)
	catalogService := catalog.NewService(db, planCache, logger, cfg.FreePlanCode)
	reconcilerService := reconciler.New(db, catalogService, logger)
	billingService := billingservice.New(gateway, db, catalogService, logger)
	reminderService := reminder.New(db, publisher, logger, cfg.MaxReportedErrors)
	expiryService := expiry.New(db, catalogService, logger, cfg.MaxReportedErrors)
	jwtMaker := jwt.NewMaker(cfg.ServiceToken.JWTSecretKey, cfg.ServiceToken.TokenTTL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, &Services{
		Billing:    billingService,
		Reconciler: reconcilerService,
		Reminder:   reminderService,
		Expiry:     expiryService,
		JWTMaker:   jwtMaker,
		HealthCheck: func() error {
			return repository.CheckDatabaseReady(db)
		},
	}, cfg)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:   srv,
		logger:   logger,
		db:       db,
		amqpConn: amqpConn,
	}, nil
}

// Run запускает сервер и блокируется до остановки контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if cerr := a.db.DB.Close(); cerr != nil {
			a.logger.Error("failed to close database", sl.Err(cerr))
		}
		if a.amqpConn != nil {
			_ = a.amqpConn.Close()
		}
		return err
	}
}
