// Package scheduler собирает приложение фонового планировщика: ежедневная
// рассылка напоминаний и обход истёкших подписок по расписанию cron.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/streadway/amqp"

	"github.com/taskflowhq/billing-service/internal/config"
	"github.com/taskflowhq/billing-service/internal/lib/rabbitmq"
	"github.com/taskflowhq/billing-service/internal/lib/sl"
	"github.com/taskflowhq/billing-service/internal/services/catalog"
	"github.com/taskflowhq/billing-service/internal/services/expiry"
	"github.com/taskflowhq/billing-service/internal/services/reminder"
	"github.com/taskflowhq/billing-service/internal/storage/repository"
)

// App приложение планировщика фоновых задач.
type App struct {
	cron     *cron.Cron
	logger   *slog.Logger
	db       *repository.Storage
	amqpConn *amqp.Connection
}

// New собирает приложение из конфигурации.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}

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

	catalogService := catalog.NewService(db, nil, logger, cfg.FreePlanCode)
	reminderService := reminder.New(db, publisher, logger, cfg.MaxReportedErrors)
	expiryService := expiry.New(db, catalogService, logger, cfg.MaxReportedErrors)

	c := cron.New()
	if _, err := c.AddFunc(cfg.ReminderSchedule, func() {
		runReminder(logger, reminderService)
	}); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(cfg.ExpirySchedule, func() {
		runExpiry(logger, expiryService)
	}); err != nil {
		return nil, err
	}

	return &App{
		cron:     c,
		logger:   logger,
		db:       db,
		amqpConn: amqpConn,
	}, nil
}

// Run запускает планировщик и блокируется до остановки контекста.
// Запущенным прогонам даётся дозавершиться.
func (a *App) Run(ctx context.Context) error {
	a.cron.Start()
	a.logger.Info("scheduler started")

	<-ctx.Done()
	a.logger.Info("shutting down scheduler gracefully")

	stopCtx := a.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		a.logger.Warn("scheduler jobs did not finish in time")
	}

	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}
	if a.amqpConn != nil {
		_ = a.amqpConn.Close()
	}
	return nil
}

func runReminder(logger *slog.Logger, svc *reminder.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := svc.Run(ctx, time.Now().UTC()); err != nil {
		logger.Error("scheduled reminder run failed", sl.Err(err))
	}
}

func runExpiry(logger *slog.Logger, svc *expiry.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := svc.Run(ctx, time.Now().UTC()); err != nil {
		logger.Error("scheduled expiry run failed", sl.Err(err))
	}
}
