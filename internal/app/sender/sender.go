// Package sender собирает приложение воркера писем: подключение к
// RabbitMQ и потребление очереди напоминаний.
package sender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/taskflowhq/billing-service/internal/config"
	"github.com/taskflowhq/billing-service/internal/lib/rabbitmq"
	"github.com/taskflowhq/billing-service/internal/lib/sl"
	"github.com/taskflowhq/billing-service/internal/lib/smtp"
	senderservice "github.com/taskflowhq/billing-service/internal/services/sender"
)

// App приложение воркера отправки писем.
type App struct {
	logger *slog.Logger
	conn   *amqp.Connection
	ch     *amqp.Channel
	svc    *senderservice.Service
}

// New собирает приложение из конфигурации.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	transport := smtp.NewTransport(cfg, logger)
	svc := senderservice.New(transport, logger)

	return &App{
		logger: logger,
		conn:   conn,
		ch:     ch,
		svc:    svc,
	}, nil
}

// Run потребляет очередь напоминаний до остановки контекста.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		_ = a.ch.Close()
		_ = a.conn.Close()
	}()

	for _, q := range rabbitmq.GetNotificationQueues() {
		a.logger.Info("consuming queue", slog.String("queue", q.QueueName))
		if err := rabbitmq.ConsumeMessages(ctx, a.ch, q.QueueName, a.svc.SendReminderEmail); err != nil {
			a.logger.Error("consumer stopped with error", sl.Err(err))
			return err
		}
	}

	<-ctx.Done()
	a.logger.Info("shutting down notification sender gracefully")
	return nil
}
