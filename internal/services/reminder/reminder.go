// Package reminder реализует ежедневный обход подписок, срок которых
// скоро истекает, с отправкой писем и внутренних уведомлений.
//
// Обходятся только внутренние подписки: за напоминания и продление
// подписок, которыми управляет платёжный шлюз, отвечает сам процессор.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/taskflowhq/billing-service/internal/lib/rabbitmq"
	"github.com/taskflowhq/billing-service/internal/lib/sl"
	"github.com/taskflowhq/billing-service/internal/metrics"
	"github.com/taskflowhq/billing-service/internal/models"
)

// Repository описывает интерфейс хранилища для планировщика напоминаний.
type Repository interface {
	FindInternalExpiringBetween(ctx context.Context, after, until time.Time) ([]*models.ExpiringSubscription, error)
	CreateNotification(ctx context.Context, n models.Notification) (int64, error)
}

// Publisher описывает отправку сообщения воркеру писем.
type Publisher interface {
	PublishReminder(msg models.ReminderMessage) error
}

// QueuePublisher публикует напоминания в RabbitMQ.
type QueuePublisher struct {
	ch *amqp.Channel
}

// NewQueuePublisher создает новый QueuePublisher.
func NewQueuePublisher(ch *amqp.Channel) *QueuePublisher {
	return &QueuePublisher{ch: ch}
}

// PublishReminder отправляет сообщение в очередь напоминаний.
func (p *QueuePublisher) PublishReminder(msg models.ReminderMessage) error {
	return rabbitmq.PublishMessage(p.ch, rabbitmq.Exchange, "reminder", msg)
}

// Result итог одного прогона: сколько подписок просмотрено, сколько
// уведомлений создано и первые ошибки по отдельным строкам.
type Result struct {
	Scanned  int      `json:"scanned"`
	Notified int      `json:"notified"`
	Errors   []string `json:"errors,omitempty"`
}

// Service сервис напоминаний об окончании подписки.
type Service struct {
	repo      Repository
	publisher Publisher // может быть nil, тогда письма не отправляются
	log       *slog.Logger
	maxErrors int
}

// New создает новый Service.
func New(repo Repository, publisher Publisher, log *slog.Logger, maxErrors int) *Service {
	if maxErrors <= 0 {
		maxErrors = 5
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		log:       log,
		maxErrors: maxErrors,
	}
}

// Run выполняет один прогон: два непересекающихся окна относительно now,
// (now, now+24h] и (now+24h, now+72h]. Ошибка отдельной строки не
// прерывает прогон, а попадает в отчёт.
func (s *Service) Run(ctx context.Context, now time.Time) (*Result, error) {
	result := &Result{}
	var rowErrors []string

	windows := []struct {
		after    time.Time
		until    time.Time
		daysLeft int
	}{
		{now, now.Add(24 * time.Hour), 1},
		{now.Add(24 * time.Hour), now.Add(72 * time.Hour), 3},
	}

	for _, w := range windows {
		subs, err := s.repo.FindInternalExpiringBetween(ctx, w.after, w.until)
		if err != nil {
			return nil, fmt.Errorf("reminder.Run: %w", err)
		}
		result.Scanned += len(subs)

		for _, sub := range subs {
			if err := s.notify(ctx, sub, w.daysLeft); err != nil {
				s.log.Error("failed to notify user",
					slog.String("user_id", sub.UserID), sl.Err(err))
				rowErrors = append(rowErrors, err.Error())
				continue
			}
			result.Notified++
			metrics.RemindersSent.Inc()
		}
	}

	if len(rowErrors) > s.maxErrors {
		rowErrors = rowErrors[:s.maxErrors]
	}
	result.Errors = rowErrors

	s.log.Info("reminder run finished",
		slog.Int("scanned", result.Scanned),
		slog.Int("notified", result.Notified),
		slog.Int("errors", len(rowErrors)))
	return result, nil
}

func (s *Service) notify(ctx context.Context, sub *models.ExpiringSubscription, daysLeft int) error {
	isTrial := sub.Status == models.StatusTrialing

	metadata, err := json.Marshal(models.ReminderMetadata{
		DaysLeft:         daysLeft,
		IsTrial:          isTrial,
		HasPaymentMethod: sub.HasPaymentMethod,
	})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	title, body := composeReminder(sub.Locale, sub.PlanName, daysLeft, isTrial, sub.HasPaymentMethod)
	if _, err := s.repo.CreateNotification(ctx, models.Notification{
		UserID:   sub.UserID,
		Type:     models.NotificationSubscriptionExpiring,
		Title:    title,
		Body:     body,
		Metadata: metadata,
	}); err != nil {
		return fmt.Errorf("create notification for %s: %w", sub.UserID, err)
	}

	if s.publisher == nil {
		s.log.Info("email queue not configured, reminder email skipped",
			slog.String("user_id", sub.UserID))
		return nil
	}
	if err := s.publisher.PublishReminder(models.ReminderMessage{
		Email:            sub.Email,
		Locale:           sub.Locale,
		PlanName:         sub.PlanName,
		PeriodEnd:        sub.CurrentPeriodEnd,
		DaysLeft:         daysLeft,
		IsTrial:          isTrial,
		HasPaymentMethod: sub.HasPaymentMethod,
	}); err != nil {
		return fmt.Errorf("publish reminder for %s: %w", sub.UserID, err)
	}
	return nil
}
