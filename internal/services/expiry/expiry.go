// Package expiry реализует ежедневное понижение истёкших внутренних
// подписок до бесплатного плана.
package expiry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskflowhq/billing-service/internal/lib/sl"
	"github.com/taskflowhq/billing-service/internal/metrics"
	"github.com/taskflowhq/billing-service/internal/models"
)

// Repository описывает интерфейс хранилища для обхода истёкших подписок.
type Repository interface {
	FindInternalExpired(ctx context.Context, now time.Time) ([]*models.ExpiringSubscription, error)
	DowngradeSubscription(ctx context.Context, userID string, planID int64, canceledAt time.Time) error
	UpdateProfilePlan(ctx context.Context, userID string, planID int64) error
	CreateNotification(ctx context.Context, n models.Notification) (int64, error)
}

// Catalog описывает интерфейс каталога планов.
type Catalog interface {
	FreePlan(ctx context.Context) (*models.Plan, error)
}

// Result итог одного прогона обхода истёкших подписок.
type Result struct {
	Scanned    int      `json:"scanned"`
	Downgraded int      `json:"downgraded"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

// Service сервис понижения истёкших подписок.
type Service struct {
	repo      Repository
	catalog   Catalog
	log       *slog.Logger
	maxErrors int
}

// New создает новый Service.
func New(repo Repository, catalog Catalog, log *slog.Logger, maxErrors int) *Service {
	if maxErrors <= 0 {
		maxErrors = 5
	}
	return &Service{
		repo:      repo,
		catalog:   catalog,
		log:       log,
		maxErrors: maxErrors,
	}
}

// Run выполняет один прогон: все внутренние подписки со статусом trialing
// или active и period_end <= now. Пользователи с привязанной картой
// пропускаются: их продлением занимается платёжный шлюз через вебхуки.
// Остальные переводятся на бесплатный план со статусом canceled.
func (s *Service) Run(ctx context.Context, now time.Time) (*Result, error) {
	const op = "expiry.Run"

	subs, err := s.repo.FindInternalExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := &Result{Scanned: len(subs)}
	if len(subs) == 0 {
		s.log.Info("expiry run finished, nothing to do")
		return result, nil
	}

	freePlan, err := s.catalog.FreePlan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var rowErrors []string
	for _, sub := range subs {
		if sub.HasPaymentMethod {
			// Продление через шлюз ещё может прийти, решение не наше.
			result.Skipped++
			continue
		}
		if err := s.downgrade(ctx, sub, freePlan.ID, now); err != nil {
			s.log.Error("failed to downgrade expired subscription",
				slog.String("user_id", sub.UserID), sl.Err(err))
			rowErrors = append(rowErrors, err.Error())
			continue
		}
		result.Downgraded++
		metrics.ExpiryDowngrades.Inc()
	}

	if len(rowErrors) > s.maxErrors {
		rowErrors = rowErrors[:s.maxErrors]
	}
	result.Errors = rowErrors

	s.log.Info("expiry run finished",
		slog.Int("scanned", result.Scanned),
		slog.Int("downgraded", result.Downgraded),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", len(rowErrors)))
	return result, nil
}

func (s *Service) downgrade(ctx context.Context, sub *models.ExpiringSubscription, freePlanID int64, now time.Time) error {
	if err := s.repo.DowngradeSubscription(ctx, sub.UserID, freePlanID, now); err != nil {
		return fmt.Errorf("downgrade %s: %w", sub.UserID, err)
	}
	if err := s.repo.UpdateProfilePlan(ctx, sub.UserID, freePlanID); err != nil {
		return fmt.Errorf("update profile plan %s: %w", sub.UserID, err)
	}

	wasTrial := sub.Status == models.StatusTrialing
	metadata, err := json.Marshal(map[string]any{"was_trial": wasTrial})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	title, body := composeExpired(sub.Locale, sub.PlanName, wasTrial)
	if _, err := s.repo.CreateNotification(ctx, models.Notification{
		UserID:   sub.UserID,
		Type:     models.NotificationSubscriptionExpired,
		Title:    title,
		Body:     body,
		Metadata: metadata,
	}); err != nil {
		return fmt.Errorf("create notification for %s: %w", sub.UserID, err)
	}
	return nil
}

// composeExpired собирает текст уведомления об истёкшей подписке.
func composeExpired(locale, planName string, wasTrial bool) (title, body string) {
	if locale == "lt" {
		if wasTrial {
			return fmt.Sprintf("Jūsų %s bandomasis laikotarpis baigėsi", planName),
				fmt.Sprintf("Jūsų %s bandomasis laikotarpis baigėsi, paskyra perkelta į nemokamą planą. Užsiprenumeruokite bet kada, kad susigrąžintumėte plano galimybes.", planName)
		}
		return fmt.Sprintf("Jūsų %s prenumerata baigėsi", planName),
			fmt.Sprintf("Jūsų %s prenumerata baigėsi, paskyra perkelta į nemokamą planą. Atnaujinkite bet kada, kad susigrąžintumėte plano galimybes.", planName)
	}
	if wasTrial {
		return fmt.Sprintf("Your %s trial has ended", planName),
			fmt.Sprintf("Your %s trial has ended and your account was switched to the free plan. Subscribe anytime to get your plan features back.", planName)
	}
	return fmt.Sprintf("Your %s subscription has expired", planName),
		fmt.Sprintf("Your %s subscription has expired and your account was switched to the free plan. Renew anytime to get your plan features back.", planName)
}
