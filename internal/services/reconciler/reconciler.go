// Package reconciler сводит события платёжного шлюза с внутренним
// состоянием подписок и профилей.
//
// Переходы статусов управляются только входящими событиями шлюза,
// никогда прямым действием пользователя. Каждый обработчик идемпотентен:
// подписки пишутся через upsert по user_id, журнал платежей защищён
// уникальностью по идентификатору счёта. Событие, для которого не удаётся
// восстановить пользователя, обрабатывается как no-op с записью в лог.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/taskflowhq/billing-service/internal/metrics"
	"github.com/taskflowhq/billing-service/internal/models"
	"github.com/taskflowhq/billing-service/internal/services/catalog"
	"github.com/taskflowhq/billing-service/internal/storage/repository"
)

// Repository описывает интерфейс хранилища, нужный реконсилеру.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	GetProfileByCustomerID(ctx context.Context, customerID string) (*models.Profile, error)
	UpdateProfilePlan(ctx context.Context, userID string, planID int64) error
	UpsertSubscription(ctx context.Context, sub models.Subscription) error
	GetSubscriptionByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, userID string, status models.SubscriptionStatus) error
	DowngradeSubscription(ctx context.Context, userID string, planID int64, canceledAt time.Time) error
	CreatePayment(ctx context.Context, payment models.Payment) (bool, error)
}

// Catalog описывает интерфейс каталога планов.
type Catalog interface {
	FreePlan(ctx context.Context) (*models.Plan, error)
	ResolveByPrice(ctx context.Context, priceID string, amountCents int64) (*models.Plan, error)
}

// Service реализует машину состояний подписки.
type Service struct {
	repo    Repository
	catalog Catalog
	log     *slog.Logger
}

// New создает новый Service.
func New(repo Repository, catalog Catalog, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		log:     log,
	}
}

// mapStatus переводит статус шлюза во внутренний. Неизвестные статусы
// считаются active: это задокументированный fallback, а не сбой.
func mapStatus(status stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return models.StatusActive
	case stripe.SubscriptionStatusTrialing:
		return models.StatusTrialing
	case stripe.SubscriptionStatusPastDue:
		return models.StatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return models.StatusCanceled
	case stripe.SubscriptionStatusUnpaid:
		return models.StatusPastDue
	case stripe.SubscriptionStatusIncomplete:
		return models.StatusPending
	case stripe.SubscriptionStatusIncompleteExpired:
		return models.StatusCanceled
	default:
		return models.StatusActive
	}
}

// HandleCheckoutCompleted обрабатывает завершение checkout-сессии.
// Состояние не меняется: источником истины станет последующее событие
// создания подписки.
func (s *Service) HandleCheckoutCompleted(_ context.Context, sess *stripe.CheckoutSession) error {
	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	s.log.Info("checkout session completed",
		slog.String("session_id", sess.ID),
		slog.String("customer_id", customerID))
	return nil
}

// resolveProfile восстанавливает владельца события: сначала по user_id
// из metadata подписки, затем по сохранённому идентификатору клиента.
func (s *Service) resolveProfile(ctx context.Context, metadataUserID, customerID string) (*models.Profile, error) {
	if metadataUserID != "" {
		profile, err := s.repo.GetProfile(ctx, metadataUserID)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	if customerID == "" {
		return nil, repository.ErrNotFound
	}
	return s.repo.GetProfileByCustomerID(ctx, customerID)
}

// HandleSubscriptionUpserted обрабатывает создание и обновление подписки
// на стороне шлюза. Строка подписки пользователя приводится к состоянию
// события; при успешном разрешении плана он зеркалируется на профиль.
func (s *Service) HandleSubscriptionUpserted(ctx context.Context, sub *stripe.Subscription) error {
	const op = "reconciler.HandleSubscriptionUpserted"

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	profile, err := s.resolveProfile(ctx, sub.Metadata["user_id"], customerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("cannot resolve user for gateway subscription, skipping",
				slog.String("subscription_id", sub.ID),
				slog.String("customer_id", customerID))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var priceID string
	var amountCents int64
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		priceID = sub.Items.Data[0].Price.ID
		amountCents = sub.Items.Data[0].Price.UnitAmount
	}

	planID := profile.PlanID
	planResolved := false
	plan, err := s.catalog.ResolveByPrice(ctx, priceID, amountCents)
	switch {
	case err == nil:
		planID = plan.ID
		planResolved = true
	case errors.Is(err, catalog.ErrNoPlanMatch):
		// План остаётся прежним, статус всё равно обновляется.
		s.log.Warn("gateway price did not match any plan",
			slog.String("subscription_id", sub.ID),
			slog.String("price_id", priceID),
			slog.Int64("amount_cents", amountCents))
		if existing, gerr := s.repo.GetSubscriptionByUserID(ctx, profile.UserID); gerr == nil {
			planID = existing.PlanID
		}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}

	row := models.NewGatewayManaged(
		profile.UserID,
		planID,
		sub.ID,
		mapStatus(sub.Status),
		time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	)
	row.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if sub.CanceledAt > 0 {
		canceledAt := time.Unix(sub.CanceledAt, 0).UTC()
		row.CanceledAt = &canceledAt
	}

	if err := s.repo.UpsertSubscription(ctx, row); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if planResolved && planID != profile.PlanID {
		if err := s.repo.UpdateProfilePlan(ctx, profile.UserID, planID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	s.log.Info("gateway subscription reconciled",
		slog.String("user_id", profile.UserID),
		slog.String("subscription_id", sub.ID),
		slog.String("status", string(row.Status)),
		slog.Bool("plan_resolved", planResolved))
	return nil
}

// HandleSubscriptionDeleted обрабатывает удаление подписки на стороне
// шлюза: пользователь переводится на бесплатный план со статусом canceled,
// план зеркалируется на профиль.
func (s *Service) HandleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	const op = "reconciler.HandleSubscriptionDeleted"

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	profile, err := s.resolveProfile(ctx, "", customerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("cannot resolve user for deleted subscription, skipping",
				slog.String("subscription_id", sub.ID),
				slog.String("customer_id", customerID))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	freePlan, err := s.catalog.FreePlan(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	canceledAt := time.Now().UTC()
	if sub.CanceledAt > 0 {
		canceledAt = time.Unix(sub.CanceledAt, 0).UTC()
	}
	if err := s.repo.DowngradeSubscription(ctx, profile.UserID, freePlan.ID, canceledAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.UpdateProfilePlan(ctx, profile.UserID, freePlan.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("gateway subscription deleted, user moved to free plan",
		slog.String("user_id", profile.UserID),
		slog.String("subscription_id", sub.ID))
	return nil
}

// HandleInvoicePaymentSucceeded добавляет строку succeeded в журнал
// платежей. Счета без подписки и счета неизвестных клиентов пропускаются.
func (s *Service) HandleInvoicePaymentSucceeded(ctx context.Context, inv *stripe.Invoice) error {
	const op = "reconciler.HandleInvoicePaymentSucceeded"

	if inv.Subscription == nil {
		s.log.Info("invoice without subscription, skipping", slog.String("invoice_id", inv.ID))
		return nil
	}
	profile, err := s.resolveInvoiceProfile(ctx, inv)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("cannot resolve user for paid invoice, skipping",
				slog.String("invoice_id", inv.ID))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	created, err := s.repo.CreatePayment(ctx, models.Payment{
		UserID:            profile.UserID,
		AmountCents:       inv.AmountPaid,
		Currency:          string(inv.Currency),
		Status:            models.PaymentSucceeded,
		ProviderInvoiceID: inv.ID,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if created {
		metrics.PaymentsRecorded.WithLabelValues(string(models.PaymentSucceeded)).Inc()
	} else {
		s.log.Info("invoice already recorded, re-delivery ignored", slog.String("invoice_id", inv.ID))
	}
	return nil
}

// HandleInvoicePaymentFailed добавляет строку failed в журнал платежей
// и переводит подписку пользователя в past_due.
func (s *Service) HandleInvoicePaymentFailed(ctx context.Context, inv *stripe.Invoice) error {
	const op = "reconciler.HandleInvoicePaymentFailed"

	profile, err := s.resolveInvoiceProfile(ctx, inv)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("cannot resolve user for failed invoice, skipping",
				slog.String("invoice_id", inv.ID))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	created, err := s.repo.CreatePayment(ctx, models.Payment{
		UserID:            profile.UserID,
		AmountCents:       inv.AmountDue,
		Currency:          string(inv.Currency),
		Status:            models.PaymentFailed,
		ProviderInvoiceID: inv.ID,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if created {
		metrics.PaymentsRecorded.WithLabelValues(string(models.PaymentFailed)).Inc()
	}

	if err := s.repo.UpdateSubscriptionStatus(ctx, profile.UserID, models.StatusPastDue); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("invoice payment failed, subscription marked past_due",
		slog.String("user_id", profile.UserID),
		slog.String("invoice_id", inv.ID))
	return nil
}

func (s *Service) resolveInvoiceProfile(ctx context.Context, inv *stripe.Invoice) (*models.Profile, error) {
	customerID := ""
	if inv.Customer != nil {
		customerID = inv.Customer.ID
	}
	if customerID == "" {
		return nil, repository.ErrNotFound
	}
	return s.repo.GetProfileByCustomerID(ctx, customerID)
}
