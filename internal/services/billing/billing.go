// Package billing оркестрирует пользовательские операции биллинга:
// запуск checkout-сессии, открытие биллинг-портала и смену плана
// существующей подписки.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/taskflowhq/billing-service/internal/models"
	"github.com/taskflowhq/billing-service/internal/paymentgateway"
	"github.com/taskflowhq/billing-service/internal/storage/repository"
)

var (
	// ErrPlanNotFound возвращается для неизвестного или неактивного плана.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrUserNotFound возвращается, когда профиль пользователя не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoPriceConfigured возвращается, когда у плана нет цены шлюза
	// для запрошенного цикла оплаты.
	ErrNoPriceConfigured = errors.New("plan has no gateway price for this billing cycle")
	// ErrNoCustomer возвращается при попытке открыть портал или сменить
	// план без клиента на стороне шлюза.
	ErrNoCustomer = errors.New("user has no billing account yet")
)

// Gateway описывает интерфейс платёжного шлюза.
type Gateway interface {
	Enabled() bool
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, userID, successURL, cancelURL string) (*paymentgateway.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	FindActiveSubscription(ctx context.Context, customerID string) (*stripe.Subscription, error)
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*stripe.Subscription, error)
}

// Repository описывает интерфейс хранилища для операций биллинга.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SetProfileCustomerID(ctx context.Context, userID, customerID string) error
	ListPayments(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, error)
}

// Catalog описывает интерфейс каталога планов.
type Catalog interface {
	GetByID(ctx context.Context, id int64) (*models.Plan, error)
	ListActive(ctx context.Context) ([]*models.Plan, error)
}

// Service сервис пользовательских операций биллинга.
type Service struct {
	gateway Gateway
	repo    Repository
	catalog Catalog
	log     *slog.Logger
}

// New создает новый Service.
func New(gateway Gateway, repo Repository, catalog Catalog, log *slog.Logger) *Service {
	return &Service{
		gateway: gateway,
		repo:    repo,
		catalog: catalog,
		log:     log,
	}
}

// ListPlans возвращает активные планы каталога.
func (s *Service) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	return s.catalog.ListActive(ctx)
}

// ListPayments возвращает историю платежей пользователя.
func (s *Service) ListPayments(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, error) {
	return s.repo.ListPayments(ctx, userID, limit, offset)
}

// StartCheckout создаёт checkout-сессию для перехода пользователя на
// платный план. Порядок проверок фиксированный: доступность шлюза, план,
// цена, профиль. Клиент шлюза создаётся лениво при первой оплате и
// сохраняется на профиле до создания сессии.
func (s *Service) StartCheckout(ctx context.Context, userID string, planID int64, cycle models.BillingCycle, successURL, cancelURL string) (*paymentgateway.CheckoutSession, error) {
	const op = "billing.StartCheckout"

	if !s.gateway.Enabled() {
		return nil, fmt.Errorf("%s: %w", op, paymentgateway.ErrGatewayDisabled)
	}

	plan, err := s.catalog.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	priceID := plan.PriceIDFor(cycle)
	if priceID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoPriceConfigured)
	}

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	customerID, err := s.ensureCustomer(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, customerID, priceID, userID, successURL, cancelURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("checkout session created",
		slog.String("user_id", userID),
		slog.Int64("plan_id", planID),
		slog.String("session_id", sess.ID))
	return sess, nil
}

// OpenPortal создаёт сессию биллинг-портала. Пользователь без клиента
// шлюза ещё ничего не платил, портал ему открывать не с чем.
func (s *Service) OpenPortal(ctx context.Context, userID, returnURL string) (string, error) {
	const op = "billing.OpenPortal"

	if !s.gateway.Enabled() {
		return "", fmt.Errorf("%s: %w", op, paymentgateway.ErrGatewayDisabled)
	}

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if profile.StripeCustomerID == nil {
		return "", fmt.Errorf("%s: %w", op, ErrNoCustomer)
	}

	url, err := s.gateway.CreatePortalSession(ctx, *profile.StripeCustomerID, returnURL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return url, nil
}

// ChangePlan переводит активную подписку шлюза на цену другого плана
// с пропорциональным перерасчётом и возвращает новый конец периода.
// Локальное состояние здесь не трогаем: его обновит вебхук об изменении
// подписки.
func (s *Service) ChangePlan(ctx context.Context, userID string, planID int64, cycle models.BillingCycle) (time.Time, error) {
	const op = "billing.ChangePlan"

	if !s.gateway.Enabled() {
		return time.Time{}, fmt.Errorf("%s: %w", op, paymentgateway.ErrGatewayDisabled)
	}

	plan, err := s.catalog.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return time.Time{}, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
		}
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	priceID := plan.PriceIDFor(cycle)
	if priceID == "" {
		return time.Time{}, fmt.Errorf("%s: %w", op, ErrNoPriceConfigured)
	}

	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return time.Time{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	if profile.StripeCustomerID == nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, ErrNoCustomer)
	}

	sub, err := s.gateway.FindActiveSubscription(ctx, *profile.StripeCustomerID)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	var itemID string
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		itemID = sub.Items.Data[0].ID
	}

	updated, err := s.gateway.UpdateSubscriptionPrice(ctx, sub.ID, itemID, priceID)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("gateway subscription price updated",
		slog.String("user_id", userID),
		slog.Int64("plan_id", planID),
		slog.String("subscription_id", sub.ID))
	return time.Unix(updated.CurrentPeriodEnd, 0).UTC(), nil
}

// ensureCustomer возвращает идентификатор клиента шлюза, создавая его
// при первой оплате.
func (s *Service) ensureCustomer(ctx context.Context, profile *models.Profile) (string, error) {
	if profile.StripeCustomerID != nil {
		return *profile.StripeCustomerID, nil
	}
	customerID, err := s.gateway.CreateCustomer(ctx, profile.Email, profile.UserID)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetProfileCustomerID(ctx, profile.UserID, customerID); err != nil {
		return "", err
	}
	s.log.Info("gateway customer created",
		slog.String("user_id", profile.UserID),
		slog.String("customer_id", customerID))
	return customerID, nil
}
