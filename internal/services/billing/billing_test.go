package billing

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v76"

	"github.com/taskflowhq/billing-service/internal/models"
	"github.com/taskflowhq/billing-service/internal/paymentgateway"
	"github.com/taskflowhq/billing-service/internal/storage/repository"
)

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) Enabled() bool {
	return m.Called().Bool(0)
}

func (m *GatewayMock) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	args := m.Called(ctx, email, userID)
	return args.String(0), args.Error(1)
}

func (m *GatewayMock) CreateCheckoutSession(ctx context.Context, customerID, priceID, userID, successURL, cancelURL string) (*paymentgateway.CheckoutSession, error) {
	args := m.Called(ctx, customerID, priceID, userID, successURL, cancelURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentgateway.CheckoutSession), args.Error(1)
}

func (m *GatewayMock) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	args := m.Called(ctx, customerID, returnURL)
	return args.String(0), args.Error(1)
}

func (m *GatewayMock) FindActiveSubscription(ctx context.Context, customerID string) (*stripe.Subscription, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Subscription), args.Error(1)
}

func (m *GatewayMock) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*stripe.Subscription, error) {
	args := m.Called(ctx, subscriptionID, itemID, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Subscription), args.Error(1)
}

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *RepoMock) SetProfileCustomerID(ctx context.Context, userID, customerID string) error {
	return m.Called(ctx, userID, customerID).Error(0)
}

func (m *RepoMock) ListPayments(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Payment), args.Error(1)
}

type CatalogMock struct{ mock.Mock }

func (m *CatalogMock) GetByID(ctx context.Context, id int64) (*models.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}

func (m *CatalogMock) ListActive(ctx context.Context) ([]*models.Plan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Plan), args.Error(1)
}

func NewNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const testUserID = "b2cf0a0e-91c0-4f0b-8c3a-2a3f2b1ed901"

func proPlan() *models.Plan {
	return &models.Plan{
		ID:                   2,
		Code:                 "pro",
		PriceMonthlyCents:    999,
		StripePriceMonthlyID: "price_pro_m",
		StripePriceYearlyID:  "price_pro_y",
		IsActive:             true,
	}
}

func profileWithCustomer() *models.Profile {
	customerID := "cus_123"
	return &models.Profile{
		UserID:           testUserID,
		Email:            "user@example.com",
		Locale:           "en",
		PlanID:           1,
		StripeCustomerID: &customerID,
	}
}

func profileWithoutCustomer() *models.Profile {
	return &models.Profile{
		UserID: testUserID,
		Email:  "user@example.com",
		Locale: "en",
		PlanID: 1,
	}
}

func TestStartCheckout_ExistingCustomer(t *testing.T) {
	gw := new(GatewayMock)
	repo := new(RepoMock)
	cat := new(CatalogMock)

	gw.On("Enabled").Return(true)
	cat.On("GetByID", mock.Anything, int64(2)).Return(proPlan(), nil).Once()
	repo.On("GetProfile", mock.Anything, testUserID).Return(profileWithCustomer(), nil).Once()
	gw.On("CreateCheckoutSession", mock.Anything, "cus_123", "price_pro_m", testUserID,
		"https://app.example.com/ok", "https://app.example.com/cancel").
		Return(&paymentgateway.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil).Once()

	svc := New(gw, repo, cat, NewNoopLogger())
	sess, err := svc.StartCheckout(context.Background(), testUserID, 2, models.BillingCycleMonthly,
		"https://app.example.com/ok", "https://app.example.com/cancel")

	assert.NoError(t, err)
	assert.Equal(t, "cs_1", sess.ID)
	gw.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
	gw.AssertExpectations(t)
}

func TestStartCheckout_CreatesCustomerLazily(t *testing.T) {
	gw := new(GatewayMock)
	repo := new(RepoMock)
	cat := new(CatalogMock)

	gw.On("Enabled").Return(true)
	cat.On("GetByID", mock.Anything, int64(2)).Return(proPlan(), nil).Once()
	repo.On("GetProfile", mock.Anything, testUserID).Return(profileWithoutCustomer(), nil).Once()
	gw.On("CreateCustomer", mock.Anything, "user@example.com", testUserID).Return("cus_new", nil).Once()
	repo.On("SetProfileCustomerID", mock.Anything, testUserID, "cus_new").Return(nil).Once()
	gw.On("CreateCheckoutSession", mock.Anything, "cus_new", "price_pro_y", testUserID, "s", "c").
		Return(&paymentgateway.CheckoutSession{ID: "cs_2", URL: "u"}, nil).Once()

	svc := New(gw, repo, cat, NewNoopLogger())
	_, err := svc.StartCheckout(context.Background(), testUserID, 2, models.BillingCycleYearly, "s", "c")

	assert.NoError(t, err)
	gw.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestStartCheckout_NoPriceConfigured(t *testing.T) {
	gw := new(GatewayMock)
	repo := new(RepoMock)
	cat := new(CatalogMock)

	plan := proPlan()
	plan.StripePriceYearlyID = ""
	gw.On("Enabled").Return(true)
	cat.On("GetByID", mock.Anything, int64(2)).Return(plan, nil).Once()

	svc := New(gw, repo, cat, NewNoopLogger())
	_, err := svc.StartCheckout(context.Background(), testUserID, 2, models.BillingCycleYearly, "s", "c")

	assert.ErrorIs(t, err, ErrNoPriceConfigured)
	// До профиля и клиента шлюза дело не доходит.
	repo.AssertNotCalled(t, "GetProfile", mock.Anything, mock.Anything)
	gw.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartCheckout_GatewayDisabled(t *testing.T) {
	gw := new(GatewayMock)
	repo := new(RepoMock)
	cat := new(CatalogMock)

	gw.On("Enabled").Return(false)

	svc := New(gw, repo, cat, NewNoopLogger())
	_, err := svc.StartCheckout(context.Background(), testUserID, 2, models.BillingCycleMonthly, "s", "c")

	assert.ErrorIs(t, err, paymentgateway.ErrGatewayDisabled)
	cat.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestStartCheckout_PlanNotFound(t *testing.T) {
	gw := new(GatewayMock)
	repo := new(RepoMock)
	cat := new(CatalogMock)

	gw.On("Enabled").Return(true)
	cat.On("GetByID", mock.Anything, int64(99)).Return(nil, repository.ErrNotFound).Once()

	svc := New(gw, repo, cat, NewNoopLogger())
	_, err := svc.StartCheckout(context.Background(), testUserID, 99, models.BillingCycleMonthly, "s", "c")

	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestOpenPortal_NoCustomer(t *testing.T) {
	gw := new(GatewayMock)
	repo := new(RepoMock)
	cat := new(CatalogMock)

	gw.On("Enabled").Return(true)
	repo.On("GetProfile", mock.Anything, testUserID).Return(profileWithoutCustomer(), nil).Once()

	svc := New(gw, repo, cat, NewNoopLogger())
	_, err := svc.OpenPortal(context.Background(), testUserID, "https://app.example.com/billing")

	assert.ErrorIs(t, err, ErrNoCustomer)
	gw.AssertNotCalled(t, "CreatePortalSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestOpenPortal_Success(t *testing.T) {
	gw := new(GatewayMock)
	repo := new(RepoMock)
	cat := new(CatalogMock)

	gw.On("Enabled").Return(true)
	repo.On("GetProfile", mock.Anything, testUserID).Return(profileWithCustomer(), nil).Once()
	gw.On("CreatePortalSession", mock.Anything, "cus_123", "https://app.example.com/billing").
		Return("https://portal.example.com/p_1", nil).Once()

	svc := New(gw, repo, cat, NewNoopLogger())
	url, err := svc.OpenPortal(context.Background(), testUserID, "https://app.example.com/billing")

	assert.NoError(t, err)
	assert.Equal(t, "https://portal.example.com/p_1", url)
}

func TestChangePlan_NoCustomerDoesNotCallGateway(t *testing.T) {
	gw := new(GatewayMock)
	repo := new(RepoMock)
	cat := new(CatalogMock)

	gw.On("Enabled").Return(true)
	cat.On("GetByID", mock.Anything, int64(2)).Return(proPlan(), nil).Once()
	repo.On("GetProfile", mock.Anything, testUserID).Return(profileWithoutCustomer(), nil).Once()

	svc := New(gw, repo, cat, NewNoopLogger())
	_, err := svc.ChangePlan(context.Background(), testUserID, 2, models.BillingCycleMonthly)

	assert.ErrorIs(t, err, ErrNoCustomer)
	gw.AssertNotCalled(t, "FindActiveSubscription", mock.Anything, mock.Anything)
}

func TestChangePlan_Success(t *testing.T) {
	gw := new(GatewayMock)
	repo := new(RepoMock)
	cat := new(CatalogMock)

	periodEnd := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	active := &stripe.Subscription{
		ID: "sub_123",
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{ID: "si_123"}},
		},
	}
	updated := &stripe.Subscription{ID: "sub_123", CurrentPeriodEnd: periodEnd.Unix()}

	gw.On("Enabled").Return(true)
	cat.On("GetByID", mock.Anything, int64(2)).Return(proPlan(), nil).Once()
	repo.On("GetProfile", mock.Anything, testUserID).Return(profileWithCustomer(), nil).Once()
	gw.On("FindActiveSubscription", mock.Anything, "cus_123").Return(active, nil).Once()
	gw.On("UpdateSubscriptionPrice", mock.Anything, "sub_123", "si_123", "price_pro_m").
		Return(updated, nil).Once()

	svc := New(gw, repo, cat, NewNoopLogger())
	got, err := svc.ChangePlan(context.Background(), testUserID, 2, models.BillingCycleMonthly)

	assert.NoError(t, err)
	assert.Equal(t, periodEnd, got)
	gw.AssertExpectations(t)
}

func TestChangePlan_NoActiveSubscription(t *testing.T) {
	gw := new(GatewayMock)
	repo := new(RepoMock)
	cat := new(CatalogMock)

	gw.On("Enabled").Return(true)
	cat.On("GetByID", mock.Anything, int64(2)).Return(proPlan(), nil).Once()
	repo.On("GetProfile", mock.Anything, testUserID).Return(profileWithCustomer(), nil).Once()
	gw.On("FindActiveSubscription", mock.Anything, "cus_123").
		Return(nil, paymentgateway.ErrNoActiveSubscription).Once()

	svc := New(gw, repo, cat, NewNoopLogger())
	_, err := svc.ChangePlan(context.Background(), testUserID, 2, models.BillingCycleMonthly)

	assert.ErrorIs(t, err, paymentgateway.ErrNoActiveSubscription)
	gw.AssertNotCalled(t, "UpdateSubscriptionPrice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
