package checkout

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/taskflowhq/billing-service/internal/models"
	"github.com/taskflowhq/billing-service/internal/paymentgateway"
	"github.com/taskflowhq/billing-service/internal/services/billing"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) StartCheckout(ctx context.Context, userID string, planID int64, cycle models.BillingCycle, successURL, cancelURL string) (*paymentgateway.CheckoutSession, error) {
	args := m.Called(ctx, userID, planID, cycle, successURL, cancelURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentgateway.CheckoutSession), args.Error(1)
}

func NewNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const validBody = `{
	"user_id": "b2cf0a0e-91c0-4f0b-8c3a-2a3f2b1ed901",
	"plan_id": 2,
	"billing_cycle": "monthly",
	"success_url": "https://app.example.com/ok",
	"cancel_url": "https://app.example.com/cancel"
}`

func TestCheckoutHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMock  func(svc *ServiceMock)
		wantStatus int
	}{
		{
			name: "success",
			body: validBody,
			setupMock: func(svc *ServiceMock) {
				svc.On("StartCheckout", mock.Anything, "b2cf0a0e-91c0-4f0b-8c3a-2a3f2b1ed901",
					int64(2), models.BillingCycleMonthly,
					"https://app.example.com/ok", "https://app.example.com/cancel").
					Return(&paymentgateway.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid json",
			body:       `{not json`,
			setupMock:  func(svc *ServiceMock) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "user_id is not a uuid",
			body:       strings.Replace(validBody, "b2cf0a0e-91c0-4f0b-8c3a-2a3f2b1ed901", "42", 1),
			setupMock:  func(svc *ServiceMock) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown billing cycle",
			body:       strings.Replace(validBody, "monthly", "weekly", 1),
			setupMock:  func(svc *ServiceMock) {},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "gateway disabled maps to 503",
			body: validBody,
			setupMock: func(svc *ServiceMock) {
				svc.On("StartCheckout", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, paymentgateway.ErrGatewayDisabled).Once()
			},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name: "plan not found maps to 404",
			body: validBody,
			setupMock: func(svc *ServiceMock) {
				svc.On("StartCheckout", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, billing.ErrPlanNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "unexpected error maps to 500",
			body: validBody,
			setupMock: func(svc *ServiceMock) {
				svc.On("StartCheckout", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, assert.AnError).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMock(svc)

			h := New(NewNoopLogger(), svc)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}
