package webhook

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test_secret"

type ReconcilerMock struct{ mock.Mock }

func (m *ReconcilerMock) HandleCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	return m.Called(ctx, sess).Error(0)
}

func (m *ReconcilerMock) HandleSubscriptionUpserted(ctx context.Context, sub *stripe.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *ReconcilerMock) HandleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *ReconcilerMock) HandleInvoicePaymentSucceeded(ctx context.Context, inv *stripe.Invoice) error {
	return m.Called(ctx, inv).Error(0)
}

func (m *ReconcilerMock) HandleInvoicePaymentFailed(ctx context.Context, inv *stripe.Invoice) error {
	return m.Called(ctx, inv).Error(0)
}

func NewNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func signedRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(payload))
	ts := time.Now()
	sig := stripewebhook.ComputeSignature(ts, payload, testWebhookSecret)
	req.Header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig)))
	return req
}

func eventPayload(eventType string, object string) []byte {
	// ConstructEvent проверяет api_version события против версии библиотеки.
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"api_version": %q,
		"type": %q,
		"data": {"object": %s}
	}`, stripe.APIVersion, eventType, object))
}

func TestWebhook_ValidSignatureDispatchesEvent(t *testing.T) {
	rec := new(ReconcilerMock)
	rec.On("HandleSubscriptionUpserted", mock.Anything, mock.MatchedBy(func(sub *stripe.Subscription) bool {
		return sub.ID == "sub_123"
	})).Return(nil).Once()

	h := New(NewNoopLogger(), rec, testWebhookSecret)
	payload := eventPayload("customer.subscription.updated", `{"id": "sub_123", "status": "active"}`)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest(t, payload))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
	rec.AssertExpectations(t)
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	rec := new(ReconcilerMock)

	h := New(NewNoopLogger(), rec, testWebhookSecret)
	payload := eventPayload("customer.subscription.updated", `{"id": "sub_123"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=12345,v1=deadbeef")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	rec.AssertNotCalled(t, "HandleSubscriptionUpserted", mock.Anything, mock.Anything)
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	rec := new(ReconcilerMock)

	h := New(NewNoopLogger(), rec, testWebhookSecret)
	payload := eventPayload("invoice.payment_succeeded", `{"id": "in_123"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(payload))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_UnknownEventTypeAcknowledged(t *testing.T) {
	rec := new(ReconcilerMock)

	h := New(NewNoopLogger(), rec, testWebhookSecret)
	payload := eventPayload("customer.created", `{"id": "cus_123"}`)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest(t, payload))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
}

func TestWebhook_ProcessingErrorReturns400(t *testing.T) {
	rec := new(ReconcilerMock)
	rec.On("HandleInvoicePaymentFailed", mock.Anything, mock.Anything).
		Return(assert.AnError).Once()

	h := New(NewNoopLogger(), rec, testWebhookSecret)
	payload := eventPayload("invoice.payment_failed", `{"id": "in_456"}`)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, signedRequest(t, payload))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	rec.AssertExpectations(t)
}

func TestWebhook_EventDispatchTable(t *testing.T) {
	tests := []struct {
		eventType string
		object    string
		method    string
	}{
		{"checkout.session.completed", `{"id": "cs_1"}`, "HandleCheckoutCompleted"},
		{"customer.subscription.created", `{"id": "sub_1"}`, "HandleSubscriptionUpserted"},
		{"customer.subscription.deleted", `{"id": "sub_1"}`, "HandleSubscriptionDeleted"},
		{"invoice.payment_succeeded", `{"id": "in_1"}`, "HandleInvoicePaymentSucceeded"},
		{"invoice.payment_failed", `{"id": "in_1"}`, "HandleInvoicePaymentFailed"},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			rec := new(ReconcilerMock)
			rec.On(tt.method, mock.Anything, mock.Anything).Return(nil).Once()

			h := New(NewNoopLogger(), rec, testWebhookSecret)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, signedRequest(t, eventPayload(tt.eventType, tt.object)))

			assert.Equal(t, http.StatusOK, w.Code)
			rec.AssertExpectations(t)
		})
	}
}
