// Package webhook реализует HTTP-обработчик вебхуков платёжного шлюза.
//
// Подпись каждого запроса проверяется до любых изменений состояния;
// запрос с неверной или отсутствующей подписью отклоняется с 400.
// Типы событий, не входящие в подписку сервиса, подтверждаются без
// обработки, чтобы шлюз не ретраил их бесконечно.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"

	"github.com/taskflowhq/billing-service/internal/http/response"
	"github.com/taskflowhq/billing-service/internal/lib/sl"
	"github.com/taskflowhq/billing-service/internal/metrics"
)

const maxBodyBytes = 65536

// Reconciler описывает интерфейс машины состояний подписки.
type Reconciler interface {
	HandleCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error
	HandleSubscriptionUpserted(ctx context.Context, sub *stripe.Subscription) error
	HandleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error
	HandleInvoicePaymentSucceeded(ctx context.Context, inv *stripe.Invoice) error
	HandleInvoicePaymentFailed(ctx context.Context, inv *stripe.Invoice) error
}

// Handler управляет HTTP-запросами вебхуков шлюза.
type Handler struct {
	log           *slog.Logger
	reconciler    Reconciler
	webhookSecret string
}

// New создает новый Handler.
func New(log *slog.Logger, reconciler Reconciler, webhookSecret string) *Handler {
	return &Handler{
		log:           log,
		reconciler:    reconciler,
		webhookSecret: webhookSecret,
	}
}

// ServeHTTP godoc
// @Summary Вебхук платёжного шлюза
// @Description Принимает события Stripe, проверяет подпись и сводит их с внутренним состоянием.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Success 200 {object} map[string]bool "Событие принято"
// @Failure 400 {object} response.ErrorResponse "Неверная подпись или ошибка обработки"
// @Router /billing/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	event, err := stripewebhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		log.Error("webhook signature verification failed", sl.Err(err))
		metrics.WebhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	log.Info("webhook event received",
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)))

	if err := h.dispatch(r.Context(), event); err != nil {
		log.Error("failed to process webhook event",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			sl.Err(err))
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "error").Inc()
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to process event"))
		return
	}

	metrics.WebhookEvents.WithLabelValues(string(event.Type), "ok").Inc()
	render.JSON(w, r, map[string]bool{"received": true})
}

func (h *Handler) dispatch(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return err
		}
		return h.reconciler.HandleCheckoutCompleted(ctx, &sess)
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		return h.reconciler.HandleSubscriptionUpserted(ctx, &sub)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		return h.reconciler.HandleSubscriptionDeleted(ctx, &sub)
	case "invoice.payment_succeeded":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return err
		}
		return h.reconciler.HandleInvoicePaymentSucceeded(ctx, &inv)
	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return err
		}
		return h.reconciler.HandleInvoicePaymentFailed(ctx, &inv)
	default:
		h.log.Info("unhandled webhook event type ignored",
			slog.String("event_type", string(event.Type)))
		return nil
	}
}
