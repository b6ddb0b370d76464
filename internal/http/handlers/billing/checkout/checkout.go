// Package checkout реализует HTTP-обработчик запуска checkout-сессии
// платёжного шлюза для перехода пользователя на платный план.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/taskflowhq/billing-service/internal/http/response"
	"github.com/taskflowhq/billing-service/internal/lib/sl"
	"github.com/taskflowhq/billing-service/internal/models"
	"github.com/taskflowhq/billing-service/internal/paymentgateway"
	"github.com/taskflowhq/billing-service/internal/services/billing"
)

// Request тело запроса на создание checkout-сессии.
type Request struct {
	UserID       string `json:"user_id" validate:"required,uuid"`
	PlanID       int64  `json:"plan_id" validate:"required,min=1"`
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=monthly yearly"`
	SuccessURL   string `json:"success_url" validate:"required,url"`
	CancelURL    string `json:"cancel_url" validate:"required,url"`
}

// Service описывает интерфейс бизнес-логики запуска checkout.
type Service interface {
	StartCheckout(ctx context.Context, userID string, planID int64, cycle models.BillingCycle, successURL, cancelURL string) (*paymentgateway.CheckoutSession, error)
}

// Handler управляет HTTP-запросами на создание checkout-сессии.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать checkout-сессию
// @Description Создает сессию оплаты для перехода пользователя на платный план.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param request body Request true "Параметры checkout"
// @Success 200 {object} response.Response "URL сессии оплаты"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или нет клиента шлюза"
// @Failure 404 {object} response.ErrorResponse "План или пользователь не найдены"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 503 {object} response.ErrorResponse "Шлюз не настроен"
// @Router /billing/checkout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkout"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	sess, err := h.service.StartCheckout(r.Context(), req.UserID, req.PlanID,
		models.BillingCycle(req.BillingCycle), req.SuccessURL, req.CancelURL)
	if err != nil {
		writeServiceError(w, r, log, err)
		return
	}

	log.Info("checkout session created", slog.String("session_id", sess.ID))
	render.JSON(w, r, response.OKWithData(sess))
}

// writeServiceError переводит ошибки бизнес-логики биллинга в HTTP-статусы:
// выключенный шлюз и отсутствующая цена — 503, неизвестный план или
// пользователь — 404, нарушенные предусловия — 400, остальное — 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, paymentgateway.ErrGatewayDisabled),
		errors.Is(err, billing.ErrNoPriceConfigured):
		log.Error("billing is not configured", sl.Err(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("billing is not configured"))
	case errors.Is(err, billing.ErrPlanNotFound):
		log.Error("plan not found", sl.Err(err))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("plan not found"))
	case errors.Is(err, billing.ErrUserNotFound):
		log.Error("user not found", sl.Err(err))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
	case errors.Is(err, billing.ErrNoCustomer):
		log.Error("billing precondition failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("user has no billing account yet"))
	case errors.Is(err, paymentgateway.ErrNoActiveSubscription):
		log.Error("billing precondition failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("no active subscription to change"))
	default:
		log.Error("billing operation failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
	}
}
