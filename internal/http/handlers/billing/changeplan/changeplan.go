// Package changeplan реализует HTTP-обработчик смены плана активной
// подписки платёжного шлюза.
package changeplan

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/taskflowhq/billing-service/internal/http/response"
	"github.com/taskflowhq/billing-service/internal/lib/sl"
	"github.com/taskflowhq/billing-service/internal/models"
	"github.com/taskflowhq/billing-service/internal/paymentgateway"
	"github.com/taskflowhq/billing-service/internal/services/billing"
)

// Request тело запроса на смену плана подписки.
type Request struct {
	UserID       string `json:"user_id" validate:"required,uuid"`
	PlanID       int64  `json:"plan_id" validate:"required,min=1"`
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=monthly yearly"`
}

// Service описывает интерфейс бизнес-логики смены плана.
type Service interface {
	ChangePlan(ctx context.Context, userID string, planID int64, cycle models.BillingCycle) (time.Time, error)
}

// Handler управляет HTTP-запросами на смену плана подписки.
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
// @Summary Сменить план подписки
// @Description Переводит активную подписку шлюза на цену другого плана с перерасчётом.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param request body Request true "Новый план и цикл оплаты"
// @Success 200 {object} response.Response "Новый конец расчётного периода"
// @Failure 400 {object} response.ErrorResponse "Нет клиента шлюза или активной подписки"
// @Failure 404 {object} response.ErrorResponse "План или пользователь не найдены"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 503 {object} response.ErrorResponse "Шлюз не настроен"
// @Router /billing/subscription [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.changeplan"
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

	periodEnd, err := h.service.ChangePlan(r.Context(), req.UserID, req.PlanID, models.BillingCycle(req.BillingCycle))
	if err != nil {
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
			log.Error("failed to change plan", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("subscription plan changed", slog.Time("current_period_end", periodEnd))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"current_period_end": periodEnd,
	}))
}
