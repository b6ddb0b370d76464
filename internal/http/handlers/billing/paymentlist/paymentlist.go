// Package paymentlist реализует HTTP-обработчик получения истории
// платежей пользователя.
package paymentlist

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/taskflowhq/billing-service/internal/http/response"
	"github.com/taskflowhq/billing-service/internal/lib/sl"
	"github.com/taskflowhq/billing-service/internal/models"
)

const defaultLimit = 50

// Service описывает интерфейс истории платежей.
type Service interface {
	ListPayments(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, error)
}

// Handler управляет HTTP-запросами истории платежей.
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
// @Summary История платежей пользователя
// @Description Возвращает платежи пользователя в обратном хронологическом порядке.
// @Tags Billing
// @Produce  json
// @Param user_id query string true "UUID пользователя"
// @Param limit query int false "Количество записей"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response "Список платежей"
// @Failure 422 {object} response.ErrorResponse "Некорректный user_id"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /billing/payments [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.paymentlist"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID := r.URL.Query().Get("user_id")
	if err := h.validate.Var(userID, "required,uuid"); err != nil {
		log.Error("invalid user_id", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("user_id must be a uuid"))
		return
	}

	limit, offset := defaultLimit, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	payments, err := h.service.ListPayments(r.Context(), userID, limit, offset)
	if err != nil {
		log.Error("failed to list payments", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"payments": payments,
	}))
}
