// Package portal реализует HTTP-обработчик открытия портала
// самообслуживания платёжного шлюза.
package portal

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
	"github.com/taskflowhq/billing-service/internal/paymentgateway"
	"github.com/taskflowhq/billing-service/internal/services/billing"
)

// Request тело запроса на открытие биллинг-портала.
type Request struct {
	UserID    string `json:"user_id" validate:"required,uuid"`
	ReturnURL string `json:"return_url" validate:"required,url"`
}

// Service описывает интерфейс бизнес-логики открытия портала.
type Service interface {
	OpenPortal(ctx context.Context, userID, returnURL string) (string, error)
}

// Handler управляет HTTP-запросами на открытие биллинг-портала.
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
// @Summary Открыть биллинг-портал
// @Description Создает сессию портала самообслуживания и возвращает URL редиректа.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param request body Request true "Параметры портала"
// @Success 200 {object} response.Response "URL портала"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или нет клиента шлюза"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 503 {object} response.ErrorResponse "Шлюз не настроен"
// @Router /billing/portal [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.portal"
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

	url, err := h.service.OpenPortal(r.Context(), req.UserID, req.ReturnURL)
	if err != nil {
		switch {
		case errors.Is(err, paymentgateway.ErrGatewayDisabled):
			log.Error("billing is not configured", sl.Err(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("billing is not configured"))
		case errors.Is(err, billing.ErrUserNotFound):
			log.Error("user not found", sl.Err(err))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		case errors.Is(err, billing.ErrNoCustomer):
			log.Error("billing precondition failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("user has no billing account yet"))
		default:
			log.Error("failed to open billing portal", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	log.Info("billing portal session created")
	render.JSON(w, r, response.OKWithData(map[string]any{
		"url": url,
	}))
}
