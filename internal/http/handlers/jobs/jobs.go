// Package jobs реализует HTTP-обработчики ручного запуска фоновых задач:
// рассылки напоминаний и понижения истёкших подписок. Эндпоинты закрыты
// middleware авторизации задач; сами обработчики только запускают прогон
// и отдают его итог.
package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/taskflowhq/billing-service/internal/http/response"
	"github.com/taskflowhq/billing-service/internal/lib/sl"
	"github.com/taskflowhq/billing-service/internal/services/expiry"
	"github.com/taskflowhq/billing-service/internal/services/reminder"
)

// ReminderRunner описывает запуск прогона напоминаний.
type ReminderRunner interface {
	Run(ctx context.Context, now time.Time) (*reminder.Result, error)
}

// ExpiryRunner описывает запуск обхода истёкших подписок.
type ExpiryRunner interface {
	Run(ctx context.Context, now time.Time) (*expiry.Result, error)
}

// RemindersHandler управляет запуском рассылки напоминаний по HTTP.
type RemindersHandler struct {
	log    *slog.Logger
	runner ReminderRunner
}

// NewReminders создает новый RemindersHandler.
func NewReminders(log *slog.Logger, runner ReminderRunner) *RemindersHandler {
	return &RemindersHandler{log: log, runner: runner}
}

// ServeHTTP godoc
// @Summary Запустить рассылку напоминаний
// @Description Запускает прогон напоминаний об окончании подписки и возвращает его итог.
// @Tags Jobs
// @Produce  json
// @Success 200 {object} response.Response "Итог прогона"
// @Failure 401 {object} response.ErrorResponse "Не авторизован"
// @Failure 500 {object} response.ErrorResponse "Прогон не удался"
// @Security ApiKeyAuth
// @Router /jobs/reminders [post]
func (h *RemindersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.jobs.reminders"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	result, err := h.runner.Run(r.Context(), time.Now().UTC())
	if err != nil {
		log.Error("reminder run failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("reminder run failed"))
		return
	}

	render.JSON(w, r, response.OKWithData(result))
}

// ExpireHandler управляет запуском обхода истёкших подписок по HTTP.
type ExpireHandler struct {
	log    *slog.Logger
	runner ExpiryRunner
}

// NewExpire создает новый ExpireHandler.
func NewExpire(log *slog.Logger, runner ExpiryRunner) *ExpireHandler {
	return &ExpireHandler{log: log, runner: runner}
}

// ServeHTTP godoc
// @Summary Запустить понижение истёкших подписок
// @Description Запускает обход истёкших внутренних подписок и возвращает его итог.
// @Tags Jobs
// @Produce  json
// @Success 200 {object} response.Response "Итог прогона"
// @Failure 401 {object} response.ErrorResponse "Не авторизован"
// @Failure 500 {object} response.ErrorResponse "Прогон не удался"
// @Security ApiKeyAuth
// @Router /jobs/expire [post]
func (h *ExpireHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.jobs.expire"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	result, err := h.runner.Run(r.Context(), time.Now().UTC())
	if err != nil {
		log.Error("expiry run failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("expiry run failed"))
		return
	}

	render.JSON(w, r, response.OKWithData(result))
}
