// Package metrics объявляет счётчики Prometheus биллингового ядра.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents счётчик обработанных событий платёжного шлюза
	// с разбивкой по типу события и результату.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Processed payment gateway webhook events.",
	}, []string{"type", "result"})

	// PlanResolutionMisses счётчик событий подписки, для которых не удалось
	// сопоставить цену шлюза с планом каталога.
	PlanResolutionMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_plan_resolution_misses_total",
		Help: "Subscription events whose price did not match any catalog plan.",
	})

	// PaymentsRecorded счётчик строк журнала платежей с разбивкой по статусу.
	PaymentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_payments_recorded_total",
		Help: "Payment ledger rows inserted.",
	}, []string{"status"})

	// RemindersSent счётчик отправленных напоминаний об окончании подписки.
	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_reminders_sent_total",
		Help: "Expiry reminders dispatched to users.",
	})

	// ExpiryDowngrades счётчик подписок, понижённых до бесплатного плана.
	ExpiryDowngrades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_expiry_downgrades_total",
		Help: "Expired subscriptions downgraded to the free plan.",
	})
)
