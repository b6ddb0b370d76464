package models

import (
	"encoding/json"
	"time"
)

// NotificationType тип внутриплатформенного уведомления.
type NotificationType string

const (
	// NotificationSubscriptionExpiring подписка скоро закончится.
	NotificationSubscriptionExpiring NotificationType = "subscription_expiring"
	// NotificationSubscriptionExpired подписка закончилась, план понижен.
	NotificationSubscriptionExpired NotificationType = "subscription_expired"
)

// Notification append-only сообщение пользователю. Отображением занимается
// фронтенд, ядро только добавляет строки.
type Notification struct {
	ID        int64
	UserID    string
	Type      NotificationType
	Title     string
	Body      string
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// ReminderMetadata структурированные метаданные уведомления о скором
// окончании подписки.
type ReminderMetadata struct {
	DaysLeft         int  `json:"days_left"`
	IsTrial          bool `json:"is_trial"`
	HasPaymentMethod bool `json:"has_payment_method"`
}

// ReminderMessage сообщение для воркера отправки писем, публикуется
// планировщиком в очередь уведомлений.
type ReminderMessage struct {
	Email            string    `json:"email"`
	Locale           string    `json:"locale"`
	PlanName         string    `json:"plan_name"`
	PeriodEnd        time.Time `json:"period_end"`
	DaysLeft         int       `json:"days_left"`
	IsTrial          bool      `json:"is_trial"`
	HasPaymentMethod bool      `json:"has_payment_method"`
}
