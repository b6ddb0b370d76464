package models

import "time"

// SubscriptionStatus статус подписки во внутренней модели.
type SubscriptionStatus string

const (
	// StatusTrialing пробный период.
	StatusTrialing SubscriptionStatus = "trialing"
	// StatusActive оплаченная активная подписка.
	StatusActive SubscriptionStatus = "active"
	// StatusPastDue просрочен платёж, доступ ещё не отозван.
	StatusPastDue SubscriptionStatus = "past_due"
	// StatusCanceled подписка отменена.
	StatusCanceled SubscriptionStatus = "canceled"
	// StatusPending платёж требует дополнительного действия пользователя.
	StatusPending SubscriptionStatus = "pending"
)

// BillingMode определяет, кто владеет жизненным циклом подписки.
type BillingMode string

const (
	// BillingModeInternal подписка ведётся внутренне: пробный период или
	// заведённая вручную запись. Её продлевают и закрывают фоновые задачи.
	BillingModeInternal BillingMode = "internal"
	// BillingModeGateway подпиской управляет платёжный шлюз, источником
	// истины для статуса и периода являются его события. Фоновые задачи
	// такие записи не трогают.
	BillingModeGateway BillingMode = "gateway"
)

// Subscription строка подписки пользователя. На пользователя существует
// не более одной строки: запись ведётся через upsert по user_id.
type Subscription struct {
	UserID                string
	PlanID                int64
	Status                SubscriptionStatus
	BillingMode           BillingMode
	GatewaySubscriptionID string // Пустая строка для BillingModeInternal
	CurrentPeriodStart    time.Time
	CurrentPeriodEnd      time.Time
	CancelAtPeriodEnd     bool
	CanceledAt            *time.Time
}

// NewInternalTrial создаёт внутреннюю пробную подписку до trialEnd.
func NewInternalTrial(userID string, planID int64, now, trialEnd time.Time) Subscription {
	return Subscription{
		UserID:             userID,
		PlanID:             planID,
		Status:             StatusTrialing,
		BillingMode:        BillingModeInternal,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   trialEnd,
	}
}

// NewGatewayManaged создаёт подписку, которой управляет платёжный шлюз.
func NewGatewayManaged(userID string, planID int64, gatewaySubID string, status SubscriptionStatus, periodStart, periodEnd time.Time) Subscription {
	return Subscription{
		UserID:                userID,
		PlanID:                planID,
		Status:                status,
		BillingMode:           BillingModeGateway,
		GatewaySubscriptionID: gatewaySubID,
		CurrentPeriodStart:    periodStart,
		CurrentPeriodEnd:      periodEnd,
	}
}

// IsGatewayManaged сообщает, управляется ли подписка платёжным шлюзом.
func (s Subscription) IsGatewayManaged() bool {
	return s.BillingMode == BillingModeGateway
}

// ExpiringSubscription строка выборки фоновых задач: внутренняя подписка
// вместе с данными профиля и названием плана.
type ExpiringSubscription struct {
	Subscription
	Email            string
	Locale           string
	PlanName         string
	HasPaymentMethod bool
}
