package models

import "time"

// PaymentStatus итог обработки счёта платёжным шлюзом.
type PaymentStatus string

const (
	// PaymentSucceeded счёт оплачен.
	PaymentSucceeded PaymentStatus = "succeeded"
	// PaymentFailed оплата не прошла.
	PaymentFailed PaymentStatus = "failed"
)

// Payment строка журнала платежей. Журнал append-only: строки никогда
// не обновляются, повторная доставка события того же счёта не должна
// создавать дубликат (уникальность по ProviderInvoiceID).
type Payment struct {
	ID                int64
	UserID            string
	AmountCents       int64
	Currency          string
	Status            PaymentStatus
	ProviderInvoiceID string
	CreatedAt         time.Time
}
