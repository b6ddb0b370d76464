// Package models содержит доменные структуры биллингового ядра:
// тарифные планы, профили пользователей, подписки, платежи и уведомления.
package models

// BillingCycle период оплаты подписки.
type BillingCycle string

const (
	// BillingCycleMonthly ежемесячная оплата.
	BillingCycleMonthly BillingCycle = "monthly"
	// BillingCycleYearly ежегодная оплата.
	BillingCycleYearly BillingCycle = "yearly"
)

// Plan представляет тарифный план из каталога.
// Каталог read-only для биллингового ядра: планы создаются администратором,
// в течение платёжного цикла считаются неизменяемыми.
type Plan struct {
	ID                   int64  `json:"id"`
	Code                 string `json:"code"` // Уникальный код плана, например "free", "pro"
	Name                 string `json:"name"`
	PriceMonthlyCents    int64  `json:"price_monthly_cents"`
	PriceYearlyCents     int64  `json:"price_yearly_cents"`
	StripePriceMonthlyID string `json:"stripe_price_monthly_id"`
	StripePriceYearlyID  string `json:"stripe_price_yearly_id"`
	ProjectLimit         int    `json:"project_limit"`
	TaskLimit            int    `json:"task_limit"`
	Features             []byte `json:"-"` // Сырые jsonb-флаги, интерпретирует фронтенд
	IsActive             bool   `json:"is_active"`
}

// PriceIDFor возвращает внешний идентификатор цены для выбранного периода оплаты.
// Пустая строка означает, что цена для этого периода не настроена.
func (p Plan) PriceIDFor(cycle BillingCycle) string {
	if cycle == BillingCycleYearly {
		return p.StripePriceYearlyID
	}
	return p.StripePriceMonthlyID
}

// MatchesAmount сообщает, совпадает ли сумма в минимальных единицах валюты
// с месячной или годовой ценой плана. Сравнение не зависит от периода оплаты.
func (p Plan) MatchesAmount(amountCents int64) bool {
	if amountCents == 0 {
		return false
	}
	return amountCents == p.PriceMonthlyCents || amountCents == p.PriceYearlyCents
}
