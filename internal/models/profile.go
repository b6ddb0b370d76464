package models

// Profile проекция профиля пользователя, которым владеет внешняя
// подсистема аутентификации. Биллинговое ядро читает email и locale,
// а обновляет только plan_id и stripe_customer_id.
type Profile struct {
	UserID           string  // UUID пользователя во внешней auth-подсистеме
	Email            string  // Электронная почта
	Locale           string  // Язык интерфейса: "en" или "lt"
	PlanID           int64   // Текущий план, зеркалирует подписку
	StripeCustomerID *string // Идентификатор клиента в платёжном шлюзе, nil до первого checkout
}

// HasPaymentMethod сообщает, заведён ли для пользователя клиент в платёжном шлюзе.
func (p Profile) HasPaymentMethod() bool {
	return p.StripeCustomerID != nil && *p.StripeCustomerID != ""
}
