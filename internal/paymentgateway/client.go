// Package paymentgateway оборачивает API платёжного процессора Stripe:
// клиенты, checkout-сессии, подписки и портал самообслуживания.
//
// Клиент намеренно тонкий: ретраев нет, ошибки внешнего API возвращаются
// вызывающей стороне как есть. Если секретный ключ не настроен, каждая
// операция сразу завершается ErrGatewayDisabled без сетевых вызовов.
package paymentgateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v76"
	portalsession "github.com/stripe/stripe-go/v76/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/subscription"
)

// ErrGatewayDisabled возвращается, когда секретный ключ шлюза не настроен.
var ErrGatewayDisabled = errors.New("payment gateway is not configured")

// ErrNoActiveSubscription возвращается, когда у клиента нет активной
// подписки на стороне шлюза и смена плана невозможна.
var ErrNoActiveSubscription = errors.New("no active gateway subscription")

// Client клиент платёжного шлюза.
type Client struct {
	enabled bool
	log     *slog.Logger
}

// CheckoutSession результат создания checkout-сессии: идентификатор
// сессии и URL для редиректа пользователя.
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// NewClient создаёт клиент шлюза. Пустой secretKey даёт выключенный клиент.
func NewClient(secretKey string, log *slog.Logger) *Client {
	if secretKey == "" {
		log.Warn("stripe secret key is not set, billing gateway disabled")
		return &Client{enabled: false, log: log}
	}
	stripe.Key = secretKey
	return &Client{enabled: true, log: log}
}

// Enabled сообщает, настроен ли шлюз.
func (c *Client) Enabled() bool {
	return c.enabled
}

// CreateCustomer создаёт клиента в шлюзе и возвращает его идентификатор.
// UUID пользователя кладётся в metadata, чтобы вебхуки могли восстановить
// владельца без обратного поиска по базе.
func (c *Client) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	const op = "paymentgateway.CreateCustomer"
	if !c.enabled {
		return "", fmt.Errorf("%s: %w", op, ErrGatewayDisabled)
	}

	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
	}
	params.AddMetadata("user_id", userID)

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession создаёт checkout-сессию в режиме подписки.
func (c *Client) CreateCheckoutSession(ctx context.Context, customerID, priceID, userID, successURL, cancelURL string) (*CheckoutSession, error) {
	const op = "paymentgateway.CreateCheckoutSession"
	if !c.enabled {
		return nil, fmt.Errorf("%s: %w", op, ErrGatewayDisabled)
	}

	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Customer:   stripe.String(customerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": userID},
		},
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePortalSession создаёт сессию биллинг-портала и возвращает URL редиректа.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	const op = "paymentgateway.CreatePortalSession"
	if !c.enabled {
		return "", fmt.Errorf("%s: %w", op, ErrGatewayDisabled)
	}

	sess, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return sess.URL, nil
}

// FindActiveSubscription возвращает первую активную подписку клиента
// или ErrNoActiveSubscription, если таких нет.
func (c *Client) FindActiveSubscription(ctx context.Context, customerID string) (*stripe.Subscription, error) {
	const op = "paymentgateway.FindActiveSubscription"
	if !c.enabled {
		return nil, fmt.Errorf("%s: %w", op, ErrGatewayDisabled)
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := subscription.List(params)
	for iter.Next() {
		return iter.Subscription(), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return nil, fmt.Errorf("%s: %w", op, ErrNoActiveSubscription)
}

// UpdateSubscriptionPrice меняет цену позиции подписки с пропорциональным
// перерасчётом и возвращает обновлённую подписку шлюза.
func (c *Client) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*stripe.Subscription, error) {
	const op = "paymentgateway.UpdateSubscriptionPrice"
	if !c.enabled {
		return nil, fmt.Errorf("%s: %w", op, ErrGatewayDisabled)
	}

	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
		Items: []*stripe.SubscriptionItemsParams{{
			ID:    stripe.String(itemID),
			Price: stripe.String(priceID),
		}},
		ProrationBehavior: stripe.String("create_prorations"),
	}

	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}
