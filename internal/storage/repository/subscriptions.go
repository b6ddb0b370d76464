package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskflowhq/billing-service/internal/models"
)

func scanSubscription(row interface{ Scan(...any) error }) (*models.Subscription, error) {
	var sub models.Subscription
	var gatewayID sql.NullString
	var canceledAt sql.NullTime
	if err := row.Scan(&sub.UserID, &sub.PlanID, &sub.Status, &sub.BillingMode, &gatewayID,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd, &canceledAt); err != nil {
		return nil, err
	}
	sub.GatewaySubscriptionID = gatewayID.String
	if canceledAt.Valid {
		sub.CanceledAt = &canceledAt.Time
	}
	return &sub, nil
}

// UpsertSubscription атомарно создаёт или обновляет строку подписки
// пользователя. Ключ конфликта user_id гарантирует не более одной строки
// на пользователя при конкурентных доставках вебхуков.
func (s *Storage) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	const op = "storage.UpsertSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var gatewayID any
	if sub.GatewaySubscriptionID != "" {
		gatewayID = sub.GatewaySubscriptionID
	}
	query := `INSERT INTO subscriptions (user_id, plan_id, status, billing_mode,
			      gateway_subscription_id, current_period_start, current_period_end,
			      cancel_at_period_end, canceled_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  ON CONFLICT (user_id) DO UPDATE SET
			      plan_id = EXCLUDED.plan_id,
			      status = EXCLUDED.status,
			      billing_mode = EXCLUDED.billing_mode,
			      gateway_subscription_id = EXCLUDED.gateway_subscription_id,
			      current_period_start = EXCLUDED.current_period_start,
			      current_period_end = EXCLUDED.current_period_end,
			      cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			      canceled_at = EXCLUDED.canceled_at`
	_, err := s.DB.ExecContext(ctx, query,
		sub.UserID, sub.PlanID, sub.Status, sub.BillingMode, gatewayID,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.CanceledAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetSubscriptionByUserID возвращает подписку пользователя.
func (s *Storage) GetSubscriptionByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByUserID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, plan_id, status, billing_mode, gateway_subscription_id,
			      current_period_start, current_period_end, cancel_at_period_end, canceled_at
			  FROM subscriptions WHERE user_id = $1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// UpdateSubscriptionStatus меняет только статус подписки пользователя.
func (s *Storage) UpdateSubscriptionStatus(ctx context.Context, userID string, status models.SubscriptionStatus) error {
	const op = "storage.UpdateSubscriptionStatus"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions SET status = $1 WHERE user_id = $2`
	if _, err := s.DB.ExecContext(ctx, query, status, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DowngradeSubscription переводит подписку на указанный план со статусом
// canceled. Управление возвращается внутрь: связь с шлюзом обнуляется,
// подписка перестаёт быть зоной ответственности платёжного процессора.
func (s *Storage) DowngradeSubscription(ctx context.Context, userID string, planID int64, canceledAt time.Time) error {
	const op = "storage.DowngradeSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET plan_id = $1,
			      status = $2,
			      billing_mode = $3,
			      gateway_subscription_id = NULL,
			      cancel_at_period_end = false,
			      canceled_at = $4
			  WHERE user_id = $5`
	_, err := s.DB.ExecContext(ctx, query,
		planID, models.StatusCanceled, models.BillingModeInternal, canceledAt, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

const expiringColumns = `s.user_id, s.plan_id, s.status, s.billing_mode, s.gateway_subscription_id,
			      s.current_period_start, s.current_period_end, s.cancel_at_period_end, s.canceled_at,
			      pr.email, pr.locale, pl.name,
			      (pr.stripe_customer_id IS NOT NULL) AS has_payment_method`

func (s *Storage) queryExpiring(ctx context.Context, op, query string, args ...any) ([]*models.ExpiringSubscription, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.ExpiringSubscription
	for rows.Next() {
		var item models.ExpiringSubscription
		var gatewayID sql.NullString
		var canceledAt sql.NullTime
		if err := rows.Scan(&item.UserID, &item.PlanID, &item.Status, &item.BillingMode, &gatewayID,
			&item.CurrentPeriodStart, &item.CurrentPeriodEnd, &item.CancelAtPeriodEnd, &canceledAt,
			&item.Email, &item.Locale, &item.PlanName, &item.HasPaymentMethod); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		item.GatewaySubscriptionID = gatewayID.String
		if canceledAt.Valid {
			item.CanceledAt = &canceledAt.Time
		}
		result = append(result, &item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// FindInternalExpiringBetween находит внутренние подписки в статусе
// trialing или active, чей период заканчивается в полуинтервале (after, until].
// Подписки, которыми управляет шлюз, исключаются: их напоминаниями и
// продлением занимается сам платёжный процессор.
func (s *Storage) FindInternalExpiringBetween(ctx context.Context, after, until time.Time) ([]*models.ExpiringSubscription, error) {
	const op = "storage.FindInternalExpiringBetween"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + expiringColumns + `
			  FROM subscriptions s
			  JOIN profiles pr ON pr.user_id = s.user_id
			  JOIN plans pl ON pl.id = s.plan_id
			  WHERE s.billing_mode = 'internal'
			    AND s.status IN ('trialing', 'active')
			    AND s.current_period_end > $1
			    AND s.current_period_end <= $2
			  ORDER BY s.current_period_end`
	return s.queryExpiring(ctx, op, query, after, until)
}

// FindInternalExpired находит внутренние подписки с истёкшим периодом.
func (s *Storage) FindInternalExpired(ctx context.Context, now time.Time) ([]*models.ExpiringSubscription, error) {
	const op = "storage.FindInternalExpired"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + expiringColumns + `
			  FROM subscriptions s
			  JOIN profiles pr ON pr.user_id = s.user_id
			  JOIN plans pl ON pl.id = s.plan_id
			  WHERE s.billing_mode = 'internal'
			    AND s.status IN ('trialing', 'active')
			    AND s.current_period_end < $1
			  ORDER BY s.current_period_end`
	return s.queryExpiring(ctx, op, query, now)
}
