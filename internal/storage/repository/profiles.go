package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskflowhq/billing-service/internal/models"
)

const profileColumns = `user_id, email, locale, plan_id, stripe_customer_id`

func scanProfile(row interface{ Scan(...any) error }) (*models.Profile, error) {
	var p models.Profile
	var customerID sql.NullString
	if err := row.Scan(&p.UserID, &p.Email, &p.Locale, &p.PlanID, &customerID); err != nil {
		return nil, err
	}
	if customerID.Valid {
		p.StripeCustomerID = &customerID.String
	}
	return &p, nil
}

// GetProfile возвращает профиль пользователя по его UUID.
func (s *Storage) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	const op = "storage.GetProfile"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	p, err := scanProfile(s.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetProfileByCustomerID возвращает профиль по идентификатору клиента
// в платёжном шлюзе. Используется вебхуками для восстановления владельца.
func (s *Storage) GetProfileByCustomerID(ctx context.Context, customerID string) (*models.Profile, error) {
	const op = "storage.GetProfileByCustomerID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE stripe_customer_id = $1`
	p, err := scanProfile(s.DB.QueryRowContext(ctx, query, customerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// UpdateProfilePlan зеркалирует план подписки на профиль пользователя.
func (s *Storage) UpdateProfilePlan(ctx context.Context, userID string, planID int64) error {
	const op = "storage.UpdateProfilePlan"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE profiles SET plan_id = $1 WHERE user_id = $2`
	if _, err := s.DB.ExecContext(ctx, query, planID, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetProfileCustomerID сохраняет идентификатор клиента шлюза после первого checkout.
func (s *Storage) SetProfileCustomerID(ctx context.Context, userID, customerID string) error {
	const op = "storage.SetProfileCustomerID"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE profiles SET stripe_customer_id = $1 WHERE user_id = $2`
	if _, err := s.DB.ExecContext(ctx, query, customerID, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
