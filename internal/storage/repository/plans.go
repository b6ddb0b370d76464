package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskflowhq/billing-service/internal/models"
)

// ErrNotFound возвращается, когда запрошенная строка отсутствует в базе.
var ErrNotFound = errors.New("not found")

const planColumns = `id, code, name, price_monthly_cents, price_yearly_cents,
			      stripe_price_monthly_id, stripe_price_yearly_id,
			      project_limit, task_limit, features, is_active`

func scanPlan(row interface{ Scan(...any) error }) (*models.Plan, error) {
	var p models.Plan
	var monthlyID, yearlyID sql.NullString
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.PriceMonthlyCents, &p.PriceYearlyCents,
		&monthlyID, &yearlyID, &p.ProjectLimit, &p.TaskLimit, &p.Features, &p.IsActive); err != nil {
		return nil, err
	}
	p.StripePriceMonthlyID = monthlyID.String
	p.StripePriceYearlyID = yearlyID.String
	return &p, nil
}

// ListActivePlans возвращает все активные планы каталога.
func (s *Storage) ListActivePlans(ctx context.Context) ([]*models.Plan, error) {
	const op = "storage.ListActivePlans"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + planColumns + `
			  FROM plans
			  WHERE is_active = true
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetPlanByID возвращает план по его идентификатору.
func (s *Storage) GetPlanByID(ctx context.Context, id int64) (*models.Plan, error) {
	const op = "storage.GetPlanByID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`
	p, err := scanPlan(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetPlanByCode возвращает план по его уникальному коду, например "free".
func (s *Storage) GetPlanByCode(ctx context.Context, code string) (*models.Plan, error) {
	const op = "storage.GetPlanByCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + planColumns + ` FROM plans WHERE code = $1`
	p, err := scanPlan(s.DB.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}
