package repository

import (
	"context"
	"fmt"

	"github.com/taskflowhq/billing-service/internal/models"
)

// CreatePayment добавляет строку в журнал платежей. Журнал append-only;
// уникальный индекс по provider_invoice_id делает вставку идемпотентной:
// повторная доставка того же события счёта не создаёт дубликат.
// Возвращает true, если строка действительно была добавлена.
func (s *Storage) CreatePayment(ctx context.Context, payment models.Payment) (bool, error) {
	const op = "storage.CreatePayment"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payments (user_id, amount_cents, currency, status, provider_invoice_id)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (provider_invoice_id) DO NOTHING`
	result, err := s.DB.ExecContext(ctx, query,
		payment.UserID, payment.AmountCents, payment.Currency, payment.Status, payment.ProviderInvoiceID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected > 0, nil
}

// ListPayments возвращает журнал платежей пользователя, новые записи первыми.
func (s *Storage) ListPayments(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, error) {
	const op = "storage.ListPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, amount_cents, currency, status, provider_invoice_id, created_at
			  FROM payments
			  WHERE user_id = $1
			  ORDER BY created_at DESC
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Payment
	for rows.Next() {
		var item models.Payment
		if err := rows.Scan(&item.ID, &item.UserID, &item.AmountCents, &item.Currency,
			&item.Status, &item.ProviderInvoiceID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
