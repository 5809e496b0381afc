package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage"
)

const paymentColumns = `id, subscription_id, amount, currency, status, kind, refund_of, created_at`

func scanPayment(row rowScanner) (*models.PaymentRecord, error) {
	var (
		rec      models.PaymentRecord
		refundOf sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.SubscriptionID, &rec.Amount, &rec.Currency,
		&rec.Status, &rec.Kind, &refundOf, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.RefundOf = nullString(refundOf)
	return &rec, nil
}

// AppendPayment добавляет запись в платёжный журнал. Записи не обновляются.
func (q *queries) AppendPayment(ctx context.Context, rec *models.PaymentRecord) error {
	const op = "storage.repository.AppendPayment"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payments (` + paymentColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := q.q.ExecContext(ctx, query,
		rec.ID, rec.SubscriptionID, rec.Amount, rec.Currency,
		string(rec.Status), string(rec.Kind), toNullString(rec.RefundOf), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetPayment возвращает платёжную запись по ID.
func (q *queries) GetPayment(ctx context.Context, id string) (*models.PaymentRecord, error) {
	const op = "storage.repository.GetPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1` + q.lockClause()
	rec, err := scanPayment(q.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// RefundedTotal возвращает сумму возвратов, оформленных по платежу.
func (q *queries) RefundedTotal(ctx context.Context, paymentID string) (decimal.Decimal, error) {
	const op = "storage.repository.RefundedTotal"
	select {
	case <-ctx.Done():
		return decimal.Zero, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE refund_of = $1 AND kind = 'refund'`
	var total decimal.Decimal
	if err := q.q.QueryRowContext(ctx, query, paymentID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	return total, nil
}

// ListPayments возвращает записи журнала по подписке в порядке создания.
func (q *queries) ListPayments(ctx context.Context, subscriptionID string) ([]*models.PaymentRecord, error) {
	const op = "storage.repository.ListPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + `
			  FROM payments
			  WHERE subscription_id = $1
			  ORDER BY created_at, id`
	rows, err := q.q.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.PaymentRecord
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
