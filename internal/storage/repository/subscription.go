package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage"
)

const subscriptionColumns = `id, user_id, plan_id, status, billing_cycle, price, currency,
	start_date, end_date, auto_renew, cancelled_at, cancel_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub          models.Subscription
		cancelledAt  sql.NullTime
		cancelReason sql.NullString
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &sub.BillingCycle,
		&sub.Price, &sub.Currency, &sub.StartDate, &sub.EndDate, &sub.AutoRenew,
		&cancelledAt, &cancelReason, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.StartDate = sub.StartDate.UTC()
	sub.EndDate = sub.EndDate.UTC()
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	sub.CancelledAt = nullTime(cancelledAt)
	sub.CancelReason = nullString(cancelReason)
	return &sub, nil
}

// CurrentSubscription возвращает ACTIVE подписку пользователя или последнюю отменённую.
func (q *queries) CurrentSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	const op = "storage.repository.CurrentSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1 AND status IN ('ACTIVE', 'CANCELLED')
			  ORDER BY (status = 'ACTIVE') DESC, end_date DESC
			  LIMIT 1` + q.lockClause()

	sub, err := scanSubscription(q.q.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// ListSubscriptions возвращает все подписки пользователя, начиная с последней.
func (q *queries) ListSubscriptions(ctx context.Context, userID string) ([]*models.Subscription, error) {
	const op = "storage.repository.ListSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1
			  ORDER BY created_at DESC, id`
	rows, err := q.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateSubscription сохраняет новую подписку. Вторая ACTIVE подписка
// пользователя отклоняется с storage.ErrDuplicateActive.
func (q *queries) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "storage.repository.CreateSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscriptions (` + subscriptionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := q.q.ExecContext(ctx, query,
		sub.ID, sub.UserID, sub.PlanID, string(sub.Status), string(sub.BillingCycle),
		sub.Price, sub.Currency, sub.StartDate, sub.EndDate, sub.AutoRenew,
		toNullTime(sub.CancelledAt), toNullString(sub.CancelReason), sub.CreatedAt, sub.UpdatedAt)
	if isActiveUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrDuplicateActive)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateSubscription обновляет изменяемые поля подписки. Даты начала и создания не меняются.
func (q *queries) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "storage.repository.UpdateSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET plan_id = $2, status = $3, price = $4, end_date = $5, auto_renew = $6,
			      cancelled_at = $7, cancel_reason = $8, updated_at = $9
			  WHERE id = $1`
	result, err := q.q.ExecContext(ctx, query,
		sub.ID, sub.PlanID, string(sub.Status), sub.Price, sub.EndDate, sub.AutoRenew,
		toNullTime(sub.CancelledAt), toNullString(sub.CancelReason), sub.UpdatedAt)
	if isActiveUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrDuplicateActive)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// ExpireSubscriptions одним запросом переводит просроченные подписки в EXPIRED.
func (q *queries) ExpireSubscriptions(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.repository.ExpireSubscriptions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = 'EXPIRED', updated_at = $1
			  WHERE status IN ('ACTIVE', 'CANCELLED') AND end_date < $1`
	result, err := q.q.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(affected), nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
