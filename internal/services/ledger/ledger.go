// Package ledger ведёт журнал платежей только на добавление. Завершённые записи
// не изменяются: возврат оформляется новой записью, ссылающейся на исходную.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/entitlement-engine/internal/lib/clock"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage"
)

// Writer добавляет запись в журнал. Реализуется storage.Queries внутри транзакции.
type Writer interface {
	AppendPayment(ctx context.Context, rec *models.PaymentRecord) error
}

// Ledger: платёжный журнал.
type Ledger struct {
	store storage.Store
	clock clock.Clock
	log   *slog.Logger
}

// New создаёт Ledger.
func New(store storage.Store, clk clock.Clock, log *slog.Logger) *Ledger {
	return &Ledger{
		store: store,
		clock: clk,
		log:   log,
	}
}

// Append дополняет запись идентификатором и временем создания и сохраняет её через w.
// Используется автоматом состояний внутри его транзакции.
func (l *Ledger) Append(ctx context.Context, w Writer, rec models.PaymentRecord) (*models.PaymentRecord, error) {
	const op = "services.ledger.Append"

	if rec.SubscriptionID == "" {
		return nil, fmt.Errorf("%s: %w: subscription id is required", op, models.ErrValidation)
	}
	if rec.Amount.IsNegative() {
		return nil, fmt.Errorf("%s: %w: negative amount", op, models.ErrValidation)
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = l.clock.Now()
	if rec.Status == "" {
		rec.Status = models.PaymentCompleted
	}
	if err := w.AppendPayment(ctx, &rec); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
	}
	return &rec, nil
}

// Refund оформляет частичный или полный возврат по платежу recordID.
// Исходная запись должна быть COMPLETED и не быть возвратом, а сумма
// возвратов не может превысить сумму платежа.
func (l *Ledger) Refund(ctx context.Context, recordID string, amount decimal.Decimal) (*models.PaymentRecord, error) {
	const op = "services.ledger.Refund"

	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%s: %w: refund amount must be positive", op, models.ErrValidation)
	}
	if _, err := uuid.Parse(recordID); err != nil {
		return nil, fmt.Errorf("%s: payment %s: %w", op, recordID, models.ErrNotFound)
	}

	var refund *models.PaymentRecord
	err := l.store.InTx(ctx, "payment:"+recordID, func(ctx context.Context, q storage.Queries) error {
		orig, err := q.GetPayment(ctx, recordID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: payment %s: %w", op, recordID, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
		}
		if orig.Kind == models.KindRefund || orig.Status != models.PaymentCompleted {
			return fmt.Errorf("%s: %w: payment %s is not refundable", op, models.ErrValidation, recordID)
		}

		refunded, err := q.RefundedTotal(ctx, recordID)
		if err != nil {
			return fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
		}
		available := orig.Amount.Sub(refunded)
		if amount.GreaterThan(available) {
			return fmt.Errorf("%s: %w: refund %s exceeds available %s", op, models.ErrValidation,
				amount.StringFixed(2), available.StringFixed(2))
		}

		ref := orig.ID
		refund, err = l.Append(ctx, q, models.PaymentRecord{
			SubscriptionID: orig.SubscriptionID,
			Amount:         amount,
			Currency:       orig.Currency,
			Status:         models.PaymentRefunded,
			Kind:           models.KindRefund,
			RefundOf:       &ref,
		})
		return err
	})
	if err != nil {
		if models.IsDomain(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
	}

	l.log.Info("payment refunded",
		slog.String("op", op),
		slog.String("payment_id", recordID),
		slog.String("refund_id", refund.ID),
		sl.Money("amount", amount))
	return refund, nil
}

// List возвращает журнал по подписке в порядке создания.
func (l *Ledger) List(ctx context.Context, subscriptionID string) ([]*models.PaymentRecord, error) {
	const op = "services.ledger.List"

	recs, err := l.store.ListPayments(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
	}
	return recs, nil
}

// Get возвращает одну запись журнала.
func (l *Ledger) Get(ctx context.Context, recordID string) (*models.PaymentRecord, error) {
	const op = "services.ledger.Get"

	if _, err := uuid.Parse(recordID); err != nil {
		return nil, fmt.Errorf("%s: payment %s: %w", op, recordID, models.ErrNotFound)
	}
	rec, err := l.store.GetPayment(ctx, recordID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: payment %s: %w", op, recordID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
	}
	return rec, nil
}
