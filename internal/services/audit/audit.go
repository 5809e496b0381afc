// Package audit записывает события жизненного цикла подписок в журнал аудита.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/metrics"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

const unknownType = "unknown"

var knownTypes = map[string]struct{}{
	models.EventSubscriptionCreated:    {},
	models.EventSubscriptionUpgraded:   {},
	models.EventSubscriptionCancelled:  {},
	models.EventSubscriptionReconciled: {},
	models.EventPaymentRefunded:        {},
}

// Auditor пишет каждое событие отдельной записью структурированного лога.
type Auditor struct {
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New создаёт Auditor.
func New(log *slog.Logger, m *metrics.Metrics) *Auditor {
	return &Auditor{
		log:     log,
		metrics: m,
	}
}

// Handle записывает событие. Событие неизвестного типа записывается с предупреждением
// и не возвращается в очередь. Ошибка возвращается только при отменённом ctx.
func (a *Auditor) Handle(ctx context.Context, e models.Event) error {
	const op = "services.audit.Handle"

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	attrs := []any{
		slog.String("op", op),
		slog.String("type", e.Type),
		slog.Time("occurred_at", e.OccurredAt),
	}
	if e.UserID != "" {
		attrs = append(attrs, sl.User(e.UserID))
	}
	if e.SubscriptionID != "" {
		attrs = append(attrs, slog.String("subscription_id", e.SubscriptionID))
	}
	if e.PlanID != "" {
		attrs = append(attrs, slog.String("plan_id", e.PlanID))
	}
	if e.PreviousPlanID != "" {
		attrs = append(attrs, slog.String("previous_plan_id", e.PreviousPlanID))
	}
	if e.PaymentID != "" {
		attrs = append(attrs, slog.String("payment_id", e.PaymentID))
	}
	if e.Amount != nil {
		attrs = append(attrs, sl.Money("amount", *e.Amount))
	}
	if e.Count > 0 {
		attrs = append(attrs, slog.Int("count", e.Count))
	}

	if _, ok := knownTypes[e.Type]; !ok {
		a.log.Warn("unknown lifecycle event", attrs...)
		a.metrics.Audited(unknownType)
		return nil
	}
	a.log.Info("lifecycle event", attrs...)
	a.metrics.Audited(e.Type)
	return nil
}
