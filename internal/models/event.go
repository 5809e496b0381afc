package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ключи маршрутизации событий жизненного цикла подписки.
const (
	EventSubscriptionCreated    = "subscription.created"
	EventSubscriptionUpgraded   = "subscription.upgraded"
	EventSubscriptionCancelled  = "subscription.cancelled"
	EventSubscriptionReconciled = "subscription.reconciled"
	EventPaymentRefunded        = "payment.refunded"
)

// Event: событие, публикуемое после фиксации изменения.
type Event struct {
	Type           string           `json:"type"`
	UserID         string           `json:"user_id,omitempty"`
	SubscriptionID string           `json:"subscription_id,omitempty"`
	PlanID         string           `json:"plan_id,omitempty"`
	PreviousPlanID string           `json:"previous_plan_id,omitempty"`
	PaymentID      string           `json:"payment_id,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Count          int              `json:"count,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}
