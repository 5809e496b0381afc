package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus: статус платёжной записи.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// PaymentKind описывает, каким переходом порождена запись.
type PaymentKind string

const (
	KindSubscription PaymentKind = "subscription"
	KindProration    PaymentKind = "proration"
	KindRefund       PaymentKind = "refund"
)

// PaymentRecord: запись журнала платежей. После перехода в COMPLETED не изменяется,
// возврат оформляется новой записью со ссылкой RefundOf на исходную.
type PaymentRecord struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         PaymentStatus   `json:"status"`
	Kind           PaymentKind     `json:"kind"`
	RefundOf       *string         `json:"refund_of,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
