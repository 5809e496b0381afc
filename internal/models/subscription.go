// Package models содержит доменные структуры движка подписок: тарифный план,
// подписку пользователя, платёжную запись и вычисляемое право доступа (entitlement).
// Структуры используются в бизнес-логике, хранилище и HTTP-слое.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionStatus: хранимый статус подписки.
type SubscriptionStatus string

const (
	// StatusActive: подписка оплачена и действует.
	StatusActive SubscriptionStatus = "ACTIVE"
	// StatusCancelled: подписка отменена, но действует до EndDate (льготный период).
	StatusCancelled SubscriptionStatus = "CANCELLED"
	// StatusExpired: срок подписки истёк.
	StatusExpired SubscriptionStatus = "EXPIRED"
)

// BillingCycle: период оплаты подписки.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "MONTHLY"
	CycleYearly  BillingCycle = "YEARLY"
)

// Days возвращает длину платёжного цикла в днях: 30 для MONTHLY и 365 для YEARLY.
func (c BillingCycle) Days() int {
	if c == CycleYearly {
		return 365
	}
	return 30
}

// ParseBillingCycle разбирает строку периода оплаты без учёта регистра.
// Для неизвестного значения возвращает ошибку, совместимую с ErrValidation.
func ParseBillingCycle(s string) (BillingCycle, error) {
	switch BillingCycle(strings.ToUpper(strings.TrimSpace(s))) {
	case CycleMonthly:
		return CycleMonthly, nil
	case CycleYearly:
		return CycleYearly, nil
	default:
		return "", fmt.Errorf("%w: unknown billing cycle %q", ErrValidation, s)
	}
}

// Subscription представляет подписку пользователя на тарифный план.
// Записи никогда не удаляются физически и остаются для аудита.
type Subscription struct {
	ID           string             `json:"id"`
	UserID       string             `json:"user_id"`
	PlanID       string             `json:"plan_id"`
	Status       SubscriptionStatus `json:"status"`
	BillingCycle BillingCycle       `json:"billing_cycle"`
	Price        decimal.Decimal    `json:"price"`
	Currency     string             `json:"currency"`
	StartDate    time.Time          `json:"start_date"`
	EndDate      time.Time          `json:"end_date"`
	AutoRenew    bool               `json:"auto_renew"`
	CancelledAt  *time.Time         `json:"cancelled_at,omitempty"`
	CancelReason *string            `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ExpiredAt сообщает, истекла ли подписка к моменту now.
// Подписка считается истёкшей строго после EndDate, независимо от хранимого статуса.
func (s *Subscription) ExpiredAt(now time.Time) bool {
	return s.Status == StatusExpired || now.After(s.EndDate)
}

// Clone возвращает глубокую копию подписки.
func (s *Subscription) Clone() *Subscription {
	c := *s
	if s.CancelledAt != nil {
		t := *s.CancelledAt
		c.CancelledAt = &t
	}
	if s.CancelReason != nil {
		r := *s.CancelReason
		c.CancelReason = &r
	}
	return &c
}
