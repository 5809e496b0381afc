// Package proration вычисляет доплату при повышении тарифа в середине
// платёжного цикла. Функции пакета чистые и не обращаются к хранилищу.
package proration

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

const day = 24 * time.Hour

// Current: параметры действующей подписки, нужные для расчёта.
type Current struct {
	Price        decimal.Decimal
	BillingCycle models.BillingCycle
	EndDate      time.Time
}

// FromSubscription извлекает параметры расчёта из подписки.
func FromSubscription(s *models.Subscription) Current {
	return Current{
		Price:        s.Price,
		BillingCycle: s.BillingCycle,
		EndDate:      s.EndDate,
	}
}

// CycleDays возвращает длину платёжного цикла в днях.
func CycleDays(cycle models.BillingCycle) int {
	return cycle.Days()
}

// RemainingDays возвращает число оставшихся дней цикла, округлённое вверх
// и ограниченное отрезком [0, длина цикла].
func RemainingDays(cur Current, now time.Time) int {
	cycle := CycleDays(cur.BillingCycle)
	left := cur.EndDate.Sub(now)
	if left <= 0 {
		return 0
	}
	days := int(math.Ceil(float64(left) / float64(day)))
	if days > cycle {
		return cycle
	}
	return days
}

// Calculate возвращает сумму доплаты за переход на план с ценой newPrice.
// Результат округлён до копеек и никогда не бывает отрицательным; при нулевом
// остатке дней доплата равна нулю.
func Calculate(cur Current, newPrice decimal.Decimal, now time.Time) decimal.Decimal {
	remaining := RemainingDays(cur, now)
	if remaining == 0 {
		return decimal.Zero
	}
	cycle := decimal.NewFromInt(int64(CycleDays(cur.BillingCycle)))
	amount := newPrice.Sub(cur.Price).
		Mul(decimal.NewFromInt(int64(remaining))).
		Div(cycle).
		Round(2)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
