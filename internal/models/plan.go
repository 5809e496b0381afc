package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Unlimited обозначает отсутствие ограничения для ресурса.
const Unlimited int64 = -1

// Plan описывает тарифный план. Порядок тарифов задаётся числовым полем Level,
// строковые идентификаторы никогда не сравниваются между собой.
type Plan struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Level        int              `json:"level"`
	MonthlyPrice decimal.Decimal  `json:"monthly_price"`
	YearlyPrice  decimal.Decimal  `json:"yearly_price"`
	Limits       map[string]int64 `json:"limits"`
	Features     map[string]bool  `json:"-"`
}

// PriceFor возвращает цену плана для заданного периода оплаты.
func (p Plan) PriceFor(cycle BillingCycle) decimal.Decimal {
	if cycle == CycleYearly {
		return p.YearlyPrice
	}
	return p.MonthlyPrice
}

// FeatureList возвращает отсортированный список возможностей плана.
func (p Plan) FeatureList() []string {
	out := make([]string, 0, len(p.Features))
	for f, ok := range p.Features {
		if ok {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
