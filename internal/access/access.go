// Package access принимает решение о доступе по уже вычисленному праву доступа.
// Функции пакета чистые: не обращаются к хранилищу и ничего не кешируют.
package access

import "github.com/magabrotheeeer/entitlement-engine/internal/models"

// Decision: результат проверки доступа к тарифу.
type Decision struct {
	Allowed      bool   `json:"allowed"`
	CurrentTier  string `json:"current_tier"`
	RequiredTier string `json:"required_tier"`
}

// Check разрешает доступ, если уровень текущего тарифа не ниже требуемого.
// Сравниваются только числовые уровни.
func Check(ent models.Entitlement, required models.Plan) Decision {
	return Decision{
		Allowed:      ent.Level >= required.Level,
		CurrentTier:  ent.Tier,
		RequiredTier: required.ID,
	}
}

// HasFeature сообщает, доступна ли возможность в текущем тарифе.
func HasFeature(ent models.Entitlement, feature string) bool {
	return ent.HasFeature(feature)
}

// WithinLimit сообщает, можно ли создать ещё один ресурс при used уже созданных.
// Неизвестный лимит запрещает создание, models.Unlimited снимает ограничение.
func WithinLimit(ent models.Entitlement, limit string, used int64) bool {
	capacity, ok := ent.Limits[limit]
	if !ok {
		return false
	}
	if capacity == models.Unlimited {
		return true
	}
	return used < capacity
}

// FeatureDecision: результат проверки возможности тарифа.
type FeatureDecision struct {
	Allowed     bool   `json:"allowed"`
	Feature     string `json:"feature"`
	CurrentTier string `json:"current_tier"`
}

// CheckFeature проверяет, входит ли возможность в текущий тариф.
func CheckFeature(ent models.Entitlement, feature string) FeatureDecision {
	return FeatureDecision{
		Allowed:     HasFeature(ent, feature),
		Feature:     feature,
		CurrentTier: ent.Tier,
	}
}

// LimitDecision: результат проверки лимита ресурса.
// Capacity равен models.Unlimited, если тариф не ограничивает ресурс.
type LimitDecision struct {
	Allowed     bool   `json:"allowed"`
	Limit       string `json:"limit"`
	Capacity    int64  `json:"capacity"`
	Used        int64  `json:"used"`
	CurrentTier string `json:"current_tier"`
}

// CheckLimit проверяет, можно ли создать ещё один ресурс limit при used уже созданных.
func CheckLimit(ent models.Entitlement, limit string, used int64) LimitDecision {
	return LimitDecision{
		Allowed:     WithinLimit(ent, limit, used),
		Limit:       limit,
		Capacity:    ent.Limits[limit],
		Used:        used,
		CurrentTier: ent.Tier,
	}
}
