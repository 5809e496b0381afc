package models

import "time"

// Entitlement: вычисляемое право доступа пользователя. Не хранится,
// строится заново при каждом чтении из состояния подписки.
type Entitlement struct {
	UserID         string           `json:"user_id"`
	Tier           string           `json:"tier"`
	Level          int              `json:"level"`
	Limits         map[string]int64 `json:"limits"`
	Features       []string         `json:"features"`
	Status         string           `json:"status"`
	SubscriptionID string           `json:"subscription_id,omitempty"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
	InGracePeriod  bool             `json:"in_grace_period"`
}

// HasFeature сообщает, входит ли возможность в текущий тариф.
func (e Entitlement) HasFeature(name string) bool {
	for _, f := range e.Features {
		if f == name {
			return true
		}
	}
	return false
}
