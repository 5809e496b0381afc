// Package entitlement вычисляет право доступа пользователя из состояния его подписки.
// Право доступа не хранится и не кешируется: каждый вызов читает хранилище заново.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/magabrotheeeer/entitlement-engine/internal/lib/clock"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage"
)

// Reader читает текущую подписку пользователя.
type Reader interface {
	CurrentSubscription(ctx context.Context, userID string) (*models.Subscription, error)
}

// Catalog отдаёт описание тарифов.
type Catalog interface {
	Lookup(planID string) (models.Plan, error)
	Free() models.Plan
}

// Resolver строит Entitlement по правилам:
// нет подписки или срок истёк: FREE; ACTIVE: тариф подписки;
// CANCELLED до EndDate: тариф подписки в льготном периоде.
type Resolver struct {
	reader  Reader
	catalog Catalog
	clock   clock.Clock
	log     *slog.Logger
}

// NewResolver создаёт Resolver.
func NewResolver(reader Reader, catalog Catalog, clk clock.Clock, log *slog.Logger) *Resolver {
	return &Resolver{
		reader:  reader,
		catalog: catalog,
		clock:   clk,
		log:     log,
	}
}

// Resolve возвращает текущее право доступа пользователя.
func (r *Resolver) Resolve(ctx context.Context, userID string) (models.Entitlement, error) {
	ent, _, err := r.ResolveWith(ctx, r.reader, userID)
	return ent, err
}

// ResolveWith применяет те же правила к переданному reader (например, транзакционному)
// и возвращает подписку, на основании которой вынесено решение. Для бесплатного
// тарифа подписка равна nil.
func (r *Resolver) ResolveWith(ctx context.Context, reader Reader, userID string) (models.Entitlement, *models.Subscription, error) {
	const op = "services.entitlement.ResolveWith"

	if userID == "" {
		return models.Entitlement{}, nil, fmt.Errorf("%s: %w: empty user id", op, models.ErrValidation)
	}

	sub, err := reader.CurrentSubscription(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return r.free(userID), nil, nil
	}
	if err != nil {
		return models.Entitlement{}, nil, fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
	}

	now := r.clock.Now()
	if sub.ExpiredAt(now) {
		return r.free(userID), nil, nil
	}

	plan, err := r.catalog.Lookup(sub.PlanID)
	if err != nil {
		// Неизвестный план трактуется как бесплатный тариф.
		r.log.Error("subscription references unknown plan",
			slog.String("op", op),
			slog.String("subscription_id", sub.ID),
			slog.String("plan_id", sub.PlanID))
		return r.free(userID), nil, nil
	}

	expires := sub.EndDate
	ent := models.Entitlement{
		UserID:         userID,
		Tier:           plan.ID,
		Level:          plan.Level,
		Limits:         maps.Clone(plan.Limits),
		Features:       plan.FeatureList(),
		Status:         string(sub.Status),
		SubscriptionID: sub.ID,
		ExpiresAt:      &expires,
		InGracePeriod:  sub.Status == models.StatusCancelled,
	}
	return ent, sub, nil
}

func (r *Resolver) free(userID string) models.Entitlement {
	plan := r.catalog.Free()
	return models.Entitlement{
		UserID:   userID,
		Tier:     plan.ID,
		Level:    plan.Level,
		Limits:   maps.Clone(plan.Limits),
		Features: plan.FeatureList(),
		Status:   "FREE",
	}
}
