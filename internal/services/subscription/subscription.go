// Package subscription реализует автомат состояний подписки: оформление,
// повышение тарифа, отмену и сверку истёкших подписок. Каждая мутация
// выполняется под блокировкой пользователя в одной транзакции хранилища,
// вместе с записью в платёжный журнал.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/entitlement-engine/internal/access"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/clock"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/locker"
	"github.com/magabrotheeeer/entitlement-engine/internal/metrics"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/services/entitlement"
	"github.com/magabrotheeeer/entitlement-engine/internal/services/ledger"
	"github.com/magabrotheeeer/entitlement-engine/internal/services/proration"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage"
)

// ErrNoActiveSubscription: у пользователя нет ACTIVE подписки для операции,
// которая её требует. Совместима и с models.ErrNotFound, и с models.ErrInvalidTransition.
var ErrNoActiveSubscription = fmt.Errorf("no active subscription: %w: %w", models.ErrNotFound, models.ErrInvalidTransition)

const publishTimeout = 5 * time.Second

// Catalog: реестр тарифов.
type Catalog interface {
	Lookup(planID string) (models.Plan, error)
	IsUpgrade(fromLevel, toLevel int) bool
	Free() models.Plan
	KnownLimit(name string) bool
	KnownFeature(name string) bool
}

// Publisher публикует события после фиксации изменений.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// UpgradeResult: результат повышения тарифа.
type UpgradeResult struct {
	Subscription *models.Subscription  `json:"subscription"`
	Charged      decimal.Decimal       `json:"charged"`
	Payment      *models.PaymentRecord `json:"payment,omitempty"`
}

// Service: автомат состояний подписок.
type Service struct {
	catalog  Catalog
	store    storage.Store
	locker   locker.Locker
	resolver *entitlement.Resolver
	ledger   *ledger.Ledger
	clock    clock.Clock
	metrics  *metrics.Metrics
	events   Publisher
	currency string
	log      *slog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithClock задаёт источник времени.
func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithPublisher задаёт публикатор событий.
func WithPublisher(p Publisher) Option { return func(s *Service) { s.events = p } }

// WithCurrency задаёт валюту новых подписок.
func WithCurrency(currency string) Option { return func(s *Service) { s.currency = currency } }

// NewService создаёт Service. По умолчанию используются системные часы,
// незарегистрированные метрики, валюта USD и отсутствие публикации событий.
func NewService(log *slog.Logger, catalog Catalog, store storage.Store, lk locker.Locker, opts ...Option) *Service {
	s := &Service{
		catalog:  catalog,
		store:    store,
		locker:   lk,
		clock:    clock.Real{},
		currency: "USD",
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoop()
	}
	s.resolver = entitlement.NewResolver(store, catalog, s.clock, log)
	s.ledger = ledger.New(store, s.clock, log)
	return s
}

// Subscribe оформляет подписку: NONE или EXPIRED → ACTIVE. Наличие действующей
// подписки проверяется через Resolver, поэтому истёкшая ACTIVE запись не мешает
// оформлению и переводится в EXPIRED в той же транзакции.
func (s *Service) Subscribe(ctx context.Context, userID, planID string, cycle models.BillingCycle) (*models.Subscription, error) {
	const op = "services.subscription.Subscribe"
	log := s.log.With(slog.String("op", op), sl.User(userID))

	sub, err := s.subscribe(ctx, userID, planID, cycle)
	s.metrics.Transition("subscribe", err)
	if err != nil {
		log.Warn("subscribe rejected", slog.String("plan_id", planID), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("subscription created",
		slog.String("subscription_id", sub.ID),
		slog.String("plan_id", sub.PlanID),
		slog.String("billing_cycle", string(sub.BillingCycle)),
		sl.Money("price", sub.Price))
	s.publish(ctx, models.Event{
		Type:           models.EventSubscriptionCreated,
		UserID:         userID,
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		Amount:         &sub.Price,
		OccurredAt:     sub.CreatedAt,
	})
	return sub, nil
}

func (s *Service) subscribe(ctx context.Context, userID, planID string, cycle models.BillingCycle) (*models.Subscription, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", models.ErrValidation)
	}
	if cycle != models.CycleMonthly && cycle != models.CycleYearly {
		return nil, fmt.Errorf("%w: unknown billing cycle %q", models.ErrValidation, cycle)
	}
	plan, err := s.catalog.Lookup(planID)
	if err != nil {
		return nil, err
	}
	if plan.Level == s.catalog.Free().Level {
		return nil, fmt.Errorf("%w: %s is the default tier and cannot be subscribed to", models.ErrInvalidTransition, plan.ID)
	}

	var created *models.Subscription
	err = s.mutate(ctx, userID, func(ctx context.Context, q storage.Queries) error {
		now := s.clock.Now()

		if err := expireStale(ctx, q, userID, now); err != nil {
			return err
		}
		_, cur, err := s.resolver.ResolveWith(ctx, q, userID)
		if err != nil {
			return err
		}
		if cur != nil && cur.Status == models.StatusActive {
			return fmt.Errorf("%w: user already has active subscription %s", models.ErrConflict, cur.ID)
		}

		sub := &models.Subscription{
			ID:           uuid.NewString(),
			UserID:       userID,
			PlanID:       plan.ID,
			Status:       models.StatusActive,
			BillingCycle: cycle,
			Price:        plan.PriceFor(cycle),
			Currency:     s.currency,
			StartDate:    now,
			EndDate:      now.AddDate(0, 0, cycle.Days()),
			AutoRenew:    true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := q.CreateSubscription(ctx, sub); err != nil {
			if errors.Is(err, storage.ErrDuplicateActive) {
				return fmt.Errorf("%w: %w", models.ErrConflict, err)
			}
			return fmt.Errorf("%w: %w", models.ErrStorage, err)
		}

		if sub.Price.IsPositive() {
			if _, err := s.ledger.Append(ctx, q, models.PaymentRecord{
				SubscriptionID: sub.ID,
				Amount:         sub.Price,
				Currency:       sub.Currency,
				Status:         models.PaymentCompleted,
				Kind:           models.KindSubscription,
			}); err != nil {
				return err
			}
		}
		created = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// expireStale переводит в EXPIRED ACTIVE подписку пользователя, срок которой уже истёк,
// чтобы она не нарушала единственность ACTIVE при оформлении новой.
func expireStale(ctx context.Context, q storage.Queries, userID string, now time.Time) error {
	stored, err := q.CurrentSubscription(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	if stored.Status != models.StatusActive || !stored.ExpiredAt(now) {
		return nil
	}
	stored.Status = models.StatusExpired
	stored.UpdatedAt = now
	if err := q.UpdateSubscription(ctx, stored); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	return nil
}

// Upgrade повышает тариф действующей подписки: ACTIVE → ACTIVE. Даты подписки
// не меняются, за остаток цикла списывается доплата, если она больше нуля.
func (s *Service) Upgrade(ctx context.Context, userID, newPlanID string) (*UpgradeResult, error) {
	const op = "services.subscription.Upgrade"
	log := s.log.With(slog.String("op", op), sl.User(userID))

	res, prevPlan, err := s.upgrade(ctx, userID, newPlanID)
	s.metrics.Transition("upgrade", err)
	if err != nil {
		log.Warn("upgrade rejected", slog.String("plan_id", newPlanID), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.Charged(res.Charged)

	log.Info("subscription upgraded",
		slog.String("subscription_id", res.Subscription.ID),
		slog.String("from_plan", prevPlan),
		slog.String("to_plan", res.Subscription.PlanID),
		sl.Money("charged", res.Charged))
	event := models.Event{
		Type:           models.EventSubscriptionUpgraded,
		UserID:         userID,
		SubscriptionID: res.Subscription.ID,
		PlanID:         res.Subscription.PlanID,
		PreviousPlanID: prevPlan,
		Amount:         &res.Charged,
		OccurredAt:     res.Subscription.UpdatedAt,
	}
	if res.Payment != nil {
		event.PaymentID = res.Payment.ID
	}
	s.publish(ctx, event)
	return res, nil
}

func (s *Service) upgrade(ctx context.Context, userID, newPlanID string) (*UpgradeResult, string, error) {
	newPlan, err := s.catalog.Lookup(newPlanID)
	if err != nil {
		return nil, "", err
	}

	var (
		res      *UpgradeResult
		prevPlan string
	)
	err = s.mutate(ctx, userID, func(ctx context.Context, q storage.Queries) error {
		now := s.clock.Now()

		ent, cur, err := s.resolver.ResolveWith(ctx, q, userID)
		if err != nil {
			return err
		}
		if cur == nil || cur.Status != models.StatusActive {
			return ErrNoActiveSubscription
		}
		if !s.catalog.IsUpgrade(ent.Level, newPlan.Level) {
			return fmt.Errorf("%w: %s (level %d) is not above %s (level %d)",
				models.ErrInvalidTransition, newPlan.ID, newPlan.Level, ent.Tier, ent.Level)
		}

		newPrice := newPlan.PriceFor(cur.BillingCycle)
		amount := proration.Calculate(proration.FromSubscription(cur), newPrice, now)

		prevPlan = cur.PlanID
		cur.PlanID = newPlan.ID
		cur.Price = newPrice
		cur.UpdatedAt = now
		if err := q.UpdateSubscription(ctx, cur); err != nil {
			return fmt.Errorf("%w: %w", models.ErrStorage, err)
		}

		res = &UpgradeResult{Subscription: cur, Charged: amount}
		if amount.IsPositive() {
			rec, err := s.ledger.Append(ctx, q, models.PaymentRecord{
				SubscriptionID: cur.ID,
				Amount:         amount,
				Currency:       cur.Currency,
				Status:         models.PaymentCompleted,
				Kind:           models.KindProration,
			})
			if err != nil {
				return err
			}
			res.Payment = rec
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return res, prevPlan, nil
}

// Cancel отменяет подписку: ACTIVE → CANCELLED. Дата окончания не меняется,
// тариф действует до неё (льготный период).
func (s *Service) Cancel(ctx context.Context, userID, reason string) (*models.Subscription, error) {
	const op = "services.subscription.Cancel"
	log := s.log.With(slog.String("op", op), sl.User(userID))

	sub, err := s.cancel(ctx, userID, reason)
	s.metrics.Transition("cancel", err)
	if err != nil {
		log.Warn("cancel rejected", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("subscription cancelled",
		slog.String("subscription_id", sub.ID),
		slog.Time("end_date", sub.EndDate))
	s.publish(ctx, models.Event{
		Type:           models.EventSubscriptionCancelled,
		UserID:         userID,
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		OccurredAt:     *sub.CancelledAt,
	})
	return sub, nil
}

func (s *Service) cancel(ctx context.Context, userID, reason string) (*models.Subscription, error) {
	var cancelled *models.Subscription
	err := s.mutate(ctx, userID, func(ctx context.Context, q storage.Queries) error {
		now := s.clock.Now()

		_, cur, err := s.resolver.ResolveWith(ctx, q, userID)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("%w: no subscription to cancel", models.ErrNotFound)
		}
		if cur.Status == models.StatusCancelled {
			return fmt.Errorf("already cancelled: %w", ErrNoActiveSubscription)
		}

		cur.Status = models.StatusCancelled
		cur.AutoRenew = false
		cur.CancelledAt = &now
		if reason != "" {
			cur.CancelReason = &reason
		}
		cur.UpdatedAt = now
		if err := q.UpdateSubscription(ctx, cur); err != nil {
			return fmt.Errorf("%w: %w", models.ErrStorage, err)
		}
		cancelled = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// ReconcileExpired переводит в EXPIRED все ACTIVE и CANCELLED подписки с истёкшим
// сроком. Идемпотентна; корректность чтений от неё не зависит.
func (s *Service) ReconcileExpired(ctx context.Context) (int, error) {
	const op = "services.subscription.ReconcileExpired"

	now := s.clock.Now()
	n, err := s.store.ExpireSubscriptions(ctx, now)
	s.metrics.Transition("reconcile", err)
	if err != nil {
		s.log.Error("failed to reconcile expired subscriptions", slog.String("op", op), sl.Err(err))
		return 0, fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
	}
	s.metrics.Reconciled.Add(float64(n))

	s.log.Info("expired subscriptions reconciled", slog.String("op", op), slog.Int("count", n))
	if n > 0 {
		s.publish(ctx, models.Event{
			Type:       models.EventSubscriptionReconciled,
			Count:      n,
			OccurredAt: now,
		})
	}
	return n, nil
}

// ResolveEntitlement возвращает текущее право доступа пользователя.
func (s *Service) ResolveEntitlement(ctx context.Context, userID string) (models.Entitlement, error) {
	const op = "services.subscription.ResolveEntitlement"

	ent, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return models.Entitlement{}, fmt.Errorf("%s: %w", op, err)
	}
	return ent, nil
}

// CheckAccess сравнивает текущий тариф пользователя с требуемым.
func (s *Service) CheckAccess(ctx context.Context, userID, requiredTier string) (access.Decision, error) {
	const op = "services.subscription.CheckAccess"

	required, err := s.catalog.Lookup(requiredTier)
	if err != nil {
		return access.Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	ent, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return access.Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	d := access.Check(ent, required)
	s.metrics.AccessCheck(d.Allowed)
	return d, nil
}

// CheckFeature проверяет, входит ли возможность feature в текущий тариф пользователя.
// Неизвестная каталогу возможность считается ошибкой ввода.
func (s *Service) CheckFeature(ctx context.Context, userID, feature string) (access.FeatureDecision, error) {
	const op = "services.subscription.CheckFeature"

	if !s.catalog.KnownFeature(feature) {
		return access.FeatureDecision{}, fmt.Errorf("%s: %w: unknown feature %q", op, models.ErrValidation, feature)
	}
	ent, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return access.FeatureDecision{}, fmt.Errorf("%s: %w", op, err)
	}
	d := access.CheckFeature(ent, feature)
	s.metrics.AccessCheck(d.Allowed)
	return d, nil
}

// CheckLimit проверяет, может ли пользователь создать ещё один ресурс limit,
// если у него уже used таких ресурсов.
func (s *Service) CheckLimit(ctx context.Context, userID, limit string, used int64) (access.LimitDecision, error) {
	const op = "services.subscription.CheckLimit"

	if used < 0 {
		return access.LimitDecision{}, fmt.Errorf("%s: %w: negative usage", op, models.ErrValidation)
	}
	if !s.catalog.KnownLimit(limit) {
		return access.LimitDecision{}, fmt.Errorf("%s: %w: unknown limit %q", op, models.ErrValidation, limit)
	}
	ent, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return access.LimitDecision{}, fmt.Errorf("%s: %w", op, err)
	}
	d := access.CheckLimit(ent, limit, used)
	s.metrics.AccessCheck(d.Allowed)
	return d, nil
}

// History возвращает все подписки пользователя, включая отменённые и истёкшие.
func (s *Service) History(ctx context.Context, userID string) ([]*models.Subscription, error) {
	const op = "services.subscription.History"

	subs, err := s.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
	}
	if subs == nil {
		subs = []*models.Subscription{}
	}
	return subs, nil
}

// Payments возвращает платёжный журнал текущей подписки пользователя.
func (s *Service) Payments(ctx context.Context, userID string) ([]*models.PaymentRecord, error) {
	const op = "services.subscription.Payments"

	cur, err := s.store.CurrentSubscription(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return []*models.PaymentRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
	}
	recs, err := s.ledger.List(ctx, cur.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if recs == nil {
		recs = []*models.PaymentRecord{}
	}
	return recs, nil
}

// Payment возвращает платёжную запись пользователя. Запись чужой подписки
// не отличается от несуществующей.
func (s *Service) Payment(ctx context.Context, userID, paymentID string) (*models.PaymentRecord, error) {
	const op = "services.subscription.Payment"

	rec, err := s.ledger.Get(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	subs, err := s.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
	}
	for _, sub := range subs {
		if sub.ID == rec.SubscriptionID {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%s: payment %s: %w", op, paymentID, models.ErrNotFound)
}

// Refund оформляет возврат по платёжной записи.
func (s *Service) Refund(ctx context.Context, recordID string, amount decimal.Decimal) (*models.PaymentRecord, error) {
	const op = "services.subscription.Refund"

	rec, err := s.ledger.Refund(ctx, recordID, amount)
	s.metrics.Transition("refund", err)
	if err != nil {
		s.log.Warn("refund rejected", slog.String("op", op), slog.String("payment_id", recordID), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.publish(ctx, models.Event{
		Type:           models.EventPaymentRefunded,
		SubscriptionID: rec.SubscriptionID,
		PaymentID:      rec.ID,
		Amount:         &rec.Amount,
		OccurredAt:     rec.CreatedAt,
	})
	return rec, nil
}

// mutate выполняет fn под блокировкой пользователя в транзакции хранилища.
func (s *Service) mutate(ctx context.Context, userID string, fn func(ctx context.Context, q storage.Queries) error) error {
	key := locker.SubscriptionKey(userID)

	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: acquire lock: %w", models.ErrStorage, err)
	}
	defer unlock()

	if err := s.store.InTx(ctx, key, fn); err != nil {
		if models.IsDomain(err) {
			return err
		}
		return fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	return nil
}

// publish отправляет событие без отката уже зафиксированного изменения.
func (s *Service) publish(ctx context.Context, event models.Event) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("failed to publish event", slog.String("type", event.Type), sl.Err(err))
	}
}
