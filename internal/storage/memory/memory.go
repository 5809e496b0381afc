// Package memory реализует storage.Store в памяти процесса. Используется в тестах
// и при локальном запуске без PostgreSQL. Транзакция работает над копией данных,
// которая подменяет оригинал только при успешном завершении.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage"
)

type state struct {
	subs     map[string]*models.Subscription
	payments map[string]*models.PaymentRecord
}

func (s *state) clone() *state {
	c := &state{
		subs:     make(map[string]*models.Subscription, len(s.subs)),
		payments: make(map[string]*models.PaymentRecord, len(s.payments)),
	}
	for id, sub := range s.subs {
		c.subs[id] = sub.Clone()
	}
	for id, rec := range s.payments {
		c.payments[id] = clonePayment(rec)
	}
	return c
}

// Storage: хранилище в памяти. Транзакции выполняются строго последовательно.
type Storage struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *state
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		data: &state{
			subs:     make(map[string]*models.Subscription),
			payments: make(map[string]*models.PaymentRecord),
		},
	}
}

// InTx выполняет fn над копией данных. Ключ блокировки не используется:
// все транзакции и так сериализованы.
func (s *Storage) InTx(ctx context.Context, _ string, fn func(ctx context.Context, q storage.Queries) error) error {
	const op = "storage.memory.InTx"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	staged := s.data.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &tx{st: staged}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = staged
	s.mu.Unlock()
	return nil
}

func (s *Storage) read(fn func(q *tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.data})
}

func (s *Storage) write(fn func(q *tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&tx{st: s.data})
}

// CurrentSubscription возвращает ACTIVE подписку или последнюю отменённую.
func (s *Storage) CurrentSubscription(ctx context.Context, userID string) (sub *models.Subscription, err error) {
	err = s.read(func(q *tx) error {
		sub, err = q.CurrentSubscription(ctx, userID)
		return err
	})
	return sub, err
}

// ListSubscriptions возвращает все подписки пользователя.
func (s *Storage) ListSubscriptions(ctx context.Context, userID string) (subs []*models.Subscription, err error) {
	err = s.read(func(q *tx) error {
		subs, err = q.ListSubscriptions(ctx, userID)
		return err
	})
	return subs, err
}

// CreateSubscription сохраняет подписку вне явной транзакции.
func (s *Storage) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return s.write(func(q *tx) error { return q.CreateSubscription(ctx, sub) })
}

// UpdateSubscription обновляет подписку вне явной транзакции.
func (s *Storage) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	return s.write(func(q *tx) error { return q.UpdateSubscription(ctx, sub) })
}

// ExpireSubscriptions переводит просроченные подписки в EXPIRED.
func (s *Storage) ExpireSubscriptions(ctx context.Context, now time.Time) (n int, err error) {
	err = s.write(func(q *tx) error {
		n, err = q.ExpireSubscriptions(ctx, now)
		return err
	})
	return n, err
}

// AppendPayment добавляет платёжную запись.
func (s *Storage) AppendPayment(ctx context.Context, rec *models.PaymentRecord) error {
	return s.write(func(q *tx) error { return q.AppendPayment(ctx, rec) })
}

// GetPayment возвращает платёжную запись.
func (s *Storage) GetPayment(ctx context.Context, id string) (rec *models.PaymentRecord, err error) {
	err = s.read(func(q *tx) error {
		rec, err = q.GetPayment(ctx, id)
		return err
	})
	return rec, err
}

// RefundedTotal возвращает сумму возвратов по платежу.
func (s *Storage) RefundedTotal(ctx context.Context, paymentID string) (total decimal.Decimal, err error) {
	err = s.read(func(q *tx) error {
		total, err = q.RefundedTotal(ctx, paymentID)
		return err
	})
	return total, err
}

// ListPayments возвращает записи журнала по подписке.
func (s *Storage) ListPayments(ctx context.Context, subscriptionID string) (recs []*models.PaymentRecord, err error) {
	err = s.read(func(q *tx) error {
		recs, err = q.ListPayments(ctx, subscriptionID)
		return err
	})
	return recs, err
}

// tx работает над одним снимком состояния. Возвращаемые значения всегда копии.
type tx struct {
	st *state
}

func (t *tx) CurrentSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	const op = "storage.memory.CurrentSubscription"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var best *models.Subscription
	for _, sub := range t.st.subs {
		if sub.UserID != userID {
			continue
		}
		switch sub.Status {
		case models.StatusActive:
			return sub.Clone(), nil
		case models.StatusCancelled:
			if best == nil || sub.EndDate.After(best.EndDate) {
				best = sub
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return best.Clone(), nil
}

func (t *tx) ListSubscriptions(ctx context.Context, userID string) ([]*models.Subscription, error) {
	const op = "storage.memory.ListSubscriptions"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var out []*models.Subscription
	for _, sub := range t.st.subs {
		if sub.UserID == userID {
			out = append(out, sub.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) hasOtherActive(sub *models.Subscription) bool {
	for id, other := range t.st.subs {
		if id != sub.ID && other.UserID == sub.UserID && other.Status == models.StatusActive {
			return true
		}
	}
	return false
}

func (t *tx) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "storage.memory.CreateSubscription"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := t.st.subs[sub.ID]; ok {
		return fmt.Errorf("%s: duplicate id %s", op, sub.ID)
	}
	if !sub.EndDate.After(sub.StartDate) {
		return fmt.Errorf("%s: end date must be after start date", op)
	}
	if sub.Status == models.StatusActive && t.hasOtherActive(sub) {
		return fmt.Errorf("%s: %w", op, storage.ErrDuplicateActive)
	}
	t.st.subs[sub.ID] = sub.Clone()
	return nil
}

func (t *tx) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	const op = "storage.memory.UpdateSubscription"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	cur, ok := t.st.subs[sub.ID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if sub.Status == models.StatusActive && t.hasOtherActive(sub) {
		return fmt.Errorf("%s: %w", op, storage.ErrDuplicateActive)
	}
	next := sub.Clone()
	next.UserID = cur.UserID
	next.BillingCycle = cur.BillingCycle
	next.Currency = cur.Currency
	next.StartDate = cur.StartDate
	next.CreatedAt = cur.CreatedAt
	t.st.subs[sub.ID] = next
	return nil
}

func (t *tx) ExpireSubscriptions(ctx context.Context, now time.Time) (int, error) {
	const op = "storage.memory.ExpireSubscriptions"
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n := 0
	for _, sub := range t.st.subs {
		if (sub.Status == models.StatusActive || sub.Status == models.StatusCancelled) && sub.EndDate.Before(now) {
			sub.Status = models.StatusExpired
			sub.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (t *tx) AppendPayment(ctx context.Context, rec *models.PaymentRecord) error {
	const op = "storage.memory.AppendPayment"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := t.st.payments[rec.ID]; ok {
		return fmt.Errorf("%s: duplicate id %s", op, rec.ID)
	}
	if _, ok := t.st.subs[rec.SubscriptionID]; !ok {
		return fmt.Errorf("%s: unknown subscription %s", op, rec.SubscriptionID)
	}
	t.st.payments[rec.ID] = clonePayment(rec)
	return nil
}

func (t *tx) GetPayment(ctx context.Context, id string) (*models.PaymentRecord, error) {
	const op = "storage.memory.GetPayment"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rec, ok := t.st.payments[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return clonePayment(rec), nil
}

func (t *tx) RefundedTotal(ctx context.Context, paymentID string) (decimal.Decimal, error) {
	const op = "storage.memory.RefundedTotal"
	if err := ctx.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	total := decimal.Zero
	for _, rec := range t.st.payments {
		if rec.Kind == models.KindRefund && rec.RefundOf != nil && *rec.RefundOf == paymentID {
			total = total.Add(rec.Amount)
		}
	}
	return total, nil
}

func (t *tx) ListPayments(ctx context.Context, subscriptionID string) ([]*models.PaymentRecord, error) {
	const op = "storage.memory.ListPayments"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var out []*models.PaymentRecord
	for _, rec := range t.st.payments {
		if rec.SubscriptionID == subscriptionID {
			out = append(out, clonePayment(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func clonePayment(rec *models.PaymentRecord) *models.PaymentRecord {
	c := *rec
	if rec.RefundOf != nil {
		r := *rec.RefundOf
		c.RefundOf = &r
	}
	return &c
}
