package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-engine/internal/catalog"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/clock"
	"github.com/magabrotheeeer/entitlement-engine/internal/locker"
	"github.com/magabrotheeeer/entitlement-engine/internal/metrics"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/memory"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(ctx context.Context, event models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type LockerMock struct{ mock.Mock }

func (m *LockerMock) Lock(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	unlock, _ := args.Get(0).(func())
	return unlock, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type fixture struct {
	svc     *Service
	store   *memory.Storage
	clock   *clock.Manual
	metrics *metrics.Metrics
}

func setup(t *testing.T, opts ...Option) fixture {
	t.Helper()
	store := memory.New()
	clk := clock.NewManual(t0)
	m := metrics.New(prometheus.NewRegistry())
	opts = append([]Option{WithClock(clk), WithMetrics(m)}, opts...)
	svc := NewService(newNoopLogger(), catalog.Default(), store, locker.NewLocal(), opts...)
	return fixture{svc: svc, store: store, clock: clk, metrics: m}
}

func TestSubscribe(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)

	assert.Equal(t, models.StatusActive, sub.Status)
	assert.Equal(t, "PRO", sub.PlanID)
	assert.True(t, sub.Price.Equal(decimal.NewFromInt(99)))
	assert.Equal(t, "USD", sub.Currency)
	assert.Equal(t, t0, sub.StartDate)
	assert.Equal(t, t0.Add(30*day), sub.EndDate)
	assert.True(t, sub.AutoRenew)

	ent, err := f.svc.ResolveEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "PRO", ent.Tier)
	assert.Equal(t, string(models.StatusActive), ent.Status)

	recs, err := f.svc.Payments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.KindSubscription, recs[0].Kind)
	assert.Equal(t, models.PaymentCompleted, recs[0].Status)
	assert.True(t, recs[0].Amount.Equal(decimal.NewFromInt(99)))
}

func TestSubscribe_Yearly(t *testing.T) {
	f := setup(t)

	sub, err := f.svc.Subscribe(context.Background(), "u1", "BUSINESS", models.CycleYearly)
	require.NoError(t, err)
	assert.Equal(t, t0.AddDate(0, 0, 365), sub.EndDate)
	assert.True(t, sub.Price.Equal(decimal.NewFromInt(4990)))
}

func TestSubscribe_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		planID string
		cycle  models.BillingCycle
		want   error
	}{
		{name: "empty user", userID: "", planID: "PRO", cycle: models.CycleMonthly, want: models.ErrValidation},
		{name: "unknown plan", userID: "u1", planID: "GOLD", cycle: models.CycleMonthly, want: models.ErrInvalidPlan},
		{name: "free tier", userID: "u1", planID: "FREE", cycle: models.CycleMonthly, want: models.ErrInvalidTransition},
		{name: "bad cycle", userID: "u1", planID: "PRO", cycle: "WEEKLY", want: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			_, err := f.svc.Subscribe(context.Background(), tt.userID, tt.planID, tt.cycle)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubscribe_ConflictWhenActive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)

	_, err = f.svc.Subscribe(ctx, "u1", "BUSINESS", models.CycleMonthly)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestSubscribe_Concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		success   int
		conflicts int
		other     []error
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, models.ErrConflict):
				conflicts++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, conflicts)

	subs, err := f.svc.History(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	recs, err := f.svc.Payments(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSubscribe_ExpiresStaleActive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	old, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)

	// Сверка не запускалась, запись осталась ACTIVE.
	f.clock.Set(t0.Add(31 * day))

	sub, err := f.svc.Subscribe(ctx, "u1", "PRO_PLUS", models.CycleMonthly)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, sub.ID)

	subs, err := f.svc.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	statuses := map[string]models.SubscriptionStatus{}
	for _, s := range subs {
		statuses[s.ID] = s.Status
	}
	assert.Equal(t, models.StatusExpired, statuses[old.ID])
	assert.Equal(t, models.StatusActive, statuses[sub.ID])
}

func TestSubscribe_DuringGracePeriod(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, "u1", "")
	require.NoError(t, err)

	f.clock.Advance(5 * day)
	sub, err := f.svc.Subscribe(ctx, "u1", "BUSINESS", models.CycleMonthly)
	require.NoError(t, err)

	ent, err := f.svc.ResolveEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "BUSINESS", ent.Tier)
	assert.Equal(t, sub.ID, ent.SubscriptionID)
	assert.False(t, ent.InGracePeriod)
}

func TestUpgrade_Prorated(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)

	f.clock.Advance(10 * day)
	res, err := f.svc.Upgrade(ctx, "u1", "PRO_PLUS")
	require.NoError(t, err)

	assert.Equal(t, "66.67", res.Charged.StringFixed(2))
	require.NotNil(t, res.Payment)
	assert.Equal(t, models.KindProration, res.Payment.Kind)
	assert.True(t, res.Payment.Amount.Equal(res.Charged))

	assert.Equal(t, sub.ID, res.Subscription.ID)
	assert.Equal(t, "PRO_PLUS", res.Subscription.PlanID)
	assert.Equal(t, sub.StartDate, res.Subscription.StartDate)
	assert.Equal(t, sub.EndDate, res.Subscription.EndDate)
	assert.True(t, res.Subscription.Price.Equal(decimal.NewFromInt(199)))

	ent, err := f.svc.ResolveEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "PRO_PLUS", ent.Tier)

	recs, err := f.svc.Payments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, models.KindSubscription, recs[0].Kind)
	assert.Equal(t, models.KindProration, recs[1].Kind)

	assert.InDelta(t, 66.67, testutil.ToFloat64(f.metrics.ProrationCharge), 0.001)
}

func TestUpgrade_ZeroAmountAtEndOfCycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)

	f.clock.Set(t0.Add(30 * day))
	res, err := f.svc.Upgrade(ctx, "u1", "BUSINESS")
	require.NoError(t, err)
	assert.True(t, res.Charged.IsZero())
	assert.Nil(t, res.Payment)

	recs, err := f.svc.Payments(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestUpgrade_Rejected(t *testing.T) {
	ctx := context.Background()

	t.Run("no subscription", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Upgrade(ctx, "u1", "PRO")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("downgrade", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Subscribe(ctx, "u1", "BUSINESS", models.CycleMonthly)
		require.NoError(t, err)
		_, err = f.svc.Upgrade(ctx, "u1", "PRO")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("same tier", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
		require.NoError(t, err)
		_, err = f.svc.Upgrade(ctx, "u1", "PRO")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("unknown plan", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
		require.NoError(t, err)
		_, err = f.svc.Upgrade(ctx, "u1", "GOLD")
		assert.ErrorIs(t, err, models.ErrInvalidPlan)
	})

	t.Run("cancelled", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
		require.NoError(t, err)
		_, err = f.svc.Cancel(ctx, "u1", "")
		require.NoError(t, err)
		_, err = f.svc.Upgrade(ctx, "u1", "BUSINESS")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("expired", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
		require.NoError(t, err)
		f.clock.Set(t0.Add(31 * day))
		_, err = f.svc.Upgrade(ctx, "u1", "BUSINESS")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})
}

func TestCancel_GracePeriod(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)

	f.clock.Advance(5 * day)
	cancelled, err := f.svc.Cancel(ctx, "u1", "too expensive")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.False(t, cancelled.AutoRenew)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, t0.Add(5*day), *cancelled.CancelledAt)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "too expensive", *cancelled.CancelReason)
	assert.Equal(t, sub.EndDate, cancelled.EndDate)

	f.clock.Set(t0.Add(29 * day))
	ent, err := f.svc.ResolveEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "PRO", ent.Tier)
	assert.True(t, ent.InGracePeriod)

	f.clock.Set(t0.Add(30*day + time.Second))
	ent, err = f.svc.ResolveEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "FREE", ent.Tier)
	assert.False(t, ent.InGracePeriod)
}

func TestCancel_Rejected(t *testing.T) {
	ctx := context.Background()

	t.Run("no subscription", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Cancel(ctx, "u1", "")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("already cancelled", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
		require.NoError(t, err)
		_, err = f.svc.Cancel(ctx, "u1", "")
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, "u1", "")
		assert.ErrorIs(t, err, models.ErrInvalidTransition)
	})

	t.Run("expired", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
		require.NoError(t, err)
		f.clock.Set(t0.Add(31 * day))
		_, err = f.svc.Cancel(ctx, "u1", "")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestReconcileExpired(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)
	_, err = f.svc.Subscribe(ctx, "u2", "PRO", models.CycleMonthly)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, "u2", "")
	require.NoError(t, err)
	_, err = f.svc.Subscribe(ctx, "u3", "PRO", models.CycleYearly)
	require.NoError(t, err)

	f.clock.Set(t0.Add(31 * day))
	n, err := f.svc.ReconcileExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.ReconcileExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.Reconciled), 0.001)

	for _, user := range []string{"u1", "u2"} {
		subs, err := f.svc.History(ctx, user)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, models.StatusExpired, subs[0].Status)
	}

	ent, err := f.svc.ResolveEntitlement(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, "PRO", ent.Tier)
}

func TestCheckAccess(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "u1", "PRO_PLUS", models.CycleMonthly)
	require.NoError(t, err)

	tests := []struct {
		name     string
		userID   string
		required string
		allowed  bool
		wantErr  error
	}{
		{name: "lower tier", userID: "u1", required: "PRO", allowed: true},
		{name: "same tier", userID: "u1", required: "PRO_PLUS", allowed: true},
		{name: "higher tier", userID: "u1", required: "BUSINESS", allowed: false},
		{name: "free user", userID: "u2", required: "PRO", allowed: false},
		{name: "free user free tier", userID: "u2", required: "FREE", allowed: true},
		{name: "unknown tier", userID: "u1", required: "GOLD", wantErr: models.ErrInvalidPlan},
		{name: "empty user", userID: "", required: "PRO", wantErr: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := f.svc.CheckAccess(ctx, tt.userID, tt.required)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.required, d.RequiredTier)
		})
	}
}

func TestCheckLimit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)

	tests := []struct {
		name     string
		userID   string
		limit    string
		used     int64
		allowed  bool
		capacity int64
		wantErr  error
	}{
		{name: "below pro limit", userID: "u1", limit: catalog.LimitCards, used: 4, allowed: true, capacity: 5},
		{name: "at pro limit", userID: "u1", limit: catalog.LimitCards, used: 5, allowed: false, capacity: 5},
		{name: "free user", userID: "u2", limit: catalog.LimitQRCodes, used: 1, allowed: false, capacity: 1},
		{name: "unknown limit", userID: "u1", limit: "seats", used: 0, wantErr: models.ErrValidation},
		{name: "negative usage", userID: "u1", limit: catalog.LimitCards, used: -1, wantErr: models.ErrValidation},
		{name: "empty user", userID: "", limit: catalog.LimitCards, used: 0, wantErr: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := f.svc.CheckLimit(ctx, tt.userID, tt.limit, tt.used)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.capacity, d.Capacity)
			assert.Equal(t, tt.used, d.Used)
		})
	}
}

func TestCheckFeature(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "u1", "PRO_PLUS", models.CycleMonthly)
	require.NoError(t, err)

	d, err := f.svc.CheckFeature(ctx, "u1", catalog.FeatureExport)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "PRO_PLUS", d.CurrentTier)

	d, err = f.svc.CheckFeature(ctx, "u1", catalog.FeatureTeam)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	_, err = f.svc.CheckFeature(ctx, "u1", "sso")
	assert.ErrorIs(t, err, models.ErrValidation)

	f.clock.Advance(31 * 24 * time.Hour)
	d, err = f.svc.CheckFeature(ctx, "u1", catalog.FeatureExport)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "expired subscription falls back to FREE")
	assert.Equal(t, "FREE", d.CurrentTier)
}

func TestPayment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)
	recs, err := f.svc.Payments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec, err := f.svc.Payment(ctx, "u1", recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, recs[0].ID, rec.ID)

	_, err = f.svc.Payment(ctx, "u2", recs[0].ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "other user's payment is hidden")

	_, err = f.svc.Payment(ctx, "u1", uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.Payment(ctx, "u1", "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHistoryAndPayments_Empty(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	subs, err := f.svc.History(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.NotNil(t, subs)

	recs, err := f.svc.Payments(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NotNil(t, recs)
}

func TestRefund(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)
	recs, err := f.svc.Payments(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	refund, err := f.svc.Refund(ctx, recs[0].ID, decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.Equal(t, models.KindRefund, refund.Kind)
	require.NotNil(t, refund.RefundOf)
	assert.Equal(t, recs[0].ID, *refund.RefundOf)

	_, err = f.svc.Refund(ctx, recs[0].ID, decimal.NewFromInt(60))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.svc.Refund(ctx, uuid.NewString(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEventsPublished(t *testing.T) {
	pub := new(PublisherMock)
	f := setup(t, WithPublisher(pub))
	ctx := context.Background()

	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
		return e.Type == models.EventSubscriptionCreated && e.UserID == "u1" && e.PlanID == "PRO"
	})).Return(nil).Once()
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
		return e.Type == models.EventSubscriptionUpgraded && e.PreviousPlanID == "PRO" &&
			e.PlanID == "BUSINESS" && e.PaymentID != ""
	})).Return(nil).Once()
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e models.Event) bool {
		return e.Type == models.EventSubscriptionCancelled
	})).Return(errors.New("broker down")).Once()

	_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)
	f.clock.Advance(day)
	_, err = f.svc.Upgrade(ctx, "u1", "BUSINESS")
	require.NoError(t, err)
	// Ошибка публикации не откатывает отмену.
	_, err = f.svc.Cancel(ctx, "u1", "")
	require.NoError(t, err)

	pub.AssertExpectations(t)

	ent, err := f.svc.ResolveEntitlement(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ent.InGracePeriod)
}

func TestRejectedTransitionDoesNotPublish(t *testing.T) {
	pub := new(PublisherMock)
	f := setup(t, WithPublisher(pub))

	_, err := f.svc.Cancel(context.Background(), "u1", "")
	require.Error(t, err)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestLockFailure(t *testing.T) {
	lk := new(LockerMock)
	lk.On("Lock", mock.Anything, locker.SubscriptionKey("u1")).Return(nil, locker.ErrLockTimeout)

	svc := NewService(newNoopLogger(), catalog.Default(), memory.New(), lk, WithClock(clock.NewManual(t0)))
	_, err := svc.Subscribe(context.Background(), "u1", "PRO", models.CycleMonthly)
	assert.ErrorIs(t, err, models.ErrStorage)
	assert.ErrorIs(t, err, locker.ErrLockTimeout)
	lk.AssertExpectations(t)
}

func TestTransitionMetrics(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.NoError(t, err)
	_, err = f.svc.Subscribe(ctx, "u1", "PRO", models.CycleMonthly)
	require.Error(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("subscribe", "ok")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("subscribe", "error")), 0.001)
}
