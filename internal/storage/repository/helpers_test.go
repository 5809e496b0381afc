package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/entitlement-engine/internal/migrations"
	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

// TestDataFactory создаёт тестовые данные в реальной БД.
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создаёт новую фабрику тестовых данных.
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateSubscription сохраняет подписку и возвращает её.
func (f *TestDataFactory) CreateSubscription(t *testing.T, userID, planID string, status models.SubscriptionStatus,
	start time.Time, cycle models.BillingCycle) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		ID:           uuid.NewString(),
		UserID:       userID,
		PlanID:       planID,
		Status:       status,
		BillingCycle: cycle,
		Price:        decimal.RequireFromString("99.00"),
		Currency:     "USD",
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, cycle.Days()),
		AutoRenew:    true,
		CreatedAt:    start,
		UpdatedAt:    start,
	}
	require.NoError(t, f.storage.CreateSubscription(context.Background(), sub))
	return sub
}

// CreatePayment добавляет завершённую платёжную запись.
func (f *TestDataFactory) CreatePayment(t *testing.T, subscriptionID string, amount string, kind models.PaymentKind) *models.PaymentRecord {
	t.Helper()
	rec := &models.PaymentRecord{
		ID:             uuid.NewString(),
		SubscriptionID: subscriptionID,
		Amount:         decimal.RequireFromString(amount),
		Currency:       "USD",
		Status:         models.PaymentCompleted,
		Kind:           kind,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.storage.AppendPayment(context.Background(), rec))
	return rec
}

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(connStr)
	require.NoError(t, err, "failed to create storage")
	require.NoError(t, migrations.Run(storage.DB))

	cleanup := func() {
		storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}
