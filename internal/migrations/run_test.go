package migrations

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func getTestDB(t *testing.T) (*sql.DB, func()) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return db, cleanup
}

func TestRunMigrations(t *testing.T) {
	db, cleanup := getTestDB(t)
	defer cleanup()

	require.NoError(t, Run(db))

	for _, table := range []string{"subscriptions", "payments"} {
		var exists bool
		err := db.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)
		`, table).Scan(&exists)
		require.NoError(t, err)
		require.True(t, exists, "table %s should exist", table)
	}

	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE schemaname = 'public'
			AND tablename = 'subscriptions'
			AND indexname = 'uniq_active_subscription_per_user'
		)
	`).Scan(&exists)
	require.NoError(t, err)
	require.True(t, exists, "partial unique index should exist")
}

func TestMigrationIdempotency(t *testing.T) {
	db, cleanup := getTestDB(t)
	defer cleanup()

	require.NoError(t, Run(db))
	require.NoError(t, Run(db), "running migrations twice should not fail")
}

func TestActiveSubscriptionUniqueness(t *testing.T) {
	db, cleanup := getTestDB(t)
	defer cleanup()

	require.NoError(t, Run(db))

	insert := `INSERT INTO subscriptions
		(id, user_id, plan_id, status, billing_cycle, price, currency, start_date, end_date)
		VALUES (gen_random_uuid(), 'u1', 'PRO', $1, 'MONTHLY', 99, 'USD', NOW(), NOW() + INTERVAL '30 days')`

	_, err := db.Exec(insert, "ACTIVE")
	require.NoError(t, err)
	_, err = db.Exec(insert, "CANCELLED")
	require.NoError(t, err, "non-active rows are not constrained")
	_, err = db.Exec(insert, "ACTIVE")
	require.Error(t, err, "second ACTIVE row for the same user must be rejected")
}

func TestCompletedPaymentIsImmutable(t *testing.T) {
	db, cleanup := getTestDB(t)
	defer cleanup()

	require.NoError(t, Run(db))

	var subID string
	err := db.QueryRow(`INSERT INTO subscriptions
		(id, user_id, plan_id, status, billing_cycle, price, currency, start_date, end_date)
		VALUES (gen_random_uuid(), 'u1', 'PRO', 'ACTIVE', 'MONTHLY', 99, 'USD', NOW(), NOW() + INTERVAL '30 days')
		RETURNING id`).Scan(&subID)
	require.NoError(t, err)

	var payID string
	err = db.QueryRow(`INSERT INTO payments (id, subscription_id, amount, currency, status, kind)
		VALUES (gen_random_uuid(), $1, 99, 'USD', 'COMPLETED', 'subscription') RETURNING id`, subID).Scan(&payID)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE payments SET amount = 1 WHERE id = $1`, payID)
	require.Error(t, err)
	_, err = db.Exec(`DELETE FROM payments WHERE id = $1`, payID)
	require.Error(t, err)
}

func TestDown(t *testing.T) {
	db, cleanup := getTestDB(t)
	defer cleanup()

	require.NoError(t, Run(db))
	require.NoError(t, Down(db))

	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = 'subscriptions'
		)
	`).Scan(&exists)
	require.NoError(t, err)
	require.False(t, exists)
}
