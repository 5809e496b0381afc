// Package storage описывает контракт хранилища подписок и платёжного журнала.
// Реализации: repository (PostgreSQL) и memory (для тестов и локального запуска).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

var (
	// ErrNotFound: запись не найдена.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateActive: у пользователя уже есть подписка в статусе ACTIVE.
	ErrDuplicateActive = errors.New("active subscription already exists")
)

// Queries: операции над подписками и платежами. Внутри транзакции
// чтение текущей подписки и исходного платежа блокирует строку.
type Queries interface {
	// CurrentSubscription возвращает ACTIVE подписку пользователя, а при её отсутствии
	// последнюю по EndDate подписку в статусе CANCELLED. Иначе ErrNotFound.
	CurrentSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, userID string) ([]*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	// ExpireSubscriptions переводит в EXPIRED все ACTIVE и CANCELLED подписки
	// с EndDate раньше now и возвращает их количество.
	ExpireSubscriptions(ctx context.Context, now time.Time) (int, error)

	AppendPayment(ctx context.Context, rec *models.PaymentRecord) error
	GetPayment(ctx context.Context, id string) (*models.PaymentRecord, error)
	// RefundedTotal возвращает сумму уже оформленных возвратов по платежу.
	RefundedTotal(ctx context.Context, paymentID string) (decimal.Decimal, error)
	ListPayments(ctx context.Context, subscriptionID string) ([]*models.PaymentRecord, error)
}

// Store: хранилище с поддержкой транзакций. InTx выполняет fn в одной транзакции,
// сериализуя вызовы с одинаковым lockKey. Пустой lockKey не берёт блокировку.
type Store interface {
	Queries
	InTx(ctx context.Context, lockKey string, fn func(ctx context.Context, q Queries) error) error
}
