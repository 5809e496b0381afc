// Package locker сериализует мутации подписок одного пользователя.
// Local работает внутри процесса, Redis разделяет блокировку между репликами.
package locker

import (
	"context"
	"errors"
	"sync"
)

// ErrLockTimeout возвращается, если блокировку не удалось взять за отведённое время.
var ErrLockTimeout = errors.New("lock wait timeout")

// Locker берёт эксклюзивную блокировку по ключу. Возвращаемую функцию unlock
// нужно вызвать ровно один раз.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// SubscriptionKey возвращает ключ блокировки мутаций подписки пользователя.
func SubscriptionKey(userID string) string {
	return "subscription:" + userID
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Local: блокировка по ключу внутри процесса. Записи удаляются, когда
// ключ никто не держит и не ждёт.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewLocal создаёт пустой Local.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

// Lock ждёт освобождения ключа или отмены контекста.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
