package locker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/entitlement-engine/internal/config"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
)

// unlockScript удаляет ключ, только если он всё ещё принадлежит владельцу токена.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// InitClient создаёт клиента redis и проверяет соединение.
func InitClient(ctx context.Context, cfg config.RedisConnection) (*redis.Client, error) {
	const op = "locker.InitClient"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return db, nil
}

// Redis: распределённая блокировка на SET NX PX с проверкой токена при снятии.
// TTL ограничивает время удержания, если процесс упал, не сняв блокировку.
type Redis struct {
	client        *redis.Client
	log           *slog.Logger
	ttl           time.Duration
	retryInterval time.Duration
	waitTimeout   time.Duration
}

// NewRedis создаёт блокировку поверх клиента redis.
func NewRedis(client *redis.Client, cfg config.Locker, log *slog.Logger) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Second
	}
	return &Redis{
		client:        client,
		log:           log,
		ttl:           cfg.TTL,
		retryInterval: cfg.RetryInterval,
		waitTimeout:   cfg.WaitTimeout,
	}
}

// Lock пытается взять ключ с интервалом retryInterval, пока не истечёт waitTimeout
// или контекст. При превышении времени ожидания возвращает ErrLockTimeout.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	const op = "locker.Redis.Lock"

	token := uuid.NewString()
	lockKey := "lock:" + key

	waitCtx, cancel := context.WithTimeout(ctx, r.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(r.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(waitCtx, lockKey, token, r.ttl).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			return r.unlockFunc(lockKey, token), nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			}
			return nil, fmt.Errorf("%s: %s: %w", op, key, ErrLockTimeout)
		case <-ticker.C:
		}
	}
}

func (r *Redis) unlockFunc(lockKey, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.ttl)
		defer cancel()
		if err := unlockScript.Run(ctx, r.client, []string{lockKey}, token).Err(); err != nil {
			r.log.Error("failed to release lock", slog.String("key", lockKey), sl.Err(err))
		}
	}
}
