// Package engine собирает HTTP-сервис движка подписок: хранилище, блокировки,
// публикацию событий, автомат состояний, фоновую сверку и маршруты.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/entitlement-engine/internal/catalog"
	"github.com/magabrotheeeer/entitlement-engine/internal/config"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/locker"
	"github.com/magabrotheeeer/entitlement-engine/internal/metrics"
	"github.com/magabrotheeeer/entitlement-engine/internal/migrations"
	"github.com/magabrotheeeer/entitlement-engine/internal/rabbitmq"
	"github.com/magabrotheeeer/entitlement-engine/internal/services/scheduler"
	"github.com/magabrotheeeer/entitlement-engine/internal/services/subscription"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/memory"
	"github.com/magabrotheeeer/entitlement-engine/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App: HTTP-сервис движка подписок.
type App struct {
	server    *http.Server
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	closers   []func() error
}

// Backend: инфраструктура, общая для API и команды сверки.
type Backend struct {
	Store   storage.Store
	Locker  locker.Locker
	Events  subscription.Publisher
	Service *subscription.Service
	Catalog *catalog.Catalog
	Ready   func(ctx context.Context) error
	closers []func() error
}

// Close освобождает соединения в обратном порядке открытия.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewBackend открывает хранилище, блокировки и брокер по конфигу и собирает
// автомат состояний. Без строки подключения к БД используется хранилище в памяти.
// Redis и брокер необязательны.
func NewBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Backend, error) {
	const op = "app.engine.NewBackend"
	b := &Backend{Catalog: catalog.Default()}

	if cfg.StorageConnectionString != "" {
		db, err := repository.New(cfg.StorageConnectionString)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		b.closers = append(b.closers, db.Close)
		if err := migrations.Run(db.DB); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		b.Store = db
		b.Ready = func(ctx context.Context) error { return repository.CheckDatabaseReady(ctx, db) }
	} else {
		logger.Warn("storage connection string is empty, using in-memory storage")
		b.Store = memory.New()
	}

	if cfg.AddressRedis != "" {
		client, err := locker.InitClient(ctx, cfg.RedisConnection)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		b.closers = append(b.closers, client.Close)
		b.Locker = locker.NewRedis(client, cfg.Locker, logger)
	} else {
		logger.Warn("redis address is empty, using in-process locks")
		b.Locker = locker.NewLocal()
	}

	if cfg.RabbitMQ.URL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.Delay)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		b.closers = append(b.closers, conn.Close)
		ch, err := rabbitmq.SetupChannel(conn, cfg.Exchange, rabbitmq.LifecycleQueues())
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		b.closers = append(b.closers, ch.Close)
		b.Events = rabbitmq.NewPublisher(ch, cfg.Exchange, logger)
	} else {
		b.Events = rabbitmq.Noop{}
	}

	b.Service = subscription.NewService(logger, b.Catalog, b.Store, b.Locker,
		subscription.WithMetrics(m),
		subscription.WithPublisher(b.Events),
		subscription.WithCurrency(cfg.Currency),
	)
	return b, nil
}

// New создаёт приложение.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	m := metrics.New(prometheus.DefaultRegisterer)

	b, err := NewBackend(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}

	app := &App{
		logger:  logger,
		closers: []func() error{b.Close},
	}

	if cfg.Reconcile.Enabled {
		app.scheduler, err = scheduler.New(b.Service, cfg.Reconcile.Schedule, logger)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
	}

	router := chi.NewRouter()
	RegisterRoutes(router, Routes{
		Logger:  logger,
		Catalog: b.Catalog,
		Service: b.Service,
		Tokens:  jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL),
		Limiter: middlewarectx.NewRateLimiter(cfg.RateLimit),
		Metrics: m,
		Ready:   b.Ready,
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// Run запускает HTTP-сервер и планировщик сверки и блокируется до отмены ctx
// или ошибки одного из них.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		return a.server.Shutdown(timeoutCtx)
	})

	if a.scheduler != nil {
		g.Go(func() error { return a.scheduler.Run(ctx) })
	}

	err := g.Wait()
	for _, closeFn := range a.closers {
		if cerr := closeFn(); cerr != nil {
			a.logger.Error("failed to close resource", sl.Err(cerr))
		}
	}
	return err
}

