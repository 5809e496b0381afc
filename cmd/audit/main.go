// Команда audit читает события жизненного цикла подписок из очереди аудита
// и записывает их в структурированный лог.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/entitlement-engine/internal/config"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/metrics"
	"github.com/magabrotheeeer/entitlement-engine/internal/rabbitmq"
	"github.com/magabrotheeeer/entitlement-engine/internal/services/audit"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(cfg, logger); err != nil {
		logger.Error("audit consumer stopped", sl.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.RabbitMQ.URL == "" {
		return errors.New("rabbitmq url is not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.Retries, cfg.Delay)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := rabbitmq.SetupChannel(conn, cfg.Exchange, rabbitmq.LifecycleQueues())
	if err != nil {
		return err
	}
	defer ch.Close()

	auditor := audit.New(logger, metrics.New(prometheus.DefaultRegisterer))

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:        cfg.AddressHTTP,
		Handler:     router,
		ReadTimeout: cfg.TimeoutHTTP,
		IdleTimeout: cfg.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("audit consumer started", slog.String("queue", cfg.AuditQueue), slog.Int("workers", cfg.Workers))
		return rabbitmq.ConsumeEvents(ctx, ch, cfg.AuditQueue, cfg.Workers, logger, auditor.Handle)
	})
	g.Go(func() error {
		logger.Info("metrics server starting on", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(timeoutCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("audit consumer stopped")
	return nil
}
