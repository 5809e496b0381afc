// Команда reconciler выполняет одну сверку истёкших подписок и завершается.
// Предназначена для запуска внешним планировщиком (cron, Kubernetes CronJob).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/magabrotheeeer/entitlement-engine/internal/app/engine"
	"github.com/magabrotheeeer/entitlement-engine/internal/config"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-engine/internal/metrics"
)

const runTimeout = 10 * time.Minute

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(cfg, logger); err != nil {
		logger.Error("reconciliation failed", sl.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	b, err := engine.NewBackend(ctx, cfg, logger, metrics.New(prometheus.NewRegistry()))
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("failed to close backend", sl.Err(err))
		}
	}()

	n, err := b.Service.ReconcileExpired(ctx)
	if err != nil {
		return err
	}
	logger.Info("reconciliation finished", slog.Int("expired", n))
	return nil
}
