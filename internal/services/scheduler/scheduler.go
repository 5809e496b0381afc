// Package scheduler периодически запускает сверку истёкших подписок.
// Сверка выполняет фоновую уборку, корректность чтений от неё не зависит.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/entitlement-engine/internal/lib/sl"
)

const runTimeout = 5 * time.Minute

// Reconciler переводит просроченные подписки в EXPIRED.
type Reconciler interface {
	ReconcileExpired(ctx context.Context) (int, error)
}

// Scheduler запускает Reconciler по cron-расписанию.
type Scheduler struct {
	reconciler Reconciler
	cron       *cron.Cron
	log        *slog.Logger
}

// New создаёт планировщик с расписанием schedule в формате cron или "@every 1h".
func New(reconciler Reconciler, schedule string, log *slog.Logger) (*Scheduler, error) {
	const op = "services.scheduler.New"

	s := &Scheduler{
		reconciler: reconciler,
		cron:       cron.New(cron.WithLocation(time.UTC)),
		log:        log,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("%s: invalid schedule %q: %w", op, schedule, err)
	}
	return s, nil
}

// RunOnce выполняет одну сверку. Ошибка только логируется: следующий запуск повторит работу.
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	s.log.Info("starting reconciliation of expired subscriptions")
	n, err := s.reconciler.ReconcileExpired(ctx)
	if err != nil {
		s.log.Error("reconciliation failed", sl.Err(err))
		return
	}
	s.log.Info("reconciliation finished", slog.Int("expired", n))
}

// Run запускает планировщик и блокируется до отмены ctx, затем дожидается
// завершения выполняющейся сверки.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("scheduler started")

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.log.Info("scheduler stopped")
	return nil
}
