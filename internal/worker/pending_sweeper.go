// internal/worker/pending_sweeper.go
package worker

import (
	"context"
	"sync"
	"time"

	"funding-service/config"
	"funding-service/internal/usecase"

	"go.uber.org/zap"
)

type staleReconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (usecase.SweepReport, error)
}

// PendingSweeper periodically polls the gateway for deposits that have been
// PENDING longer than the configured minimum age, in case their webhook
// never arrived and the payer never came back to poll.
type PendingSweeper struct {
	reconciler staleReconciler
	interval   time.Duration
	minAge     time.Duration
	batch      int
	now        func() time.Time
	logger     *zap.Logger
	stopChan   chan struct{}
	stopOnce   sync.Once
}

func NewPendingSweeper(reconciler staleReconciler, cfg config.SweeperConfig, logger *zap.Logger) *PendingSweeper {
	return &PendingSweeper{
		reconciler: reconciler,
		interval:   cfg.Interval,
		minAge:     cfg.MinAge,
		batch:      cfg.Batch,
		now:        time.Now,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start blocks until ctx is done or Stop is called.
func (ps *PendingSweeper) Start(ctx context.Context) {
	ps.logger.Info("starting pending sweeper",
		zap.Duration("interval", ps.interval),
		zap.Duration("min_age", ps.minAge),
		zap.Int("batch", ps.batch))

	ticker := time.NewTicker(ps.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ps.SweepOnce(ctx)

		case <-ps.stopChan:
			ps.logger.Info("stopping pending sweeper")
			return

		case <-ctx.Done():
			ps.logger.Info("context cancelled, stopping pending sweeper")
			return
		}
	}
}

func (ps *PendingSweeper) SweepOnce(ctx context.Context) usecase.SweepReport {
	report, err := ps.reconciler.ReconcileStale(ctx, ps.now().Add(-ps.minAge), ps.batch)
	if err != nil {
		ps.logger.Error("pending sweep failed", zap.Error(err))
		return report
	}
	if report.Scanned > 0 {
		ps.logger.Info("pending sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("transitioned", report.Transitioned),
			zap.Int("failed", report.Failed))
	}
	return report
}

func (ps *PendingSweeper) Stop() {
	ps.stopOnce.Do(func() { close(ps.stopChan) })
}
