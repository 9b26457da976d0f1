package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"trektrace/internal/config"
)

// Workers are the background loops started next to the API server.
type Workers struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

// StartAllWorkers initializes and starts all background workers. They run
// until ctx is cancelled; Wait blocks until every loop has returned.
func StartAllWorkers(ctx context.Context, cfg config.Config, syncer PendingSyncer, logger *zap.Logger) *Workers {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Workers{logger: logger.Named("worker")}
	w.logger.Info("starting all workers")

	w.run(ctx, "memory", config.MemoryReportInterval, reportMemory(w.logger))
	if cfg.SyncInterval > 0 && syncer != nil {
		w.run(ctx, "sync", cfg.SyncInterval, syncPending(syncer, w.logger))
	} else {
		w.logger.Info("sync worker disabled")
	}

	w.logger.Info("all workers started")
	return w
}

func (w *Workers) Wait() {
	w.wg.Wait()
}

// run calls tick every interval until ctx is done.
func (w *Workers) run(ctx context.Context, name string, interval time.Duration, tick func(context.Context)) {
	w.wg.Add(1)
	ticker := time.NewTicker(interval)
	go func() {
		defer w.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.logger.Debug("worker stopped", zap.String("worker", name))
				return
			case <-ticker.C:
				tick(ctx)
			}
		}
	}()
	w.logger.Info("worker started", zap.String("worker", name), zap.Duration("interval", interval))
}
