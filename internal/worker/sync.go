package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"trektrace/internal/model"
	"trektrace/internal/service/syncer"
)

type PendingSyncer interface {
	SyncPendingExcept(ctx context.Context, skip map[string]struct{}) ([]syncer.Result, error)
}

// syncPending pushes pending hikes once per tick. A hike that failed is not
// pushed again by the worker; an explicit sync request is needed for it.
func syncPending(s PendingSyncer, logger *zap.Logger) func(context.Context) {
	failed := make(map[string]struct{})
	return func(ctx context.Context) {
		results, err := s.SyncPendingExcept(ctx, failed)
		switch {
		case errors.Is(err, model.ErrOffline):
			logger.Debug("sync worker: offline, skipping")
			return
		case err != nil:
			logger.Error("sync worker: failed to list pending hikes", zap.Error(err))
			return
		}
		for _, r := range results {
			if !r.Success {
				failed[r.HikeID] = struct{}{}
				logger.Warn("sync worker: hike not synced, left for manual sync",
					zap.String("hike_id", r.HikeID), zap.String("error", r.Error))
			}
		}
	}
}
