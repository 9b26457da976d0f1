package syncer

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"trektrace/internal/config"
	"trektrace/internal/metrics"
	"trektrace/internal/model"
	"trektrace/internal/service/hike"
)

// Sync outcomes reported to metrics.
const (
	OutcomeSynced  = "synced"
	OutcomeOffline = "offline"
	OutcomeNoData  = "no_data"
	OutcomeFailed  = "failed"
	OutcomeFetched = "fetched"
)

// Result is the outcome of syncing one hike.
type Result struct {
	HikeID   string `json:"hike_id"`
	RemoteID string `json:"remote_id,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// Service pushes finished hikes to the remote and pulls remote hikes in.
type Service struct {
	hikes       *hike.Service
	remote      Remote
	conn        Connectivity
	recorder    metrics.Recorder
	logger      *zap.Logger
	concurrency int
}

func NewService(hikes *hike.Service, remote Remote, conn Connectivity, recorder metrics.Recorder, logger *zap.Logger) *Service {
	if recorder == nil {
		recorder = metrics.Noop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		hikes:       hikes,
		remote:      remote,
		conn:        conn,
		recorder:    recorder,
		logger:      logger.Named("sync"),
		concurrency: config.SyncWorkerConcurrency,
	}
}

// SyncHike sends the hike with its ordered points to the remote and marks it
// synced. It fails with Offline before reading anything when the remote is
// unreachable, and with NoData when the hike has no points.
func (s *Service) SyncHike(ctx context.Context, id string) (string, error) {
	if !s.conn.Online(ctx) {
		s.recorder.IncSyncOutcome(OutcomeOffline)
		return "", fmt.Errorf("sync hike %q: %w", id, model.ErrOffline)
	}
	return s.syncHike(ctx, id)
}

func (s *Service) syncHike(ctx context.Context, id string) (string, error) {
	h, err := s.hikes.GetHike(ctx, id)
	if err != nil {
		s.recorder.IncSyncOutcome(OutcomeFailed)
		return "", err
	}
	points, err := s.hikes.Points(ctx, id)
	if err != nil {
		s.recorder.IncSyncOutcome(OutcomeFailed)
		return "", err
	}
	if len(points) == 0 {
		s.recorder.IncSyncOutcome(OutcomeNoData)
		return "", fmt.Errorf("sync hike %q: %w", id, model.ErrNoData)
	}

	remoteID, err := s.remote.PushHike(ctx, NewHikePayload(h, points))
	if err != nil {
		s.recorder.IncSyncOutcome(OutcomeFailed)
		return "", fmt.Errorf("push hike %q: %w", id, err)
	}
	if _, err := s.hikes.SetSynced(ctx, id, true); err != nil {
		s.recorder.IncSyncOutcome(OutcomeFailed)
		return "", err
	}

	s.recorder.IncSyncOutcome(OutcomeSynced)
	s.logger.Info("hike synced", zap.String("hike_id", id), zap.String("remote_id", remoteID), zap.Int("points", len(points)))
	return remoteID, nil
}

// SyncAllPending syncs every finished hike not yet synced. Hikes are pushed
// concurrently with a bounded number of workers; results keep listing order.
// A failure for one hike is reported in its Result and does not stop the rest.
func (s *Service) SyncAllPending(ctx context.Context) ([]Result, error) {
	return s.SyncPendingExcept(ctx, nil)
}

// SyncPendingExcept is SyncAllPending leaving out the hikes in skip. Skipped
// hikes get no Result.
func (s *Service) SyncPendingExcept(ctx context.Context, skip map[string]struct{}) ([]Result, error) {
	if !s.conn.Online(ctx) {
		s.recorder.IncSyncOutcome(OutcomeOffline)
		return nil, fmt.Errorf("sync pending hikes: %w", model.ErrOffline)
	}

	pending, err := s.hikes.ListHikes(ctx, model.HikeFilter{
		Draft:  model.Bool(false),
		Synced: model.Bool(false),
	})
	if err != nil {
		return nil, err
	}
	if len(skip) > 0 {
		pending = slices.DeleteFunc(pending, func(h *model.Hike) bool {
			_, ok := skip[h.ID]
			return ok
		})
	}
	if len(pending) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, len(pending))
	p := pool.New().WithMaxGoroutines(s.concurrency)
	for i, h := range pending {
		p.Go(func() {
			res := Result{HikeID: h.ID}
			remoteID, err := s.syncHike(ctx, h.ID)
			if err != nil {
				res.Error = err.Error()
				res.Kind = model.ErrorKind(err)
			} else {
				res.Success = true
				res.RemoteID = remoteID
			}
			results[i] = res
		})
	}
	p.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	s.logger.Info("pending hikes synced", zap.Int("total", len(results)), zap.Int("failed", failed))
	return results, nil
}

// FetchRemoteHike materializes a remote hike locally as a finished, synced,
// imported hike with its points. Nothing is written when the remote cannot
// be reached or the payload cannot be read.
func (s *Service) FetchRemoteHike(ctx context.Context, remoteID string) (*model.Hike, error) {
	if !s.conn.Online(ctx) {
		s.recorder.IncSyncOutcome(OutcomeOffline)
		return nil, fmt.Errorf("fetch remote hike %q: %w", remoteID, model.ErrOffline)
	}

	payload, err := s.remote.FetchHike(ctx, remoteID)
	if err != nil {
		s.recorder.IncSyncOutcome(OutcomeFailed)
		return nil, fmt.Errorf("fetch remote hike %q: %w", remoteID, err)
	}
	points, err := payload.Points()
	if err != nil {
		s.recorder.IncSyncOutcome(OutcomeFailed)
		return nil, fmt.Errorf("fetch remote hike %q: %w", remoteID, err)
	}

	h, err := s.hikes.CreateImported(ctx, payload.Name, points, true)
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, model.ErrEmptyTrack) {
			outcome = OutcomeNoData
		}
		s.recorder.IncSyncOutcome(outcome)
		return nil, err
	}

	s.recorder.IncSyncOutcome(OutcomeFetched)
	s.logger.Info("remote hike fetched", zap.String("remote_id", remoteID), zap.String("hike_id", h.ID))
	return h, nil
}
