package hike

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"trektrace/internal/model"
	"trektrace/internal/service/changefeed"
	"trektrace/internal/service/location"
	"trektrace/internal/service/storage"
	"trektrace/internal/service/tracking"
	"trektrace/internal/util"
)

const DefaultImportName = "Imported Hike"

// Details carries optional record changes; nil fields are left alone.
type Details struct {
	Name     *string `json:"name,omitempty"`
	IsDraft  *bool   `json:"is_draft,omitempty"`
	IsSynced *bool   `json:"is_synced,omitempty"`
}

// Service owns hike records and the tracking session that feeds them.
type Service struct {
	store    storage.Store
	session  *tracking.Session
	provider location.Provider
	feed     *changefeed.Hub
	logger   *zap.Logger
	now      func() time.Time
	locks    *keyedMutex
}

type Option func(*Service)

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store storage.Store, session *tracking.Session, provider location.Provider, feed *changefeed.Hub, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    store,
		session:  session,
		provider: provider,
		feed:     feed,
		logger:   logger.Named("hike"),
		now:      time.Now,
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BeginHike creates an active draft and starts recording it. If the session
// cannot start, the record is removed again.
func (s *Service) BeginHike(ctx context.Context, name string) (*model.Hike, error) {
	if subject := s.session.Subject(); subject != "" {
		return nil, fmt.Errorf("begin hike: %w (recording %s)", model.ErrSessionAlreadyActive, subject)
	}

	now := s.now()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Hike " + now.Format("2006-01-02")
	}
	h := &model.Hike{
		ID:        util.ShortUUID(),
		Name:      name,
		StartedAt: now,
		IsDraft:   true,
	}
	if err := s.store.CreateHike(ctx, h); err != nil {
		return nil, fmt.Errorf("begin hike: %w", err)
	}

	if err := s.session.Start(ctx, h.ID); err != nil {
		if delErr := s.store.DeleteHike(context.WithoutCancel(ctx), h.ID); delErr != nil {
			s.logger.Error("rollback of hike record failed", zap.String("hike_id", h.ID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("begin hike: %w", err)
	}

	s.logger.Info("hike started", zap.String("hike_id", h.ID), zap.String("name", h.Name))
	return h, nil
}

// FinishHike stops the session recording id and stores the final statistics.
// With no recorded points it fails with ErrNoData and leaves the record as is.
func (s *Service) FinishHike(ctx context.Context, id string) (*model.Hike, error) {
	if subject := s.session.Subject(); subject != id {
		return nil, fmt.Errorf("finish hike %s: %w", id, model.ErrNoActiveSession)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.session.Stop(ctx); err != nil {
		if errors.Is(err, model.ErrNoActiveSession) {
			return nil, fmt.Errorf("finish hike %s: %w", id, err)
		}
		// Delivery is torn down regardless; finishing can go on.
		s.logger.Warn("session stop reported an error", zap.String("hike_id", id), zap.Error(err))
	}

	h, err := s.store.GetHike(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finish hike: %w", err)
	}
	stats, err := s.statsFor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finish hike %s: %w", id, err)
	}

	h.ApplyStats(stats)
	h.FinishedAt = model.Time(s.now())
	h.IsDraft = false
	if err := s.store.UpdateHike(ctx, h); err != nil {
		return nil, fmt.Errorf("finish hike: %w", err)
	}

	s.logger.Info("hike finished",
		zap.String("hike_id", id),
		zap.Int("points", stats.PointCount),
		zap.Float64("distance_m", stats.Distance),
		zap.Float64("duration_s", stats.Duration))
	return h, nil
}

// RecomputeFromImport refreshes statistics of a hike whose points were
// ingested in bulk. The hike being recorded is refused; FinishHike closes it.
func (s *Service) RecomputeFromImport(ctx context.Context, id string) (*model.Hike, error) {
	if s.session.Subject() == id {
		return nil, fmt.Errorf("recompute hike %s: %w", id, model.ErrSessionAlreadyActive)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	h, err := s.store.GetHike(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("recompute hike: %w", err)
	}
	points, err := s.store.RangeByHike(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("recompute hike %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("recompute hike %s: %w", id, model.ErrNoData)
	}

	h.ApplyStats(util.ComputeStats(points))
	h.IsDraft = false
	if h.FinishedAt == nil {
		h.FinishedAt = model.Time(points[len(points)-1].Timestamp)
	}
	if err := s.store.UpdateHike(ctx, h); err != nil {
		return nil, fmt.Errorf("recompute hike: %w", err)
	}
	return h, nil
}

// CreateImported stores a finished, imported hike together with its points.
// Statistics are computed before the write, so the hike appears complete.
func (s *Service) CreateImported(ctx context.Context, name string, points []model.TrackPoint, synced bool) (*model.Hike, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("import hike: %w", model.ErrEmptyTrack)
	}

	ordered := make([]model.TrackPoint, len(points))
	copy(ordered, points)
	model.SortByTimestamp(ordered)

	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultImportName
	}
	h := &model.Hike{
		ID:         util.ShortUUID(),
		Name:       name,
		StartedAt:  ordered[0].Timestamp,
		FinishedAt: model.Time(ordered[len(ordered)-1].Timestamp),
		IsSynced:   synced,
		IsImported: true,
	}
	h.ApplyStats(util.ComputeStats(ordered))

	for i := range ordered {
		ordered[i].ID = ""
		ordered[i].HikeID = h.ID
	}
	if err := s.store.CreateHikeWithPoints(ctx, h, ordered); err != nil {
		return nil, fmt.Errorf("import hike: %w", err)
	}

	s.logger.Info("hike imported", zap.String("hike_id", h.ID), zap.Int("points", len(ordered)), zap.Bool("synced", synced))
	return h, nil
}

// DeleteHike removes the hike and its points. Deleting the hike being
// recorded stops the session first.
func (s *Service) DeleteHike(ctx context.Context, id string) error {
	if s.session.Subject() == id {
		if err := s.session.Stop(ctx); err != nil && !errors.Is(err, model.ErrNoActiveSession) {
			s.logger.Warn("session stop reported an error", zap.String("hike_id", id), zap.Error(err))
		}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.store.GetHike(ctx, id); err != nil {
		return fmt.Errorf("delete hike: %w", err)
	}
	if err := s.store.DeleteAllForHike(ctx, id); err != nil {
		return fmt.Errorf("delete hike %s: %w", id, err)
	}
	if err := s.store.DeleteHike(ctx, id); err != nil {
		return fmt.Errorf("delete hike: %w", err)
	}

	s.logger.Info("hike deleted", zap.String("hike_id", id))
	return nil
}

func (s *Service) UpdateDetails(ctx context.Context, id string, d Details) (*model.Hike, error) {
	if d.Name != nil && strings.TrimSpace(*d.Name) == "" {
		return nil, fmt.Errorf("update hike %s: name must not be empty: %w", id, model.ErrInvalidFormat)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	h, err := s.store.GetHike(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("update hike: %w", err)
	}
	if d.Name != nil {
		h.Name = strings.TrimSpace(*d.Name)
	}
	if d.IsDraft != nil {
		h.IsDraft = *d.IsDraft
	}
	if d.IsSynced != nil {
		h.IsSynced = *d.IsSynced
	}
	if err := s.store.UpdateHike(ctx, h); err != nil {
		return nil, fmt.Errorf("update hike: %w", err)
	}
	return h, nil
}

func (s *Service) RenameHike(ctx context.Context, id, name string) (*model.Hike, error) {
	return s.UpdateDetails(ctx, id, Details{Name: &name})
}

func (s *Service) SetSynced(ctx context.Context, id string, synced bool) (*model.Hike, error) {
	return s.UpdateDetails(ctx, id, Details{IsSynced: &synced})
}

func (s *Service) GetHike(ctx context.Context, id string) (*model.Hike, error) {
	return s.store.GetHike(ctx, id)
}

// ListHikes returns hikes newest first.
func (s *Service) ListHikes(ctx context.Context, filter model.HikeFilter) ([]*model.Hike, error) {
	return s.store.ListHikes(ctx, filter)
}

// ActiveHike returns the hike being recorded. When nothing is recording it
// falls back to the newest unfinished draft, e.g. one left by a previous run.
func (s *Service) ActiveHike(ctx context.Context) (*model.Hike, error) {
	if subject := s.session.Subject(); subject != "" {
		return s.store.GetHike(ctx, subject)
	}

	drafts, err := s.store.ListHikes(ctx, model.HikeFilter{Draft: model.Bool(true)})
	if err != nil {
		return nil, err
	}
	for _, h := range drafts {
		if h.FinishedAt == nil {
			return h, nil
		}
	}
	return nil, fmt.Errorf("active hike: %w", model.ErrNotFound)
}

// Points returns the hike's points in timestamp order.
func (s *Service) Points(ctx context.Context, id string) ([]model.TrackPoint, error) {
	if _, err := s.store.GetHike(ctx, id); err != nil {
		return nil, err
	}
	return s.store.RangeByHike(ctx, id)
}

// LiveStats recomputes statistics over the points stored so far.
func (s *Service) LiveStats(ctx context.Context, id string) (model.HikeStats, error) {
	points, err := s.Points(ctx, id)
	if err != nil {
		return model.HikeStats{}, err
	}
	return util.ComputeStats(points), nil
}

func (s *Service) ElevationProfile(ctx context.Context, id string) ([]util.ProfilePoint, error) {
	points, err := s.Points(ctx, id)
	if err != nil {
		return nil, err
	}
	return util.ElevationProfile(points), nil
}

// Observe subscribes to changes of the hike and its points. Callers must
// pass the subscription to Unobserve when done.
func (s *Service) Observe(ctx context.Context, id string) (*changefeed.Subscription, error) {
	if _, err := s.store.GetHike(ctx, id); err != nil {
		return nil, err
	}
	return s.feed.Subscribe(id), nil
}

func (s *Service) Unobserve(sub *changefeed.Subscription) {
	s.feed.Unsubscribe(sub)
}

func (s *Service) PauseTracking(ctx context.Context) error {
	return s.session.Pause(ctx)
}

func (s *Service) ResumeTracking(ctx context.Context) error {
	return s.session.Resume(ctx)
}

// StopTracking ends the session without finishing the hike.
func (s *Service) StopTracking(ctx context.Context) error {
	return s.session.Stop(ctx)
}

func (s *Service) SessionStatus() tracking.Status {
	return s.session.Status()
}

// CurrentFix takes a one-shot reading, gated on foreground permission.
func (s *Service) CurrentFix(ctx context.Context) (location.Fix, error) {
	granted, err := s.provider.RequestForegroundPermission(ctx)
	if err != nil {
		return location.Fix{}, fmt.Errorf("current location: %w", err)
	}
	if !granted {
		return location.Fix{}, fmt.Errorf("current location: %w", model.ErrPermissionDenied)
	}
	return s.provider.CurrentFix(ctx)
}

func (s *Service) statsFor(ctx context.Context, id string) (model.HikeStats, error) {
	points, err := s.store.RangeByHike(ctx, id)
	if err != nil {
		return model.HikeStats{}, err
	}
	if len(points) == 0 {
		return model.HikeStats{}, model.ErrNoData
	}
	return util.ComputeStats(points), nil
}
