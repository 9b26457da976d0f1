package storage

import (
	"context"

	"trektrace/internal/model"
)

// Notifier is told which hike changed after every successful write.
type Notifier interface {
	Publish(ctx context.Context, hikeID string)
}

// ObservedStore decorates a Store so that every successful write to a hike
// or its points signals the hike id on a Notifier. Readers re-fetch on signal.
type ObservedStore struct {
	Store
	notifier Notifier
}

func NewObservedStore(store Store, notifier Notifier) *ObservedStore {
	return &ObservedStore{Store: store, notifier: notifier}
}

func (s *ObservedStore) CreateHike(ctx context.Context, hike *model.Hike) error {
	return s.notify(ctx, hike.ID, s.Store.CreateHike(ctx, hike))
}

func (s *ObservedStore) UpdateHike(ctx context.Context, hike *model.Hike) error {
	return s.notify(ctx, hike.ID, s.Store.UpdateHike(ctx, hike))
}

func (s *ObservedStore) DeleteHike(ctx context.Context, id string) error {
	return s.notify(ctx, id, s.Store.DeleteHike(ctx, id))
}

func (s *ObservedStore) Append(ctx context.Context, hikeID string, point model.TrackPoint) error {
	return s.notify(ctx, hikeID, s.Store.Append(ctx, hikeID, point))
}

func (s *ObservedStore) AppendBatch(ctx context.Context, hikeID string, points []model.TrackPoint) error {
	return s.notify(ctx, hikeID, s.Store.AppendBatch(ctx, hikeID, points))
}

func (s *ObservedStore) DeleteAllForHike(ctx context.Context, hikeID string) error {
	return s.notify(ctx, hikeID, s.Store.DeleteAllForHike(ctx, hikeID))
}

func (s *ObservedStore) CreateHikeWithPoints(ctx context.Context, hike *model.Hike, points []model.TrackPoint) error {
	return s.notify(ctx, hike.ID, s.Store.CreateHikeWithPoints(ctx, hike, points))
}

func (s *ObservedStore) notify(ctx context.Context, hikeID string, err error) error {
	if err == nil {
		s.notifier.Publish(context.WithoutCancel(ctx), hikeID)
	}
	return err
}
