package storage

import (
	"context"

	"trektrace/internal/model"
)

// Storage defines interface for any keyed in-memory object storage
type Storage[K comparable, V any] interface {
	Set(key K, value V)
	Get(key K) (V, bool)
	Update(key K, fn func(value V, exists bool) (V, bool)) bool
	Delete(key K) bool
	GetAllValues() []V
	ForEach(fn func(key K, value V) bool)
	Count() int
}

// HikeRepository persists hike records.
type HikeRepository interface {
	CreateHike(ctx context.Context, hike *model.Hike) error
	GetHike(ctx context.Context, id string) (*model.Hike, error)
	UpdateHike(ctx context.Context, hike *model.Hike) error
	DeleteHike(ctx context.Context, id string) error
	ListHikes(ctx context.Context, filter model.HikeFilter) ([]*model.Hike, error)
}

// TrackPointStore persists time-ordered track points keyed by hike.
type TrackPointStore interface {
	Append(ctx context.Context, hikeID string, point model.TrackPoint) error
	AppendBatch(ctx context.Context, hikeID string, points []model.TrackPoint) error
	// RangeByHike returns the hike's points in ascending timestamp order.
	RangeByHike(ctx context.Context, hikeID string) ([]model.TrackPoint, error)
	CountByHike(ctx context.Context, hikeID string) (int, error)
	DeleteAllForHike(ctx context.Context, hikeID string) error
}

// Store is the full persistence contract of the tracking core.
type Store interface {
	HikeRepository
	TrackPointStore

	// CreateHikeWithPoints stores a finished hike and its points as one unit:
	// either both become visible or neither does.
	CreateHikeWithPoints(ctx context.Context, hike *model.Hike, points []model.TrackPoint) error
}

func matchesFilter(h *model.Hike, filter model.HikeFilter) bool {
	if filter.Draft != nil && h.IsDraft != *filter.Draft {
		return false
	}
	if filter.Synced != nil && h.IsSynced != *filter.Synced {
		return false
	}
	return true
}
