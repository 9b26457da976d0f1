package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"trektrace/internal/model"
	"trektrace/internal/util"
)

const pointShardCount = 16

var errHikeExists = errors.New("hike already exists")

// MemoryStore keeps hikes and their point series in process memory.
// Hike records are cloned on the way in and out, point slices are replaced
// rather than mutated, so readers never observe a half-applied write.
type MemoryStore struct {
	hikes  Storage[string, *model.Hike]
	points Storage[string, []model.TrackPoint]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hikes:  NewMemoryStorage[string, *model.Hike](),
		points: NewShardedMemoryStorage[string, []model.TrackPoint](pointShardCount, nil),
	}
}

func (s *MemoryStore) CreateHike(ctx context.Context, hike *model.Hike) error {
	if err := ctx.Err(); err != nil {
		return model.PersistenceError("create hike", err)
	}

	now := time.Now()
	stored := hike.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	created := s.hikes.Update(hike.ID, func(_ *model.Hike, exists bool) (*model.Hike, bool) {
		return stored, !exists
	})
	if !created {
		return model.PersistenceError("create hike "+hike.ID, errHikeExists)
	}

	hike.CreatedAt, hike.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

func (s *MemoryStore) GetHike(ctx context.Context, id string) (*model.Hike, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.PersistenceError("get hike", err)
	}

	hike, ok := s.hikes.Get(id)
	if !ok {
		return nil, model.NotFoundError("hike", id)
	}
	return hike.Clone(), nil
}

func (s *MemoryStore) UpdateHike(ctx context.Context, hike *model.Hike) error {
	if err := ctx.Err(); err != nil {
		return model.PersistenceError("update hike", err)
	}

	stored := hike.Clone()
	stored.UpdatedAt = time.Now()
	updated := s.hikes.Update(hike.ID, func(current *model.Hike, exists bool) (*model.Hike, bool) {
		if !exists {
			return nil, false
		}
		stored.CreatedAt = current.CreatedAt
		return stored, true
	})
	if !updated {
		return model.NotFoundError("hike", hike.ID)
	}

	hike.CreatedAt, hike.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

func (s *MemoryStore) DeleteHike(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return model.PersistenceError("delete hike", err)
	}

	if !s.hikes.Delete(id) {
		return model.NotFoundError("hike", id)
	}
	// Points normally go first; drop leftovers so none outlive their hike.
	s.points.Delete(id)
	return nil
}

func (s *MemoryStore) ListHikes(ctx context.Context, filter model.HikeFilter) ([]*model.Hike, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.PersistenceError("list hikes", err)
	}

	result := make([]*model.Hike, 0, s.hikes.Count())
	s.hikes.ForEach(func(_ string, h *model.Hike) bool {
		if matchesFilter(h, filter) {
			result = append(result, h.Clone())
		}
		return true
	})
	sortNewestFirst(result)
	return result, nil
}

func (s *MemoryStore) Append(ctx context.Context, hikeID string, point model.TrackPoint) error {
	return s.AppendBatch(ctx, hikeID, []model.TrackPoint{point})
}

func (s *MemoryStore) AppendBatch(ctx context.Context, hikeID string, points []model.TrackPoint) error {
	if err := ctx.Err(); err != nil {
		return model.PersistenceError("append points", err)
	}
	if len(points) == 0 {
		return nil
	}
	if _, ok := s.hikes.Get(hikeID); !ok {
		return model.NotFoundError("hike", hikeID)
	}

	s.points.Update(hikeID, func(current []model.TrackPoint, _ bool) ([]model.TrackPoint, bool) {
		return mergePoints(current, hikeID, points), true
	})
	return nil
}

func (s *MemoryStore) RangeByHike(ctx context.Context, hikeID string) ([]model.TrackPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.PersistenceError("range points", err)
	}

	points, _ := s.points.Get(hikeID)
	out := make([]model.TrackPoint, len(points))
	copy(out, points)
	return out, nil
}

func (s *MemoryStore) CountByHike(ctx context.Context, hikeID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, model.PersistenceError("count points", err)
	}

	points, _ := s.points.Get(hikeID)
	return len(points), nil
}

func (s *MemoryStore) DeleteAllForHike(ctx context.Context, hikeID string) error {
	if err := ctx.Err(); err != nil {
		return model.PersistenceError("delete points", err)
	}

	s.points.Delete(hikeID)
	return nil
}

func (s *MemoryStore) CreateHikeWithPoints(ctx context.Context, hike *model.Hike, points []model.TrackPoint) error {
	// Points are staged before the hike becomes visible; listings and lookups
	// go through the hike map, so a half-done import is never reachable.
	if err := ctx.Err(); err != nil {
		return model.PersistenceError("create hike", err)
	}
	if _, exists := s.hikes.Get(hike.ID); exists {
		return model.PersistenceError("create hike "+hike.ID, errHikeExists)
	}

	staged := s.points.Update(hike.ID, func(_ []model.TrackPoint, exists bool) ([]model.TrackPoint, bool) {
		return mergePoints(nil, hike.ID, points), !exists
	})
	if !staged {
		return model.PersistenceError("create hike "+hike.ID, errHikeExists)
	}
	if err := s.CreateHike(ctx, hike); err != nil {
		s.points.Delete(hike.ID)
		return err
	}
	return nil
}

// mergePoints returns a new slice holding current plus incoming, ordered by
// timestamp. Equal timestamps keep arrival order.
func mergePoints(current []model.TrackPoint, hikeID string, incoming []model.TrackPoint) []model.TrackPoint {
	now := time.Now()
	merged := make([]model.TrackPoint, len(current), len(current)+len(incoming))
	copy(merged, current)

	for _, p := range incoming {
		p.HikeID = hikeID
		if p.ID == "" {
			p.ID = util.NewPointID()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		i := sort.Search(len(merged), func(i int) bool {
			return merged[i].Timestamp.After(p.Timestamp)
		})
		merged = append(merged, model.TrackPoint{})
		copy(merged[i+1:], merged[i:])
		merged[i] = p
	}
	return merged
}

func sortNewestFirst(hikes []*model.Hike) {
	sort.SliceStable(hikes, func(i, j int) bool {
		if !hikes[i].StartedAt.Equal(hikes[j].StartedAt) {
			return hikes[i].StartedAt.After(hikes[j].StartedAt)
		}
		return hikes[i].ID > hikes[j].ID
	})
}

var _ Store = (*MemoryStore)(nil)
