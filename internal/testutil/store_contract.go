package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trektrace/internal/model"
	"trektrace/internal/service/storage"
)

// RunStoreContract exercises behavior every storage.Store backend must share.
// newStore is called once per subtest and must return an empty store.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("CreateGetUpdate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		hike := NewHike("h-1", "Morning loop", BaseTime)
		require.NoError(t, s.CreateHike(ctx, hike))
		assert.False(t, hike.CreatedAt.IsZero())

		got, err := s.GetHike(ctx, "h-1")
		require.NoError(t, err)
		assert.Equal(t, "Morning loop", got.Name)
		assert.True(t, got.IsActive())
		assert.Nil(t, got.Distance)
		assert.True(t, got.StartedAt.Equal(BaseTime))

		got.Name = "Evening loop"
		got.IsDraft = false
		got.FinishedAt = model.Time(BaseTime.Add(time.Hour))
		got.ApplyStats(model.HikeStats{Distance: 1200, Duration: 3600, ElevationGain: 42})
		require.NoError(t, s.UpdateHike(ctx, got))

		again, err := s.GetHike(ctx, "h-1")
		require.NoError(t, err)
		assert.Equal(t, "Evening loop", again.Name)
		assert.False(t, again.IsActive())
		require.NotNil(t, again.Distance)
		assert.InDelta(t, 1200, *again.Distance, 1e-9)
		require.NotNil(t, again.FinishedAt)
		assert.True(t, again.FinishedAt.Equal(BaseTime.Add(time.Hour)))
	})

	t.Run("ReturnedHikesAreCopies", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateHike(ctx, NewHike("h-1", "Copy", BaseTime)))

		got, err := s.GetHike(ctx, "h-1")
		require.NoError(t, err)
		got.Name = "mutated"

		again, err := s.GetHike(ctx, "h-1")
		require.NoError(t, err)
		assert.Equal(t, "Copy", again.Name)
	})

	t.Run("DuplicateCreateFails", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateHike(ctx, NewHike("h-1", "One", BaseTime)))

		err := s.CreateHike(ctx, NewHike("h-1", "Two", BaseTime))
		assert.ErrorIs(t, err, model.ErrPersistenceFailure)
	})

	t.Run("MissingHike", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetHike(ctx, "nope")
		assert.ErrorIs(t, err, model.ErrNotFound)
		assert.ErrorIs(t, s.UpdateHike(ctx, NewHike("nope", "x", BaseTime)), model.ErrNotFound)
		assert.ErrorIs(t, s.DeleteHike(ctx, "nope"), model.ErrNotFound)
		assert.ErrorIs(t, s.Append(ctx, "nope", StationaryTrack(1, time.Second)[0]), model.ErrNotFound)
	})

	t.Run("RangeIsOrderedByTimestamp", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateHike(ctx, NewHike("h-1", "Order", BaseTime)))

		track := WalkNorth(5, 30*time.Second, 20)
		order := []int{2, 0, 4, 1, 3}
		for _, i := range order {
			require.NoError(t, s.Append(ctx, "h-1", track[i]))
		}

		got, err := s.RangeByHike(ctx, "h-1")
		require.NoError(t, err)
		require.Len(t, got, 5)
		for i := range got {
			assert.True(t, got[i].Timestamp.Equal(track[i].Timestamp), "point %d out of order", i)
			assert.Equal(t, "h-1", got[i].HikeID)
			assert.InDelta(t, track[i].Latitude, got[i].Latitude, 1e-9)
		}

		n, err := s.CountByHike(ctx, "h-1")
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("AppendBatchAndIsolation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateHike(ctx, NewHike("h-1", "A", BaseTime)))
		require.NoError(t, s.CreateHike(ctx, NewHike("h-2", "B", BaseTime)))

		require.NoError(t, s.AppendBatch(ctx, "h-1", WalkNorth(3, time.Minute, 15)))
		require.NoError(t, s.AppendBatch(ctx, "h-2", WalkNorth(2, time.Minute, 15)))
		require.NoError(t, s.AppendBatch(ctx, "h-2", nil))

		a, err := s.RangeByHike(ctx, "h-1")
		require.NoError(t, err)
		b, err := s.RangeByHike(ctx, "h-2")
		require.NoError(t, err)
		assert.Len(t, a, 3)
		assert.Len(t, b, 2)

		empty, err := s.RangeByHike(ctx, "unknown")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("DeleteRemovesPointsThenHike", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateHike(ctx, NewHike("h-1", "Gone", BaseTime)))
		require.NoError(t, s.AppendBatch(ctx, "h-1", WalkNorth(4, time.Minute, 15)))

		require.NoError(t, s.DeleteAllForHike(ctx, "h-1"))
		require.NoError(t, s.DeleteHike(ctx, "h-1"))

		points, err := s.RangeByHike(ctx, "h-1")
		require.NoError(t, err)
		assert.Empty(t, points)
		_, err = s.GetHike(ctx, "h-1")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("ListNewestFirstWithFilter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			h := NewHike(fmt.Sprintf("h-%d", i), fmt.Sprintf("Hike %d", i), BaseTime.Add(time.Duration(i)*time.Hour))
			if i < 2 {
				h.IsDraft = false
				h.FinishedAt = model.Time(h.StartedAt.Add(30 * time.Minute))
			}
			h.IsSynced = i == 0
			require.NoError(t, s.CreateHike(ctx, h))
		}

		all, err := s.ListHikes(ctx, model.HikeFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"h-2", "h-1", "h-0"}, hikeIDs(all))

		pending, err := s.ListHikes(ctx, model.HikeFilter{Draft: model.Bool(false), Synced: model.Bool(false)})
		require.NoError(t, err)
		assert.Equal(t, []string{"h-1"}, hikeIDs(pending))

		drafts, err := s.ListHikes(ctx, model.HikeFilter{Draft: model.Bool(true)})
		require.NoError(t, err)
		assert.Equal(t, []string{"h-2"}, hikeIDs(drafts))
	})

	t.Run("CreateWithPointsIsAtomic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		hike := NewHike("imp-1", "Imported", BaseTime)
		hike.IsDraft = false
		hike.IsImported = true
		require.NoError(t, s.CreateHikeWithPoints(ctx, hike, WalkNorth(6, 10*time.Second, 12)))

		points, err := s.RangeByHike(ctx, "imp-1")
		require.NoError(t, err)
		assert.Len(t, points, 6)

		dup := NewHike("imp-1", "Again", BaseTime)
		err = s.CreateHikeWithPoints(ctx, dup, WalkNorth(2, 10*time.Second, 12))
		assert.ErrorIs(t, err, model.ErrPersistenceFailure)

		points, err = s.RangeByHike(ctx, "imp-1")
		require.NoError(t, err)
		assert.Len(t, points, 6)
		got, err := s.GetHike(ctx, "imp-1")
		require.NoError(t, err)
		assert.Equal(t, "Imported", got.Name)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.CreateHike(ctx, NewHike("h-1", "x", BaseTime))
		assert.ErrorIs(t, err, model.ErrPersistenceFailure)
	})
}

func hikeIDs(hikes []*model.Hike) []string {
	ids := make([]string, len(hikes))
	for i, h := range hikes {
		ids[i] = h.ID
	}
	return ids
}
