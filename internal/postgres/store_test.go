package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"trektrace/internal/model"
	"trektrace/internal/service/storage"
	"trektrace/internal/testutil"
)

// setupTestDB opens an in-memory sqlite DB and migrates the schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(DriverSQLite, ":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestStore_Contract(t *testing.T) {
	testutil.RunStoreContract(t, func(t *testing.T) storage.Store {
		return NewStore(setupTestDB(t))
	})
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "whatever", nil)
	assert.Error(t, err)
}

func TestStore_OptionalColumnsRoundTrip(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()

	hike := testutil.NewHike("h-1", "Nulls", testutil.BaseTime)
	require.NoError(t, s.CreateHike(ctx, hike))

	var row HikePG
	require.NoError(t, s.db.Where("id = ?", "h-1").First(&row).Error)
	assert.Nil(t, row.FinishedAt)
	assert.Nil(t, row.Distance)

	got, err := s.GetHike(ctx, "h-1")
	require.NoError(t, err)
	assert.Nil(t, got.Duration)
	assert.Nil(t, got.ElevationGain)
}

func TestStore_PointColumnsRoundTrip(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, s.CreateHike(ctx, testutil.NewHike("h-1", "Cols", testutil.BaseTime)))

	p := model.TrackPoint{
		ID:        "pt-1",
		Latitude:  47.123456789,
		Longitude: -122.987654321,
		Altitude:  1234.5,
		Timestamp: testutil.BaseTime.Add(90 * time.Second),
		IsResting: true,
		Speed:     1.4,
		Heading:   270,
	}
	require.NoError(t, s.Append(ctx, "h-1", p))

	points, err := s.RangeByHike(ctx, "h-1")
	require.NoError(t, err)
	require.Len(t, points, 1)
	got := points[0]
	assert.Equal(t, "pt-1", got.ID)
	assert.Equal(t, "h-1", got.HikeID)
	assert.InDelta(t, p.Latitude, got.Latitude, 1e-12)
	assert.InDelta(t, p.Longitude, got.Longitude, 1e-12)
	assert.InDelta(t, p.Altitude, got.Altitude, 1e-9)
	assert.True(t, got.Timestamp.Equal(p.Timestamp))
	assert.True(t, got.IsResting)
	assert.InDelta(t, 1.4, got.Speed, 1e-9)
	assert.InDelta(t, 270, got.Heading, 1e-9)
}

func TestStore_CreateWithPointsRollsBack(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()

	points := testutil.WalkNorth(3, time.Second, 10)
	points[1].ID = "same"
	points[2].ID = "same"

	err := s.CreateHikeWithPoints(ctx, testutil.NewHike("imp", "Broken", testutil.BaseTime), points)
	assert.ErrorIs(t, err, model.ErrPersistenceFailure)

	_, err = s.GetHike(ctx, "imp")
	assert.ErrorIs(t, err, model.ErrNotFound)
	n, err := s.CountByHike(ctx, "imp")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHikeMapping(t *testing.T) {
	finished := testutil.BaseTime.Add(time.Hour)
	h := &model.Hike{
		ID:         "h",
		Name:       "Mapped",
		StartedAt:  testutil.BaseTime,
		FinishedAt: &finished,
		Distance:   model.Float(10),
		IsSynced:   true,
		IsImported: true,
	}

	back := HikeFromPG(HikeToPG(h))
	assert.Equal(t, h.Name, back.Name)
	assert.True(t, back.FinishedAt.Equal(finished))
	assert.Equal(t, 10.0, *back.Distance)
	assert.True(t, back.IsSynced)
	assert.True(t, back.IsImported)
	assert.False(t, back.IsDraft)

	*back.Distance = 99
	assert.Equal(t, 10.0, *h.Distance)
}
