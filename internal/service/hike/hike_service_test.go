package hike

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"trektrace/internal/model"
	"trektrace/internal/service/changefeed"
	"trektrace/internal/service/location"
	"trektrace/internal/service/storage"
	"trektrace/internal/service/tracking"
	"trektrace/internal/testutil"
)

type env struct {
	svc      *Service
	store    storage.Store
	provider *testutil.FlakyProvider
	clock    *testutil.Clock
	feed     *changefeed.Hub
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zaptest.NewLogger(t)
	e := &env{
		provider: testutil.NewFlakyProvider(),
		clock:    testutil.NewClock(testutil.BaseTime),
		feed:     changefeed.NewHub(nil, logger),
	}
	e.store = storage.NewObservedStore(storage.NewMemoryStore(), e.feed)

	opts := tracking.DefaultOptions()
	opts.Clock = e.clock.Now
	session := tracking.NewSession(e.provider, e.store, logger, nil, opts)
	e.svc = NewService(e.store, session, e.provider, e.feed, logger, WithClock(e.clock.Now))
	return e
}

func (e *env) record(t *testing.T, points []model.TrackPoint) {
	t.Helper()
	require.NoError(t, e.provider.Deliver(testutil.Fixes(points)))
}

func TestBeginAndFinishHike(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	h, err := e.svc.BeginHike(ctx, "  Ridge walk ")
	require.NoError(t, err)
	assert.Equal(t, "Ridge walk", h.Name)
	assert.True(t, h.IsActive())
	assert.Equal(t, tracking.StateActive.String(), e.svc.SessionStatus().State)

	e.record(t, []model.TrackPoint{
		{Latitude: 47.0, Longitude: -122.0, Altitude: 100, Timestamp: testutil.BaseTime},
		{Latitude: 47.001, Longitude: -122.0, Altitude: 110, Timestamp: testutil.BaseTime.Add(60 * time.Second)},
		{Latitude: 47.001, Longitude: -122.0, Altitude: 105, Timestamp: testutil.BaseTime.Add(120 * time.Second)},
	})

	e.clock.Set(testutil.BaseTime.Add(3 * time.Minute))
	finished, err := e.svc.FinishHike(ctx, h.ID)
	require.NoError(t, err)

	assert.False(t, finished.IsDraft)
	require.NotNil(t, finished.FinishedAt)
	assert.True(t, finished.FinishedAt.Equal(testutil.BaseTime.Add(3*time.Minute)))
	assert.InDelta(t, 10, *finished.ElevationGain, 1e-9)
	assert.InDelta(t, 120, *finished.Duration, 1e-9)
	assert.InDelta(t, 111.2, *finished.Distance, 0.5)
	assert.Equal(t, "0:02:00", finished.FormattedDuration())

	stored, err := e.svc.GetHike(ctx, h.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive())
	assert.Equal(t, tracking.StateIdle.String(), e.svc.SessionStatus().State)
}

func TestBeginHike_DefaultName(t *testing.T) {
	e := newEnv(t)
	h, err := e.svc.BeginHike(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Hike 2024-06-01", h.Name)
}

func TestBeginHike_WhileRecordingFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.svc.BeginHike(ctx, "first")
	require.NoError(t, err)

	_, err = e.svc.BeginHike(ctx, "second")
	assert.ErrorIs(t, err, model.ErrSessionAlreadyActive)

	hikes, err := e.svc.ListHikes(ctx, model.HikeFilter{})
	require.NoError(t, err)
	require.Len(t, hikes, 1)
	assert.Equal(t, first.ID, hikes[0].ID)
	assert.Equal(t, first.ID, e.svc.SessionStatus().HikeID)
}

func TestBeginHike_RollsBackRecordWhenSessionFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.provider.SetPermissions(false, false)

	_, err := e.svc.BeginHike(ctx, "denied")
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	hikes, err := e.svc.ListHikes(ctx, model.HikeFilter{})
	require.NoError(t, err)
	assert.Empty(t, hikes)
	assert.Equal(t, "idle", e.svc.SessionStatus().State)

	e.provider.SetPermissions(true, true)
	e.provider.FailStart(errors.New("gps off"))
	_, err = e.svc.BeginHike(ctx, "broken")
	require.Error(t, err)
	hikes, err = e.svc.ListHikes(ctx, model.HikeFilter{})
	require.NoError(t, err)
	assert.Empty(t, hikes)
}

func TestFinishHike_NoDataLeavesRecordUnchanged(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	h, err := e.svc.BeginHike(ctx, "empty")
	require.NoError(t, err)

	_, err = e.svc.FinishHike(ctx, h.ID)
	assert.ErrorIs(t, err, model.ErrNoData)

	stored, err := e.svc.GetHike(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDraft)
	assert.Nil(t, stored.FinishedAt)
	assert.Nil(t, stored.Distance)

	active, err := e.svc.ActiveHike(ctx)
	require.NoError(t, err)
	assert.Equal(t, h.ID, active.ID)
}

func TestFinishHike_RequiresSessionBoundToHike(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.FinishHike(ctx, "whatever")
	assert.ErrorIs(t, err, model.ErrNoActiveSession)

	h, err := e.svc.BeginHike(ctx, "bound")
	require.NoError(t, err)
	_, err = e.svc.FinishHike(ctx, "other")
	assert.ErrorIs(t, err, model.ErrNoActiveSession)
	assert.Equal(t, h.ID, e.svc.SessionStatus().HikeID)
}

func TestFinishHike_FromPaused(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	h, err := e.svc.BeginHike(ctx, "paused")
	require.NoError(t, err)
	e.record(t, testutil.WalkNorth(4, 10*time.Second, 20))
	require.NoError(t, e.svc.PauseTracking(ctx))

	finished, err := e.svc.FinishHike(ctx, h.ID)
	require.NoError(t, err)
	assert.InDelta(t, 60, *finished.Distance, 0.5)
}

func TestFinishHike_StopErrorStillFinishes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	h, err := e.svc.BeginHike(ctx, "flaky")
	require.NoError(t, err)
	e.record(t, testutil.WalkNorth(3, 10*time.Second, 20))
	e.provider.FailStop(errors.New("platform refused"))

	finished, err := e.svc.FinishHike(ctx, h.ID)
	require.NoError(t, err)
	assert.False(t, finished.IsDraft)
}

func TestPauseResumeStopTracking(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, e.svc.PauseTracking(ctx), model.ErrNoActiveSession)

	_, err := e.svc.BeginHike(ctx, "lifecycle")
	require.NoError(t, err)
	require.NoError(t, e.svc.PauseTracking(ctx))
	assert.Equal(t, "paused", e.svc.SessionStatus().State)
	require.NoError(t, e.svc.ResumeTracking(ctx))
	require.NoError(t, e.svc.StopTracking(ctx))
	assert.Equal(t, "idle", e.svc.SessionStatus().State)
}

func TestDeleteHike(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	h, err := e.svc.BeginHike(ctx, "doomed")
	require.NoError(t, err)
	e.record(t, testutil.WalkNorth(5, 10*time.Second, 20))
	_, err = e.svc.FinishHike(ctx, h.ID)
	require.NoError(t, err)

	require.NoError(t, e.svc.DeleteHike(ctx, h.ID))

	points, err := e.store.RangeByHike(ctx, h.ID)
	require.NoError(t, err)
	assert.Empty(t, points)
	_, err = e.svc.GetHike(ctx, h.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.ErrorIs(t, e.svc.DeleteHike(ctx, h.ID), model.ErrNotFound)
}

func TestDeleteHike_ActiveSubjectStopsSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	h, err := e.svc.BeginHike(ctx, "recording")
	require.NoError(t, err)
	e.record(t, testutil.WalkNorth(2, 10*time.Second, 20))

	require.NoError(t, e.svc.DeleteHike(ctx, h.ID))
	assert.Equal(t, "idle", e.svc.SessionStatus().State)
	assert.ErrorIs(t, e.provider.Deliver(testutil.Fixes(testutil.WalkNorth(1, time.Second, 1))), model.ErrNoActiveSession)

	n, err := e.store.CountByHike(ctx, h.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateImportedAndRecompute(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	track := testutil.WalkNorth(6, 30*time.Second, 50)
	shuffled := []model.TrackPoint{track[3], track[0], track[5], track[1], track[4], track[2]}

	h, err := e.svc.CreateImported(ctx, "", shuffled, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultImportName, h.Name)
	assert.True(t, h.IsImported)
	assert.False(t, h.IsDraft)
	assert.False(t, h.IsSynced)
	assert.True(t, h.StartedAt.Equal(track[0].Timestamp))
	assert.True(t, h.FinishedAt.Equal(track[5].Timestamp))
	assert.InDelta(t, 250, *h.Distance, 0.5)
	assert.InDelta(t, 5, *h.ElevationGain, 1e-9)

	recomputed, err := e.svc.RecomputeFromImport(ctx, h.ID)
	require.NoError(t, err)
	assert.InDelta(t, *h.Distance, *recomputed.Distance, 1e-9)
	assert.True(t, recomputed.FinishedAt.Equal(track[5].Timestamp))

	_, err = e.svc.CreateImported(ctx, "none", nil, true)
	assert.ErrorIs(t, err, model.ErrEmptyTrack)
	_, err = e.svc.RecomputeFromImport(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRecomputeFromImport_NoData(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.CreateHike(ctx, testutil.NewHike("bare", "bare", testutil.BaseTime)))

	_, err := e.svc.RecomputeFromImport(ctx, "bare")
	assert.ErrorIs(t, err, model.ErrNoData)
}

func TestRecomputeFromImport_RefusesRecordingHike(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	h, err := e.svc.BeginHike(ctx, "Live")
	require.NoError(t, err)
	e.record(t, testutil.WalkNorth(3, 10*time.Second, 20))

	_, err = e.svc.RecomputeFromImport(ctx, h.ID)
	assert.ErrorIs(t, err, model.ErrSessionAlreadyActive)

	stored, err := e.svc.GetHike(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDraft)
	assert.Nil(t, stored.FinishedAt)
	assert.Equal(t, h.ID, e.svc.SessionStatus().HikeID)

	require.NoError(t, e.svc.PauseTracking(ctx))
	_, err = e.svc.RecomputeFromImport(ctx, h.ID)
	assert.ErrorIs(t, err, model.ErrSessionAlreadyActive)
}

func TestUpdateDetails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	h, err := e.svc.CreateImported(ctx, "Old", testutil.WalkNorth(3, time.Minute, 10), false)
	require.NoError(t, err)

	renamed, err := e.svc.RenameHike(ctx, h.ID, " New ")
	require.NoError(t, err)
	assert.Equal(t, "New", renamed.Name)

	_, err = e.svc.RenameHike(ctx, h.ID, "   ")
	assert.ErrorIs(t, err, model.ErrInvalidFormat)

	synced, err := e.svc.SetSynced(ctx, h.ID, true)
	require.NoError(t, err)
	assert.True(t, synced.IsSynced)
	assert.Equal(t, "New", synced.Name)

	_, err = e.svc.RenameHike(ctx, "missing", "x")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestActiveHike(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.ActiveHike(ctx)
	assert.ErrorIs(t, err, model.ErrNotFound)

	leftover := testutil.NewHike("leftover", "from last run", testutil.BaseTime.Add(-time.Hour))
	require.NoError(t, e.store.CreateHike(ctx, leftover))
	got, err := e.svc.ActiveHike(ctx)
	require.NoError(t, err)
	assert.Equal(t, "leftover", got.ID)

	h, err := e.svc.BeginHike(ctx, "now")
	require.NoError(t, err)
	got, err = e.svc.ActiveHike(ctx)
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
}

func TestLiveStatsAndProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	h, err := e.svc.BeginHike(ctx, "live")
	require.NoError(t, err)
	e.record(t, testutil.WalkNorth(3, 10*time.Second, 20))
	require.NoError(t, e.svc.PauseTracking(ctx))

	stats, err := e.svc.LiveStats(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.PointCount)
	assert.InDelta(t, 40, stats.Distance, 0.5)
	assert.InDelta(t, 20, stats.Duration, 1e-9)

	profile, err := e.svc.ElevationProfile(ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, profile, 3)
	assert.InDelta(t, 40, profile[2].Distance, 0.5)
	assert.InDelta(t, 102, profile[2].Altitude, 1e-9)

	_, err = e.svc.LiveStats(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestObserveNotifiesOnRecordedPoints(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	h, err := e.svc.BeginHike(ctx, "observed")
	require.NoError(t, err)

	sub, err := e.svc.Observe(ctx, h.ID)
	require.NoError(t, err)
	defer e.svc.Unobserve(sub)

	e.record(t, testutil.WalkNorth(1, time.Second, 5))
	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("no change notification after a recorded point")
	}

	_, err = e.svc.Observe(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCurrentFix(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.CurrentFix(ctx)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, e.provider.StartUpdates(ctx, location.PedestrianOptions(), func([]location.Fix, error) {}))
	require.NoError(t, e.provider.Deliver([]location.Fix{{Latitude: 46.5, Longitude: 7.9}}))
	fix, err := e.svc.CurrentFix(ctx)
	require.NoError(t, err)
	assert.Equal(t, 46.5, fix.Latitude)

	e.provider.SetPermissions(false, true)
	_, err = e.svc.CurrentFix(ctx)
	assert.ErrorIs(t, err, model.ErrPermissionDenied)
}

func TestConcurrentUpdatesOnDifferentHikes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	ids := make([]string, 4)
	for i := range ids {
		h, err := e.svc.CreateImported(ctx, "h", testutil.WalkNorth(3, time.Minute, 10), false)
		require.NoError(t, err)
		ids[i] = h.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for j := 0; j < 5; j++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := e.svc.RecomputeFromImport(ctx, id)
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()
	assert.Zero(t, e.svc.locks.size())
}
