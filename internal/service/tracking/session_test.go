package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"trektrace/internal/model"
	"trektrace/internal/service/location"
	"trektrace/internal/service/storage"
	"trektrace/internal/testutil"
)

type fixture struct {
	session  *Session
	provider *testutil.FlakyProvider
	store    *storage.MemoryStore
	clock    *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		provider: testutil.NewFlakyProvider(),
		store:    storage.NewMemoryStore(),
		clock:    testutil.NewClock(testutil.BaseTime),
	}
	opts := DefaultOptions()
	opts.Clock = f.clock.Now
	f.session = NewSession(f.provider, f.store, zaptest.NewLogger(t), nil, opts)

	require.NoError(t, f.store.CreateHike(context.Background(), testutil.NewHike("hike-1", "Test", testutil.BaseTime)))
	return f
}

func (f *fixture) points(t *testing.T) []model.TrackPoint {
	t.Helper()
	points, err := f.store.RangeByHike(context.Background(), "hike-1")
	require.NoError(t, err)
	return points
}

// deliverAt hands one fix to the session with the session clock at arrival
// and waits until the writer has handled it.
func (f *fixture) deliverAt(t *testing.T, arrival time.Time, fix location.Fix) {
	t.Helper()
	st := f.session.Status()
	handled := st.PointsApplied + st.FixesDropped

	f.clock.Set(arrival)
	require.NoError(t, f.provider.Deliver([]location.Fix{fix}))
	require.Eventually(t, func() bool {
		st := f.session.Status()
		return st.PointsApplied+st.FixesDropped > handled
	}, time.Second, time.Millisecond)
}

func stationaryFix(at time.Time) location.Fix {
	return location.Fix{Latitude: testutil.StartLat, Longitude: testutil.StartLng, Timestamp: at}
}

func TestSession_RecordsDeliveredFixes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	assert.Equal(t, StateActive, f.session.State())
	assert.Equal(t, "hike-1", f.session.Subject())

	opts, registered := f.provider.Options()
	require.True(t, registered)
	assert.Equal(t, location.AccuracyBestForNavigation, opts.Accuracy)
	assert.Equal(t, 10*time.Second, opts.Interval)
	assert.Equal(t, 10.0, opts.Distance)
	assert.Equal(t, 60*time.Second, opts.DeferredInterval)

	track := testutil.WalkNorth(5, 10*time.Second, 20)
	require.NoError(t, f.provider.Deliver(testutil.Fixes(track[:2])))
	require.NoError(t, f.provider.Deliver(testutil.Fixes(track[2:])))

	require.NoError(t, f.session.Stop(ctx))
	assert.Equal(t, StateIdle, f.session.State())
	assert.Empty(t, f.session.Subject())

	points := f.points(t)
	require.Len(t, points, 5)
	for i, p := range points {
		assert.True(t, p.Timestamp.Equal(track[i].Timestamp))
		assert.False(t, p.IsResting)
		assert.NotEmpty(t, p.ID)
		assert.InDelta(t, track[i].Altitude, p.Altitude, 1e-9)
	}

	_, registered = f.provider.Options()
	assert.False(t, registered)
}

func TestSession_StartWhileActiveLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.Start(ctx, "hike-1"))

	err := f.session.Start(ctx, "hike-2")
	assert.ErrorIs(t, err, model.ErrSessionAlreadyActive)
	assert.Equal(t, StateActive, f.session.State())
	assert.Equal(t, "hike-1", f.session.Subject())

	starts, _ := f.provider.Calls()
	assert.Equal(t, 1, starts)

	require.NoError(t, f.provider.Deliver(testutil.Fixes(testutil.WalkNorth(1, time.Second, 5))))
	require.NoError(t, f.session.Stop(ctx))
	assert.Len(t, f.points(t), 1)
}

func TestSession_PermissionDenied(t *testing.T) {
	cases := []struct {
		name       string
		foreground bool
		background bool
	}{
		{"foreground", false, true},
		{"background", true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.provider.SetPermissions(tc.foreground, tc.background)

			err := f.session.Start(context.Background(), "hike-1")
			assert.ErrorIs(t, err, model.ErrPermissionDenied)
			assert.Equal(t, StateIdle, f.session.State())
			assert.Empty(t, f.session.Subject())

			starts, _ := f.provider.Calls()
			assert.Zero(t, starts)
		})
	}
}

func TestSession_FailedRegistrationLeavesIdle(t *testing.T) {
	f := newFixture(t)
	f.provider.FailStart(errors.New("gps unavailable"))

	err := f.session.Start(context.Background(), "hike-1")
	require.Error(t, err)
	assert.Equal(t, StateIdle, f.session.State())
	assert.Empty(t, f.session.Subject())

	f.provider.FailStart(nil)
	require.NoError(t, f.session.Start(context.Background(), "hike-1"))
}

func TestSession_StartRequiresHikeID(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.session.Start(context.Background(), ""))
	assert.Equal(t, StateIdle, f.session.State())
}

func TestSession_PauseStopsWritesUntilResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	track := testutil.WalkNorth(4, 10*time.Second, 20)

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	require.NoError(t, f.provider.Deliver(testutil.Fixes(track[:2])))
	require.NoError(t, f.session.Pause(ctx))
	assert.Equal(t, StatePaused, f.session.State())
	assert.Equal(t, "hike-1", f.session.Subject())
	assert.Len(t, f.points(t), 2)

	err := f.provider.Deliver(testutil.Fixes(track[2:3]))
	assert.ErrorIs(t, err, model.ErrNoActiveSession)
	assert.Len(t, f.points(t), 2)

	require.NoError(t, f.session.Resume(ctx))
	assert.Equal(t, StateActive, f.session.State())
	require.NoError(t, f.provider.Deliver(testutil.Fixes(track[3:])))
	require.NoError(t, f.session.Stop(ctx))
	assert.Len(t, f.points(t), 3)
}

func TestSession_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.session.Pause(ctx), model.ErrNoActiveSession)
	assert.ErrorIs(t, f.session.Resume(ctx), model.ErrNoActiveSession)
	assert.ErrorIs(t, f.session.Stop(ctx), model.ErrNoActiveSession)

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	assert.ErrorIs(t, f.session.Resume(ctx), model.ErrSessionAlreadyActive)

	require.NoError(t, f.session.Pause(ctx))
	assert.ErrorIs(t, f.session.Pause(ctx), model.ErrNoActiveSession)

	require.NoError(t, f.session.Stop(ctx))
	assert.Equal(t, StateIdle, f.session.State())
}

func TestSession_StopFromPausedDoesNotUnregisterTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	require.NoError(t, f.session.Pause(ctx))
	require.NoError(t, f.session.Stop(ctx))

	starts, stops := f.provider.Calls()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}

func TestSession_StopErrorStillTearsDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	f.provider.FailStop(errors.New("platform refused"))

	err := f.session.Stop(ctx)
	require.Error(t, err)
	assert.Equal(t, StateIdle, f.session.State())
	assert.Empty(t, f.session.Subject())
	assert.ErrorIs(t, f.provider.Deliver(testutil.Fixes(testutil.WalkNorth(1, time.Second, 5))), model.ErrNoActiveSession)

	f.provider.FailStop(nil)
	require.NoError(t, f.session.Start(ctx, "hike-1"))
}

func TestSession_DeliveryFaultKeepsSessionActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	require.NoError(t, f.provider.Fail(errors.New("permission revoked")))
	assert.Equal(t, StateActive, f.session.State())

	require.NoError(t, f.provider.Deliver(testutil.Fixes(testutil.WalkNorth(2, time.Second, 15))))
	require.NoError(t, f.session.Pause(ctx))

	st := f.session.Status()
	assert.Equal(t, "paused", st.State)
	assert.Equal(t, 2, st.PointsApplied)
	assert.Equal(t, 1, st.FixesDropped)
}

func TestSession_DropsInvalidAndOutOfOrderFixes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	track := testutil.WalkNorth(3, 10*time.Second, 20)

	fixes := testutil.Fixes(track)
	fixes = append(fixes,
		location.Fix{Latitude: 120, Longitude: 0, Timestamp: track[2].Timestamp.Add(time.Second)},
		location.Fix{Latitude: track[0].Latitude, Longitude: track[0].Longitude, Timestamp: track[0].Timestamp},
	)

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	require.NoError(t, f.provider.Deliver(fixes))
	require.NoError(t, f.session.Pause(ctx))

	st := f.session.Status()
	assert.Equal(t, 3, st.PointsApplied)
	assert.Equal(t, 2, st.FixesDropped)
	require.NoError(t, f.session.Stop(ctx))
	assert.Len(t, f.points(t), 3)
}

func TestSession_FixWithoutTimestampUsesClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Set(testutil.BaseTime.Add(42 * time.Second))

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	require.NoError(t, f.provider.Deliver([]location.Fix{{Latitude: 47, Longitude: -122}}))
	require.NoError(t, f.session.Stop(ctx))

	points := f.points(t)
	require.Len(t, points, 1)
	assert.True(t, points[0].Timestamp.Equal(testutil.BaseTime.Add(42*time.Second)))
}

func TestSession_LabelsRestAfterFiveStationaryMinutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	for _, fix := range testutil.Fixes(testutil.StationaryTrack(15, 30*time.Second)) {
		f.deliverAt(t, fix.Timestamp, fix)
	}
	require.NoError(t, f.session.Stop(ctx))

	points := f.points(t)
	require.Len(t, points, 15)
	for i, p := range points {
		assert.Equal(t, i >= 10, p.IsResting, "point %d at %s", i, p.Timestamp.Sub(testutil.BaseTime))
	}
}

func TestSession_RestFollowsArrivalTimeNotDeviceClock(t *testing.T) {
	cases := []struct {
		name string
		skew time.Duration
	}{
		{"device ahead", 6 * time.Minute},
		{"device behind", -time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.session.Start(ctx, "hike-1"))

			arrivals := []time.Duration{0, 10 * time.Second, 5 * time.Minute}
			for _, d := range arrivals {
				arrival := testutil.BaseTime.Add(d)
				f.deliverAt(t, arrival, stationaryFix(arrival.Add(tc.skew)))
			}
			require.NoError(t, f.session.Stop(ctx))

			points := f.points(t)
			require.Len(t, points, 3)
			assert.False(t, points[0].IsResting)
			assert.False(t, points[1].IsResting)
			assert.True(t, points[2].IsResting)
			assert.True(t, points[1].Timestamp.Equal(testutil.BaseTime.Add(10*time.Second+tc.skew)))
		})
	}
}

func TestSession_ResumeRestartsRestTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	require.NoError(t, f.provider.Deliver(testutil.Fixes(testutil.StationaryTrack(3, 30*time.Second))))
	require.NoError(t, f.session.Pause(ctx))

	resumedAt := testutil.BaseTime.Add(time.Hour)
	f.clock.Set(resumedAt)
	require.NoError(t, f.session.Resume(ctx))

	st := f.session.Status()
	require.NotNil(t, st.LastMovement)
	assert.True(t, st.LastMovement.Equal(resumedAt))

	f.deliverAt(t, resumedAt.Add(10*time.Second), stationaryFix(resumedAt.Add(10*time.Second)))
	f.deliverAt(t, resumedAt.Add(5*time.Minute), stationaryFix(resumedAt.Add(5*time.Minute)))
	require.NoError(t, f.session.Stop(ctx))

	points := f.points(t)
	require.Len(t, points, 5)
	assert.False(t, points[3].IsResting)
	assert.True(t, points[4].IsResting)
}

func TestSession_StopAppliesQueuedFixesBeforeReturning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	track := testutil.WalkNorth(40, time.Second, 12)

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	for i := range track {
		require.NoError(t, f.provider.Deliver(testutil.Fixes(track[i:i+1])))
	}
	require.NoError(t, f.session.Stop(ctx))

	assert.Len(t, f.points(t), 40)
}

func TestSession_AppendFailureIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	require.NoError(t, f.store.DeleteHike(ctx, "hike-1"))
	require.NoError(t, f.provider.Deliver(testutil.Fixes(testutil.WalkNorth(2, time.Second, 15))))
	require.NoError(t, f.session.Pause(ctx))

	st := f.session.Status()
	assert.Equal(t, 0, st.PointsApplied)
	assert.Equal(t, 2, st.FixesDropped)
	assert.Equal(t, StatePaused, f.session.State())
}

func TestSession_FailedAppendLeavesClassifierUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Start(ctx, "hike-1"))
	require.NoError(t, f.store.DeleteHike(ctx, "hike-1"))
	f.deliverAt(t, testutil.BaseTime, stationaryFix(testutil.BaseTime.Add(time.Minute)))

	st := f.session.Status()
	assert.Equal(t, 1, st.FixesDropped)
	assert.Nil(t, st.LastFixAt)

	// The lost fix must not make an earlier one look out of order.
	require.NoError(t, f.store.CreateHike(ctx, testutil.NewHike("hike-1", "Test", testutil.BaseTime)))
	f.deliverAt(t, testutil.BaseTime.Add(time.Second), stationaryFix(testutil.BaseTime.Add(30*time.Second)))
	require.NoError(t, f.session.Stop(ctx))

	points := f.points(t)
	require.Len(t, points, 1)
	assert.True(t, points[0].Timestamp.Equal(testutil.BaseTime.Add(30*time.Second)))
}

func TestSession_ConcurrentDeliveryStopsCleanly(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.session.Start(ctx, "hike-1"))

		var accepted atomic.Int64
		var wg sync.WaitGroup
		start := make(chan struct{})
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				<-start
				for i := 0; i < 50; i++ {
					fix := location.Fix{
						Latitude:  testutil.StartLat + float64(g)*0.001,
						Longitude: testutil.StartLng + float64(i)*0.0001,
					}
					if f.provider.Deliver([]location.Fix{fix}) == nil {
						accepted.Add(1)
					}
				}
			}(g)
		}

		close(start)
		require.NoError(t, f.session.Stop(ctx))
		stored := len(f.points(t))

		wg.Wait()
		assert.Len(t, f.points(t), stored, "round %d: write after stop", round)
		assert.EqualValues(t, accepted.Load(), stored, "round %d", round)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "stopping", StateStopping.String())
}
