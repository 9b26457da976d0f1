package motion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trektrace/internal/util"
)

const (
	baseLat = 47.0
	baseLng = -122.0
)

var sessionStart = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func newStarted() *Classifier {
	c := NewClassifier(DefaultConfig())
	c.Reset(sessionStart)
	return c
}

func TestClassifier_FirstFixIsMoving(t *testing.T) {
	c := newStarted()
	assert.Equal(t, StateMoving, c.Classify(baseLat, baseLng, sessionStart.Add(time.Hour)))
	assert.Equal(t, sessionStart, c.LastMovement())
}

func TestClassifier_StationaryFixesEnterRestAfterFiveMinutes(t *testing.T) {
	c := newStarted()

	// Fixes every 10 s: the 31st arrives exactly five minutes after the start
	var states []State
	for i := 0; i < 40; i++ {
		states = append(states, c.Classify(baseLat, baseLng, sessionStart.Add(time.Duration(i)*10*time.Second)))
	}

	for i := 0; i < 30; i++ {
		assert.Equal(t, StateMoving, states[i], "fix %d", i+1)
	}
	for i := 30; i < 40; i++ {
		assert.Equal(t, StateResting, states[i], "fix %d", i+1)
	}
}

func TestClassifier_RestBoundaryIsInclusive(t *testing.T) {
	c := newStarted()
	c.Classify(baseLat, baseLng, sessionStart)

	assert.Equal(t, StateMoving, c.Classify(baseLat, baseLng, sessionStart.Add(DefaultRestThreshold-time.Nanosecond)))
	assert.Equal(t, StateResting, c.Classify(baseLat, baseLng, sessionStart.Add(DefaultRestThreshold)))
}

func TestClassifier_ThirtySecondSpacing(t *testing.T) {
	c := newStarted()

	var states []State
	for i := 0; i < 15; i++ {
		states = append(states, c.Classify(baseLat, baseLng, sessionStart.Add(time.Duration(i)*30*time.Second)))
	}

	// 300 s elapse at the 11th fix
	for i := 0; i < 10; i++ {
		assert.Equal(t, StateMoving, states[i], "fix %d", i+1)
	}
	for i := 10; i < 15; i++ {
		assert.Equal(t, StateResting, states[i], "fix %d", i+1)
	}
}

func TestClassifier_JitterBelowThresholdDoesNotCountAsMovement(t *testing.T) {
	c := newStarted()
	c.Classify(baseLat, baseLng, sessionStart)

	// 5 m wobble back and forth
	wobble := util.MoveToward(baseLat, baseLng, baseLat+1, baseLng, 5)
	at := sessionStart
	for i := 0; i < 40; i++ {
		at = at.Add(10 * time.Second)
		if i%2 == 0 {
			c.Classify(wobble[0], wobble[1], at)
		} else {
			c.Classify(baseLat, baseLng, at)
		}
	}
	assert.Equal(t, StateResting, c.State())
	assert.Equal(t, sessionStart, c.LastMovement())
}

func TestClassifier_DisplacementFlipsToMovingAndResetsRestTimer(t *testing.T) {
	c := newStarted()
	for i := 0; i <= 60; i++ {
		c.Classify(baseLat, baseLng, sessionStart.Add(time.Duration(i)*10*time.Second))
	}
	require.Equal(t, StateResting, c.State())

	moveAt := sessionStart.Add(20 * time.Minute)
	moved := util.MoveToward(baseLat, baseLng, baseLat+1, baseLng, 15)
	assert.Equal(t, StateMoving, c.Classify(moved[0], moved[1], moveAt))
	assert.Equal(t, moveAt, c.LastMovement())

	// Standing still again needs a full rest threshold from the movement
	assert.Equal(t, StateMoving, c.Classify(moved[0], moved[1], moveAt.Add(4*time.Minute)))
	assert.Equal(t, StateResting, c.Classify(moved[0], moved[1], moveAt.Add(5*time.Minute)))
}

func TestClassifier_ResetClearsState(t *testing.T) {
	c := newStarted()
	for i := 0; i <= 31; i++ {
		c.Classify(baseLat, baseLng, sessionStart.Add(time.Duration(i)*10*time.Second))
	}
	require.Equal(t, StateResting, c.State())

	next := sessionStart.Add(time.Hour)
	c.Reset(next)
	assert.Equal(t, StateMoving, c.State())
	assert.Equal(t, StateMoving, c.Classify(baseLat, baseLng, next.Add(10*time.Minute)))
	assert.Equal(t, next, c.LastMovement())
}

func TestClassifier_ResumeRestartsRestTimer(t *testing.T) {
	c := newStarted()
	c.Classify(baseLat, baseLng, sessionStart)

	// A long pause must not turn the first fixes after resume into rest
	resumeAt := sessionStart.Add(2 * time.Hour)
	c.Resume(resumeAt)
	assert.Equal(t, StateMoving, c.Classify(baseLat, baseLng, resumeAt.Add(10*time.Second)))
	assert.Equal(t, StateResting, c.Classify(baseLat, baseLng, resumeAt.Add(5*time.Minute)))
}

func TestClassifier_ResumeKeepsRetainedFix(t *testing.T) {
	c := newStarted()
	c.Classify(baseLat, baseLng, sessionStart)
	c.Classify(baseLat, baseLng, sessionStart.Add(6*time.Minute))
	require.Equal(t, StateResting, c.State())

	resumeAt := sessionStart.Add(time.Hour)
	c.Resume(resumeAt)

	// Walking away during the pause is seen as movement on the first new fix
	moved := util.MoveToward(baseLat, baseLng, baseLat+1, baseLng, 200)
	assert.Equal(t, StateMoving, c.Classify(moved[0], moved[1], resumeAt.Add(10*time.Second)))
}

func TestNewClassifier_FillsDefaults(t *testing.T) {
	c := NewClassifier(Config{})
	assert.Equal(t, DefaultConfig(), c.cfg)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "moving", StateMoving.String())
	assert.Equal(t, "resting", StateResting.String())
}
