package motion

import (
	"time"

	"trektrace/internal/util"
)

// State is the motion label attached to every recorded track point.
type State int

const (
	StateMoving State = iota
	StateResting
)

func (s State) String() string {
	if s == StateResting {
		return "resting"
	}
	return "moving"
}

const (
	// DefaultMovementThreshold is the displacement in meters that counts as movement
	DefaultMovementThreshold = 10.0

	// DefaultRestThreshold is how long without movement before a rest begins
	DefaultRestThreshold = 5 * time.Minute
)

type Config struct {
	MovementThreshold float64
	RestThreshold     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MovementThreshold: DefaultMovementThreshold,
		RestThreshold:     DefaultRestThreshold,
	}
}

// Classifier labels a stream of fixes as moving or resting. Separate movement
// and rest thresholds keep GPS jitter around a stationary point from flapping
// the state. A Classifier is not safe for concurrent use; the tracking session
// feeds it from a single delivery loop.
type Classifier struct {
	cfg Config

	state        State
	hasLast      bool
	lastLat      float64
	lastLng      float64
	lastMovement time.Time
}

func NewClassifier(cfg Config) *Classifier {
	if cfg.MovementThreshold <= 0 {
		cfg.MovementThreshold = DefaultMovementThreshold
	}
	if cfg.RestThreshold <= 0 {
		cfg.RestThreshold = DefaultRestThreshold
	}
	return &Classifier{cfg: cfg}
}

// Reset starts a new session: moving, no retained fix, movement clock at start.
func (c *Classifier) Reset(start time.Time) {
	c.state = StateMoving
	c.hasLast = false
	c.lastLat, c.lastLng = 0, 0
	c.lastMovement = start
}

// Resume restarts the rest timer after a pause. The state and the retained fix
// survive, so a subject who moved during the pause is detected on the next fix.
func (c *Classifier) Resume(at time.Time) {
	c.lastMovement = at
}

// Classify evaluates one fix arriving at at and returns the state it must be
// labeled with. Every time passed to Reset, Resume and Classify must come
// from the same clock.
func (c *Classifier) Classify(lat, lng float64, at time.Time) State {
	if !c.hasLast {
		c.retain(lat, lng)
		c.state = StateMoving
		return c.state
	}

	distance := util.HaversineDistance(c.lastLat, c.lastLng, lat, lng)
	switch {
	case distance > c.cfg.MovementThreshold:
		c.lastMovement = at
		c.state = StateMoving
	// Inclusive: a fix exactly RestThreshold after the last movement rests.
	case c.state == StateMoving && at.Sub(c.lastMovement) >= c.cfg.RestThreshold:
		c.state = StateResting
	}

	c.retain(lat, lng)
	return c.state
}

// State returns the state assigned to the most recent fix.
func (c *Classifier) State() State {
	return c.state
}

// LastMovement returns the time of the last significant movement.
func (c *Classifier) LastMovement() time.Time {
	return c.lastMovement
}

func (c *Classifier) retain(lat, lng float64) {
	c.hasLast = true
	c.lastLat, c.lastLng = lat, lng
}
