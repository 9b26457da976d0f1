package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"trektrace/internal/metrics"
	"trektrace/internal/model"
	"trektrace/internal/service/location"
	"trektrace/internal/service/motion"
	"trektrace/internal/util"
)

type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StatePaused
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

const defaultQueueSize = 16

// Drop reasons reported to metrics.
const (
	dropInvalid     = "invalid_coordinates"
	dropOutOfOrder  = "out_of_order"
	dropPersistence = "persistence"
	dropFault       = "provider_fault"
)

// Appender is the write side of the track point store.
type Appender interface {
	Append(ctx context.Context, hikeID string, point model.TrackPoint) error
}

type Options struct {
	Location  location.Options
	Motion    motion.Config
	QueueSize int              // batches buffered between provider and writer
	Clock     func() time.Time // defaults to time.Now
}

func DefaultOptions() Options {
	return Options{
		Location:  location.PedestrianOptions(),
		Motion:    motion.DefaultConfig(),
		QueueSize: defaultQueueSize,
	}
}

// Status is a point-in-time view of the session.
type Status struct {
	State         string     `json:"state"`
	HikeID        string     `json:"hike_id,omitempty"`
	Motion        string     `json:"motion,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	LastFixAt     *time.Time `json:"last_fix_at,omitempty"`
	LastMovement  *time.Time `json:"last_movement,omitempty"`
	PointsApplied int        `json:"points_applied"`
	FixesDropped  int        `json:"fixes_dropped"`
}

// Session records location fixes for at most one hike at a time.
//
// Fixes handed over by the provider are queued and applied by a single
// writer goroutine per registration, so the classifier sees them strictly in
// delivery order. Pause and Stop return only after the provider confirmed
// unregistration and the writer drained its queue: once they return, nothing
// more is written for the hike.
type Session struct {
	provider location.Provider
	store    Appender
	logger   *zap.Logger
	metrics  metrics.Recorder
	opts     Options
	now      func() time.Time

	// opMu serializes lifecycle operations.
	opMu sync.Mutex

	mu         sync.RWMutex
	state      State
	hikeID     string
	classifier *motion.Classifier
	run        *deliveryRun
	startedAt  time.Time
	lastFixAt  time.Time
	applied    int
	dropped    int
}

type deliveryRun struct {
	hikeID string
	ctx    context.Context
	queue  chan []location.Fix
	quit   chan struct{}
	done   chan struct{}
}

func NewSession(provider location.Provider, store Appender, logger *zap.Logger, recorder metrics.Recorder, opts Options) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.Noop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Session{
		provider: provider,
		store:    store,
		logger:   logger.Named("session"),
		metrics:  recorder,
		opts:     opts,
		now:      now,
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subject returns the hike being recorded, or "" when idle.
func (s *Session) Subject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hikeID
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:         s.state.String(),
		HikeID:        s.hikeID,
		PointsApplied: s.applied,
		FixesDropped:  s.dropped,
	}
	if s.classifier != nil {
		st.Motion = s.classifier.State().String()
		st.LastMovement = model.Time(s.classifier.LastMovement())
	}
	if !s.startedAt.IsZero() {
		st.StartedAt = model.Time(s.startedAt)
	}
	if !s.lastFixAt.IsZero() {
		st.LastFixAt = model.Time(s.lastFixAt)
	}
	return st
}

// Start binds hikeID and begins receiving fixes. On any failure the session
// is left idle.
func (s *Session) Start(ctx context.Context, hikeID string) error {
	if hikeID == "" {
		return errors.New("start session: hike id is required")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateIdle {
		current := s.hikeID
		s.mu.Unlock()
		return fmt.Errorf("start session for %s: %w (recording %s)", hikeID, model.ErrSessionAlreadyActive, current)
	}
	s.mu.Unlock()
	s.setState(StateStarting)

	if err := s.requestPermissions(ctx); err != nil {
		s.setState(StateIdle)
		return fmt.Errorf("start session for %s: %w", hikeID, err)
	}

	started := s.now()
	s.mu.Lock()
	s.hikeID = hikeID
	s.classifier = motion.NewClassifier(s.opts.Motion)
	s.classifier.Reset(started)
	s.startedAt = started
	s.lastFixAt = time.Time{}
	s.applied, s.dropped = 0, 0
	s.mu.Unlock()

	if err := s.register(ctx, hikeID); err != nil {
		s.clear()
		s.setState(StateIdle)
		return fmt.Errorf("start session for %s: %w", hikeID, err)
	}

	s.setState(StateActive)
	s.logger.Info("session started", zap.String("hike_id", hikeID))
	return nil
}

// Pause unregisters delivery and keeps the classifier for Resume.
func (s *Session) Pause(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	state, hikeID, run := s.state, s.hikeID, s.run
	s.mu.RUnlock()
	if state != StateActive {
		return fmt.Errorf("pause: %w (session is %s)", model.ErrNoActiveSession, state)
	}

	err := s.provider.StopUpdates(ctx)
	s.teardown(run)
	s.setState(StatePaused)
	if err != nil {
		s.logger.Warn("stop location updates failed on pause", zap.String("hike_id", hikeID), zap.Error(err))
		return fmt.Errorf("pause %s: stop location updates: %w", hikeID, err)
	}

	s.logger.Info("session paused", zap.String("hike_id", hikeID))
	return nil
}

// Resume re-registers delivery for the same hike. The rest timer restarts at
// the resume time on the session clock, so a long pause is not mistaken for resting.
func (s *Session) Resume(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	state, hikeID := s.state, s.hikeID
	if state == StateActive {
		s.mu.Unlock()
		return fmt.Errorf("resume %s: %w", hikeID, model.ErrSessionAlreadyActive)
	}
	if state != StatePaused {
		s.mu.Unlock()
		return fmt.Errorf("resume: %w (session is %s)", model.ErrNoActiveSession, state)
	}
	s.classifier.Resume(s.now())
	s.mu.Unlock()

	if err := s.register(ctx, hikeID); err != nil {
		return fmt.Errorf("resume %s: %w", hikeID, err)
	}

	s.setState(StateActive)
	s.logger.Info("session resumed", zap.String("hike_id", hikeID))
	return nil
}

// Stop ends the session. Delivery is torn down and the session goes idle even
// when the provider reports an error; that error is returned afterwards.
func (s *Session) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	state, hikeID, run := s.state, s.hikeID, s.run
	s.mu.RUnlock()
	if state != StateActive && state != StatePaused {
		return fmt.Errorf("stop: %w (session is %s)", model.ErrNoActiveSession, state)
	}
	s.setState(StateStopping)

	var err error
	if run != nil {
		err = s.provider.StopUpdates(ctx)
		s.teardown(run)
	}

	s.clear()
	s.setState(StateIdle)
	if err != nil {
		s.logger.Warn("stop location updates failed", zap.String("hike_id", hikeID), zap.Error(err))
		return fmt.Errorf("stop %s: stop location updates: %w", hikeID, err)
	}

	s.logger.Info("session stopped", zap.String("hike_id", hikeID))
	return nil
}

func (s *Session) requestPermissions(ctx context.Context) error {
	granted, err := s.provider.RequestForegroundPermission(ctx)
	if err != nil {
		return fmt.Errorf("request foreground location permission: %w", err)
	}
	if !granted {
		return fmt.Errorf("foreground location: %w", model.ErrPermissionDenied)
	}

	granted, err = s.provider.RequestBackgroundPermission(ctx)
	if err != nil {
		return fmt.Errorf("request background location permission: %w", err)
	}
	if !granted {
		return fmt.Errorf("background location: %w", model.ErrPermissionDenied)
	}
	return nil
}

func (s *Session) register(ctx context.Context, hikeID string) error {
	run := &deliveryRun{
		hikeID: hikeID,
		// Writes outlive the request that started the session.
		ctx:   context.WithoutCancel(ctx),
		queue: make(chan []location.Fix, s.opts.QueueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.deliver(run)

	if err := s.provider.StartUpdates(ctx, s.opts.Location, s.handler(run)); err != nil {
		s.teardown(run)
		return fmt.Errorf("start location updates: %w", err)
	}

	s.mu.Lock()
	s.run = run
	s.mu.Unlock()
	return nil
}

func (s *Session) handler(run *deliveryRun) location.Handler {
	return func(fixes []location.Fix, err error) {
		if err != nil {
			s.drop(dropFault)
			s.logger.Warn("location delivery fault", zap.String("hike_id", run.hikeID), zap.Error(err))
			return
		}
		if len(fixes) == 0 {
			return
		}
		select {
		case run.queue <- fixes:
		case <-run.quit:
		}
	}
}

// teardown stops the writer after it applied everything already queued.
func (s *Session) teardown(run *deliveryRun) {
	if run == nil {
		return
	}
	close(run.quit)
	<-run.done

	s.mu.Lock()
	if s.run == run {
		s.run = nil
	}
	s.mu.Unlock()
}

func (s *Session) deliver(run *deliveryRun) {
	defer close(run.done)

	for {
		select {
		case fixes := <-run.queue:
			s.apply(run, fixes)
		case <-run.quit:
			for {
				select {
				case fixes := <-run.queue:
					s.apply(run, fixes)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) apply(run *deliveryRun, fixes []location.Fix) {
	s.metrics.AddFixesReceived(len(fixes))

	for _, fix := range fixes {
		step, reason := s.classify(run.hikeID, fix)
		if reason != "" {
			s.drop(reason)
			s.logger.Debug("fix dropped",
				zap.String("hike_id", run.hikeID),
				zap.String("reason", reason),
				zap.Time("timestamp", fix.Timestamp))
			continue
		}

		if err := s.store.Append(run.ctx, run.hikeID, step.point); err != nil {
			s.drop(dropPersistence)
			s.logger.Error("append track point failed", zap.String("hike_id", run.hikeID), zap.Error(err))
			continue
		}

		s.commit(run.hikeID, step)
		s.metrics.IncPointsAppended()
	}
}

// classified is a labeled point together with the classifier state it leads
// to. The state is committed only once the point is stored.
type classified struct {
	point      model.TrackPoint
	classifier motion.Classifier
	before     motion.State
}

// classify turns a fix into a labeled point, or returns why it was rejected.
// Motion is judged on the session clock at arrival; the stored timestamp is
// the one reported by the device.
func (s *Session) classify(hikeID string, fix location.Fix) (classified, string) {
	if !model.ValidCoordinates(fix.Latitude, fix.Longitude) {
		return classified{}, dropInvalid
	}
	arrived := s.now()
	at := fix.Timestamp
	if at.IsZero() {
		at = arrived
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if at.Before(s.lastFixAt) {
		return classified{}, dropOutOfOrder
	}
	next := *s.classifier
	next.Classify(fix.Latitude, fix.Longitude, arrived)

	return classified{
		point: model.TrackPoint{
			ID:        util.NewPointID(),
			HikeID:    hikeID,
			Latitude:  fix.Latitude,
			Longitude: fix.Longitude,
			Altitude:  fix.Altitude,
			Timestamp: at,
			IsResting: next.State() == motion.StateResting,
			Speed:     fix.Speed,
			Heading:   fix.Heading,
		},
		classifier: next,
		before:     s.classifier.State(),
	}, ""
}

func (s *Session) commit(hikeID string, step classified) {
	s.mu.Lock()
	*s.classifier = step.classifier
	s.lastFixAt = step.point.Timestamp
	s.applied++
	s.mu.Unlock()

	if state := step.classifier.State(); state != step.before {
		s.metrics.IncMotionTransition(state.String())
		s.logger.Info("motion state changed", zap.String("hike_id", hikeID), zap.Stringer("state", state))
	}
}

func (s *Session) drop(reason string) {
	s.metrics.IncFixesDropped(reason)
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.metrics.SetSessionState(state.String())
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hikeID = ""
	s.classifier = nil
	s.run = nil
	s.startedAt = time.Time{}
	s.lastFixAt = time.Time{}
}
