package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder interface {
	AddFixesReceived(n int)
	IncFixesDropped(reason string)
	IncPointsAppended()
	IncMotionTransition(to string)
	SetSessionState(state string)
	IncSyncOutcome(outcome string)
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
}

// SessionStates lists every value SetSessionState may receive.
var SessionStates = []string{"idle", "starting", "active", "paused", "stopping"}

type PrometheusRecorder struct {
	fixesReceived     prometheus.Counter
	fixesDropped      *prometheus.CounterVec
	pointsAppended    prometheus.Counter
	motionTransitions *prometheus.CounterVec
	sessionState      *prometheus.GaugeVec
	syncOutcomes      *prometheus.CounterVec
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

func (m *PrometheusRecorder) AddFixesReceived(n int) {
	m.fixesReceived.Add(float64(n))
}

func (m *PrometheusRecorder) IncFixesDropped(reason string) {
	m.fixesDropped.WithLabelValues(reason).Inc()
}

func (m *PrometheusRecorder) IncPointsAppended() {
	m.pointsAppended.Inc()
}

func (m *PrometheusRecorder) IncMotionTransition(to string) {
	m.motionTransitions.WithLabelValues(to).Inc()
}

// SetSessionState sets the gauge for state to 1 and every other state to 0.
func (m *PrometheusRecorder) SetSessionState(state string) {
	for _, s := range SessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.sessionState.WithLabelValues(s).Set(v)
	}
}

func (m *PrometheusRecorder) IncSyncOutcome(outcome string) {
	m.syncOutcomes.WithLabelValues(outcome).Inc()
}

func (m *PrometheusRecorder) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *PrometheusRecorder) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// NewRecorder registers the tracking metrics on reg. A nil reg yields a
// recorder that does nothing.
func NewRecorder(reg prometheus.Registerer) Recorder {
	if reg == nil {
		return Noop()
	}
	factory := promauto.With(reg)

	m := &PrometheusRecorder{
		fixesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "trektrace_fixes_received_total",
			Help: "Location fixes delivered to the tracking session",
		}),
		fixesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trektrace_fixes_dropped_total",
			Help: "Location fixes dropped before reaching the track point store",
		}, []string{"reason"}),
		pointsAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "trektrace_points_appended_total",
			Help: "Track points written by the tracking session",
		}),
		motionTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trektrace_motion_transitions_total",
			Help: "Motion classifier state changes",
		}, []string{"to"}),
		sessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trektrace_session_state",
			Help: "Current tracking session state (1 for the active state)",
		}, []string{"state"}),
		syncOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trektrace_sync_total",
			Help: "Remote sync attempts by outcome",
		}, []string{"outcome"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trektrace_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trektrace_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	m.SetSessionState("idle")
	return m
}

// Noop returns a Recorder that discards everything.
func Noop() Recorder {
	return noopRecorder{}
}

type noopRecorder struct{}

func (noopRecorder) AddFixesReceived(int)                          {}
func (noopRecorder) IncFixesDropped(string)                        {}
func (noopRecorder) IncPointsAppended()                            {}
func (noopRecorder) IncMotionTransition(string)                    {}
func (noopRecorder) SetSessionState(string)                        {}
func (noopRecorder) IncSyncOutcome(string)                         {}
func (noopRecorder) IncRequestsTotal(string, int)                  {}
func (noopRecorder) ObserveRequestDuration(string, time.Duration) {}
