package location

import (
	"context"
	"time"
)

// Accuracy is the positioning quality requested from the device.
type Accuracy int

const (
	AccuracyBalanced Accuracy = iota
	AccuracyHigh
	AccuracyBestForNavigation
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyBestForNavigation:
		return "best_for_navigation"
	case AccuracyHigh:
		return "high"
	default:
		return "balanced"
	}
}

// Fix is one raw location reading.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Accuracy  float64   `json:"accuracy"` // meters, 0 when unknown
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}

// Options describes how fixes should be delivered.
type Options struct {
	Accuracy         Accuracy      `json:"accuracy"`
	Interval         time.Duration `json:"interval"`          // minimum time between fixes
	Distance         float64       `json:"distance"`          // minimum displacement in meters
	DeferredInterval time.Duration `json:"deferred_interval"` // batching allowance
	ActivityType     string        `json:"activity_type"`
	Notification     string        `json:"notification"` // text for the foreground-service notice
}

// PedestrianOptions are the delivery settings used while recording a hike.
func PedestrianOptions() Options {
	return Options{
		Accuracy:         AccuracyBestForNavigation,
		Interval:         10 * time.Second,
		Distance:         10,
		DeferredInterval: 60 * time.Second,
		ActivityType:     "fitness",
		Notification:     "Tracking your hike in the background",
	}
}

// Handler receives delivered fixes, or the delivery fault that replaced them.
// Providers may invoke it from any goroutine, including concurrently.
type Handler func(fixes []Fix, err error)

// Provider is the device location service.
type Provider interface {
	RequestForegroundPermission(ctx context.Context) (bool, error)
	RequestBackgroundPermission(ctx context.Context) (bool, error)

	// StartUpdates registers handler for foreground and background delivery.
	StartUpdates(ctx context.Context, opts Options, handler Handler) error

	// StopUpdates unregisters delivery. When it returns, no handler call is in
	// flight and none will follow.
	StopUpdates(ctx context.Context) error

	// CurrentFix returns a one-shot reading.
	CurrentFix(ctx context.Context) (Fix, error)
}
