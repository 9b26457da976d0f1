package model

import (
	"fmt"
	"math"
	"time"
)

// Hike is one recording session with its summary statistics.
type Hike struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Distance      *float64   `json:"distance,omitempty"`       // meters
	Duration      *float64   `json:"duration,omitempty"`       // seconds
	ElevationGain *float64   `json:"elevation_gain,omitempty"` // meters
	IsDraft       bool       `json:"is_draft"`
	IsSynced      bool       `json:"is_synced"`
	IsImported    bool       `json:"is_imported"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the hike is still being recorded.
func (h *Hike) IsActive() bool {
	return h.IsDraft && h.FinishedAt == nil
}

// Clone returns a deep copy so callers never share optional fields with storage.
func (h *Hike) Clone() *Hike {
	if h == nil {
		return nil
	}
	c := *h
	c.FinishedAt = cloneTime(h.FinishedAt)
	c.Distance = cloneFloat(h.Distance)
	c.Duration = cloneFloat(h.Duration)
	c.ElevationGain = cloneFloat(h.ElevationGain)
	return &c
}

// ApplyStats copies computed statistics onto the hike.
func (h *Hike) ApplyStats(s HikeStats) {
	h.Distance = Float(s.Distance)
	h.Duration = Float(s.Duration)
	h.ElevationGain = Float(s.ElevationGain)
}

func (h *Hike) FormattedDuration() string {
	return FormatDuration(deref(h.Duration))
}

func (h *Hike) FormattedDistance() string {
	return FormatDistance(deref(h.Distance))
}

func (h *Hike) FormattedElevationGain() string {
	return FormatElevation(deref(h.ElevationGain))
}

// HikeStats are the summary values derived from a hike's track points.
type HikeStats struct {
	PointCount     int     `json:"point_count"`
	Distance       float64 `json:"distance"`        // meters
	Duration       float64 `json:"duration"`        // seconds
	ElevationGain  float64 `json:"elevation_gain"`  // meters
	MovingDuration float64 `json:"moving_duration"` // seconds spent outside rest periods
}

// HikeFilter narrows hike listings. Nil fields match everything.
type HikeFilter struct {
	Draft  *bool
	Synced *bool
}

// FormatDuration renders seconds as H:MM:SS.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0:00:00"
	}
	s := int64(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// FormatDistance renders meters as kilometers with two decimals.
func FormatDistance(meters float64) string {
	if meters <= 0 {
		return "0.0 km"
	}
	return fmt.Sprintf("%.2f km", meters/1000)
}

func FormatElevation(meters float64) string {
	if meters <= 0 {
		return "0 m"
	}
	return fmt.Sprintf("%d m", int64(math.Round(meters)))
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Time returns a pointer to t.
func Time(t time.Time) *time.Time {
	return &t
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
