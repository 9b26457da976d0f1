// Package testutil holds fixtures and fakes shared by package tests.
package testutil

import (
	"time"

	"trektrace/internal/model"
	"trektrace/internal/service/location"
	"trektrace/internal/util"
)

// BaseTime is the start of every synthetic track.
var BaseTime = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

const (
	StartLat = 47.0
	StartLng = -122.0
)

// NewHike returns an active draft hike started at start.
func NewHike(id, name string, start time.Time) *model.Hike {
	return &model.Hike{
		ID:        id,
		Name:      name,
		StartedAt: start,
		IsDraft:   true,
	}
}

// WalkNorth returns n points heading north, stepMeters apart and spacing apart
// in time, climbing one meter per point.
func WalkNorth(n int, spacing time.Duration, stepMeters float64) []model.TrackPoint {
	points := make([]model.TrackPoint, n)
	lat, lng := StartLat, StartLng
	for i := range points {
		if i > 0 {
			next := util.MoveToward(lat, lng, lat+1, lng, stepMeters)
			lat, lng = next[0], next[1]
		}
		points[i] = model.TrackPoint{
			Latitude:  lat,
			Longitude: lng,
			Altitude:  100 + float64(i),
			Timestamp: BaseTime.Add(time.Duration(i) * spacing),
		}
	}
	return points
}

// StationaryTrack returns n points at the same coordinate spacing apart.
func StationaryTrack(n int, spacing time.Duration) []model.TrackPoint {
	points := make([]model.TrackPoint, n)
	for i := range points {
		points[i] = model.TrackPoint{
			Latitude:  StartLat,
			Longitude: StartLng,
			Altitude:  100,
			Timestamp: BaseTime.Add(time.Duration(i) * spacing),
		}
	}
	return points
}

// Fixes converts points into location fixes as a device would deliver them.
func Fixes(points []model.TrackPoint) []location.Fix {
	fixes := make([]location.Fix, len(points))
	for i, p := range points {
		fixes[i] = location.Fix{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Altitude:  p.Altitude,
			Timestamp: p.Timestamp,
		}
	}
	return fixes
}
