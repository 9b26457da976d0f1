package model

import (
	"sort"
	"time"
)

// TrackPoint is one GPS sample owned by a hike.
type TrackPoint struct {
	ID        string    `json:"id"`
	HikeID    string    `json:"hike_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Timestamp time.Time `json:"timestamp"`
	IsResting bool      `json:"is_resting"`
	Speed     float64   `json:"speed"`   // m/s
	Heading   float64   `json:"heading"` // degrees

	CreatedAt time.Time `json:"created_at"`
}

// ValidCoordinates reports whether the point lies on the globe.
func (p TrackPoint) ValidCoordinates() bool {
	return ValidCoordinates(p.Latitude, p.Longitude)
}

// ValidCoordinates checks latitude/longitude ranges.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// SortByTimestamp orders points ascending by timestamp, keeping insertion order for ties.
func SortByTimestamp(points []TrackPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}
