package util

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"

	"trektrace/internal/model"
)

// EarthRadiusMeters is the mean Earth radius used by every distance in the core.
const EarthRadiusMeters = 6371000.0

func MoveToward(startLat, startLng, endLat, endLng, distanceMeters float64) [2]float64 {
	// Convert degrees to S2 points
	startPoint := s2.PointFromLatLng(s2.LatLngFromDegrees(startLat, startLng))
	endPoint := s2.PointFromLatLng(s2.LatLngFromDegrees(endLat, endLng))

	totalDistanceMeters := HaversineDistance(startLat, startLng, endLat, endLng)

	// If requested distance exceeds total distance, return end point
	if distanceMeters >= totalDistanceMeters {
		return [2]float64{endLat, endLng}
	}

	fraction := distanceMeters / totalDistanceMeters

	// Interpolate on the great circle path
	newPoint := s2.Interpolate(fraction, startPoint, endPoint)
	newLatLng := s2.LatLngFromPoint(newPoint)

	return [2]float64{newLatLng.Lat.Degrees(), newLatLng.Lng.Degrees()}
}

// HaversineDistance returns the great-circle distance in meters between two coordinates.
func HaversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	// LatLng.Distance evaluates the haversine formula
	angle := s2.LatLngFromDegrees(lat1, lng1).Distance(s2.LatLngFromDegrees(lat2, lng2))
	return angleToMeters(angle)
}

func angleToMeters(angle s1.Angle) float64 {
	return angle.Radians() * EarthRadiusMeters
}

// Distance returns meters between two track points.
func Distance(a, b model.TrackPoint) float64 {
	return HaversineDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// TotalDistance sums the distance over consecutive points in the given order.
func TotalDistance(points []model.TrackPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// ElevationGain sums positive altitude deltas; descents never subtract.
func ElevationGain(points []model.TrackPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	gain := 0.0
	for i := 1; i < len(points); i++ {
		if diff := points[i].Altitude - points[i-1].Altitude; diff > 0 {
			gain += diff
		}
	}
	return gain
}

// Duration is the span between the earliest and the latest timestamp, in seconds.
// It uses min/max rather than first/last so unordered input still works.
func Duration(points []model.TrackPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	start, end := points[0].Timestamp, points[0].Timestamp
	for _, p := range points[1:] {
		if p.Timestamp.Before(start) {
			start = p.Timestamp
		}
		if p.Timestamp.After(end) {
			end = p.Timestamp
		}
	}
	return end.Sub(start).Seconds()
}

// MovingDuration sums the time of every segment that ends on a moving point.
func MovingDuration(points []model.TrackPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	moving := 0.0
	for i := 1; i < len(points); i++ {
		if points[i].IsResting {
			continue
		}
		if dt := points[i].Timestamp.Sub(points[i-1].Timestamp).Seconds(); dt > 0 {
			moving += dt
		}
	}
	return moving
}

// ComputeStats derives every summary statistic from points in storage order.
func ComputeStats(points []model.TrackPoint) model.HikeStats {
	return model.HikeStats{
		PointCount:     len(points),
		Distance:       TotalDistance(points),
		Duration:       Duration(points),
		ElevationGain:  ElevationGain(points),
		MovingDuration: MovingDuration(points),
	}
}

// ProfilePoint is one sample of an elevation profile.
type ProfilePoint struct {
	Distance float64 `json:"distance"` // cumulative meters from the first point
	Altitude float64 `json:"altitude"`
}

// ElevationProfile pairs every point's altitude with its cumulative distance.
func ElevationProfile(points []model.TrackPoint) []ProfilePoint {
	profile := make([]ProfilePoint, 0, len(points))
	cumulative := 0.0
	for i, p := range points {
		if i > 0 {
			cumulative += Distance(points[i-1], p)
		}
		profile = append(profile, ProfilePoint{Distance: cumulative, Altitude: p.Altitude})
	}
	return profile
}

// LineString converts points to an orb geometry ([lng, lat] order).
func LineString(points []model.TrackPoint) orb.LineString {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, orb.Point{p.Longitude, p.Latitude})
	}
	return ls
}

// Bounds returns the bounding box of the track, or false for an empty track.
func Bounds(points []model.TrackPoint) (orb.Bound, bool) {
	if len(points) == 0 {
		return orb.Bound{}, false
	}
	return LineString(points).Bound(), true
}
