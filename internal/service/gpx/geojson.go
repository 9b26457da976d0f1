package gpx

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"trektrace/internal/model"
	"trektrace/internal/util"
)

// ExportGeoJSON renders the hike as a FeatureCollection: the track as a
// LineString feature carrying the hike summary, plus one MultiPoint feature
// with the points recorded while resting.
func (s *Service) ExportGeoJSON(ctx context.Context, id string) ([]byte, error) {
	h, err := s.hikes.GetHike(ctx, id)
	if err != nil {
		return nil, err
	}
	points, err := s.hikes.Points(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("export hike %q: %w", id, model.ErrEmptyTrack)
	}
	return FeatureCollection(h, points).MarshalJSON()
}

// FeatureCollection builds the GeoJSON view of a hike and its ordered points.
func FeatureCollection(h *model.Hike, points []model.TrackPoint) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	track := geojson.NewFeature(util.LineString(points))
	track.ID = h.ID
	track.Properties["kind"] = "track"
	track.Properties["name"] = h.Name
	track.Properties["started_at"] = formatTime(h.StartedAt)
	if h.FinishedAt != nil {
		track.Properties["finished_at"] = formatTime(*h.FinishedAt)
	}
	stats := util.ComputeStats(points)
	track.Properties["point_count"] = stats.PointCount
	track.Properties["distance_m"] = stats.Distance
	track.Properties["duration_s"] = stats.Duration
	track.Properties["elevation_gain_m"] = stats.ElevationGain
	track.Properties["distance"] = model.FormatDistance(stats.Distance)
	track.Properties["duration"] = model.FormatDuration(stats.Duration)
	track.Properties["polyline"] = util.EncodeTrack(points)
	fc.Append(track)

	var rests orb.MultiPoint
	for _, p := range points {
		if p.IsResting {
			rests = append(rests, orb.Point{p.Longitude, p.Latitude})
		}
	}
	if len(rests) > 0 {
		f := geojson.NewFeature(rests)
		f.Properties["kind"] = "rest"
		fc.Append(f)
	}

	if bound, ok := util.Bounds(points); ok {
		fc.BBox = geojson.NewBBox(bound)
	}
	return fc
}
