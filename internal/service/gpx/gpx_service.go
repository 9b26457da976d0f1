package gpx

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trektrace/internal/model"
	"trektrace/internal/service/hike"
)

const (
	gpxVersion   = "1.1"
	gpxCreator   = "TrekTrace"
	gpxNamespace = "http://www.topografix.com/GPX/1/1"

	// MaxImportSize caps the document accepted by Import.
	MaxImportSize = 32 << 20
)

var whitespace = regexp.MustCompile(`\s+`)

// Service converts hikes to and from GPX 1.1 documents.
type Service struct {
	hikes  *hike.Service
	logger *zap.Logger
	now    func() time.Time
}

func NewService(hikes *hike.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		hikes:  hikes,
		logger: logger.Named("gpx"),
		now:    time.Now,
	}
}

// Export renders the hike and its points as a GPX document and returns a
// file name derived from the hike name.
func (s *Service) Export(ctx context.Context, id string) (string, []byte, error) {
	h, err := s.hikes.GetHike(ctx, id)
	if err != nil {
		return "", nil, err
	}
	points, err := s.hikes.Points(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if len(points) == 0 {
		return "", nil, fmt.Errorf("export hike %q: %w", id, model.ErrEmptyTrack)
	}

	data, err := Encode(h, points)
	if err != nil {
		return "", nil, err
	}

	name := FileName(h.Name, s.now())
	s.logger.Debug("hike exported", zap.String("hike_id", id), zap.Int("points", len(points)), zap.String("file", name))
	return name, data, nil
}

// Import parses a GPX document and stores it as a finished, imported hike.
// An empty name falls back to the track name, then the metadata name.
func (s *Service) Import(ctx context.Context, r io.Reader, name string) (*model.Hike, error) {
	track, err := Decode(io.LimitReader(r, MaxImportSize), s.now())
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = track.Name
	}
	h, err := s.hikes.CreateImported(ctx, name, track.Points, false)
	if err != nil {
		return nil, err
	}
	s.logger.Info("gpx imported", zap.String("hike_id", h.ID), zap.Int("points", len(track.Points)))
	return h, nil
}

// FileName builds "<name>_<unix millis>.gpx" with whitespace runs replaced by underscores.
func FileName(name string, at time.Time) string {
	name = whitespace.ReplaceAllString(strings.TrimSpace(name), "_")
	if name == "" {
		name = "hike"
	}
	return fmt.Sprintf("%s_%d.gpx", name, at.UnixMilli())
}

// Track is the content recovered from a GPX document.
type Track struct {
	Name   string
	Points []model.TrackPoint
}

// Encode writes hike h and its ordered points as GPX 1.1.
func Encode(h *model.Hike, points []model.TrackPoint) ([]byte, error) {
	doc := gpxFile{
		Version: gpxVersion,
		Creator: gpxCreator,
		Xmlns:   gpxNamespace,
		Metadata: &gpxMeta{
			Name: h.Name,
			Time: formatTime(h.StartedAt),
		},
	}

	seg := gpxSegment{Points: make([]gpxPoint, 0, len(points))}
	for _, p := range points {
		ele := p.Altitude
		resting := "0"
		if p.IsResting {
			resting = "1"
		}
		seg.Points = append(seg.Points, gpxPoint{
			Lat:        formatCoord(p.Latitude),
			Lon:        formatCoord(p.Longitude),
			Elevation:  &ele,
			Time:       formatTime(p.Timestamp),
			Extensions: &gpxExtensions{IsResting: resting},
		})
	}
	doc.Tracks = []gpxTrack{{Name: h.Name, Segments: []gpxSegment{seg}}}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode gpx: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode gpx: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Decode reads the first track of a GPX document. Points without a time get
// fallback as their timestamp. A document without gpx, trk, trkseg or
// trkpt elements is InvalidFormat.
func Decode(r io.Reader, fallback time.Time) (*Track, error) {
	var doc gpxFile
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid("document is empty")
		}
		return nil, invalid(err.Error())
	}
	if len(doc.Tracks) == 0 {
		return nil, invalid("missing trk element")
	}

	trk := doc.Tracks[0]
	if len(trk.Segments) == 0 {
		return nil, invalid("missing trkseg element")
	}

	track := &Track{Name: strings.TrimSpace(trk.Name)}
	if track.Name == "" && doc.Metadata != nil {
		track.Name = strings.TrimSpace(doc.Metadata.Name)
	}

	for _, seg := range trk.Segments {
		for i, pt := range seg.Points {
			p, err := pt.trackPoint(fallback)
			if err != nil {
				return nil, invalid(fmt.Sprintf("trkpt %d: %v", i, err))
			}
			track.Points = append(track.Points, p)
		}
	}
	if len(track.Points) == 0 {
		return nil, invalid("missing trkpt element")
	}
	return track, nil
}

func invalid(reason string) error {
	return fmt.Errorf("decode gpx: %s: %w", reason, model.ErrInvalidFormat)
}

type gpxFile struct {
	XMLName  xml.Name   `xml:"gpx"`
	Version  string     `xml:"version,attr,omitempty"`
	Creator  string     `xml:"creator,attr,omitempty"`
	Xmlns    string     `xml:"xmlns,attr,omitempty"`
	Metadata *gpxMeta   `xml:"metadata,omitempty"`
	Tracks   []gpxTrack `xml:"trk"`
}

type gpxMeta struct {
	Name string `xml:"name,omitempty"`
	Time string `xml:"time,omitempty"`
}

type gpxTrack struct {
	Name     string       `xml:"name,omitempty"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat        string         `xml:"lat,attr"`
	Lon        string         `xml:"lon,attr"`
	Elevation  *float64       `xml:"ele"`
	Time       string         `xml:"time,omitempty"`
	Extensions *gpxExtensions `xml:"extensions,omitempty"`
}

type gpxExtensions struct {
	IsResting string `xml:"is_resting,omitempty"`
}

func (pt gpxPoint) trackPoint(fallback time.Time) (model.TrackPoint, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(pt.Lat), 64)
	if err != nil {
		return model.TrackPoint{}, fmt.Errorf("bad lat %q", pt.Lat)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(pt.Lon), 64)
	if err != nil {
		return model.TrackPoint{}, fmt.Errorf("bad lon %q", pt.Lon)
	}
	if !model.ValidCoordinates(lat, lon) {
		return model.TrackPoint{}, fmt.Errorf("coordinates out of range (%g, %g)", lat, lon)
	}

	p := model.TrackPoint{
		Latitude:  lat,
		Longitude: lon,
		Timestamp: fallback.UTC(),
	}
	if pt.Elevation != nil {
		p.Altitude = *pt.Elevation
	}
	if ts := strings.TrimSpace(pt.Time); ts != "" {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return model.TrackPoint{}, fmt.Errorf("bad time %q", pt.Time)
		}
		p.Timestamp = t.UTC()
	}
	if pt.Extensions != nil {
		p.IsResting = strings.TrimSpace(pt.Extensions.IsResting) == "1"
	}
	return p, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
