package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"trektrace/internal/model"
	"trektrace/internal/util"
)

// isoLayout matches the millisecond ISO-8601 form used on the wire.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Remote is the sync target.
type Remote interface {
	// PushHike uploads one hike and returns the id the remote knows it by.
	PushHike(ctx context.Context, payload *HikePayload) (string, error)
	// FetchHike downloads a hike previously stored on the remote.
	FetchHike(ctx context.Context, remoteID string) (*HikePayload, error)
}

// HikePayload is the transfer representation of a hike and its ordered points.
type HikePayload struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	StartedAt     string         `json:"startedAt"`
	FinishedAt    *string        `json:"finishedAt"`
	Distance      *float64       `json:"distance"`
	Duration      *float64       `json:"duration"`
	ElevationGain *float64       `json:"elevationGain"`
	IsDraft       bool           `json:"isDraft"`
	IsImported    bool           `json:"isImported"`
	CreatedAt     string         `json:"createdAt"`
	UpdatedAt     string         `json:"updatedAt"`
	TrackPoints   []PointPayload `json:"trackPoints"`
}

type PointPayload struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Timestamp string  `json:"timestamp"`
	IsResting bool    `json:"isResting"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
	CreatedAt string  `json:"createdAt"`
}

// NewHikePayload serializes h and its points, which must already be ordered.
func NewHikePayload(h *model.Hike, points []model.TrackPoint) *HikePayload {
	p := &HikePayload{
		ID:            h.ID,
		Name:          h.Name,
		StartedAt:     formatISO(h.StartedAt),
		Distance:      h.Distance,
		Duration:      h.Duration,
		ElevationGain: h.ElevationGain,
		IsDraft:       h.IsDraft,
		IsImported:    h.IsImported,
		CreatedAt:     formatISO(h.CreatedAt),
		UpdatedAt:     formatISO(h.UpdatedAt),
		TrackPoints:   make([]PointPayload, len(points)),
	}
	if h.FinishedAt != nil {
		f := formatISO(*h.FinishedAt)
		p.FinishedAt = &f
	}
	for i, tp := range points {
		p.TrackPoints[i] = PointPayload{
			ID:        tp.ID,
			Latitude:  tp.Latitude,
			Longitude: tp.Longitude,
			Altitude:  tp.Altitude,
			Timestamp: formatISO(tp.Timestamp),
			IsResting: tp.IsResting,
			Speed:     tp.Speed,
			Heading:   tp.Heading,
			CreatedAt: formatISO(tp.CreatedAt),
		}
	}
	return p
}

// Points converts the payload points back into track points without ids.
func (p *HikePayload) Points() ([]model.TrackPoint, error) {
	points := make([]model.TrackPoint, 0, len(p.TrackPoints))
	for i, tp := range p.TrackPoints {
		ts, err := parseISO(tp.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("track point %d: %w", i, err)
		}
		if !model.ValidCoordinates(tp.Latitude, tp.Longitude) {
			return nil, fmt.Errorf("track point %d: coordinates out of range: %w", i, model.ErrInvalidFormat)
		}
		points = append(points, model.TrackPoint{
			Latitude:  tp.Latitude,
			Longitude: tp.Longitude,
			Altitude:  tp.Altitude,
			Timestamp: ts,
			IsResting: tp.IsResting,
			Speed:     tp.Speed,
			Heading:   tp.Heading,
		})
	}
	return points, nil
}

func formatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

func parseISO(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, model.ErrInvalidFormat)
	}
	return t.UTC(), nil
}

// MemoryRemote keeps pushed hikes as JSON documents in process memory.
type MemoryRemote struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{docs: make(map[string][]byte)}
}

func (r *MemoryRemote) PushHike(ctx context.Context, payload *HikePayload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal hike payload: %w", err)
	}

	remoteID := payload.ID
	if remoteID == "" {
		remoteID = util.ShortUUID()
	}
	r.mu.Lock()
	r.docs[remoteID] = data
	r.mu.Unlock()
	return remoteID, nil
}

func (r *MemoryRemote) FetchHike(ctx context.Context, remoteID string) (*HikePayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	data, ok := r.docs[remoteID]
	r.mu.RUnlock()
	if !ok {
		return nil, model.NotFoundError("remote hike", remoteID)
	}

	var payload HikePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal hike payload: %w: %w", model.ErrInvalidFormat, err)
	}
	return &payload, nil
}

// Put stores a raw JSON document under remoteID.
func (r *MemoryRemote) Put(remoteID string, data []byte) {
	r.mu.Lock()
	r.docs[remoteID] = data
	r.mu.Unlock()
}

// Get returns the raw document stored under remoteID.
func (r *MemoryRemote) Get(remoteID string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.docs[remoteID]
	return data, ok
}
