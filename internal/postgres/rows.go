package postgres

import (
	"time"

	"trektrace/internal/model"
)

// HikePG is the GORM model for the Hike entity
type HikePG struct {
	ID            string     `gorm:"primaryKey;size:64"`
	Name          string     `gorm:"size:255;not null"`
	StartedAt     time.Time  `gorm:"not null;index"`
	FinishedAt    *time.Time `gorm:"column:finished_at"`
	Distance      *float64   `gorm:"column:distance_m"`
	Duration      *float64   `gorm:"column:duration_s"`
	ElevationGain *float64   `gorm:"column:elevation_gain_m"`
	IsDraft       bool       `gorm:"not null;default:true;index"`
	IsSynced      bool       `gorm:"not null;default:false"`
	IsImported    bool       `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (HikePG) TableName() string {
	return "hikes"
}

// TrackPointPG is the GORM model for the TrackPoint entity
type TrackPointPG struct {
	ID        string    `gorm:"primaryKey;size:64"`
	HikeID    string    `gorm:"size:64;not null;index:idx_track_points_hike_time,priority:1"`
	Latitude  float64   `gorm:"not null"`
	Longitude float64   `gorm:"not null"`
	Altitude  float64   `gorm:"not null;default:0"`
	Timestamp time.Time `gorm:"column:recorded_at;not null;index:idx_track_points_hike_time,priority:2"`
	IsResting bool      `gorm:"not null;default:false"`
	Speed     float64
	Heading   float64

	CreatedAt time.Time
}

func (TrackPointPG) TableName() string {
	return "track_points"
}

// HikeToPG converts a domain hike into its row.
func HikeToPG(h *model.Hike) HikePG {
	return HikePG{
		ID:            h.ID,
		Name:          h.Name,
		StartedAt:     h.StartedAt.UTC(),
		FinishedAt:    utcPtr(h.FinishedAt),
		Distance:      h.Distance,
		Duration:      h.Duration,
		ElevationGain: h.ElevationGain,
		IsDraft:       h.IsDraft,
		IsSynced:      h.IsSynced,
		IsImported:    h.IsImported,
		CreatedAt:     h.CreatedAt,
		UpdatedAt:     h.UpdatedAt,
	}
}

// HikeFromPG converts a row into a domain hike.
func HikeFromPG(row HikePG) *model.Hike {
	h := &model.Hike{
		ID:            row.ID,
		Name:          row.Name,
		StartedAt:     row.StartedAt.UTC(),
		FinishedAt:    utcPtr(row.FinishedAt),
		Distance:      row.Distance,
		Duration:      row.Duration,
		ElevationGain: row.ElevationGain,
		IsDraft:       row.IsDraft,
		IsSynced:      row.IsSynced,
		IsImported:    row.IsImported,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	return h.Clone()
}

// TrackPointToPG converts a domain point into its row, owned by hikeID.
func TrackPointToPG(hikeID string, p model.TrackPoint) TrackPointPG {
	return TrackPointPG{
		ID:        p.ID,
		HikeID:    hikeID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Altitude:  p.Altitude,
		Timestamp: p.Timestamp.UTC(),
		IsResting: p.IsResting,
		Speed:     p.Speed,
		Heading:   p.Heading,
		CreatedAt: p.CreatedAt,
	}
}

// TrackPointFromPG converts a row into a domain point.
func TrackPointFromPG(row TrackPointPG) model.TrackPoint {
	return model.TrackPoint{
		ID:        row.ID,
		HikeID:    row.HikeID,
		Latitude:  row.Latitude,
		Longitude: row.Longitude,
		Altitude:  row.Altitude,
		Timestamp: row.Timestamp.UTC(),
		IsResting: row.IsResting,
		Speed:     row.Speed,
		Heading:   row.Heading,
		CreatedAt: row.CreatedAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
