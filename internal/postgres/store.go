package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"trektrace/internal/model"
	"trektrace/internal/service/storage"
	"trektrace/internal/util"
)

const insertBatchSize = 500

// Store implements storage.Store on top of GORM.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateHike(ctx context.Context, hike *model.Hike) error {
	row := HikeToPG(hike)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.PersistenceError("create hike "+hike.ID, err)
	}
	hike.CreatedAt, hike.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

func (s *Store) GetHike(ctx context.Context, id string) (*model.Hike, error) {
	var row HikePG
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.NotFoundError("hike", id)
	}
	if err != nil {
		return nil, model.PersistenceError("get hike "+id, err)
	}
	return HikeFromPG(row), nil
}

func (s *Store) UpdateHike(ctx context.Context, hike *model.Hike) error {
	row := HikeToPG(hike)
	row.UpdatedAt = time.Now()

	var stored HikePG
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&HikePG{}).
			Where("id = ?", hike.ID).
			Select("*").
			Omit("id", "created_at").
			Updates(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("id = ?", hike.ID).First(&stored).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.NotFoundError("hike", hike.ID)
	}
	if err != nil {
		return model.PersistenceError("update hike "+hike.ID, err)
	}

	hike.CreatedAt, hike.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

// DeleteHike removes the hike and any points still attached to it in one
// transaction.
func (s *Store) DeleteHike(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("hike_id = ?", id).Delete(&TrackPointPG{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&HikePG{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.NotFoundError("hike", id)
	}
	if err != nil {
		return model.PersistenceError("delete hike "+id, err)
	}
	return nil
}

func (s *Store) ListHikes(ctx context.Context, filter model.HikeFilter) ([]*model.Hike, error) {
	q := s.db.WithContext(ctx).Model(&HikePG{})
	if filter.Draft != nil {
		q = q.Where("is_draft = ?", *filter.Draft)
	}
	if filter.Synced != nil {
		q = q.Where("is_synced = ?", *filter.Synced)
	}

	var rows []HikePG
	if err := q.Order("started_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, model.PersistenceError("list hikes", err)
	}

	hikes := make([]*model.Hike, len(rows))
	for i, row := range rows {
		hikes[i] = HikeFromPG(row)
	}
	return hikes, nil
}

func (s *Store) Append(ctx context.Context, hikeID string, point model.TrackPoint) error {
	return s.AppendBatch(ctx, hikeID, []model.TrackPoint{point})
}

func (s *Store) AppendBatch(ctx context.Context, hikeID string, points []model.TrackPoint) error {
	if len(points) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&HikePG{}).Where("id = ?", hikeID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
		return insertPoints(tx, hikeID, points)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.NotFoundError("hike", hikeID)
	}
	if err != nil {
		return model.PersistenceError("append points to "+hikeID, err)
	}
	return nil
}

func (s *Store) RangeByHike(ctx context.Context, hikeID string) ([]model.TrackPoint, error) {
	var rows []TrackPointPG
	err := s.db.WithContext(ctx).
		Where("hike_id = ?", hikeID).
		Order("recorded_at ASC").
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, model.PersistenceError("range points of "+hikeID, err)
	}

	points := make([]model.TrackPoint, len(rows))
	for i, row := range rows {
		points[i] = TrackPointFromPG(row)
	}
	return points, nil
}

func (s *Store) CountByHike(ctx context.Context, hikeID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&TrackPointPG{}).Where("hike_id = ?", hikeID).Count(&count).Error; err != nil {
		return 0, model.PersistenceError("count points of "+hikeID, err)
	}
	return int(count), nil
}

func (s *Store) DeleteAllForHike(ctx context.Context, hikeID string) error {
	if err := s.db.WithContext(ctx).Where("hike_id = ?", hikeID).Delete(&TrackPointPG{}).Error; err != nil {
		return model.PersistenceError("delete points of "+hikeID, err)
	}
	return nil
}

func (s *Store) CreateHikeWithPoints(ctx context.Context, hike *model.Hike, points []model.TrackPoint) error {
	row := HikeToPG(hike)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return insertPoints(tx, hike.ID, points)
	})
	if err != nil {
		return model.PersistenceError("create hike "+hike.ID, err)
	}
	hike.CreatedAt, hike.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

func insertPoints(tx *gorm.DB, hikeID string, points []model.TrackPoint) error {
	if len(points) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]TrackPointPG, len(points))
	for i, p := range points {
		rows[i] = TrackPointToPG(hikeID, p)
		if rows[i].ID == "" {
			rows[i].ID = util.NewPointID()
		}
		if rows[i].CreatedAt.IsZero() {
			// Keeps arrival order for points sharing a timestamp.
			rows[i].CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
	}
	return tx.CreateInBatches(rows, insertBatchSize).Error
}

var _ storage.Store = (*Store)(nil)
