package repository

import (
	"context"
	"errors"

	"github.com/kairoshi/tsubame/models"
	"gorm.io/gorm"
)

// VisitRepositoryImpl implements VisitRepository
type VisitRepositoryImpl struct {
	*BaseRepository[models.Visit, models.VisitFilter]
}

func NewVisitRepository(db *gorm.DB) VisitRepository {
	return &VisitRepositoryImpl{BaseRepository: NewBaseRepository[models.Visit, models.VisitFilter](db)}
}

func (r *VisitRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Visit, error) {
	db := r.getDB(ctx)
	var row models.Visit
	if err := db.Last(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// UpdateLocation fills the geolocation fields of an already persisted visit.
// Location enrichment is asynchronous, so the visit row exists before this runs.
func (r *VisitRepositoryImpl) UpdateLocation(ctx context.Context, visitUUID string, countryCode, countryName, cityName *string, latitude, longitude *float64) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}
	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}
	err = db.Model(&models.Visit{}).Where("uuid = ?", visitUUID).Updates(map[string]any{
		"country_code": countryCode,
		"country_name": countryName,
		"city_name":    cityName,
		"latitude":     latitude,
		"longitude":    longitude,
	}).Error
	return err
}

func (r *VisitRepositoryImpl) applyFilter(db *gorm.DB, f models.VisitFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ShortURLID != nil {
		db = db.Where("short_url_id = ?", *f.ShortURLID)
	}
	if f.PotentialBot != nil {
		db = db.Where("potential_bot = ?", *f.PotentialBot)
	}
	if f.DateAfter != nil {
		db = db.Where("date >= ?", *f.DateAfter)
	}
	if f.DateBefore != nil {
		db = db.Where("date < ?", *f.DateBefore)
	}
	return db
}

func (r *VisitRepositoryImpl) ByFilter(ctx context.Context, filter models.VisitFilter, orderBy string, limit, offset int) ([]*models.Visit, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Visit{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Visit
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *VisitRepositoryImpl) Count(ctx context.Context, filter models.VisitFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Visit{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *VisitRepositoryImpl) Exists(ctx context.Context, filter models.VisitFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
