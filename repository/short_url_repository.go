package repository

import (
	"context"
	"errors"

	"github.com/kairoshi/tsubame/models"
	"gorm.io/gorm"
)

// ShortURLRepositoryImpl implements ShortURLRepository
type ShortURLRepositoryImpl struct {
	*BaseRepository[models.ShortURL, models.ShortURLFilter]
}

func NewShortURLRepository(db *gorm.DB) ShortURLRepository {
	return &ShortURLRepositoryImpl{BaseRepository: NewBaseRepository[models.ShortURL, models.ShortURLFilter](db)}
}

func (r *ShortURLRepositoryImpl) ByID(ctx context.Context, id uint) (*models.ShortURL, error) {
	db := r.getDB(ctx)
	var row models.ShortURL
	err := db.Preload("Tags").Preload("DeviceLongURLs").Preload("Domain").Last(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ByCodeAndDomain retrieves a short URL by code within a domain scope.
// A nil domainID matches only rows with no domain.
func (r *ShortURLRepositoryImpl) ByCodeAndDomain(ctx context.Context, shortCode string, domainID *uint) (*models.ShortURL, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.ShortURL{}).
		Preload("Tags").Preload("DeviceLongURLs").Preload("Domain").
		Where("short_code = ?", shortCode)
	if domainID != nil {
		query = query.Where("domain_id = ?", *domainID)
	} else {
		query = query.Where("domain_id IS NULL")
	}
	var row models.ShortURL
	if err := query.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// CodeOccupied reports whether a short code already exists in the domain scope,
// regardless of enabled state. Used by the code generator collision probe.
func (r *ShortURLRepositoryImpl) CodeOccupied(ctx context.Context, shortCode string, domainID *uint) (bool, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.ShortURL{}).Where("short_code = ?", shortCode)
	if domainID != nil {
		query = query.Where("domain_id = ?", *domainID)
	} else {
		query = query.Where("domain_id IS NULL")
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ShortURLRepositoryImpl) Update(ctx context.Context, shortURL *models.ShortURL) error {
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
	err = db.Save(shortURL).Error
	return err
}

func (r *ShortURLRepositoryImpl) applyFilter(db *gorm.DB, f models.ShortURLFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ShortCode != nil {
		db = db.Where("short_code = ?", *f.ShortCode)
	}
	if f.DomainID != nil {
		db = db.Where("domain_id = ?", *f.DomainID)
	} else if f.NoDomain {
		db = db.Where("domain_id IS NULL")
	}
	if f.Enabled != nil {
		db = db.Where("enabled = ?", *f.Enabled)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *ShortURLRepositoryImpl) ByFilter(ctx context.Context, filter models.ShortURLFilter, orderBy string, limit, offset int) ([]*models.ShortURL, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ShortURL{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ShortURL
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ShortURLRepositoryImpl) Count(ctx context.Context, filter models.ShortURLFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ShortURL{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ShortURLRepositoryImpl) Exists(ctx context.Context, filter models.ShortURLFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
