package repository

import (
	"context"
	"errors"

	"github.com/kairoshi/tsubame/models"
	"gorm.io/gorm"
)

// DomainRepositoryImpl implements DomainRepository
type DomainRepositoryImpl struct {
	*BaseRepository[models.Domain, models.DomainFilter]
}

func NewDomainRepository(db *gorm.DB) DomainRepository {
	return &DomainRepositoryImpl{BaseRepository: NewBaseRepository[models.Domain, models.DomainFilter](db)}
}

func (r *DomainRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Domain, error) {
	db := r.getDB(ctx)
	var row models.Domain
	if err := db.Last(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ByAuthority retrieves a domain by its host[:port] authority
func (r *DomainRepositoryImpl) ByAuthority(ctx context.Context, authority string) (*models.Domain, error) {
	filter := models.DomainFilter{Authority: &authority}
	rows, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *DomainRepositoryImpl) applyFilter(db *gorm.DB, f models.DomainFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.Authority != nil {
		db = db.Where("authority = ?", *f.Authority)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *DomainRepositoryImpl) ByFilter(ctx context.Context, filter models.DomainFilter, orderBy string, limit, offset int) ([]*models.Domain, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Domain{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Domain
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DomainRepositoryImpl) Count(ctx context.Context, filter models.DomainFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Domain{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *DomainRepositoryImpl) Exists(ctx context.Context, filter models.DomainFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
