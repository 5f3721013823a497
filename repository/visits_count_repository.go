package repository

import (
	"context"
	"fmt"

	"github.com/kairoshi/tsubame/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VisitsCountRepositoryImpl implements VisitsCountRepository.
// Counts for one short URL are spread across a fixed number of slot rows so
// concurrent increments contend on different rows; reads sum over the slots.
type VisitsCountRepositoryImpl struct {
	db *gorm.DB
}

func NewVisitsCountRepository(db *gorm.DB) VisitsCountRepository {
	return &VisitsCountRepositoryImpl{db: db}
}

func (r *VisitsCountRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// IncrementSlot adds one to a single counter slot, creating the row on first use.
func (r *VisitsCountRepositoryImpl) IncrementSlot(ctx context.Context, shortURLID uint, slotID int, potentialBot bool) error {
	db := r.getDB(ctx)
	row := models.ShortURLVisitsCount{
		ShortURLID:   shortURLID,
		SlotID:       slotID,
		PotentialBot: potentialBot,
		Count:        1,
	}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "short_url_id"}, {Name: "slot_id"}, {Name: "potential_bot"}},
		DoUpdates: clause.Assignments(map[string]any{
			"count": gorm.Expr("short_url_visits_counts.count + 1"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to increment visits count slot %d for short URL %d: %w", slotID, shortURLID, err)
	}
	return nil
}

// TotalVisits sums every slot for the short URL, bots included.
func (r *VisitsCountRepositoryImpl) TotalVisits(ctx context.Context, shortURLID uint) (int64, error) {
	db := r.getDB(ctx)
	var total int64
	err := db.Model(&models.ShortURLVisitsCount{}).
		Where("short_url_id = ?", shortURLID).
		Select("COALESCE(SUM(count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum visits counts for short URL %d: %w", shortURLID, err)
	}
	return total, nil
}

// TotalVisitsByBot sums the slots for one bot-flag partition.
func (r *VisitsCountRepositoryImpl) TotalVisitsByBot(ctx context.Context, shortURLID uint, potentialBot bool) (int64, error) {
	db := r.getDB(ctx)
	var total int64
	err := db.Model(&models.ShortURLVisitsCount{}).
		Where("short_url_id = ? AND potential_bot = ?", shortURLID, potentialBot).
		Select("COALESCE(SUM(count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum visits counts for short URL %d: %w", shortURLID, err)
	}
	return total, nil
}
