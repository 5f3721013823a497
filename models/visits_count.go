package models

// ShortURLVisitsCount is one slot of a sharded visit counter
// Multiple slots per (short URL, bot flag) exist purely to spread concurrent
// increments across independent rows; the real total is the sum over slots
type ShortURLVisitsCount struct {
	ID           uint  `gorm:"primaryKey" json:"id"`
	ShortURLID   uint  `gorm:"not null;uniqueIndex:uk_visits_counts_slot" json:"short_url_id"`
	SlotID       int   `gorm:"not null;uniqueIndex:uk_visits_counts_slot" json:"slot_id"`
	PotentialBot bool  `gorm:"not null;default:false;uniqueIndex:uk_visits_counts_slot" json:"potential_bot"`
	Count        int64 `gorm:"not null;default:0" json:"count"`
}

// TableName returns the table name for ShortURLVisitsCount
func (ShortURLVisitsCount) TableName() string { return "short_url_visits_counts" }
