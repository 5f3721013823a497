package models

import (
	"time"

	"github.com/google/uuid"
)

// Visit is an immutable record of one redirect being served
// RemoteAddr may be anonymized before persistence depending on configuration
// Geolocation fields are filled asynchronously, best effort
type Visit struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_visits_uuid" json:"uuid"`
	ShortURLID uint      `gorm:"not null;index:idx_visits_short_url_id" json:"short_url_id"`

	Referer      *string `gorm:"type:text" json:"referer,omitempty"`
	UserAgent    *string `gorm:"type:text" json:"user_agent,omitempty"`
	RemoteAddr   *string `gorm:"size:64" json:"remote_addr,omitempty"`
	VisitedURL   *string `gorm:"type:text" json:"visited_url,omitempty"`
	PotentialBot bool    `gorm:"not null;default:false;index:idx_visits_potential_bot" json:"potential_bot"`

	CountryCode *string  `gorm:"size:8" json:"country_code,omitempty"`
	CountryName *string  `gorm:"size:128" json:"country_name,omitempty"`
	CityName    *string  `gorm:"size:128" json:"city_name,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`

	Date      time.Time `gorm:"not null;index:idx_visits_date" json:"date"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

// TableName returns the table name for Visit
func (Visit) TableName() string { return "visits" }

// VisitFilter provides filter fields for repository queries
type VisitFilter struct {
	ID           *uint
	ShortURLID   *uint
	PotentialBot *bool
	DateAfter    *time.Time
	DateBefore   *time.Time
}
