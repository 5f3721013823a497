package models

import "time"

// ShortURLMode governs how extra path segments after the short code are matched
type ShortURLMode string

const (
	// ShortURLModeStrict requires the request path to match the short code exactly
	ShortURLModeStrict ShortURLMode = "strict"
	// ShortURLModeLoose allows extra path segments after the short code (multi-segment slugs)
	ShortURLModeLoose ShortURLMode = "loose"
)

// ShortURL represents a shortened URL record
// ShortCode is unique per domain; DomainID is nullable (no domain constraint)
// Enabled acts as a soft delete: disabled rows resolve as not found
// ValidSince/ValidUntil bound the redirect window, MaxVisits caps total visits
type ShortURL struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	ShortCode string       `gorm:"size:255;not null;uniqueIndex:uk_short_urls_code_domain;index:idx_short_urls_short_code" json:"short_code"`
	DomainID  *uint        `gorm:"uniqueIndex:uk_short_urls_code_domain;index:idx_short_urls_domain_id" json:"domain_id,omitempty"`
	LongURL   string       `gorm:"type:text;not null" json:"long_url"`
	Mode      ShortURLMode `gorm:"size:16;not null;default:strict" json:"mode"`

	ValidSince *time.Time `json:"valid_since,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	MaxVisits  *int64     `json:"max_visits,omitempty"`
	Enabled    *bool      `gorm:"default:true;index:idx_short_urls_enabled" json:"enabled"`

	Domain         *Domain         `gorm:"foreignKey:DomainID" json:"domain,omitempty"`
	Tags           []*Tag          `gorm:"many2many:short_urls_in_tags" json:"tags,omitempty"`
	DeviceLongURLs []DeviceLongURL `gorm:"foreignKey:ShortURLID" json:"device_long_urls,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_short_urls_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for ShortURL
func (ShortURL) TableName() string { return "short_urls" }

// IsEnabled reports whether the short URL is active (not soft-deleted)
func (s *ShortURL) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// DeviceLongURLFor returns the override target for a device type, if present
func (s *ShortURL) DeviceLongURLFor(device DeviceType) *string {
	for i := range s.DeviceLongURLs {
		if s.DeviceLongURLs[i].DeviceType == device {
			return &s.DeviceLongURLs[i].LongURL
		}
	}
	return nil
}

// ShortURLFilter provides filter fields for repository queries
type ShortURLFilter struct {
	ID            *uint
	ShortCode     *string
	DomainID      *uint
	NoDomain      bool
	Enabled       *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
