package models

import "time"

// Domain scopes short codes to a hostname. Authority is host[:port], unique.
// The redirect fields are optional fallback targets used by the serving layer
// when a request for this domain cannot be resolved to a short URL.
type Domain struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Authority string `gorm:"size:255;not null;uniqueIndex:uk_domains_authority" json:"authority"`

	BaseURLRedirect         *string `gorm:"type:text" json:"base_url_redirect,omitempty"`
	Regular404Redirect      *string `gorm:"type:text" json:"regular_404_redirect,omitempty"`
	InvalidShortURLRedirect *string `gorm:"type:text" json:"invalid_short_url_redirect,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for Domain
func (Domain) TableName() string { return "domains" }

// DomainFilter provides filter fields for repository queries
type DomainFilter struct {
	ID            *uint
	Authority     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
