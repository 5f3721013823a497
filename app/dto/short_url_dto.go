package dto

import "time"

// DeviceLongURLInput is a per-device target override supplied on creation
type DeviceLongURLInput struct {
	DeviceType string `json:"device_type" validate:"required,oneof=android ios mobile desktop"`
	LongURL    string `json:"long_url" validate:"required,url"`
}

// CreateShortURLRequest represents a short URL creation request
type CreateShortURLRequest struct {
	LongURL        string               `json:"long_url" validate:"required,url"`
	CustomSlug     *string              `json:"custom_slug,omitempty" validate:"omitempty,min=2,max=255"`
	CodeLength     *int                 `json:"code_length,omitempty" validate:"omitempty,min=4,max=64"`
	// Authority shape (host with optional port) is checked by the relation
	// resolver, validator's hostname_port would reject portless hosts.
	Domain         *string              `json:"domain,omitempty" validate:"omitempty,min=1,max=255"`
	Tags           []string             `json:"tags,omitempty" validate:"omitempty,dive,min=1,max=255"`
	ValidSince     *time.Time           `json:"valid_since,omitempty"`
	ValidUntil     *time.Time           `json:"valid_until,omitempty"`
	MaxVisits      *int64               `json:"max_visits,omitempty" validate:"omitempty,min=1"`
	Mode           string               `json:"mode,omitempty" validate:"omitempty,oneof=strict loose"`
	DeviceLongURLs []DeviceLongURLInput `json:"device_long_urls,omitempty" validate:"omitempty,dive"`
}

// EditShortURLRequest represents a partial update of an existing short URL.
// Nil fields are left untouched.
type EditShortURLRequest struct {
	LongURL    *string    `json:"long_url,omitempty" validate:"omitempty,url"`
	ValidSince *time.Time `json:"valid_since,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	MaxVisits  *int64     `json:"max_visits,omitempty" validate:"omitempty,min=1"`
	Tags       *[]string  `json:"tags,omitempty" validate:"omitempty,dive,min=1,max=255"`
}

// ShortURLResponse is the API representation of a short URL
type ShortURLResponse struct {
	ShortCode  string     `json:"short_code"`
	Domain     string     `json:"domain,omitempty"`
	LongURL    string     `json:"long_url"`
	Mode       string     `json:"mode"`
	Tags       []string   `json:"tags,omitempty"`
	ValidSince *time.Time `json:"valid_since,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	MaxVisits  *int64     `json:"max_visits,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
