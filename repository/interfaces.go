// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/kairoshi/tsubame/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// ShortURLRepository defines operations for short URLs
type ShortURLRepository interface {
	Repository[models.ShortURL, models.ShortURLFilter]
	ByCodeAndDomain(ctx context.Context, shortCode string, domainID *uint) (*models.ShortURL, error)
	CodeOccupied(ctx context.Context, shortCode string, domainID *uint) (bool, error)
	Update(ctx context.Context, shortURL *models.ShortURL) error
}

// DomainRepository defines operations for domains
type DomainRepository interface {
	Repository[models.Domain, models.DomainFilter]
	ByAuthority(ctx context.Context, authority string) (*models.Domain, error)
}

// TagRepository defines operations for tags
type TagRepository interface {
	Repository[models.Tag, models.TagFilter]
	ByName(ctx context.Context, name string) (*models.Tag, error)
	ListByNames(ctx context.Context, names []string) ([]*models.Tag, error)
}

// VisitRepository defines operations for visit records
type VisitRepository interface {
	Repository[models.Visit, models.VisitFilter]
	UpdateLocation(ctx context.Context, visitUUID string, countryCode, countryName, cityName *string, latitude, longitude *float64) error
}

// VisitsCountRepository defines operations for the sharded visit counters
type VisitsCountRepository interface {
	IncrementSlot(ctx context.Context, shortURLID uint, slotID int, potentialBot bool) error
	TotalVisits(ctx context.Context, shortURLID uint) (int64, error)
	TotalVisitsByBot(ctx context.Context, shortURLID uint, potentialBot bool) (int64, error)
}
