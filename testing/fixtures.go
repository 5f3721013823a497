// Package testing provides test utilities and database setup for integration tests
package testing

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/kairoshi/tsubame/models"
	"github.com/kairoshi/tsubame/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestDomain creates a domain with a random authority
func (tf *TestFixtures) CreateTestDomain() (*models.Domain, error) {
	domain := &models.Domain{
		Authority: fmt.Sprintf("d%04d.example.com", rand.Intn(10000)),
	}
	if err := tf.DB.DB.Create(domain).Error; err != nil {
		return nil, fmt.Errorf("failed to create test domain: %w", err)
	}
	return domain, nil
}

// CreateTestShortURL creates an enabled strict-mode short URL with a random code
func (tf *TestFixtures) CreateTestShortURL(domainID *uint) (*models.ShortURL, error) {
	shortURL := &models.ShortURL{
		ShortCode: fmt.Sprintf("c%06d", rand.Intn(1000000)),
		DomainID:  domainID,
		LongURL:   "https://example.com/landing",
		Mode:      models.ShortURLModeStrict,
		Enabled:   utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(shortURL).Error; err != nil {
		return nil, fmt.Errorf("failed to create test short URL: %w", err)
	}
	return shortURL, nil
}

// CreateTestVisit records a visit for the given short URL
func (tf *TestFixtures) CreateTestVisit(shortURLID uint, potentialBot bool) (*models.Visit, error) {
	ua := "test-agent"
	visit := &models.Visit{
		UUID:         uuid.New(),
		ShortURLID:   shortURLID,
		UserAgent:    &ua,
		PotentialBot: potentialBot,
		Date:         utils.UTCNow(),
	}
	if err := tf.DB.DB.Create(visit).Error; err != nil {
		return nil, fmt.Errorf("failed to create test visit: %w", err)
	}
	return visit, nil
}

// CreateTestTag creates a tag with a random name
func (tf *TestFixtures) CreateTestTag() (*models.Tag, error) {
	tag := &models.Tag{
		Name: fmt.Sprintf("tag-%06d", rand.Intn(1000000)),
	}
	if err := tf.DB.DB.Create(tag).Error; err != nil {
		return nil, fmt.Errorf("failed to create test tag: %w", err)
	}
	return tag, nil
}
