package businessflow

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/kairoshi/tsubame/models"
)

// In-memory repository fakes. They enforce the same uniqueness rules the
// real schema does and surface conflicts as gorm.ErrDuplicatedKey, which is
// what the postgres driver reports with error translation enabled.

type fakeShortURLRepo struct {
	mu     sync.Mutex
	rows   []*models.ShortURL
	nextID uint

	// occupiedAlways makes every generated code look taken
	occupiedAlways bool
	existsCalls    int
}

func newFakeShortURLRepo() *fakeShortURLRepo {
	return &fakeShortURLRepo{nextID: 1}
}

func (r *fakeShortURLRepo) ByID(_ context.Context, id uint) (*models.ShortURL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, nil
}

func (r *fakeShortURLRepo) ByFilter(_ context.Context, filter models.ShortURLFilter, _ string, _, _ int) ([]*models.ShortURL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ShortURL
	for _, row := range r.rows {
		if filter.ShortCode != nil && row.ShortCode != *filter.ShortCode {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *fakeShortURLRepo) Save(_ context.Context, entity *models.ShortURL) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ShortCode == entity.ShortCode && sameDomain(row.DomainID, entity.DomainID) {
			return gorm.ErrDuplicatedKey
		}
	}
	entity.ID = r.nextID
	r.nextID++
	r.rows = append(r.rows, entity)
	return nil
}

func (r *fakeShortURLRepo) SaveBatch(ctx context.Context, entities []*models.ShortURL) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeShortURLRepo) Count(ctx context.Context, filter models.ShortURLFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

func (r *fakeShortURLRepo) Exists(ctx context.Context, filter models.ShortURLFilter) (bool, error) {
	r.mu.Lock()
	r.existsCalls++
	occupied := r.occupiedAlways
	r.mu.Unlock()
	if occupied {
		return true, nil
	}
	c, err := r.Count(ctx, filter)
	return c > 0, err
}

func (r *fakeShortURLRepo) ByCodeAndDomain(_ context.Context, shortCode string, domainID *uint) (*models.ShortURL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ShortCode == shortCode && sameDomain(row.DomainID, domainID) {
			return row, nil
		}
	}
	return nil, nil
}

func (r *fakeShortURLRepo) CodeOccupied(ctx context.Context, shortCode string, domainID *uint) (bool, error) {
	row, err := r.ByCodeAndDomain(ctx, shortCode, domainID)
	return row != nil, err
}

func (r *fakeShortURLRepo) Update(_ context.Context, shortURL *models.ShortURL) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, row := range r.rows {
		if row.ID == shortURL.ID {
			r.rows[i] = shortURL
			return nil
		}
	}
	return fmt.Errorf("short URL %d not found", shortURL.ID)
}

func sameDomain(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type fakeDomainRepo struct {
	mu     sync.Mutex
	rows   []*models.Domain
	nextID uint

	lookupCalls int
	saveCalls   int
	// conflictOnce simulates another worker winning the insert race: the
	// first Save fails with a duplicate error and plants the row.
	conflictOnce bool
}

func newFakeDomainRepo() *fakeDomainRepo {
	return &fakeDomainRepo{nextID: 1}
}

func (r *fakeDomainRepo) ByID(_ context.Context, id uint) (*models.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, nil
}

func (r *fakeDomainRepo) ByFilter(_ context.Context, filter models.DomainFilter, _ string, _, _ int) ([]*models.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Domain
	for _, row := range r.rows {
		if filter.Authority != nil && row.Authority != *filter.Authority {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *fakeDomainRepo) Save(_ context.Context, entity *models.Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls++
	if r.conflictOnce {
		r.conflictOnce = false
		planted := &models.Domain{ID: r.nextID, Authority: entity.Authority}
		r.nextID++
		r.rows = append(r.rows, planted)
		return gorm.ErrDuplicatedKey
	}
	for _, row := range r.rows {
		if row.Authority == entity.Authority {
			return gorm.ErrDuplicatedKey
		}
	}
	entity.ID = r.nextID
	r.nextID++
	r.rows = append(r.rows, entity)
	return nil
}

func (r *fakeDomainRepo) SaveBatch(ctx context.Context, entities []*models.Domain) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeDomainRepo) Count(ctx context.Context, filter models.DomainFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

func (r *fakeDomainRepo) Exists(ctx context.Context, filter models.DomainFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	return c > 0, err
}

func (r *fakeDomainRepo) ByAuthority(_ context.Context, authority string) (*models.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookupCalls++
	for _, row := range r.rows {
		if row.Authority == authority {
			return row, nil
		}
	}
	return nil, nil
}

type fakeTagRepo struct {
	mu     sync.Mutex
	rows   []*models.Tag
	nextID uint

	lookupCalls int
	// conflictOnce simulates losing the insert race for one tag name
	conflictOnce bool
}

func newFakeTagRepo() *fakeTagRepo {
	return &fakeTagRepo{nextID: 1}
}

func (r *fakeTagRepo) ByID(_ context.Context, id uint) (*models.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, nil
}

func (r *fakeTagRepo) ByFilter(_ context.Context, filter models.TagFilter, _ string, _, _ int) ([]*models.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Tag
	for _, row := range r.rows {
		if filter.Name != nil && row.Name != *filter.Name {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *fakeTagRepo) Save(_ context.Context, entity *models.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictOnce {
		r.conflictOnce = false
		planted := &models.Tag{ID: r.nextID, Name: entity.Name}
		r.nextID++
		r.rows = append(r.rows, planted)
		return gorm.ErrDuplicatedKey
	}
	for _, row := range r.rows {
		if row.Name == entity.Name {
			return gorm.ErrDuplicatedKey
		}
	}
	entity.ID = r.nextID
	r.nextID++
	r.rows = append(r.rows, entity)
	return nil
}

func (r *fakeTagRepo) SaveBatch(ctx context.Context, entities []*models.Tag) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeTagRepo) Count(ctx context.Context, filter models.TagFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

func (r *fakeTagRepo) Exists(ctx context.Context, filter models.TagFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	return c > 0, err
}

func (r *fakeTagRepo) ByName(_ context.Context, name string) (*models.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookupCalls++
	for _, row := range r.rows {
		if row.Name == name {
			return row, nil
		}
	}
	return nil, nil
}

func (r *fakeTagRepo) ListByNames(_ context.Context, names []string) ([]*models.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookupCalls++
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []*models.Tag
	for _, row := range r.rows {
		if wanted[row.Name] {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeVisitRepo struct {
	mu     sync.Mutex
	rows   []*models.Visit
	nextID uint

	saveErr         error
	locationUpdates map[string]int
}

func newFakeVisitRepo() *fakeVisitRepo {
	return &fakeVisitRepo{nextID: 1, locationUpdates: make(map[string]int)}
}

func (r *fakeVisitRepo) ByID(_ context.Context, id uint) (*models.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, nil
}

func (r *fakeVisitRepo) ByFilter(_ context.Context, filter models.VisitFilter, _ string, _, _ int) ([]*models.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Visit
	for _, row := range r.rows {
		if filter.ShortURLID != nil && row.ShortURLID != *filter.ShortURLID {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *fakeVisitRepo) Save(_ context.Context, entity *models.Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	entity.ID = r.nextID
	r.nextID++
	r.rows = append(r.rows, entity)
	return nil
}

func (r *fakeVisitRepo) SaveBatch(ctx context.Context, entities []*models.Visit) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeVisitRepo) Count(ctx context.Context, filter models.VisitFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

func (r *fakeVisitRepo) Exists(ctx context.Context, filter models.VisitFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	return c > 0, err
}

func (r *fakeVisitRepo) UpdateLocation(_ context.Context, visitUUID string, _, _, _ *string, _, _ *float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locationUpdates[visitUUID]++
	return nil
}

type countKey struct {
	shortURLID   uint
	slotID       int
	potentialBot bool
}

type fakeCountsRepo struct {
	mu     sync.Mutex
	counts map[countKey]int64
}

func newFakeCountsRepo() *fakeCountsRepo {
	return &fakeCountsRepo{counts: make(map[countKey]int64)}
}

func (r *fakeCountsRepo) IncrementSlot(_ context.Context, shortURLID uint, slotID int, potentialBot bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[countKey{shortURLID, slotID, potentialBot}]++
	return nil
}

func (r *fakeCountsRepo) TotalVisits(_ context.Context, shortURLID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for k, v := range r.counts {
		if k.shortURLID == shortURLID {
			total += v
		}
	}
	return total, nil
}

func (r *fakeCountsRepo) TotalVisitsByBot(_ context.Context, shortURLID uint, potentialBot bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for k, v := range r.counts {
		if k.shortURLID == shortURLID && k.potentialBot == potentialBot {
			total += v
		}
	}
	return total, nil
}

func (r *fakeCountsRepo) usedSlots(shortURLID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	slots := make(map[int]bool)
	for k := range r.counts {
		if k.shortURLID == shortURLID {
			slots[k.slotID] = true
		}
	}
	return len(slots)
}

// passthroughTx runs the transactional body directly, standing in for a real
// database transaction
func passthroughTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
