package businessflow

import (
	"context"
	"net/url"
	"strings"

	"github.com/kairoshi/tsubame/models"
	"github.com/kairoshi/tsubame/repository"
)

// findOrCreateAttempts bounds the create/re-lookup loop on unique conflicts
const findOrCreateAttempts = 3

// RelationResolver provides find-or-create semantics for the shared entities a
// short URL references. Concurrent creations of the same domain or tag rely on
// storage uniqueness constraints and fall back to a re-lookup on conflict.
type RelationResolver interface {
	// ResolveDomain returns nil without touching storage when authority is
	// nil or empty (no domain constraint)
	ResolveDomain(ctx context.Context, authority *string) (*models.Domain, error)
	// ResolveTags deduplicates names, then finds or creates each unique tag.
	// An empty input returns an empty result with zero storage access.
	ResolveTags(ctx context.Context, names []string) ([]*models.Tag, error)
}

type RelationResolverImpl struct {
	domainRepo repository.DomainRepository
	tagRepo    repository.TagRepository
}

func NewRelationResolver(domainRepo repository.DomainRepository, tagRepo repository.TagRepository) RelationResolver {
	return &RelationResolverImpl{domainRepo: domainRepo, tagRepo: tagRepo}
}

func (r *RelationResolverImpl) ResolveDomain(ctx context.Context, authority *string) (*models.Domain, error) {
	if authority == nil || strings.TrimSpace(*authority) == "" {
		return nil, nil
	}
	normalized := strings.TrimSpace(*authority)
	if !isValidAuthority(normalized) {
		return nil, NewBusinessError("DOMAIN_INVALID", "Domain authority must be host[:port]", ErrDomainInvalid)
	}

	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		existing, err := r.domainRepo.ByAuthority(ctx, normalized)
		if err != nil {
			return nil, NewBusinessError("DOMAIN_LOOKUP_FAILED", "Failed to lookup domain", err)
		}
		if existing != nil {
			return existing, nil
		}

		row := &models.Domain{Authority: normalized}
		err = r.domainRepo.Save(ctx, row)
		if err == nil {
			return row, nil
		}
		if !repository.IsUniqueViolation(err) {
			return nil, NewBusinessError("DOMAIN_CREATE_FAILED", "Failed to create domain", err)
		}
		// Another worker created it first; loop back to the lookup.
	}

	return nil, NewBusinessError("DOMAIN_CONFLICT", "Domain creation kept conflicting", ErrPersistenceConflict)
}

func (r *RelationResolverImpl) ResolveTags(ctx context.Context, names []string) ([]*models.Tag, error) {
	unique := dedupeTagNames(names)
	if len(unique) == 0 {
		return []*models.Tag{}, nil
	}

	existing, err := r.tagRepo.ListByNames(ctx, unique)
	if err != nil {
		return nil, NewBusinessError("TAG_LOOKUP_FAILED", "Failed to lookup tags", err)
	}

	byName := make(map[string]*models.Tag, len(existing))
	for _, t := range existing {
		byName[t.Name] = t
	}

	result := make([]*models.Tag, 0, len(unique))
	for _, name := range unique {
		if t, ok := byName[name]; ok {
			result = append(result, t)
			continue
		}
		t, err := r.findOrCreateTag(ctx, name)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

func (r *RelationResolverImpl) findOrCreateTag(ctx context.Context, name string) (*models.Tag, error) {
	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		row := &models.Tag{Name: name}
		err := r.tagRepo.Save(ctx, row)
		if err == nil {
			return row, nil
		}
		if !repository.IsUniqueViolation(err) {
			return nil, NewBusinessError("TAG_CREATE_FAILED", "Failed to create tag", err)
		}

		existing, err := r.tagRepo.ByName(ctx, name)
		if err != nil {
			return nil, NewBusinessError("TAG_LOOKUP_FAILED", "Failed to lookup tag after conflict", err)
		}
		if existing != nil {
			return existing, nil
		}
		// Conflicting row vanished between insert and lookup; try again.
	}
	return nil, NewBusinessError("TAG_CONFLICT", "Tag creation kept conflicting", ErrPersistenceConflict)
}

// dedupeTagNames trims names, drops empties and keeps first occurrences in order
func dedupeTagNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// isValidAuthority accepts host[:port] with no scheme, path or userinfo
func isValidAuthority(authority string) bool {
	if strings.Contains(authority, "/") || strings.Contains(authority, "@") || strings.Contains(authority, " ") {
		return false
	}
	u, err := url.Parse("//" + authority)
	if err != nil {
		return false
	}
	return u.Host == authority && u.Hostname() != ""
}
