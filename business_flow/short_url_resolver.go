package businessflow

import (
	"strings"

	"context"

	"github.com/kairoshi/tsubame/config"
	"github.com/kairoshi/tsubame/models"
	"github.com/kairoshi/tsubame/repository"
)

// ShortURLResolver locates the short URL a request addresses and decides
// whether it may redirect right now.
type ShortURLResolver interface {
	// ResolveShortURL returns the matched short URL and the path segments left
	// over after slug matching. Failures are the typed resolution errors, in
	// check order: not found, not yet valid, expired, max visits reached.
	ResolveShortURL(ctx context.Context, code string, domainAuthority *string, extraSegments []string) (*models.ShortURL, []string, error)
}

type ShortURLResolverImpl struct {
	shortURLRepo repository.ShortURLRepository
	domainRepo   repository.DomainRepository
	countsRepo   repository.VisitsCountRepository
	cfg          config.ShortURLConfig
}

func NewShortURLResolver(
	shortURLRepo repository.ShortURLRepository,
	domainRepo repository.DomainRepository,
	countsRepo repository.VisitsCountRepository,
	cfg config.ShortURLConfig,
) ShortURLResolver {
	return &ShortURLResolverImpl{
		shortURLRepo: shortURLRepo,
		domainRepo:   domainRepo,
		countsRepo:   countsRepo,
		cfg:          cfg,
	}
}

func (r *ShortURLResolverImpl) ResolveShortURL(ctx context.Context, code string, domainAuthority *string, extraSegments []string) (*models.ShortURL, []string, error) {
	if code == "" {
		return nil, nil, NewBusinessError("SHORT_URL_NOT_FOUND", "Empty short code", ErrShortURLNotFound)
	}

	domainID, err := r.resolveDomainScope(ctx, domainAuthority)
	if err != nil {
		return nil, nil, err
	}

	shortURL, leftover, err := r.findBySlug(ctx, code, domainID, extraSegments)
	if err != nil {
		return nil, nil, err
	}
	if shortURL == nil {
		return nil, nil, NewBusinessError("SHORT_URL_NOT_FOUND", "No short URL for code "+code, ErrShortURLNotFound)
	}

	if err := r.checkValidity(ctx, shortURL); err != nil {
		return nil, nil, err
	}
	return shortURL, leftover, nil
}

// resolveDomainScope maps a request authority to a domain scope. Requests on
// the default domain (or with no authority at all) address domain-less rows,
// so the scope is nil. An authority no domain row exists for cannot match
// anything.
func (r *ShortURLResolverImpl) resolveDomainScope(ctx context.Context, domainAuthority *string) (*uint, error) {
	if domainAuthority == nil {
		return nil, nil
	}
	authority := strings.TrimSpace(*domainAuthority)
	if authority == "" || strings.EqualFold(authority, r.cfg.DefaultDomain) {
		return nil, nil
	}

	domain, err := r.domainRepo.ByAuthority(ctx, authority)
	if err != nil {
		return nil, NewBusinessError("DOMAIN_LOOKUP_FAILED", "Failed to lookup domain", err)
	}
	if domain == nil {
		return nil, NewBusinessError("SHORT_URL_NOT_FOUND", "Unknown domain "+authority, ErrShortURLNotFound)
	}
	return &domain.ID, nil
}

// findBySlug matches the code against stored rows. With multi-segment slugs
// enabled, codes may contain slashes, so candidates are built from the code
// plus leading extra segments, longest first. A strict-mode row only matches
// when no unmatched segments remain, unless extra-path appending is on.
func (r *ShortURLResolverImpl) findBySlug(ctx context.Context, code string, domainID *uint, extraSegments []string) (*models.ShortURL, []string, error) {
	maxConsumed := 0
	if r.cfg.MultiSegmentSlugs {
		maxConsumed = len(extraSegments)
	}

	for consumed := maxConsumed; consumed >= 0; consumed-- {
		candidate := code
		if consumed > 0 {
			candidate = code + "/" + strings.Join(extraSegments[:consumed], "/")
		}
		leftover := extraSegments[consumed:]

		row, err := r.shortURLRepo.ByCodeAndDomain(ctx, candidate, domainID)
		if err != nil {
			return nil, nil, NewBusinessError("SHORT_URL_LOOKUP_FAILED", "Failed to lookup short URL", err)
		}
		if row == nil {
			continue
		}
		if len(leftover) > 0 && row.Mode == models.ShortURLModeStrict && !r.cfg.AppendExtraPath {
			continue
		}
		return row, leftover, nil
	}
	return nil, nil, nil
}

// checkValidity runs the redirect gate checks in a fixed order so a row that
// is both disabled and expired always reports the same failure.
func (r *ShortURLResolverImpl) checkValidity(ctx context.Context, shortURL *models.ShortURL) error {
	if !shortURL.IsEnabled() {
		return NewBusinessError("SHORT_URL_NOT_FOUND", "Short URL is disabled", ErrShortURLNotFound)
	}

	now := utcNow()
	if shortURL.ValidSince != nil && now.Before(*shortURL.ValidSince) {
		return NewBusinessError("SHORT_URL_NOT_YET_VALID", "Short URL is not valid yet", ErrShortURLNotYetValid)
	}
	if shortURL.ValidUntil != nil && now.After(*shortURL.ValidUntil) {
		return NewBusinessError("SHORT_URL_EXPIRED", "Short URL has expired", ErrShortURLExpired)
	}

	if shortURL.MaxVisits != nil {
		total, err := r.countsRepo.TotalVisits(ctx, shortURL.ID)
		if err != nil {
			return NewBusinessError("VISITS_COUNT_FAILED", "Failed to sum visit counts", err)
		}
		if total >= *shortURL.MaxVisits {
			return NewBusinessError("MAX_VISITS_REACHED", "Short URL reached its maximum visits", ErrMaxVisitsReached)
		}
	}
	return nil
}
