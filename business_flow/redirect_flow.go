package businessflow

import (
	"context"

	"github.com/kairoshi/tsubame/config"
	"github.com/kairoshi/tsubame/models"
	"github.com/kairoshi/tsubame/repository"
)

// DomainFallbackKind selects which of a domain's configured fallback targets
// applies to a failed request
type DomainFallbackKind string

const (
	// DomainFallbackBaseURL applies when the domain root is visited
	DomainFallbackBaseURL DomainFallbackKind = "base_url"
	// DomainFallbackInvalidShortURL applies when a short code resolved but may not redirect
	DomainFallbackInvalidShortURL DomainFallbackKind = "invalid_short_url"
	// DomainFallbackRegular404 applies to any other unmatched path
	DomainFallbackRegular404 DomainFallbackKind = "regular_404"
)

// RedirectFlow is the serving-layer entry point: cache in front, resolver and
// decider behind it.
type RedirectFlow interface {
	// ResolveForRedirect returns the decision plus the short URL snapshot the
	// visit tracker needs. Failures are the typed resolution errors.
	ResolveForRedirect(ctx context.Context, code string, domainAuthority *string, extraSegments []string, visitCtx *VisitContext) (ResolvedRedirect, error)
	// DomainFallback returns the configured fallback target for the authority,
	// or nil when none applies
	DomainFallback(ctx context.Context, domainAuthority *string, kind DomainFallbackKind) (*string, error)
}

type RedirectFlowImpl struct {
	resolver   ShortURLResolver
	decider    RedirectDecider
	cache      RedirectCache
	domainRepo repository.DomainRepository
	cfg        config.ShortURLConfig
}

func NewRedirectFlow(
	resolver ShortURLResolver,
	decider RedirectDecider,
	cache RedirectCache,
	domainRepo repository.DomainRepository,
	cfg config.ShortURLConfig,
) RedirectFlow {
	if cache == nil {
		cache = NoopRedirectCache{}
	}
	return &RedirectFlowImpl{
		resolver:   resolver,
		decider:    decider,
		cache:      cache,
		domainRepo: domainRepo,
		cfg:        cfg,
	}
}

func (f *RedirectFlowImpl) ResolveForRedirect(ctx context.Context, code string, domainAuthority *string, extraSegments []string, visitCtx *VisitContext) (ResolvedRedirect, error) {
	key := RedirectCacheKey{
		ShortCode:       code,
		DomainAuthority: NormalizeAuthority(domainAuthority, f.cfg.DefaultDomain),
		Device:          models.DeviceTypeDesktop,
	}
	if visitCtx != nil {
		key.Device = visitCtx.DeviceCategory()
	}

	// Requests carrying extra path segments or a query string bypass the
	// cache: their decision depends on more than the code and device.
	if len(extraSegments) > 0 || (visitCtx != nil && visitCtx.RawQuery != "") {
		return f.resolve(ctx, code, domainAuthority, extraSegments, visitCtx)
	}

	return f.cache.GetOrResolve(ctx, key, func(resolveCtx context.Context) (ResolvedRedirect, error) {
		return f.resolve(resolveCtx, code, domainAuthority, nil, visitCtx)
	})
}

func (f *RedirectFlowImpl) resolve(ctx context.Context, code string, domainAuthority *string, extraSegments []string, visitCtx *VisitContext) (ResolvedRedirect, error) {
	shortURL, leftover, err := f.resolver.ResolveShortURL(ctx, code, domainAuthority, extraSegments)
	if err != nil {
		return ResolvedRedirect{}, err
	}
	return ResolvedRedirect{
		Decision: f.decider.Decide(shortURL, visitCtx, leftover),
		ShortURL: shortURL,
	}, nil
}

func (f *RedirectFlowImpl) DomainFallback(ctx context.Context, domainAuthority *string, kind DomainFallbackKind) (*string, error) {
	if domainAuthority == nil {
		return nil, nil
	}
	authority := NormalizeAuthority(domainAuthority, f.cfg.DefaultDomain)
	if authority == "" {
		return nil, nil
	}

	domain, err := f.domainRepo.ByAuthority(ctx, authority)
	if err != nil {
		return nil, NewBusinessError("DOMAIN_LOOKUP_FAILED", "Failed to lookup domain", err)
	}
	if domain == nil {
		return nil, nil
	}

	switch kind {
	case DomainFallbackBaseURL:
		return domain.BaseURLRedirect, nil
	case DomainFallbackInvalidShortURL:
		return domain.InvalidShortURLRedirect, nil
	case DomainFallbackRegular404:
		return domain.Regular404Redirect, nil
	default:
		return nil, nil
	}
}
