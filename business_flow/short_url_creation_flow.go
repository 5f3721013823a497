package businessflow

import (
	"context"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/kairoshi/tsubame/app/dto"
	"github.com/kairoshi/tsubame/config"
	"github.com/kairoshi/tsubame/models"
	"github.com/kairoshi/tsubame/repository"
	"github.com/kairoshi/tsubame/utils"
)

// ShortURLCreationFlow covers the write side of short URLs: creation with a
// custom or generated code, partial edits, and disabling. Edits and disables
// invalidate the redirect cache so they take effect before the cache TTL.
type ShortURLCreationFlow interface {
	CreateShortURL(ctx context.Context, req *dto.CreateShortURLRequest) (*models.ShortURL, error)
	EditShortURL(ctx context.Context, code string, domainAuthority *string, req *dto.EditShortURLRequest) (*models.ShortURL, error)
	DisableShortURL(ctx context.Context, code string, domainAuthority *string) error
}

type ShortURLCreationFlowImpl struct {
	runTx            func(ctx context.Context, fn func(context.Context) error) error
	shortURLRepo     repository.ShortURLRepository
	domainRepo       repository.DomainRepository
	relationResolver RelationResolver
	generator        ShortCodeGenerator
	cache            RedirectCache
	validate         *validator.Validate
	cfg              config.ShortURLConfig
}

func NewShortURLCreationFlow(
	db *gorm.DB,
	shortURLRepo repository.ShortURLRepository,
	domainRepo repository.DomainRepository,
	relationResolver RelationResolver,
	generator ShortCodeGenerator,
	cache RedirectCache,
	cfg config.ShortURLConfig,
) ShortURLCreationFlow {
	if cache == nil {
		cache = NoopRedirectCache{}
	}
	return &ShortURLCreationFlowImpl{
		runTx: func(ctx context.Context, fn func(context.Context) error) error {
			return repository.WithTransaction(ctx, db, fn)
		},
		shortURLRepo:     shortURLRepo,
		domainRepo:       domainRepo,
		relationResolver: relationResolver,
		generator:        generator,
		cache:            cache,
		validate:         validator.New(),
		cfg:              cfg,
	}
}

func (f *ShortURLCreationFlowImpl) CreateShortURL(ctx context.Context, req *dto.CreateShortURLRequest) (*models.ShortURL, error) {
	if err := f.validate.Struct(req); err != nil {
		return nil, NewBusinessError("VALIDATION_FAILED", "Invalid short URL request", err)
	}

	domain, err := f.relationResolver.ResolveDomain(ctx, req.Domain)
	if err != nil {
		return nil, err
	}
	var domainID *uint
	if domain != nil {
		domainID = &domain.ID
	}

	code, err := f.pickCode(ctx, req, domainID)
	if err != nil {
		return nil, err
	}

	tags, err := f.relationResolver.ResolveTags(ctx, req.Tags)
	if err != nil {
		return nil, err
	}

	shortURL := &models.ShortURL{
		ShortCode:  code,
		DomainID:   domainID,
		Domain:     domain,
		LongURL:    req.LongURL,
		Mode:       models.ShortURLModeStrict,
		ValidSince: utils.TimeToUTCPtr(req.ValidSince),
		ValidUntil: utils.TimeToUTCPtr(req.ValidUntil),
		MaxVisits:  req.MaxVisits,
		Enabled:    utils.ToPtr(true),
		Tags:       tags,
	}
	if req.Mode == string(models.ShortURLModeLoose) {
		shortURL.Mode = models.ShortURLModeLoose
	}
	for _, deviceURL := range req.DeviceLongURLs {
		shortURL.DeviceLongURLs = append(shortURL.DeviceLongURLs, models.DeviceLongURL{
			DeviceType: models.DeviceType(deviceURL.DeviceType),
			LongURL:    deviceURL.LongURL,
		})
	}

	err = f.runTx(ctx, func(txCtx context.Context) error {
		return f.shortURLRepo.Save(txCtx, shortURL)
	})
	if err != nil {
		// A concurrent create can win the code between the occupancy check and
		// the insert; the unique constraint is the arbiter.
		if repository.IsUniqueViolation(err) {
			return nil, NewBusinessError("SHORT_CODE_OCCUPIED", "Short code is already in use", ErrShortCodeOccupied)
		}
		return nil, NewBusinessError("SHORT_URL_CREATE_FAILED", "Failed to create short URL", err)
	}
	return shortURL, nil
}

func (f *ShortURLCreationFlowImpl) pickCode(ctx context.Context, req *dto.CreateShortURLRequest, domainID *uint) (string, error) {
	if req.CustomSlug != nil {
		slug := strings.TrimSpace(*req.CustomSlug)
		occupied, err := f.shortURLRepo.CodeOccupied(ctx, slug, domainID)
		if err != nil {
			return "", NewBusinessError("CODE_OCCUPANCY_CHECK_FAILED", "Failed to check custom slug occupancy", err)
		}
		if occupied {
			return "", NewBusinessError("SHORT_CODE_OCCUPIED", "Custom slug "+slug+" is already in use", ErrShortCodeOccupied)
		}
		return slug, nil
	}

	if req.CodeLength != nil {
		return f.generator.Generate(ctx, *req.CodeLength)
	}
	return f.generator.GenerateDefault(ctx)
}

func (f *ShortURLCreationFlowImpl) EditShortURL(ctx context.Context, code string, domainAuthority *string, req *dto.EditShortURLRequest) (*models.ShortURL, error) {
	if err := f.validate.Struct(req); err != nil {
		return nil, NewBusinessError("VALIDATION_FAILED", "Invalid edit request", err)
	}

	shortURL, err := f.findForWrite(ctx, code, domainAuthority)
	if err != nil {
		return nil, err
	}

	if req.LongURL != nil {
		shortURL.LongURL = *req.LongURL
	}
	if req.ValidSince != nil {
		shortURL.ValidSince = utils.TimeToUTCPtr(req.ValidSince)
	}
	if req.ValidUntil != nil {
		shortURL.ValidUntil = utils.TimeToUTCPtr(req.ValidUntil)
	}
	if req.MaxVisits != nil {
		shortURL.MaxVisits = req.MaxVisits
	}
	if req.Tags != nil {
		tags, err := f.relationResolver.ResolveTags(ctx, *req.Tags)
		if err != nil {
			return nil, err
		}
		shortURL.Tags = tags
	}

	if err := f.shortURLRepo.Update(ctx, shortURL); err != nil {
		return nil, NewBusinessError("SHORT_URL_UPDATE_FAILED", "Failed to update short URL", err)
	}
	f.invalidateCache(ctx, shortURL)
	return shortURL, nil
}

func (f *ShortURLCreationFlowImpl) DisableShortURL(ctx context.Context, code string, domainAuthority *string) error {
	shortURL, err := f.findForWrite(ctx, code, domainAuthority)
	if err != nil {
		return err
	}

	shortURL.Enabled = utils.ToPtr(false)
	if err := f.shortURLRepo.Update(ctx, shortURL); err != nil {
		return NewBusinessError("SHORT_URL_UPDATE_FAILED", "Failed to disable short URL", err)
	}
	f.invalidateCache(ctx, shortURL)
	return nil
}

// findForWrite locates a short URL for mutation, disabled rows included so a
// disable is idempotent
func (f *ShortURLCreationFlowImpl) findForWrite(ctx context.Context, code string, domainAuthority *string) (*models.ShortURL, error) {
	var domainID *uint
	authority := NormalizeAuthority(domainAuthority, f.cfg.DefaultDomain)
	if authority != "" {
		domain, err := f.domainRepo.ByAuthority(ctx, authority)
		if err != nil {
			return nil, NewBusinessError("DOMAIN_LOOKUP_FAILED", "Failed to lookup domain", err)
		}
		if domain == nil {
			return nil, NewBusinessError("SHORT_URL_NOT_FOUND", "Unknown domain "+authority, ErrShortURLNotFound)
		}
		domainID = &domain.ID
	}

	shortURL, err := f.shortURLRepo.ByCodeAndDomain(ctx, code, domainID)
	if err != nil {
		return nil, NewBusinessError("SHORT_URL_LOOKUP_FAILED", "Failed to lookup short URL", err)
	}
	if shortURL == nil {
		return nil, NewBusinessError("SHORT_URL_NOT_FOUND", "No short URL for code "+code, ErrShortURLNotFound)
	}
	return shortURL, nil
}

func (f *ShortURLCreationFlowImpl) invalidateCache(ctx context.Context, shortURL *models.ShortURL) {
	authority := ""
	if shortURL.Domain != nil {
		authority = shortURL.Domain.Authority
	}
	// A failed invalidation is not fatal, stale entries still expire on TTL.
	if err := f.cache.Invalidate(ctx, shortURL.ShortCode, authority); err != nil {
		log.Printf("Failed to invalidate redirect cache for %s: %v", shortURL.ShortCode, err)
	}
}
