package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoshi/tsubame/app/dto"
	"github.com/kairoshi/tsubame/config"
	"github.com/kairoshi/tsubame/models"
	"github.com/kairoshi/tsubame/utils"
)

type creationFixture struct {
	shortURLRepo *fakeShortURLRepo
	domainRepo   *fakeDomainRepo
	tagRepo      *fakeTagRepo
	cache        RedirectCache
	flow         *ShortURLCreationFlowImpl
}

func newCreationFixture(cfg config.ShortURLConfig, cache RedirectCache) *creationFixture {
	if cache == nil {
		cache = NoopRedirectCache{}
	}
	f := &creationFixture{
		shortURLRepo: newFakeShortURLRepo(),
		domainRepo:   newFakeDomainRepo(),
		tagRepo:      newFakeTagRepo(),
		cache:        cache,
	}
	f.flow = &ShortURLCreationFlowImpl{
		runTx:            passthroughTx,
		shortURLRepo:     f.shortURLRepo,
		domainRepo:       f.domainRepo,
		relationResolver: NewRelationResolver(f.domainRepo, f.tagRepo),
		generator:        NewShortCodeGenerator(f.shortURLRepo, cfg.DefaultCodeLength),
		cache:            cache,
		validate:         validator.New(),
		cfg:              cfg,
	}
	return f
}

func TestCreateShortURLWithCustomSlug(t *testing.T) {
	f := newCreationFixture(testShortURLConfig(), nil)

	shortURL, err := f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL:    "https://example.com/landing",
		CustomSlug: utils.ToPtr("launch"),
		Tags:       []string{"marketing", "launch"},
	})
	require.NoError(t, err)
	assert.Equal(t, "launch", shortURL.ShortCode)
	assert.Equal(t, models.ShortURLModeStrict, shortURL.Mode)
	require.NotNil(t, shortURL.Enabled)
	assert.True(t, *shortURL.Enabled)
	require.Len(t, shortURL.Tags, 2)
}

func TestCreateShortURLDuplicateCustomSlug(t *testing.T) {
	f := newCreationFixture(testShortURLConfig(), nil)

	_, err := f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL:    "https://example.com/a",
		CustomSlug: utils.ToPtr("taken"),
	})
	require.NoError(t, err)

	_, err = f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL:    "https://example.com/b",
		CustomSlug: utils.ToPtr("taken"),
	})
	require.Error(t, err)
	assert.True(t, IsShortCodeOccupied(err))
}

func TestCreateShortURLSameSlugOnAnotherDomain(t *testing.T) {
	f := newCreationFixture(testShortURLConfig(), nil)

	_, err := f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL:    "https://example.com/a",
		CustomSlug: utils.ToPtr("promo"),
	})
	require.NoError(t, err)

	// The same slug is free on a different domain
	scoped, err := f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL:    "https://example.com/b",
		CustomSlug: utils.ToPtr("promo"),
		Domain:     utils.ToPtr("other.example.com"),
	})
	require.NoError(t, err)
	require.NotNil(t, scoped.DomainID)
	require.NotNil(t, scoped.Domain)
	assert.Equal(t, "other.example.com", scoped.Domain.Authority)
}

func TestCreateShortURLDomainAuthorityShapes(t *testing.T) {
	f := newCreationFixture(testShortURLConfig(), nil)

	// A portless hostname and a host:port pair are both valid authorities
	plain, err := f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL: "https://example.com/a",
		Domain:  utils.ToPtr("promo.example.com"),
	})
	require.NoError(t, err)
	require.NotNil(t, plain.Domain)
	assert.Equal(t, "promo.example.com", plain.Domain.Authority)

	withPort, err := f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL: "https://example.com/b",
		Domain:  utils.ToPtr("promo.example.com:8443"),
	})
	require.NoError(t, err)
	require.NotNil(t, withPort.Domain)
	assert.Equal(t, "promo.example.com:8443", withPort.Domain.Authority)

	_, err = f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL: "https://example.com/c",
		Domain:  utils.ToPtr("not a host"),
	})
	require.Error(t, err)
	assert.True(t, IsDomainInvalid(err))
}

func TestCreateShortURLGeneratesCode(t *testing.T) {
	f := newCreationFixture(testShortURLConfig(), nil)

	shortURL, err := f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL: "https://example.com/landing",
	})
	require.NoError(t, err)
	assert.Len(t, shortURL.ShortCode, 5)

	custom, err := f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL:    "https://example.com/landing",
		CodeLength: utils.ToPtr(8),
	})
	require.NoError(t, err)
	assert.Len(t, custom.ShortCode, 8)
}

func TestCreateShortURLValidation(t *testing.T) {
	f := newCreationFixture(testShortURLConfig(), nil)

	tests := []struct {
		name string
		req  *dto.CreateShortURLRequest
	}{
		{name: "missing long url", req: &dto.CreateShortURLRequest{}},
		{name: "malformed long url", req: &dto.CreateShortURLRequest{LongURL: "not a url"}},
		{name: "zero max visits", req: &dto.CreateShortURLRequest{LongURL: "https://example.com", MaxVisits: utils.ToPtr(int64(0))}},
		{name: "unknown mode", req: &dto.CreateShortURLRequest{LongURL: "https://example.com", Mode: "fuzzy"}},
		{name: "bad device type", req: &dto.CreateShortURLRequest{
			LongURL:        "https://example.com",
			DeviceLongURLs: []dto.DeviceLongURLInput{{DeviceType: "tv", LongURL: "https://example.com/tv"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.flow.CreateShortURL(context.Background(), tt.req)
			require.Error(t, err)

			var businessErr *BusinessError
			require.ErrorAs(t, err, &businessErr)
			assert.Equal(t, "VALIDATION_FAILED", businessErr.Code)
		})
	}

	assert.Empty(t, f.shortURLRepo.rows)
}

func TestCreateShortURLDeviceOverridesAndWindow(t *testing.T) {
	f := newCreationFixture(testShortURLConfig(), nil)

	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(30 * 24 * time.Hour)

	shortURL, err := f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL:    "https://example.com/landing",
		Mode:       "loose",
		ValidSince: &since,
		ValidUntil: &until,
		MaxVisits:  utils.ToPtr(int64(1000)),
		DeviceLongURLs: []dto.DeviceLongURLInput{
			{DeviceType: "android", LongURL: "https://example.com/android"},
			{DeviceType: "ios", LongURL: "https://example.com/ios"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ShortURLModeLoose, shortURL.Mode)
	require.NotNil(t, shortURL.ValidSince)
	assert.True(t, shortURL.ValidSince.Equal(since))
	require.Len(t, shortURL.DeviceLongURLs, 2)
	assert.Equal(t, models.DeviceTypeAndroid, shortURL.DeviceLongURLs[0].DeviceType)
}

func TestEditShortURLAppliesPartialUpdate(t *testing.T) {
	f := newCreationFixture(testShortURLConfig(), nil)

	created, err := f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL:    "https://example.com/old",
		CustomSlug: utils.ToPtr("edit1"),
		MaxVisits:  utils.ToPtr(int64(10)),
	})
	require.NoError(t, err)

	edited, err := f.flow.EditShortURL(context.Background(), "edit1", nil, &dto.EditShortURLRequest{
		LongURL: utils.ToPtr("https://example.com/new"),
		Tags:    utils.ToPtr([]string{"fresh"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/new", edited.LongURL)
	require.Len(t, edited.Tags, 1)

	// Untouched fields survive the edit
	require.NotNil(t, edited.MaxVisits)
	assert.Equal(t, int64(10), *edited.MaxVisits)
	assert.Equal(t, created.ID, edited.ID)
}

func TestEditShortURLUnknownCode(t *testing.T) {
	f := newCreationFixture(testShortURLConfig(), nil)

	_, err := f.flow.EditShortURL(context.Background(), "nope", nil, &dto.EditShortURLRequest{
		LongURL: utils.ToPtr("https://example.com"),
	})
	require.Error(t, err)
	assert.True(t, IsShortURLNotFound(err))
}

func TestEditShortURLInvalidatesCache(t *testing.T) {
	cache := NewMemoryRedirectCache(1024)
	f := newCreationFixture(testShortURLConfig(), cache)

	_, err := f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL:    "https://example.com/old",
		CustomSlug: utils.ToPtr("edit2"),
	})
	require.NoError(t, err)

	// Prime the cache the way the serving path does
	key := RedirectCacheKey{ShortCode: "edit2", Device: models.DeviceTypeDesktop}
	var resolves int
	resolve := func(context.Context) (ResolvedRedirect, error) {
		resolves++
		return cacheEntry("https://example.com/old", time.Hour), nil
	}
	_, err = cache.GetOrResolve(context.Background(), key, resolve)
	require.NoError(t, err)

	_, err = f.flow.EditShortURL(context.Background(), "edit2", nil, &dto.EditShortURLRequest{
		LongURL: utils.ToPtr("https://example.com/new"),
	})
	require.NoError(t, err)

	// The edit evicted the entry, so the next read resolves again
	_, err = cache.GetOrResolve(context.Background(), key, resolve)
	require.NoError(t, err)
	assert.Equal(t, 2, resolves)
}

func TestDisableShortURLHidesItFromResolution(t *testing.T) {
	f := newCreationFixture(testShortURLConfig(), nil)

	_, err := f.flow.CreateShortURL(context.Background(), &dto.CreateShortURLRequest{
		LongURL:    "https://example.com",
		CustomSlug: utils.ToPtr("gone2"),
	})
	require.NoError(t, err)

	require.NoError(t, f.flow.DisableShortURL(context.Background(), "gone2", nil))

	resolver := NewShortURLResolver(f.shortURLRepo, f.domainRepo, newFakeCountsRepo(), testShortURLConfig())
	_, _, err = resolver.ResolveShortURL(context.Background(), "gone2", nil, nil)
	require.Error(t, err)
	assert.True(t, IsShortURLNotFound(err))

	// Disabling twice is idempotent
	require.NoError(t, f.flow.DisableShortURL(context.Background(), "gone2", nil))
}
