package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairoshi/tsubame/config"
	"github.com/kairoshi/tsubame/models"
	"github.com/kairoshi/tsubame/utils"
)

func testShortURLConfig() config.ShortURLConfig {
	return config.ShortURLConfig{
		DefaultDomain:      "sho.rt",
		DefaultCodeLength:  5,
		RedirectStatusCode: 302,
		RedirectCacheTTL:   30 * time.Second,
		RedirectCacheSize:  1024,
	}
}

type resolverFixture struct {
	shortURLRepo *fakeShortURLRepo
	domainRepo   *fakeDomainRepo
	countsRepo   *fakeCountsRepo
	resolver     ShortURLResolver
}

func newResolverFixture(cfg config.ShortURLConfig) *resolverFixture {
	f := &resolverFixture{
		shortURLRepo: newFakeShortURLRepo(),
		domainRepo:   newFakeDomainRepo(),
		countsRepo:   newFakeCountsRepo(),
	}
	f.resolver = NewShortURLResolver(f.shortURLRepo, f.domainRepo, f.countsRepo, cfg)
	return f
}

func (f *resolverFixture) addShortURL(t *testing.T, shortURL *models.ShortURL) *models.ShortURL {
	t.Helper()
	require.NoError(t, f.shortURLRepo.Save(context.Background(), shortURL))
	return shortURL
}

func TestResolveShortURLNotFound(t *testing.T) {
	f := newResolverFixture(testShortURLConfig())

	_, _, err := f.resolver.ResolveShortURL(context.Background(), "missing", nil, nil)
	require.Error(t, err)
	assert.True(t, IsShortURLNotFound(err))
}

func TestResolveShortURLDisabledLooksLikeMissing(t *testing.T) {
	f := newResolverFixture(testShortURLConfig())
	f.addShortURL(t, &models.ShortURL{
		ShortCode: "gone1",
		LongURL:   "https://example.com",
		Mode:      models.ShortURLModeStrict,
		Enabled:   utils.ToPtr(false),
	})

	_, _, err := f.resolver.ResolveShortURL(context.Background(), "gone1", nil, nil)
	require.Error(t, err)
	assert.True(t, IsShortURLNotFound(err))
}

func TestResolveShortURLValidityWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	restore := utcNow
	utcNow = func() time.Time { return now }
	defer func() { utcNow = restore }()

	tests := []struct {
		name       string
		validSince *time.Time
		validUntil *time.Time
		check      func(error) bool
		ok         bool
	}{
		{name: "inside window", validSince: utils.ToPtr(now.Add(-time.Hour)), validUntil: utils.ToPtr(now.Add(time.Hour)), ok: true},
		{name: "not yet valid", validSince: utils.ToPtr(now.Add(time.Hour)), check: IsShortURLNotYetValid},
		{name: "expired", validUntil: utils.ToPtr(now.Add(-time.Hour)), check: IsShortURLExpired},
		{name: "no bounds", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResolverFixture(testShortURLConfig())
			f.addShortURL(t, &models.ShortURL{
				ShortCode:  "win01",
				LongURL:    "https://example.com",
				Mode:       models.ShortURLModeStrict,
				Enabled:    utils.ToPtr(true),
				ValidSince: tt.validSince,
				ValidUntil: tt.validUntil,
			})

			shortURL, leftover, err := f.resolver.ResolveShortURL(context.Background(), "win01", nil, nil)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, "win01", shortURL.ShortCode)
				assert.Empty(t, leftover)
				return
			}
			require.Error(t, err)
			assert.True(t, tt.check(err))
		})
	}
}

func TestResolveShortURLMaxVisits(t *testing.T) {
	f := newResolverFixture(testShortURLConfig())
	row := f.addShortURL(t, &models.ShortURL{
		ShortCode: "caped",
		LongURL:   "https://example.com",
		Mode:      models.ShortURLModeStrict,
		Enabled:   utils.ToPtr(true),
		MaxVisits: utils.ToPtr(int64(3)),
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, f.countsRepo.IncrementSlot(ctx, row.ID, i, false))
	}

	// Two visits recorded against a cap of three, still resolvable
	_, _, err := f.resolver.ResolveShortURL(ctx, "caped", nil, nil)
	require.NoError(t, err)

	require.NoError(t, f.countsRepo.IncrementSlot(ctx, row.ID, 2, true))

	// The cap counts bots too
	_, _, err = f.resolver.ResolveShortURL(ctx, "caped", nil, nil)
	require.Error(t, err)
	assert.True(t, IsMaxVisitsReached(err))
}

func TestResolveShortURLDomainScoping(t *testing.T) {
	f := newResolverFixture(testShortURLConfig())

	domain := &models.Domain{Authority: "other.example.com"}
	require.NoError(t, f.domainRepo.Save(context.Background(), domain))

	f.addShortURL(t, &models.ShortURL{
		ShortCode: "abc12",
		LongURL:   "https://default.example.com",
		Mode:      models.ShortURLModeStrict,
		Enabled:   utils.ToPtr(true),
	})
	f.addShortURL(t, &models.ShortURL{
		ShortCode: "abc12",
		DomainID:  &domain.ID,
		LongURL:   "https://scoped.example.com",
		Mode:      models.ShortURLModeStrict,
		Enabled:   utils.ToPtr(true),
	})

	ctx := context.Background()

	// No authority addresses the domain-less row
	shortURL, _, err := f.resolver.ResolveShortURL(ctx, "abc12", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://default.example.com", shortURL.LongURL)

	// The default domain is the same scope as no authority
	shortURL, _, err = f.resolver.ResolveShortURL(ctx, "abc12", utils.ToPtr("sho.rt"), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://default.example.com", shortURL.LongURL)

	// A registered custom domain addresses its own rows
	shortURL, _, err = f.resolver.ResolveShortURL(ctx, "abc12", utils.ToPtr("other.example.com"), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://scoped.example.com", shortURL.LongURL)

	// An authority with no domain row matches nothing
	_, _, err = f.resolver.ResolveShortURL(ctx, "abc12", utils.ToPtr("unknown.example.com"), nil)
	require.Error(t, err)
	assert.True(t, IsShortURLNotFound(err))
}

func TestResolveShortURLMultiSegmentSlugs(t *testing.T) {
	cfg := testShortURLConfig()
	cfg.MultiSegmentSlugs = true
	f := newResolverFixture(cfg)

	f.addShortURL(t, &models.ShortURL{
		ShortCode: "docs/intro",
		LongURL:   "https://example.com/docs",
		Mode:      models.ShortURLModeLoose,
		Enabled:   utils.ToPtr(true),
	})

	// The longest candidate wins and the remaining segments are leftover
	shortURL, leftover, err := f.resolver.ResolveShortURL(context.Background(), "docs", nil, []string{"intro", "chapter-1"})
	require.NoError(t, err)
	assert.Equal(t, "docs/intro", shortURL.ShortCode)
	assert.Equal(t, []string{"chapter-1"}, leftover)
}

func TestResolveShortURLStrictRejectsLeftoverSegments(t *testing.T) {
	f := newResolverFixture(testShortURLConfig())
	f.addShortURL(t, &models.ShortURL{
		ShortCode: "plain",
		LongURL:   "https://example.com",
		Mode:      models.ShortURLModeStrict,
		Enabled:   utils.ToPtr(true),
	})

	_, _, err := f.resolver.ResolveShortURL(context.Background(), "plain", nil, []string{"extra"})
	require.Error(t, err)
	assert.True(t, IsShortURLNotFound(err))
}

func TestResolveShortURLAppendExtraPathAcceptsLeftovers(t *testing.T) {
	cfg := testShortURLConfig()
	cfg.AppendExtraPath = true
	f := newResolverFixture(cfg)
	f.addShortURL(t, &models.ShortURL{
		ShortCode: "plain",
		LongURL:   "https://example.com",
		Mode:      models.ShortURLModeStrict,
		Enabled:   utils.ToPtr(true),
	})

	shortURL, leftover, err := f.resolver.ResolveShortURL(context.Background(), "plain", nil, []string{"extra", "path"})
	require.NoError(t, err)
	assert.Equal(t, "plain", shortURL.ShortCode)
	assert.Equal(t, []string{"extra", "path"}, leftover)
}
