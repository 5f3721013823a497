package businessflow

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kairoshi/tsubame/models"
)

// cacheShardCount fixes how many independently locked segments the in-memory
// cache is split into. Power of two so the shard pick is a mask.
const cacheShardCount = 16

// deviceVariants enumerates every device category a decision can be keyed
// under, so invalidation can enumerate keys instead of tracking them.
var deviceVariants = []models.DeviceType{
	models.DeviceTypeAndroid,
	models.DeviceTypeIOS,
	models.DeviceTypeMobile,
	models.DeviceTypeDesktop,
}

// RedirectCacheKey identifies one cached decision. Decisions differ per
// device category because of device-specific long URLs.
type RedirectCacheKey struct {
	ShortCode       string
	DomainAuthority string
	Device          models.DeviceType
}

func (k RedirectCacheKey) String() string {
	return k.ShortCode + "|" + k.DomainAuthority + "|" + string(k.Device)
}

// ResolvedRedirect is what the cache stores per key: the decision to serve
// plus the short URL snapshot visit tracking needs. Caching the snapshot
// means a hit skips storage entirely, including the max-visits check, for at
// most one TTL.
type ResolvedRedirect struct {
	Decision RedirectDecision `json:"decision"`
	ShortURL *models.ShortURL `json:"short_url"`
}

// ResolveFunc computes a resolved redirect on a cache miss
type ResolveFunc func(ctx context.Context) (ResolvedRedirect, error)

// RedirectCache memoizes redirect decisions between short URL edits. Entries
// expire on their own TTL; Invalidate removes every device variant of a code
// immediately so edits are visible before the TTL runs out. Errors from the
// resolve function are never stored.
type RedirectCache interface {
	GetOrResolve(ctx context.Context, key RedirectCacheKey, resolve ResolveFunc) (ResolvedRedirect, error)
	Invalidate(ctx context.Context, shortCode, domainAuthority string) error
}

// NoopRedirectCache resolves every call; used when caching is disabled
type NoopRedirectCache struct{}

func (NoopRedirectCache) GetOrResolve(ctx context.Context, _ RedirectCacheKey, resolve ResolveFunc) (ResolvedRedirect, error) {
	return resolve(ctx)
}

func (NoopRedirectCache) Invalidate(context.Context, string, string) error { return nil }

// ---------------------------------------------------------------------------
// In-memory implementation

type memoryCacheEntry struct {
	key       string
	resolved  ResolvedRedirect
	expiresAt time.Time
}

type memoryCacheShard struct {
	mu       sync.Mutex
	order    *list.List
	elements map[string]*list.Element
}

// MemoryRedirectCache is a sharded LRU with per-entry TTL. Each shard holds
// its own lock, so hits on different codes never contend. Two goroutines
// missing the same key at once both resolve and the later store wins; the
// decisions converge, so the duplicate work is accepted instead of holding a
// lock across the resolve.
type MemoryRedirectCache struct {
	shards        [cacheShardCount]*memoryCacheShard
	capacityShard int
}

func NewMemoryRedirectCache(capacity int) *MemoryRedirectCache {
	if capacity < cacheShardCount {
		capacity = cacheShardCount
	}
	c := &MemoryRedirectCache{capacityShard: capacity / cacheShardCount}
	for i := range c.shards {
		c.shards[i] = &memoryCacheShard{
			order:    list.New(),
			elements: make(map[string]*list.Element),
		}
	}
	return c
}

func (c *MemoryRedirectCache) shardFor(key string) *memoryCacheShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()&(cacheShardCount-1)]
}

func (c *MemoryRedirectCache) GetOrResolve(ctx context.Context, key RedirectCacheKey, resolve ResolveFunc) (ResolvedRedirect, error) {
	k := key.String()
	if resolved, ok := c.get(k); ok {
		return resolved, nil
	}

	resolved, err := resolve(ctx)
	if err != nil {
		return ResolvedRedirect{}, err
	}
	if resolved.Decision.CacheTTL > 0 {
		c.put(k, resolved)
	}
	return resolved, nil
}

func (c *MemoryRedirectCache) Invalidate(_ context.Context, shortCode, domainAuthority string) error {
	for _, device := range deviceVariants {
		k := RedirectCacheKey{ShortCode: shortCode, DomainAuthority: domainAuthority, Device: device}.String()
		shard := c.shardFor(k)
		shard.mu.Lock()
		if el, ok := shard.elements[k]; ok {
			shard.order.Remove(el)
			delete(shard.elements, k)
		}
		shard.mu.Unlock()
	}
	return nil
}

func (c *MemoryRedirectCache) get(k string) (ResolvedRedirect, bool) {
	shard := c.shardFor(k)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	el, ok := shard.elements[k]
	if !ok {
		return ResolvedRedirect{}, false
	}
	entry := el.Value.(*memoryCacheEntry)
	if utcNow().After(entry.expiresAt) {
		shard.order.Remove(el)
		delete(shard.elements, k)
		return ResolvedRedirect{}, false
	}
	shard.order.MoveToFront(el)
	return entry.resolved, true
}

func (c *MemoryRedirectCache) put(k string, resolved ResolvedRedirect) {
	shard := c.shardFor(k)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry := &memoryCacheEntry{key: k, resolved: resolved, expiresAt: utcNow().Add(resolved.Decision.CacheTTL)}
	if el, ok := shard.elements[k]; ok {
		el.Value = entry
		shard.order.MoveToFront(el)
		return
	}
	shard.elements[k] = shard.order.PushFront(entry)

	for shard.order.Len() > c.capacityShard {
		oldest := shard.order.Back()
		if oldest == nil {
			break
		}
		shard.order.Remove(oldest)
		delete(shard.elements, oldest.Value.(*memoryCacheEntry).key)
	}
}

// ---------------------------------------------------------------------------
// Redis implementation

// RedisRedirectCache stores decisions as JSON values with a server-side TTL.
// Suited to deployments with several instances behind one load balancer,
// where an edit on one instance must invalidate the others' cache too.
type RedisRedirectCache struct {
	client *redis.Client
	prefix string
}

func NewRedisRedirectCache(client *redis.Client, prefix string) *RedisRedirectCache {
	return &RedisRedirectCache{client: client, prefix: prefix}
}

func (c *RedisRedirectCache) redisKey(k RedirectCacheKey) string {
	return c.prefix + "redirect:" + k.String()
}

func (c *RedisRedirectCache) GetOrResolve(ctx context.Context, key RedirectCacheKey, resolve ResolveFunc) (ResolvedRedirect, error) {
	rk := c.redisKey(key)
	raw, err := c.client.Get(ctx, rk).Result()
	if err == nil {
		var resolved ResolvedRedirect
		if unmarshalErr := json.Unmarshal([]byte(raw), &resolved); unmarshalErr == nil && resolved.ShortURL != nil {
			return resolved, nil
		}
		// Corrupt entry, drop it and fall through to a resolve.
		c.client.Del(ctx, rk)
	} else if err != redis.Nil {
		// Redis being down must not break redirects; resolve without the cache.
		return resolve(ctx)
	}

	resolved, err := resolve(ctx)
	if err != nil {
		return ResolvedRedirect{}, err
	}
	if resolved.Decision.CacheTTL > 0 {
		if payload, marshalErr := json.Marshal(resolved); marshalErr == nil {
			c.client.Set(ctx, rk, payload, resolved.Decision.CacheTTL)
		}
	}
	return resolved, nil
}

func (c *RedisRedirectCache) Invalidate(ctx context.Context, shortCode, domainAuthority string) error {
	keys := make([]string, 0, len(deviceVariants))
	for _, device := range deviceVariants {
		keys = append(keys, c.redisKey(RedirectCacheKey{ShortCode: shortCode, DomainAuthority: domainAuthority, Device: device}))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached decisions for %q: %w", shortCode, err)
	}
	return nil
}

// NormalizeAuthority maps the request authority to the cache key form: empty
// and the configured default domain collapse to the same key.
func NormalizeAuthority(authority *string, defaultDomain string) string {
	if authority == nil {
		return ""
	}
	a := strings.TrimSpace(*authority)
	if strings.EqualFold(a, defaultDomain) {
		return ""
	}
	return a
}
