package filters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cachePrefix = "filters"

// Cache keeps filter listings in Redis. Keys embed a per-tenant version that
// is bumped on every write, so stale entries simply stop being read and
// expire on their own.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current listing version of a tenant, initialising it when missing.
func (c *Cache) Version(ctx context.Context, tenant string) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	key := versionKey(tenant)
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates every listing cached for the tenant.
func (c *Cache) Bump(ctx context.Context, tenant string) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, versionKey(tenant)).Err()
}

// AllKey builds the key of the tenant-wide active listing.
func (c *Cache) AllKey(ctx context.Context, tenant string) (string, error) {
	return c.buildKey(ctx, tenant, "all")
}

// UserKey builds the key of the listing visible to one user with the given
// roles. Role order does not matter.
func (c *Cache) UserKey(ctx context.Context, tenant, user string, roles []string) (string, error) {
	return c.buildKey(ctx, tenant, "user", audienceDigest(user, roles))
}

// audienceDigest hashes the user and the sorted role set with length prefixes
// so distinct audiences never share a key.
func audienceDigest(user string, roles []string) string {
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, part := range append([]string{user}, sorted...) {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) buildKey(ctx context.Context, tenant string, parts ...string) (string, error) {
	ver, err := c.Version(ctx, tenant)
	if err != nil {
		return "", err
	}
	all := append([]string{cachePrefix, tenantToken(tenant)}, parts...)
	return fmt.Sprintf("%s:%d", strings.Join(all, ":"), ver), nil
}

// FetchList loads a cached listing or populates it using the loader.
// Concurrent misses for the same key share a single loader call. Redis
// failures are logged and the loader result is served uncached.
func (c *Cache) FetchList(ctx context.Context, key string, loader func(context.Context) ([]Filter, error)) ([]Filter, error) {
	if loader == nil {
		return nil, errors.New("filters: cache loader required")
	}
	if !c.enabled() {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []Filter
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("read filter cache", slog.String("key", key), slog.Any("error", err))
		return loader(ctx)
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		list, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(list)
		if err != nil {
			c.logger.Warn("encode filter cache", slog.String("key", key), slog.Any("error", err))
			return list, nil
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("write filter cache", slog.String("key", key), slog.Any("error", err))
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]Filter), nil
}

func versionKey(tenant string) string {
	return strings.Join([]string{cachePrefix, tenantToken(tenant), "version"}, ":")
}

func tenantToken(tenant string) string {
	if tenant == "" {
		return "_"
	}
	return tenant
}
