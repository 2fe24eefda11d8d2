package source

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-reconcile/internal/model"
)

const cacheKeyPrefix = "reconcile:source:"

// Cache is the subset of the redis client the payload cache needs.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// NewRedisClient connects to url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "source: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "source: redis ping")
	}
	return client, nil
}

// Cached memoizes another adapter's successful lookups in redis for ttl.
// Cache failures fall through to the wrapped adapter; failed lookups are
// never cached.
type Cached struct {
	inner Adapter
	cache Cache
	ttl   time.Duration
}

// NewCached wraps inner with a redis payload cache.
func NewCached(inner Adapter, cache Cache, ttl time.Duration) *Cached {
	return &Cached{inner: inner, cache: cache, ttl: ttl}
}

func (c *Cached) Source() model.SourceID { return c.inner.Source() }

func (c *Cached) Fetch(ctx context.Context, p *model.Provider) (Record, error) {
	key := cacheKey(c.inner.Source(), p.ExternalID)

	raw, err := c.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		var rec Record
		if jerr := json.Unmarshal([]byte(raw), &rec); jerr == nil {
			return rec, nil
		}
		zap.L().Debug("source: discarding malformed cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		zap.L().Debug("source: cache read failed", zap.String("key", key), zap.Error(err))
	}

	rec, err := c.inner.Fetch(ctx, p)
	if err != nil {
		return nil, err
	}

	if data, jerr := json.Marshal(rec); jerr == nil {
		if serr := c.cache.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			zap.L().Debug("source: cache write failed", zap.String("key", key), zap.Error(serr))
		}
	}
	return rec, nil
}

func cacheKey(src model.SourceID, externalID string) string {
	return cacheKeyPrefix + string(src) + ":" + externalID
}
