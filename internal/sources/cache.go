package sources

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "asnwall:prefixes:"

// Cached keeps successful per-ASN results of another source in Redis.
// Redis failures fall through to the wrapped source.
type Cached struct {
	inner  Source
	client redis.Cmdable
	ttl    time.Duration
}

func NewCached(inner Source, client redis.Cmdable, ttl time.Duration) *Cached {
	return &Cached{inner: inner, client: client, ttl: ttl}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) FetchPrefixes(ctx context.Context, asn string) (Prefixes, error) {
	key := cacheKey(c.inner.Name(), asn)

	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached Prefixes
		if jsonErr := json.Unmarshal(payload, &cached); jsonErr == nil {
			log.Debug("Prefix cache hit", "source", c.Name(), "asn", asn)
			return cached, nil
		}
		log.Warn("Discarding corrupt cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		log.Warn("Prefix cache read failed", "key", key, "error", err)
	}

	prefixes, err := c.inner.FetchPrefixes(ctx, asn)
	if err != nil {
		return Prefixes{}, err
	}

	data, err := json.Marshal(prefixes)
	if err != nil {
		log.Warn("Prefix cache encode failed", "key", key, "error", err)
		return prefixes, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warn("Prefix cache write failed", "key", key, "error", err)
	}
	return prefixes, nil
}

func cacheKey(source, asn string) string {
	return cacheKeyPrefix + source + ":" + asn
}
