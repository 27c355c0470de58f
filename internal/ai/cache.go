// README: Redis-backed response cache in front of a gateway.
package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"tripflow/internal/flow"
)

const cacheKeyPrefix = "tripflow:gen:"

// Cache serves repeated prompts from Redis. Redis failures never fail a call; they are logged
// and the wrapped gateway is used instead. Only answers that satisfy the request's output
// schema are stored.
type Cache struct {
	next   flow.Gateway
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewCache(next flow.Gateway, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *Cache) Generate(ctx context.Context, req flow.GatewayRequest) (map[string]any, error) {
	key := cacheKey(req)

	cached, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out map[string]any
		if jerr := json.Unmarshal(cached, &out); jerr == nil {
			return out, nil
		}
		c.logger.Warn("discarding corrupt cache entry", "flow", req.Flow, "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache lookup failed", "flow", req.Flow, "error", err)
	}

	out, err := c.next.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, verr := flow.Validate(req.Output, out); verr != nil {
		c.logger.Debug("not caching invalid answer", "flow", req.Flow, "error", verr)
		return out, nil
	}

	data, err := json.Marshal(out)
	if err == nil {
		err = c.rdb.Set(ctx, key, data, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("cache store failed", "flow", req.Flow, "error", err)
	}
	return out, nil
}

func cacheKey(req flow.GatewayRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Flow))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	h.Write([]byte{0})
	schema, _ := json.Marshal(req.Output)
	h.Write(schema)
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
