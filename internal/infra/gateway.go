// README: Model gateway assembly. Picks the configured backend and stacks the concurrency limit and cache on it.
package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"tripflow/internal/ai"
	"tripflow/internal/config"
	"tripflow/internal/flow"
)

// NewGateway returns the gateway for cfg and a close func for the backend client.
// rdb may be nil, in which case results are not cached.
func NewGateway(ctx context.Context, cfg config.Config, rdb redis.Cmdable, logger *slog.Logger) (flow.Gateway, func() error, error) {
	var (
		backend flow.Gateway
		closeFn = func() error { return nil }
	)

	switch cfg.Gateway.Provider {
	case "gemini":
		g, err := ai.NewGeminiGateway(ctx, ai.GeminiConfig{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			Temperature: cfg.Gemini.Temperature,
		})
		if err != nil {
			return nil, nil, err
		}
		backend, closeFn = g, g.Close
	case "openai":
		g, err := ai.NewOpenAIGateway(ai.OpenAIConfig{
			APIKey:   cfg.OpenAI.APIKey,
			Model:    cfg.OpenAI.Model,
			Endpoint: cfg.OpenAI.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		backend = g
	default:
		return nil, nil, fmt.Errorf("unknown gateway provider %q", cfg.Gateway.Provider)
	}

	gw := flow.Gateway(ai.NewLimit(backend, int64(cfg.Gateway.MaxConcurrency)))
	if rdb != nil && cfg.Cache.TTL > 0 {
		gw = ai.NewCache(gw, rdb, cfg.Cache.TTL, logger)
	}
	logger.Info("model gateway ready",
		"provider", cfg.Gateway.Provider,
		"max_concurrency", cfg.Gateway.MaxConcurrency,
		"cache", rdb != nil && cfg.Cache.TTL > 0,
	)
	return gw, closeFn, nil
}
