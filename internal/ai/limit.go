// README: Bounds concurrent gateway calls with a weighted semaphore.
package ai

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"tripflow/internal/flow"
)

// Limit caps in-flight calls to the wrapped gateway. Waiting for a slot respects ctx.
type Limit struct {
	next flow.Gateway
	sem  *semaphore.Weighted
}

func NewLimit(next flow.Gateway, maxConcurrent int64) *Limit {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limit{next: next, sem: semaphore.NewWeighted(maxConcurrent)}
}

func (l *Limit) Generate(ctx context.Context, req flow.GatewayRequest) (map[string]any, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, flow.NewGatewayError(flow.KindTimeout, err)
		}
		return nil, err
	}
	defer l.sem.Release(1)
	return l.next.Generate(ctx, req)
}
