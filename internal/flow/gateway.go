// README: Model gateway contract and its typed failures.
package flow

import (
	"context"
	"errors"
	"fmt"
)

// GatewayRequest is one structured generation call.
type GatewayRequest struct {
	Flow   string
	Prompt string
	Output Schema
}

// Gateway produces a structured object for a rendered prompt. The deadline travels in ctx.
// Implementations must not retry.
type Gateway interface {
	Generate(ctx context.Context, req GatewayRequest) (map[string]any, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, req GatewayRequest) (map[string]any, error)

func (f GatewayFunc) Generate(ctx context.Context, req GatewayRequest) (map[string]any, error) {
	return f(ctx, req)
}

// GatewayKind classifies gateway failures.
type GatewayKind string

const (
	KindTransport           GatewayKind = "transport"
	KindTimeout             GatewayKind = "timeout"
	KindRateLimited         GatewayKind = "rate_limited"
	KindSchemaUnsatisfiable GatewayKind = "schema_unsatisfiable"
)

type GatewayError struct {
	Kind GatewayKind
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return "gateway " + string(e.Kind)
	}
	return fmt.Sprintf("gateway %s: %v", e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewGatewayError wraps err with kind.
func NewGatewayError(kind GatewayKind, err error) *GatewayError {
	return &GatewayError{Kind: kind, Err: err}
}

// GatewayKindOf reports the kind of a gateway failure. Context errors map to timeout,
// anything untyped to transport.
func GatewayKindOf(err error) GatewayKind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransport
}
