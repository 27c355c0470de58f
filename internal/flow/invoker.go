// README: Flow invoker. Runs one call through validate, render, gateway and output validation.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTimeout = 30 * time.Second

// State is a stage of one invocation.
type State string

const (
	StateReceived      State = "received"
	StateValidating    State = "validating"
	StateRendering     State = "rendering"
	StateCalling       State = "calling"
	StateParsingOutput State = "parsing_output"
	StateSucceeded     State = "succeeded"
	StateFailed        State = "failed"
)

// FailureKind classifies a failed invocation.
type FailureKind string

const (
	FailUnknownFlow         FailureKind = "unknown_flow"
	FailValidation          FailureKind = "validation"
	FailConfiguration       FailureKind = "configuration"
	FailTransport           FailureKind = FailureKind(KindTransport)
	FailTimeout             FailureKind = FailureKind(KindTimeout)
	FailRateLimited         FailureKind = FailureKind(KindRateLimited)
	FailSchemaUnsatisfiable FailureKind = FailureKind(KindSchemaUnsatisfiable)
	FailCancelled           FailureKind = "cancelled"
)

// Failure describes why an invocation did not succeed.
// Message is safe to show to end users; Err keeps the underlying cause for logs.
type Failure struct {
	Kind       FailureKind
	Stage      State
	Message    string
	Violations []Violation
	Err        error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s at %s: %v", f.Kind, f.Stage, f.Err)
	}
	return fmt.Sprintf("%s at %s: %s", f.Kind, f.Stage, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// Result is the outcome of one invocation: Output is set when it succeeded, Failure otherwise.
type Result struct {
	ID      string
	Flow    string
	State   State
	Output  map[string]any
	Failure *Failure
	Latency time.Duration
}

func (r Result) Succeeded() bool { return r.State == StateSucceeded && r.Failure == nil }

// Err returns the failure as an error, or nil on success.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

type InvokerOption func(*Invoker)

// WithTimeout bounds every gateway call. Zero disables the bound; a ctx deadline still applies.
func WithTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) { i.timeout = d }
}

func WithLogger(l *slog.Logger) InvokerOption {
	return func(i *Invoker) { i.logger = l }
}

func WithTracer(t trace.Tracer) InvokerOption {
	return func(i *Invoker) { i.tracer = t }
}

type Invoker struct {
	registry *Registry
	gateway  Gateway
	timeout  time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewInvoker seals registry and binds it to gateway.
func NewInvoker(registry *Registry, gateway Gateway, opts ...InvokerOption) *Invoker {
	registry.Seal()
	inv := &Invoker{
		registry: registry,
		gateway:  gateway,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		tracer:   otel.Tracer("tripflow/flow"),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

func (inv *Invoker) Registry() *Registry { return inv.registry }

// Invoke runs the named flow once with raw textual input. It never panics on bad input
// and never returns a partial output.
func (inv *Invoker) Invoke(ctx context.Context, name string, raw map[string]string) Result {
	start := time.Now()
	res := Result{ID: uuid.NewString(), Flow: name, State: StateReceived}

	ctx, span := inv.tracer.Start(ctx, "flow.invoke", trace.WithAttributes(
		attribute.String("flow.name", name),
		attribute.String("flow.invocation_id", res.ID),
	))
	defer span.End()

	res = inv.run(ctx, name, raw, res)
	res.Latency = time.Since(start)
	inv.record(span, res)
	return res
}

func (inv *Invoker) run(ctx context.Context, name string, raw map[string]string, res Result) Result {
	spec, ok := inv.registry.Lookup(name)
	if !ok {
		return failed(res, &Failure{
			Kind:    FailUnknownFlow,
			Stage:   StateReceived,
			Message: fmt.Sprintf("unknown flow %q", name),
			Err:     fmt.Errorf("%w: %q", ErrUnknownFlow, name),
		})
	}

	res.State = StateValidating
	values, err := ValidateInput(spec.Input, raw)
	if err != nil {
		f := &Failure{Kind: FailValidation, Stage: StateValidating, Message: "validation failed", Err: err}
		if ve, ok := AsValidationError(err); ok {
			f.Violations = ve.Violations
		}
		return failed(res, f)
	}

	res.State = StateRendering
	if spec.Template == nil {
		return failed(res, &Failure{
			Kind:    FailConfiguration,
			Stage:   StateRendering,
			Message: spec.FailureMessage,
			Err:     fmt.Errorf("flow %q has no template", name),
		})
	}
	prompt := spec.Template.Render(values)

	res.State = StateCalling
	if err := ctx.Err(); err != nil {
		return failed(res, contextFailure(StateCalling, spec, err))
	}
	out, err := inv.call(ctx, spec, prompt)
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			return failed(res, f)
		}
		return failed(res, &Failure{
			Kind:    FailureKind(GatewayKindOf(err)),
			Stage:   StateCalling,
			Message: spec.FailureMessage,
			Err:     err,
		})
	}

	res.State = StateParsingOutput
	if err := ctx.Err(); err != nil {
		return failed(res, contextFailure(StateParsingOutput, spec, err))
	}
	validated, err := Validate(spec.Output, out)
	if err != nil {
		f := &Failure{Kind: FailSchemaUnsatisfiable, Stage: StateParsingOutput, Message: spec.FailureMessage, Err: err}
		if ve, ok := AsValidationError(err); ok {
			f.Violations = ve.Violations
		}
		return failed(res, f)
	}

	res.State = StateSucceeded
	res.Output = map[string]any(validated)
	return res
}

// call runs the gateway off the caller's goroutine so that a gateway ignoring ctx cannot
// hold the invocation past its deadline. A result arriving after that point is dropped.
func (inv *Invoker) call(ctx context.Context, spec *Spec, prompt string) (map[string]any, error) {
	callCtx := ctx
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	type reply struct {
		out map[string]any
		err error
	}
	done := make(chan reply, 1)
	req := GatewayRequest{Flow: spec.Name, Prompt: prompt, Output: spec.Output}
	go func() {
		out, err := inv.gateway.Generate(callCtx, req)
		done <- reply{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			return nil, contextFailure(StateCalling, spec, ctx.Err())
		}
		// Any error after the per-call deadline is a timeout, however the gateway worded it.
		if r.err != nil && (callCtx.Err() != nil || errors.Is(r.err, context.DeadlineExceeded)) {
			return nil, NewGatewayError(KindTimeout, r.err)
		}
		return r.out, r.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, contextFailure(StateCalling, spec, err)
		}
		return nil, NewGatewayError(KindTimeout, fmt.Errorf("no response within %s", inv.timeout))
	}
}

func contextFailure(stage State, spec *Spec, err error) *Failure {
	kind := FailCancelled
	msg := "request cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		kind = FailTimeout
		msg = spec.FailureMessage
	}
	return &Failure{Kind: kind, Stage: stage, Message: msg, Err: err}
}

func failed(res Result, f *Failure) Result {
	res.State = StateFailed
	res.Output = nil
	res.Failure = f
	return res
}

func (inv *Invoker) record(span trace.Span, res Result) {
	span.SetAttributes(attribute.String("flow.state", string(res.State)))
	if res.Succeeded() {
		span.SetStatus(codes.Ok, "")
		inv.logger.Info("flow invocation succeeded",
			"flow", res.Flow,
			"invocation_id", res.ID,
			"latency_ms", res.Latency.Milliseconds(),
		)
		return
	}

	f := res.Failure
	span.SetAttributes(
		attribute.String("flow.failure_kind", string(f.Kind)),
		attribute.String("flow.failure_stage", string(f.Stage)),
	)
	span.SetStatus(codes.Error, string(f.Kind))
	if f.Err != nil {
		span.RecordError(f.Err)
	}

	level := slog.LevelWarn
	if f.Kind == FailValidation || f.Kind == FailUnknownFlow || f.Kind == FailCancelled {
		level = slog.LevelInfo
	}
	inv.logger.Log(context.Background(), level, "flow invocation failed",
		"flow", res.Flow,
		"invocation_id", res.ID,
		"stage", f.Stage,
		"kind", f.Kind,
		"error", f.Err,
		"latency_ms", res.Latency.Milliseconds(),
	)
}
