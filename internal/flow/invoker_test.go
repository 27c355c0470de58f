package flow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway echoes the rendered prompt into the "result" field and counts calls.
type stubGateway struct {
	calls atomic.Int32
	out   map[string]any
	err   error
	delay time.Duration
}

func (g *stubGateway) Generate(ctx context.Context, req GatewayRequest) (map[string]any, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if g.err != nil {
		return nil, g.err
	}
	if g.out != nil {
		return g.out, nil
	}
	return map[string]any{"result": req.Prompt}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEchoInvoker(t *testing.T, gw Gateway, opts ...InvokerOption) *Invoker {
	t.Helper()
	r := NewRegistry()
	err := r.Register("echoItinerary",
		Schema{{Name: "itinerary", Type: TypeString, Required: true}},
		Schema{{Name: "result", Type: TypeString, Required: true}},
		"Echo: {{itinerary}}",
		WithFailureMessage("Failed to echo itinerary. Please try again."),
	)
	require.NoError(t, err)
	return NewInvoker(r, gw, append([]InvokerOption{WithLogger(quietLogger())}, opts...)...)
}

func TestInvoke_EchoItinerary(t *testing.T) {
	gw := &stubGateway{}
	inv := newEchoInvoker(t, gw)

	res := inv.Invoke(context.Background(), "echoItinerary", map[string]string{"itinerary": "Paris trip"})
	require.True(t, res.Succeeded(), "failure: %v", res.Err())
	assert.Equal(t, map[string]any{"result": "Echo: Paris trip"}, res.Output)
	assert.NotEmpty(t, res.ID)

	res = inv.Invoke(context.Background(), "echoItinerary", map[string]string{})
	require.False(t, res.Succeeded())
	assert.Equal(t, FailValidation, res.Failure.Kind)
	assert.Equal(t, StateValidating, res.Failure.Stage)
	require.Len(t, res.Failure.Violations, 1)
	assert.Equal(t, "itinerary", res.Failure.Violations[0].Field)
	assert.Equal(t, MissingField, res.Failure.Violations[0].Reason)
	assert.Nil(t, res.Output)

	assert.Equal(t, int32(1), gw.calls.Load())
}

func TestInvoke_InvalidInputNeverCallsGateway(t *testing.T) {
	gw := &stubGateway{}
	inv := newEchoInvoker(t, gw)

	for i := 0; i < 5; i++ {
		res := inv.Invoke(context.Background(), "echoItinerary", map[string]string{"other": "x"})
		assert.Equal(t, FailValidation, res.Failure.Kind)
	}
	assert.Zero(t, gw.calls.Load())
}

func TestInvoke_UnknownFlow(t *testing.T) {
	inv := newEchoInvoker(t, &stubGateway{})

	res := inv.Invoke(context.Background(), "nope", nil)
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailUnknownFlow, res.Failure.Kind)
	assert.ErrorIs(t, res.Err(), ErrUnknownFlow)
}

func TestInvoke_Idempotent(t *testing.T) {
	inv := newEchoInvoker(t, &stubGateway{})
	in := map[string]string{"itinerary": "Rome"}

	first := inv.Invoke(context.Background(), "echoItinerary", in)
	second := inv.Invoke(context.Background(), "echoItinerary", in)
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, first.Output, second.Output)
}

func TestInvoke_GatewayErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{name: "rate limited", err: NewGatewayError(KindRateLimited, errors.New("429")), want: FailRateLimited},
		{name: "transport", err: errors.New("connection refused"), want: FailTransport},
		{name: "unsatisfiable", err: NewGatewayError(KindSchemaUnsatisfiable, errors.New("blocked")), want: FailSchemaUnsatisfiable},
		{name: "deadline from gateway", err: context.DeadlineExceeded, want: FailTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := newEchoInvoker(t, &stubGateway{err: tt.err})

			res := inv.Invoke(context.Background(), "echoItinerary", map[string]string{"itinerary": "x"})
			require.NotNil(t, res.Failure)
			assert.Equal(t, tt.want, res.Failure.Kind)
			assert.Equal(t, StateCalling, res.Failure.Stage)
			assert.Equal(t, "Failed to echo itinerary. Please try again.", res.Failure.Message)
		})
	}
}

func TestInvoke_NonConformingOutput(t *testing.T) {
	inv := newEchoInvoker(t, &stubGateway{out: map[string]any{"answer": "wrong field"}})

	res := inv.Invoke(context.Background(), "echoItinerary", map[string]string{"itinerary": "x"})
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailSchemaUnsatisfiable, res.Failure.Kind)
	assert.Equal(t, StateParsingOutput, res.Failure.Stage)
	require.Len(t, res.Failure.Violations, 1)
	assert.Equal(t, "result", res.Failure.Violations[0].Field)
}

func TestInvoke_OutputDropsUndeclaredFields(t *testing.T) {
	inv := newEchoInvoker(t, &stubGateway{out: map[string]any{"result": "ok", "extra": 1}})

	res := inv.Invoke(context.Background(), "echoItinerary", map[string]string{"itinerary": "x"})
	require.True(t, res.Succeeded())
	assert.Equal(t, map[string]any{"result": "ok"}, res.Output)
}

func TestInvoke_Timeout(t *testing.T) {
	gw := &stubGateway{delay: 500 * time.Millisecond}
	inv := newEchoInvoker(t, gw, WithTimeout(20*time.Millisecond))

	start := time.Now()
	res := inv.Invoke(context.Background(), "echoItinerary", map[string]string{"itinerary": "x"})
	assert.Less(t, time.Since(start), 400*time.Millisecond)

	require.NotNil(t, res.Failure)
	assert.Equal(t, FailTimeout, res.Failure.Kind)
	assert.Nil(t, res.Output)
}

func TestInvoke_UnwrappedErrorAfterDeadlineIsTimeout(t *testing.T) {
	gw := GatewayFunc(func(ctx context.Context, req GatewayRequest) (map[string]any, error) {
		<-ctx.Done()
		return nil, errors.New("upstream: " + ctx.Err().Error())
	})
	inv := newEchoInvoker(t, gw, WithTimeout(10*time.Millisecond))

	for i := 0; i < 20; i++ {
		res := inv.Invoke(context.Background(), "echoItinerary", map[string]string{"itinerary": "x"})
		require.NotNil(t, res.Failure)
		assert.Equal(t, FailTimeout, res.Failure.Kind)
	}
}

func TestInvoke_CancelledBeforeCall(t *testing.T) {
	gw := &stubGateway{}
	inv := newEchoInvoker(t, gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := inv.Invoke(ctx, "echoItinerary", map[string]string{"itinerary": "x"})
	require.NotNil(t, res.Failure)
	assert.Equal(t, FailCancelled, res.Failure.Kind)
	assert.Zero(t, gw.calls.Load())
}

func TestInvoke_CancelledDuringCallDiscardsLateResult(t *testing.T) {
	gw := &stubGateway{delay: 300 * time.Millisecond}
	inv := newEchoInvoker(t, gw)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := inv.Invoke(ctx, "echoItinerary", map[string]string{"itinerary": "x"})
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.False(t, res.Succeeded())
	assert.Equal(t, FailCancelled, res.Failure.Kind)
	assert.Nil(t, res.Output)
}

func TestInvoke_Concurrent(t *testing.T) {
	gw := &stubGateway{}
	inv := newEchoInvoker(t, gw)

	const n = 32
	results := make(chan Result, n)
	for i := 0; i < n; i++ {
		go func() {
			results <- inv.Invoke(context.Background(), "echoItinerary", map[string]string{"itinerary": "Oslo"})
		}()
	}
	for i := 0; i < n; i++ {
		res := <-results
		assert.True(t, res.Succeeded())
		assert.Equal(t, "Echo: Oslo", res.Output["result"])
	}
	assert.Equal(t, int32(n), gw.calls.Load())
}
