package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripflow/internal/flow"
	"tripflow/internal/http/handlers"
	"tripflow/internal/modules/aiusage"
	"tripflow/internal/service"
	"tripflow/internal/travel"
)

type fakeQuota struct {
	left     int
	usageErr error
}

func (q *fakeQuota) Usage(_ context.Context, uid string) (aiusage.Usage, error) {
	if q.usageErr != nil {
		return aiusage.Usage{}, q.usageErr
	}
	return aiusage.Usage{UID: uid, TokensRemaining: q.left, Month: "2026-10"}, nil
}

func (q *fakeQuota) UseToken(context.Context, string) error {
	if q.left == 0 {
		return aiusage.ErrInsufficientTokens
	}
	q.left--
	return nil
}

func (q *fakeQuota) Refund(context.Context, string) error {
	q.left++
	return nil
}

func newTestRouter(t *testing.T, gw flow.Gateway, opts ...service.Option) (*gin.Engine, *atomic.Int32) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var calls atomic.Int32
	counted := flow.GatewayFunc(func(ctx context.Context, req flow.GatewayRequest) (map[string]any, error) {
		calls.Add(1)
		return gw.Generate(ctx, req)
	})

	reg, err := travel.NewRegistry()
	require.NoError(t, err)
	inv := flow.NewInvoker(reg, counted, flow.WithLogger(logger), flow.WithTimeout(200*time.Millisecond))
	base := []service.Option{service.WithLogger(logger), service.WithRetries(0)}
	planner := service.NewTripPlanner(inv, append(base, opts...)...)

	return NewRouter(RouterDeps{
		Planner:  planner,
		Registry: reg,
		Timeout:  time.Second,
		Logger:   logger,
		MCP: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	}), &calls
}

func reply(out map[string]any, err error) flow.Gateway {
	return flow.GatewayFunc(func(context.Context, flow.GatewayRequest) (map[string]any, error) {
		return out, err
	})
}

func do(r *gin.Engine, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, reply(nil, nil))
	w := do(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestListFlows(t *testing.T) {
	r, _ := newTestRouter(t, reply(nil, nil))
	w := do(r, http.MethodGet, "/api/flows", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Flows []struct {
			Name  string `json:"name"`
			Input []struct {
				Name     string `json:"name"`
				Required bool   `json:"required"`
			} `json:"input"`
		} `json:"flows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Flows, 5)
	assert.Equal(t, travel.FlowAdaptItinerary, body.Flows[0].Name)
}

func TestInvoke_Success(t *testing.T) {
	r, calls := newTestRouter(t, reply(map[string]any{"response": "Hello traveller"}, nil))
	w := do(r, http.MethodPost, "/api/flows/chat", `{"message":"hi"}`, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"response":"Hello traveller"}`, jsonField(t, w, "output"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvoke_FormBody(t *testing.T) {
	r, _ := newTestRouter(t, reply(map[string]any{"activities": []any{"Boat ride"}}, nil))
	form := url.Values{"location": {"Udaipur"}, "interests": {"lakes"}}
	req := httptest.NewRequest(http.MethodPost, "/api/flows/suggestActivities", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"activities":["Boat ride"]}`, jsonField(t, w, "output"))
}

func TestInvoke_ValidationFailure(t *testing.T) {
	r, calls := newTestRouter(t, reply(nil, nil))
	w := do(r, http.MethodPost, "/api/flows/generateItinerary", `{"destination":"Goa","duration":0}`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "validation failed", body.Error)
	assert.Contains(t, body.Fields, "budget")
	assert.Contains(t, body.Fields, "interests")
	assert.Contains(t, body.Fields, "duration")
	assert.Zero(t, calls.Load())
}

func TestInvoke_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "rate limited", err: flow.NewGatewayError(flow.KindRateLimited, io.EOF), want: http.StatusTooManyRequests},
		{name: "timeout", err: flow.NewGatewayError(flow.KindTimeout, io.EOF), want: http.StatusGatewayTimeout},
		{name: "transport", err: io.ErrUnexpectedEOF, want: http.StatusBadGateway},
		{name: "unsatisfiable", err: flow.NewGatewayError(flow.KindSchemaUnsatisfiable, io.EOF), want: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(t, reply(nil, tt.err))
			w := do(r, http.MethodPost, "/api/flows/chat", `{"message":"hi"}`, nil)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "Sorry, I could not process your message. Please try again.", jsonField(t, w, "error"))
		})
	}
}

func TestInvoke_UnknownFlowAndBadJSON(t *testing.T) {
	r, _ := newTestRouter(t, reply(nil, nil))
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/flows/bookFlight", `{}`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/flows/chat", `{"message":`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/flows/chat", `{"message":{"a":1}}`, nil).Code)
}

func TestInvoke_Quota(t *testing.T) {
	q := &fakeQuota{left: 1}
	r, calls := newTestRouter(t, reply(map[string]any{"response": "ok"}, nil), service.WithQuota(q))
	hdr := map[string]string{"X-User-ID": "traveller-1"}

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/flows/chat", `{"message":"hi"}`, hdr).Code)
	w := do(r, http.MethodPost, "/api/flows/chat", `{"message":"hi"}`, hdr)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, int32(1), calls.Load())

	// anonymous callers are not metered
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/flows/chat", `{"message":"hi"}`, nil).Code)
}

func TestUsage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg, err := travel.NewRegistry()
	require.NoError(t, err)
	newRouter := func(usage handlers.UsageReader) *gin.Engine {
		return NewRouter(RouterDeps{Registry: reg, Usage: usage, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	}
	hdr := map[string]string{"X-User-ID": "traveller-1"}

	r := newRouter(&fakeQuota{left: 7})
	w := do(r, http.MethodGet, "/api/usage", "", hdr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":"traveller-1","tokens_remaining":7,"month":"2026-10"}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/usage", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing X-User-ID", jsonField(t, w, "error"))

	w = do(r, http.MethodGet, "/api/usage", "", map[string]string{"X-User-ID": "not valid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(newRouter(&fakeQuota{usageErr: errors.New("db down")}), http.MethodGet, "/api/usage", "", hdr)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(newRouter(nil), http.MethodGet, "/api/usage", "", hdr)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMCPMounted(t *testing.T) {
	r, _ := newTestRouter(t, reply(nil, nil))
	w := do(r, http.MethodGet, "/mcp/sse", "", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func jsonField(t *testing.T, w *httptest.ResponseRecorder, key string) string {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	raw, ok := body[key]
	require.True(t, ok, "missing %q in %s", key, w.Body.String())
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
