package mcp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripflow/internal/flow"
	"tripflow/internal/travel"
)

type stubPlanner struct {
	uid  string
	name string
	raw  map[string]string
	res  flow.Result
	err  error
}

func (p *stubPlanner) Plan(_ context.Context, uid, name string, raw map[string]string) (flow.Result, error) {
	p.uid, p.name, p.raw = uid, name, raw
	return p.res, p.err
}

func newTestServer(t *testing.T, p *stubPlanner) *Server {
	t.Helper()
	reg, err := travel.NewRegistry()
	require.NoError(t, err)
	return NewServer(p, reg)
}

func callTool(t *testing.T, s *Server, name string, args map[string]any, header http.Header) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetMCPServer().GetTool(name)
	require.NotNil(t, tool, name)

	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	req.Header = header
	res, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestNewServer_OneToolPerFlow(t *testing.T) {
	s := newTestServer(t, &stubPlanner{})
	tools := s.GetMCPServer().ListTools()
	assert.Len(t, tools, 5)

	tool := s.GetMCPServer().GetTool(travel.FlowGenerateItinerary)
	require.NotNil(t, tool)
	schema := tool.Tool.InputSchema
	assert.ElementsMatch(t, []string{"destination", "budget", "interests", "duration"}, schema.Required)
	assert.Contains(t, schema.Properties, "language")
	lang, ok := schema.Properties["language"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"en", "hi", "ta"}, lang["enum"])
}

func TestToolCall_Success(t *testing.T) {
	p := &stubPlanner{res: flow.Result{State: flow.StateSucceeded, Output: map[string]any{"response": "Namaste"}}}
	s := newTestServer(t, p)

	header := http.Header{}
	header.Set("X-User-ID", "u-1")
	res := callTool(t, s, travel.FlowChat, map[string]any{"message": "hello"}, header)

	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"response":"Namaste"}`, resultText(t, res))
	assert.Equal(t, "u-1", p.uid)
	assert.Equal(t, travel.FlowChat, p.name)
	assert.Equal(t, map[string]string{"message": "hello"}, p.raw)
}

func TestToolCall_FlattensArguments(t *testing.T) {
	p := &stubPlanner{res: flow.Result{State: flow.StateSucceeded, Output: map[string]any{}}}
	s := newTestServer(t, p)

	callTool(t, s, travel.FlowGenerateItinerary, map[string]any{
		"destination": "Jaipur",
		"duration":    3.0,
		"interests":   []any{"forts", "food"},
	}, nil)
	assert.Equal(t, "3", p.raw["duration"])
	assert.Equal(t, "forts, food", p.raw["interests"])
	assert.Empty(t, p.uid)
}

func TestToolCall_Failures(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		p := &stubPlanner{res: flow.Result{State: flow.StateFailed, Failure: &flow.Failure{
			Kind:       flow.FailValidation,
			Violations: []flow.Violation{{Field: "message", Reason: flow.MissingField, Message: "message is required"}},
		}}}
		res := callTool(t, newTestServer(t, p), travel.FlowChat, map[string]any{}, nil)
		assert.True(t, res.IsError)
		assert.Equal(t, "validation failed: message is required", resultText(t, res))
	})

	t.Run("gateway", func(t *testing.T) {
		p := &stubPlanner{res: flow.Result{State: flow.StateFailed, Failure: &flow.Failure{
			Kind:    flow.FailTransport,
			Message: "Sorry, I could not process your message. Please try again.",
		}}}
		res := callTool(t, newTestServer(t, p), travel.FlowChat, map[string]any{"message": "hi"}, nil)
		assert.True(t, res.IsError)
		assert.Equal(t, "Sorry, I could not process your message. Please try again.", resultText(t, res))
	})

	t.Run("planner error", func(t *testing.T) {
		p := &stubPlanner{err: errors.New("monthly flow quota exceeded")}
		res := callTool(t, newTestServer(t, p), travel.FlowChat, map[string]any{"message": "hi"}, nil)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "quota")
	})

	t.Run("malformed user id", func(t *testing.T) {
		for _, uid := range []string{"has space", "semi;colon", strings.Repeat("a", 65)} {
			p := &stubPlanner{}
			header := http.Header{}
			header.Set("X-User-ID", uid)
			res := callTool(t, newTestServer(t, p), travel.FlowChat, map[string]any{"message": "hi"}, header)
			assert.True(t, res.IsError, uid)
			assert.Equal(t, "invalid X-User-ID", resultText(t, res))
			assert.Empty(t, p.name, "planner must not run for %q", uid)
		}
	})

	t.Run("bad argument", func(t *testing.T) {
		p := &stubPlanner{}
		res := callTool(t, newTestServer(t, p), travel.FlowChat, map[string]any{"message": map[string]any{}}, nil)
		assert.True(t, res.IsError)
		assert.Empty(t, p.name)
	})
}
