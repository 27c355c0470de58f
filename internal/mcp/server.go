// README: MCP tool surface. Every registered flow is exposed as one tool served over SSE.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"tripflow/internal/flow"
	"tripflow/internal/modules/aiusage"
)

const (
	serverName    = "tripflow"
	serverVersion = "1.0.0"
	userIDHeader  = "X-User-ID"
)

// Planner runs one flow for a caller. *service.TripPlanner satisfies it.
type Planner interface {
	Plan(ctx context.Context, uid, name string, raw map[string]string) (flow.Result, error)
}

type Server struct {
	mcpServer *server.MCPServer
	planner   Planner
}

func NewServer(planner Planner, registry *flow.Registry) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(true)),
		planner:   planner,
	}
	for _, spec := range registry.Specs() {
		s.mcpServer.AddTool(toolFor(spec), s.handlerFor(spec.Name))
	}
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// Handler serves the SSE transport under basePath (e.g. "/mcp").
func (s *Server) Handler(basePath string) http.Handler {
	return server.NewSSEServer(s.mcpServer, server.WithStaticBasePath(basePath))
}

func toolFor(spec *flow.Spec) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(toolDescription(spec))}
	for _, f := range spec.Input {
		props := []mcp.PropertyOption{mcp.Description(fieldDescription(f))}
		if f.Required {
			props = append(props, mcp.Required())
		}
		switch f.Type {
		case flow.TypeNumber:
			if f.Min != nil {
				props = append(props, mcp.Min(*f.Min))
			}
			if f.Max != nil {
				props = append(props, mcp.Max(*f.Max))
			}
			opts = append(opts, mcp.WithNumber(f.Name, props...))
		case flow.TypeEnum:
			props = append(props, mcp.Enum(f.Values...))
			if f.Default != "" {
				props = append(props, mcp.DefaultString(f.Default))
			}
			opts = append(opts, mcp.WithString(f.Name, props...))
		default:
			if f.Type == flow.TypeString && f.MaxLength > 0 {
				props = append(props, mcp.MaxLength(f.MaxLength))
			}
			opts = append(opts, mcp.WithString(f.Name, props...))
		}
	}
	return mcp.NewTool(spec.Name, opts...)
}

func toolDescription(spec *flow.Spec) string {
	if spec.Description != "" {
		return spec.Description
	}
	return "Runs the " + spec.Name + " flow"
}

func fieldDescription(f flow.Field) string {
	desc := f.Description
	if desc == "" {
		desc = f.Name
	}
	switch f.Type {
	case flow.TypeEnum:
		desc += " (one of: " + strings.Join(f.Values, ", ") + ")"
	case flow.TypeList:
		desc += " (comma-separated)"
	}
	return desc
}

func (s *Server) handlerFor(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := arguments(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var uid string
		if request.Header != nil {
			uid = strings.TrimSpace(request.Header.Get(userIDHeader))
		}
		if uid != "" && !aiusage.ValidUID(uid) {
			return mcp.NewToolResultError("invalid " + userIDHeader), nil
		}

		res, err := s.planner.Plan(ctx, uid, name, raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !res.Succeeded() {
			return mcp.NewToolResultError(failureText(res.Failure)), nil
		}

		jsonBytes, err := json.Marshal(res.Output)
		if err != nil {
			return nil, fmt.Errorf("encode %s output: %w", name, err)
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}
}

func failureText(f *flow.Failure) string {
	if f.Kind != flow.FailValidation || len(f.Violations) == 0 {
		return f.Message
	}
	msgs := make([]string, 0, len(f.Violations))
	for _, v := range f.Violations {
		msgs = append(msgs, v.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func arguments(args map[string]any) (map[string]string, error) {
	raw := make(map[string]string, len(args))
	for k, v := range args {
		switch t := v.(type) {
		case nil:
		case string:
			raw[k] = t
		case float64:
			raw[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			raw[k] = strconv.FormatBool(t)
		case []any:
			parts := make([]string, 0, len(t))
			for _, item := range t {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%s must be a list of strings", k)
				}
				parts = append(parts, s)
			}
			raw[k] = strings.Join(parts, ", ")
		default:
			return nil, fmt.Errorf("%s has an unsupported type", k)
		}
	}
	return raw, nil
}
