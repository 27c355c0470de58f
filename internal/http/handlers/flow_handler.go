// README: Flow handler. Lists the catalogue and invokes flows through the trip planner.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tripflow/internal/flow"
	"tripflow/internal/http/middleware"
)

// Planner runs one flow for a caller. *service.TripPlanner satisfies it.
type Planner interface {
	Plan(ctx context.Context, uid, name string, raw map[string]string) (flow.Result, error)
}

type FlowHandler struct {
	planner  Planner
	registry *flow.Registry
	timeout  time.Duration
}

// NewFlowHandler creates a handler. A zero timeout leaves the request context as the only deadline.
func NewFlowHandler(planner Planner, registry *flow.Registry, timeout time.Duration) *FlowHandler {
	return &FlowHandler{planner: planner, registry: registry, timeout: timeout}
}

type fieldView struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required"`
	Default     string   `json:"default,omitempty"`
	MinLength   int      `json:"min_length,omitempty"`
	MaxLength   int      `json:"max_length,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Values      []string `json:"values,omitempty"`
}

type flowView struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Input       []fieldView `json:"input"`
	Output      []fieldView `json:"output"`
}

func viewSchema(s flow.Schema) []fieldView {
	out := make([]fieldView, 0, len(s))
	for _, f := range s {
		out = append(out, fieldView{
			Name:        f.Name,
			Type:        string(f.Type),
			Description: f.Description,
			Required:    f.Required,
			Default:     f.Default,
			MinLength:   f.MinLength,
			MaxLength:   f.MaxLength,
			Min:         f.Min,
			Max:         f.Max,
			Values:      f.Values,
		})
	}
	return out
}

// List handles GET /api/flows.
func (h *FlowHandler) List(c *gin.Context) {
	specs := h.registry.Specs()
	flows := make([]flowView, 0, len(specs))
	for _, s := range specs {
		flows = append(flows, flowView{
			Name:        s.Name,
			Description: s.Description,
			Input:       viewSchema(s.Input),
			Output:      viewSchema(s.Output),
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"flows": flows})
}

// Invoke handles POST /api/flows/:name.
func (h *FlowHandler) Invoke(c *gin.Context) {
	name := c.Param("name")
	if _, ok := h.registry.Lookup(name); !ok {
		writeError(c, http.StatusNotFound, fmt.Sprintf("unknown flow %q", name))
		return
	}

	raw, err := readInput(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.planner.Plan(ctx, middleware.CallerUID(c), name, raw)
	if err != nil {
		writePlanError(c, err)
		return
	}
	writeFlowResult(c, res)
}

// readInput accepts a JSON object or a form body and flattens it to text values.
func readInput(c *gin.Context) (map[string]string, error) {
	ct := c.ContentType()
	if ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data" {
		if err := c.Request.ParseMultipartForm(1 << 20); err != nil && err != http.ErrNotMultipart {
			return nil, errors.New("invalid form")
		}
		raw := make(map[string]string, len(c.Request.PostForm))
		for k, vs := range c.Request.PostForm {
			raw[k] = strings.Join(vs, ", ")
		}
		return raw, nil
	}

	var body map[string]any
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, errors.New("invalid json")
	}
	raw := make(map[string]string, len(body))
	for k, v := range body {
		s, ok := textOf(v)
		if !ok {
			return nil, fmt.Errorf("field %s must be a string, number or list", k)
		}
		raw[k] = s
	}
	return raw, nil
}

func textOf(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := textOf(item)
			if !ok {
				return "", false
			}
			if _, nested := item.([]any); nested {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ", "), true
	}
	return "", false
}
