// README: OpenAI gateway. Chat completions with a strict json_schema response format.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"tripflow/internal/flow"
)

const (
	DefaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultOpenAIModel    = "gpt-4o-mini"
)

type OpenAIConfig struct {
	APIKey   string
	Model    string
	Endpoint string
	// HTTPClient defaults to a client with a 60s timeout; ctx cancellation is still honoured.
	HTTPClient *http.Client
}

type OpenAIGateway struct {
	apiKey   string
	model    string
	endpoint string
	http     *http.Client
}

func NewOpenAIGateway(cfg OpenAIConfig) (*OpenAIGateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai: missing api key")
	}
	g := &OpenAIGateway{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: cfg.Endpoint,
		http:     cfg.HTTPClient,
	}
	if g.model == "" {
		g.model = DefaultOpenAIModel
	}
	if g.endpoint == "" {
		g.endpoint = DefaultOpenAIEndpoint
	}
	if g.http == nil {
		g.http = &http.Client{Timeout: 60 * time.Second}
	}
	return g, nil
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string  `json:"content"`
			Refusal *string `json:"refusal,omitempty"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (g *OpenAIGateway) Generate(ctx context.Context, req flow.GatewayRequest) (map[string]any, error) {
	body, err := json.Marshal(chatRequest{
		Model:    g.model,
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   req.Flow,
				Strict: true,
				Schema: openAISchema(req.Output),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, fmt.Errorf("openai: read response: %w", err))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil && resp.StatusCode == http.StatusOK {
		return nil, flow.NewGatewayError(flow.KindTransport, fmt.Errorf("openai: unmarshal response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if cr.Error != nil {
			msg = cr.Error.Message
		}
		return nil, flow.NewGatewayError(kindForHTTPStatus(resp.StatusCode), fmt.Errorf("openai: api error: %s", msg))
	}
	if len(cr.Choices) == 0 {
		return nil, flow.NewGatewayError(flow.KindSchemaUnsatisfiable, errors.New("openai: API returned empty choices array"))
	}

	choice := cr.Choices[0]
	if choice.Message.Refusal != nil && *choice.Message.Refusal != "" {
		return nil, flow.NewGatewayError(flow.KindSchemaUnsatisfiable, fmt.Errorf("openai: refused: %s", *choice.Message.Refusal))
	}
	if choice.FinishReason == "length" || choice.FinishReason == "content_filter" {
		return nil, flow.NewGatewayError(flow.KindSchemaUnsatisfiable, fmt.Errorf("openai: finish reason %s", choice.FinishReason))
	}
	return decodeObject(choice.Message.Content)
}

// openAISchema builds a strict JSON schema. Strict mode needs every property listed as required,
// so optional fields are made nullable instead.
func openAISchema(s flow.Schema) map[string]any {
	props := make(map[string]any, len(s))
	required := make([]string, 0, len(s))
	for _, f := range s {
		var prop map[string]any
		switch f.Type {
		case flow.TypeNumber:
			prop = map[string]any{"type": "number"}
		case flow.TypeList:
			prop = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
		case flow.TypeEnum:
			prop = map[string]any{"type": "string", "enum": f.Values}
		default:
			prop = map[string]any{"type": "string"}
		}
		if !f.Required {
			prop["type"] = []any{prop["type"], "null"}
		}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		props[f.Name] = prop
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return flow.NewGatewayError(flow.KindTimeout, err)
		}
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return flow.NewGatewayError(flow.KindTimeout, err)
	}
	return flow.NewGatewayError(flow.KindTransport, err)
}
