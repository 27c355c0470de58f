// README: Gemini gateway. Asks Gemini for a JSON object shaped by the flow's output schema.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tripflow/internal/flow"
)

const DefaultGeminiModel = "gemini-2.0-flash"

type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
}

// GeminiGateway implements flow.Gateway using Google's Gemini models.
type GeminiGateway struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiGateway initializes a Gemini client. Close releases it.
func NewGeminiGateway(ctx context.Context, cfg GeminiConfig) (*GeminiGateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: missing api key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	return &GeminiGateway{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (g *GeminiGateway) Close() error {
	return g.client.Close()
}

// Generate sends the rendered prompt with the output schema as the response schema.
func (g *GeminiGateway) Generate(ctx context.Context, req flow.GatewayRequest) (map[string]any, error) {
	model := g.client.GenerativeModel(g.model)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = geminiSchema(req.Output)
	model.SetTemperature(g.temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, classifyGeminiError(ctx, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, flow.NewGatewayError(flow.KindSchemaUnsatisfiable, errors.New("gemini: no response candidates"))
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return decodeObject(text.String())
}

// geminiSchema converts an output schema into the object schema Gemini constrains its answer to.
func geminiSchema(s flow.Schema) *genai.Schema {
	obj := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s)),
	}
	for _, f := range s {
		prop := &genai.Schema{Description: f.Description}
		switch f.Type {
		case flow.TypeNumber:
			prop.Type = genai.TypeNumber
		case flow.TypeList:
			prop.Type = genai.TypeArray
			prop.Items = &genai.Schema{Type: genai.TypeString}
		case flow.TypeEnum:
			prop.Type = genai.TypeString
			prop.Format = "enum"
			prop.Enum = f.Values
		default:
			prop.Type = genai.TypeString
		}
		obj.Properties[f.Name] = prop
		if f.Required {
			obj.Required = append(obj.Required, f.Name)
		}
	}
	return obj
}

func classifyGeminiError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return flow.NewGatewayError(flow.KindTimeout, err)
		}
		return ctx.Err()
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return flow.NewGatewayError(flow.KindSchemaUnsatisfiable, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return flow.NewGatewayError(kindForHTTPStatus(apiErr.Code), err)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return flow.NewGatewayError(flow.KindRateLimited, err)
		case codes.DeadlineExceeded:
			return flow.NewGatewayError(flow.KindTimeout, err)
		case codes.InvalidArgument, codes.FailedPrecondition:
			return flow.NewGatewayError(flow.KindSchemaUnsatisfiable, err)
		}
	}
	return flow.NewGatewayError(flow.KindTransport, err)
}

func kindForHTTPStatus(code int) flow.GatewayKind {
	switch {
	case code == http.StatusTooManyRequests:
		return flow.KindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return flow.KindTimeout
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return flow.KindSchemaUnsatisfiable
	default:
		return flow.KindTransport
	}
}
