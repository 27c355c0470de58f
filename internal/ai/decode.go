// README: Shared response decoding for model gateways.
package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"tripflow/internal/flow"
)

// decodeObject parses a model's JSON answer. Anything that is not a JSON object is unsatisfiable.
func decodeObject(raw string) (map[string]any, error) {
	clean := cleanJSONString(raw)
	if clean == "" {
		return nil, flow.NewGatewayError(flow.KindSchemaUnsatisfiable, fmt.Errorf("empty response"))
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, flow.NewGatewayError(flow.KindSchemaUnsatisfiable, fmt.Errorf("failed to parse JSON response: %w", err))
	}
	if out == nil {
		return nil, flow.NewGatewayError(flow.KindSchemaUnsatisfiable, fmt.Errorf("response is not an object"))
	}
	return out, nil
}

// cleanJSONString removes markdown code fences if present (e.g. ```json ... ```).
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
