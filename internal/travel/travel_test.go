package travel

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripflow/internal/flow"
)

func TestNewRegistry_AllFlows(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{
		FlowAdaptItinerary,
		FlowChat,
		FlowGenerateItinerary,
		FlowRecommend,
		FlowSuggestActivities,
	}, r.List())

	for _, spec := range r.Specs() {
		assert.NotEmpty(t, spec.Description, spec.Name)
		assert.True(t, strings.HasPrefix(spec.FailureMessage, "Failed") || strings.HasPrefix(spec.FailureMessage, "Sorry"), spec.Name)
		lang, ok := spec.Input.Field("language")
		require.True(t, ok, spec.Name)
		assert.Equal(t, Languages, lang.Values)
		assert.Equal(t, DefaultLanguage, lang.Default, spec.Name)
	}
}

func TestGenerateItinerary_Prompt(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	var prompt string
	gw := flow.GatewayFunc(func(_ context.Context, req flow.GatewayRequest) (map[string]any, error) {
		prompt = req.Prompt
		return map[string]any{"itinerary": "Day 1: Fushimi Inari"}, nil
	})
	inv := flow.NewInvoker(r, gw, flow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	res := inv.Invoke(context.Background(), FlowGenerateItinerary, map[string]string{
		"destination": "Kyoto",
		"budget":      "2000 USD",
		"interests":   "temples, food",
		"duration":    "5",
	})
	require.True(t, res.Succeeded(), "failure: %v", res.Err())

	assert.Contains(t, prompt, "trip to Kyoto")
	assert.Contains(t, prompt, "Duration: 5 days")
	assert.Contains(t, prompt, "code hi")
	assert.Equal(t, "Day 1: Fushimi Inari", res.Output["itinerary"])
}

func TestGenerateItinerary_BlankLanguageUsesDefault(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	var prompt string
	gw := flow.GatewayFunc(func(_ context.Context, req flow.GatewayRequest) (map[string]any, error) {
		prompt = req.Prompt
		return map[string]any{"itinerary": "Day 1: Amber Fort"}, nil
	})
	inv := flow.NewInvoker(r, gw, flow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	res := inv.Invoke(context.Background(), FlowGenerateItinerary, map[string]string{
		"destination": "Jaipur",
		"budget":      "30000 INR",
		"interests":   "forts",
		"duration":    "2",
		"language":    "",
	})
	require.True(t, res.Succeeded(), "failure: %v", res.Err())
	assert.Contains(t, prompt, "code "+DefaultLanguage)
}

func TestGenerateItinerary_RejectsBadDuration(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	inv := flow.NewInvoker(r, flow.GatewayFunc(nil), flow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	res := inv.Invoke(context.Background(), FlowGenerateItinerary, map[string]string{
		"destination": "Kyoto",
		"budget":      "",
		"interests":   "temples",
		"duration":    "a week",
		"language":    "fr",
	})
	require.NotNil(t, res.Failure)
	assert.Equal(t, flow.FailValidation, res.Failure.Kind)

	var fields []string
	for _, v := range res.Failure.Violations {
		fields = append(fields, v.Field)
	}
	assert.Equal(t, []string{"budget", "duration", "language"}, fields)
}

func TestSuggestActivities_ListOutput(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	gw := flow.GatewayFunc(func(context.Context, flow.GatewayRequest) (map[string]any, error) {
		return map[string]any{"activities": []any{"Tea ceremony", "Nishiki market"}}, nil
	})
	inv := flow.NewInvoker(r, gw, flow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	res := inv.Invoke(context.Background(), FlowSuggestActivities, map[string]string{"location": "Kyoto", "interests": "food"})
	require.True(t, res.Succeeded(), "failure: %v", res.Err())
	assert.Equal(t, []string{"Tea ceremony", "Nishiki market"}, res.Output["activities"])
}
