// README: Travel flow catalogue. Registers the itinerary, adaptation, recommendation, activity and chat flows.
package travel

import (
	_ "embed"
	"fmt"

	"tripflow/internal/flow"
)

const (
	FlowGenerateItinerary = "generateItinerary"
	FlowAdaptItinerary    = "adaptItinerary"
	FlowRecommend         = "recommendAccommodationAndTransport"
	FlowSuggestActivities = "suggestActivities"
	FlowChat              = "chat"
)

// Languages lists the supported response language codes.
var Languages = []string{"en", "hi", "ta"}

// DefaultLanguage answers in Hindi unless the caller picks another code.
const DefaultLanguage = "hi"

//go:embed flows.yaml
var catalogue []byte

// Definitions returns the embedded travel flow definitions.
func Definitions() ([]flow.Definition, error) {
	return flow.LoadDefinitions(catalogue)
}

// Register adds every travel flow to r.
func Register(r *flow.Registry) error {
	defs, err := Definitions()
	if err != nil {
		return err
	}
	if err := r.RegisterAll(defs); err != nil {
		return fmt.Errorf("register travel flows: %w", err)
	}
	return nil
}

// NewRegistry returns a registry holding the travel flows.
func NewRegistry() (*flow.Registry, error) {
	r := flow.NewRegistry()
	if err := Register(r); err != nil {
		return nil, err
	}
	return r, nil
}
