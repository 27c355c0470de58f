// README: Google Places text search. Finds well-rated places near a location to ground recommendations.
package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"
)

// Place represents a simplified location result.
type Place struct {
	Name             string
	Address          string
	Rating           float32
	PlaceID          string
	UserRatingsTotal int
}

// SearchOptions refines a nearby search.
type SearchOptions struct {
	// Type restricts results to a Places type such as lodging or tourist_attraction.
	Type maps.PlaceType
	// MinRating drops results rated below it. Zero keeps everything.
	MinRating float32
	// Limit caps the number of results. Zero means 3.
	Limit int
	// ExcludeKeywords are terms that disqualify any result whose name contains them.
	ExcludeKeywords []string
}

// Common searches used by the trip planner.
var (
	LodgingSearch    = SearchOptions{Type: maps.PlaceTypeLodging, MinRating: 4.0}
	AttractionSearch = SearchOptions{Type: maps.PlaceTypeTouristAttraction, MinRating: 4.0, Limit: 5}
)

var (
	hotelWords  = []string{"hotel", "resort", "luxury", "upscale"}
	hostelWords = []string{"hostel", "dorm", "backpacker"}
)

// LodgingFor narrows LodgingSearch to the traveller's stated preferences. Asking for hotels drops
// hostels and dorms from the results unless hostels are asked for too.
func LodgingFor(preferences string) SearchOptions {
	opts := LodgingSearch
	if containsAny(preferences, hotelWords) && !containsAny(preferences, hostelWords) {
		opts.ExcludeKeywords = hostelWords
	}
	return opts
}

// PlacesService handles interactions with Google Places API.
type PlacesService struct {
	client *maps.Client
	opts   Options
}

// NewPlacesService creates a new PlacesService with the given API Key.
func NewPlacesService(apiKey string, opts Options) (*PlacesService, error) {
	client, err := newClient(apiKey, opts)
	if err != nil {
		return nil, err
	}
	return &PlacesService{client: client, opts: opts}, nil
}

// SearchNearby searches for places matching the query near the given location.
func (s *PlacesService) SearchNearby(ctx context.Context, location, query string, opts SearchOptions) ([]Place, error) {
	fullQuery := query
	if location != "" {
		fullQuery = fmt.Sprintf("%s in %s", query, location)
	}

	r := &maps.TextSearchRequest{
		Query:    fullQuery,
		Type:     opts.Type,
		Language: s.opts.Language,
		Region:   s.opts.Region,
	}

	resp, err := s.client.TextSearch(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 3
	}

	var results []Place
	for _, result := range resp.Results {
		if result.Rating < opts.MinRating {
			continue
		}
		if containsAny(result.Name, opts.ExcludeKeywords) {
			continue
		}

		results = append(results, Place{
			Name:             result.Name,
			Address:          result.FormattedAddress,
			Rating:           result.Rating,
			PlaceID:          result.PlaceID,
			UserRatingsTotal: result.UserRatingsTotal,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// DescribePlaces renders places as a single prompt line, e.g. "Hotel A (4.6), Hotel B (4.4)".
func DescribePlaces(places []Place) string {
	parts := make([]string, 0, len(places))
	for _, p := range places {
		parts = append(parts, fmt.Sprintf("%s (%.1f)", p.Name, p.Rating))
	}
	return strings.Join(parts, ", ")
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(strings.ToLower(s), strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
