// README: Google Maps Directions wrapper. Estimates travel time and live traffic between two places.
package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"
)

// ErrNoRoute is returned when Directions finds no route between the two places.
var ErrNoRoute = errors.New("no route found")

// Options tunes the language and region bias of Maps requests.
type Options struct {
	Language string
	Region   string
	// BaseURL overrides the Maps API host, used by tests.
	BaseURL string
}

func newClient(apiKey string, opts Options) (*maps.Client, error) {
	clientOpts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, maps.WithBaseURL(opts.BaseURL))
	}
	client, err := maps.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
	opts   Options
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string, opts Options) (*RouteService, error) {
	client, err := newClient(apiKey, opts)
	if err != nil {
		return nil, err
	}
	return &RouteService{client: client, opts: opts}, nil
}

// TrafficEstimate is a driving estimate departing now.
type TrafficEstimate struct {
	Summary  string
	Distance string
	Typical  time.Duration
	Live     time.Duration
}

// Delay is how much longer the trip takes than usual because of traffic.
func (e TrafficEstimate) Delay() time.Duration {
	if e.Live <= e.Typical {
		return 0
	}
	return e.Live - e.Typical
}

// Describe renders the estimate as one line of plain text for a prompt.
func (e TrafficEstimate) Describe(origin, destination string) string {
	via := ""
	if e.Summary != "" {
		via = " via " + e.Summary
	}
	line := fmt.Sprintf("Driving from %s to %s%s takes about %.0f minutes (%s)",
		origin, destination, via, e.Live.Minutes(), e.Distance)
	if d := e.Delay(); d >= time.Minute {
		return fmt.Sprintf("%s, %.0f minutes longer than usual because of traffic.", line, d.Minutes())
	}
	return line + ", traffic is normal."
}

// Traffic asks Directions for a driving route departing now so that the live duration is populated.
func (s *RouteService) Traffic(ctx context.Context, origin, destination string) (TrafficEstimate, error) {
	r := &maps.DirectionsRequest{
		Origin:        origin,
		Destination:   destination,
		Mode:          maps.TravelModeDriving,
		DepartureTime: "now",
		Language:      s.opts.Language,
		Region:        s.opts.Region,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return TrafficEstimate{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return TrafficEstimate{}, ErrNoRoute
	}

	leg := routes[0].Legs[0]
	est := TrafficEstimate{
		Summary:  routes[0].Summary,
		Distance: leg.Distance.HumanReadable,
		Typical:  leg.Duration,
		Live:     leg.DurationInTraffic,
	}
	if est.Live == 0 {
		est.Live = est.Typical
	}
	return est, nil
}
