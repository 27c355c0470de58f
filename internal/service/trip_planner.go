// README: Trip planner. Quota, live-condition enrichment and retry policy around flow invocations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tripflow/internal/flow"
	"tripflow/internal/maps"
	"tripflow/internal/modules/aiusage"
	"tripflow/internal/travel"
)

var (
	// ErrQuotaExceeded is returned when the caller has used this month's invocations.
	ErrQuotaExceeded = errors.New("monthly flow quota exceeded")
	// ErrQuotaUnavailable is returned when the quota store cannot be reached.
	ErrQuotaUnavailable = errors.New("quota unavailable")
)

const enrichTimeout = 5 * time.Second

// Invoker runs flows. *flow.Invoker satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, name string, raw map[string]string) flow.Result
}

// TrafficSource reports live driving conditions. *maps.RouteService satisfies it.
type TrafficSource interface {
	Traffic(ctx context.Context, origin, destination string) (maps.TrafficEstimate, error)
}

// PlaceFinder looks up places near a location. *maps.PlacesService satisfies it.
type PlaceFinder interface {
	SearchNearby(ctx context.Context, location, query string, opts maps.SearchOptions) ([]maps.Place, error)
}

// Quota meters invocations per user. *aiusage.Service satisfies it.
type Quota interface {
	UseToken(ctx context.Context, uid string) error
	Refund(ctx context.Context, uid string) error
}

// TripPlanner orchestrates flow invocations for the HTTP and MCP surfaces.
type TripPlanner struct {
	invoker Invoker
	routes  TrafficSource
	places  PlaceFinder
	quota   Quota
	retries uint64
	initial time.Duration
	maxWait time.Duration
	logger  *slog.Logger
}

type Option func(*TripPlanner)

func WithRoutes(r TrafficSource) Option { return func(p *TripPlanner) { p.routes = r } }

func WithPlaces(pf PlaceFinder) Option { return func(p *TripPlanner) { p.places = pf } }

func WithQuota(q Quota) Option { return func(p *TripPlanner) { p.quota = q } }

func WithLogger(l *slog.Logger) Option { return func(p *TripPlanner) { p.logger = l } }

// WithRetries sets how many extra attempts a rate-limited or transport failure gets.
func WithRetries(n int) Option {
	return func(p *TripPlanner) {
		if n < 0 {
			n = 0
		}
		p.retries = uint64(n)
	}
}

// WithBackoff sets the first and the longest wait between attempts.
func WithBackoff(initial, maxWait time.Duration) Option {
	return func(p *TripPlanner) {
		p.initial = initial
		p.maxWait = maxWait
	}
}

// NewTripPlanner creates a TripPlanner. Routes, places and quota are optional.
func NewTripPlanner(invoker Invoker, opts ...Option) *TripPlanner {
	p := &TripPlanner{
		invoker: invoker,
		retries: 2,
		initial: 500 * time.Millisecond,
		maxWait: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan runs the named flow for uid. uid may be empty when no quota applies.
// A non-nil error means the flow was not attempted; flow outcomes are reported in the Result.
func (p *TripPlanner) Plan(ctx context.Context, uid, name string, raw map[string]string) (flow.Result, error) {
	charged := false
	if p.quota != nil && uid != "" {
		if err := p.quota.UseToken(ctx, uid); err != nil {
			if errors.Is(err, aiusage.ErrInsufficientTokens) {
				return flow.Result{}, ErrQuotaExceeded
			}
			if errors.Is(err, aiusage.ErrInvalidUser) {
				return flow.Result{}, err
			}
			return flow.Result{}, fmt.Errorf("%w: %v", ErrQuotaUnavailable, err)
		}
		charged = true
	}

	input := p.enrich(ctx, name, raw)
	res := p.invokeWithRetry(ctx, name, input)

	if charged && !res.Succeeded() && neverReachedModel(res.Failure) {
		if err := p.quota.Refund(context.WithoutCancel(ctx), uid); err != nil {
			p.logger.Warn("quota refund failed", "uid", uid, "flow", name, "error", err)
		}
	}
	return res, nil
}

func neverReachedModel(f *flow.Failure) bool {
	switch f.Kind {
	case flow.FailUnknownFlow, flow.FailValidation, flow.FailConfiguration:
		return true
	}
	return false
}

func retryable(kind flow.FailureKind) bool {
	return kind == flow.FailRateLimited || kind == flow.FailTransport
}

func (p *TripPlanner) invokeWithRetry(ctx context.Context, name string, input map[string]string) flow.Result {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.initial
	eb.MaxInterval = p.maxWait
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, p.retries), ctx)

	var res flow.Result
	attempt := 0
	_ = backoff.Retry(func() error {
		attempt++
		res = p.invoker.Invoke(ctx, name, input)
		if res.Succeeded() {
			return nil
		}
		if retryable(res.Failure.Kind) {
			p.logger.Info("retrying flow", "flow", name, "attempt", attempt, "kind", res.Failure.Kind)
			return res.Err()
		}
		return backoff.Permanent(res.Err())
	}, policy)
	return res
}

// enrich fills empty condition fields from Maps. Lookup failures are logged and the field stays empty.
func (p *TripPlanner) enrich(ctx context.Context, name string, raw map[string]string) map[string]string {
	input := make(map[string]string, len(raw)+1)
	for k, v := range raw {
		input[k] = v
	}

	switch name {
	case travel.FlowAdaptItinerary:
		if p.routes == nil || blank(input["origin"]) || blank(input["destination"]) || !blank(input["traffic"]) {
			return input
		}
		ectx, cancel := context.WithTimeout(ctx, enrichTimeout)
		defer cancel()
		est, err := p.routes.Traffic(ectx, input["origin"], input["destination"])
		if err != nil {
			p.logger.Warn("traffic lookup failed", "flow", name, "error", err)
			return input
		}
		input["traffic"] = est.Describe(input["origin"], input["destination"])

	case travel.FlowRecommend:
		p.fillNearby(ctx, name, input, "hotels", maps.LodgingFor(input["preferences"]))

	case travel.FlowSuggestActivities:
		p.fillNearby(ctx, name, input, "tourist attractions", maps.AttractionSearch)
	}
	return input
}

func (p *TripPlanner) fillNearby(ctx context.Context, name string, input map[string]string, query string, opts maps.SearchOptions) {
	if p.places == nil || blank(input["location"]) || !blank(input["nearby"]) {
		return
	}
	ectx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()
	places, err := p.places.SearchNearby(ectx, input["location"], query, opts)
	if err != nil {
		p.logger.Warn("places lookup failed", "flow", name, "error", err)
		return
	}
	if len(places) > 0 {
		input["nearby"] = maps.DescribePlaces(places)
	}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
