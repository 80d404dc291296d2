// Package mock provides a models.Provider for tests and local development.
package mock

import (
	"context"

	"github.com/melodydashora/triad/pkg/models"
)

// Provider satisfies models.Provider for testing.
type Provider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.GenerateRequest) (models.GenerateResponse, error)

	// Requests records every call for assertions on knob pass-through.
	Requests []models.GenerateRequest
}

func (p *Provider) Name() string {
	if p.Name_ == "" {
		return "mock"
	}
	return p.Name_
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (models.GenerateResponse, error) {
	p.Requests = append(p.Requests, req)
	if p.GenerateFunc != nil {
		return p.GenerateFunc(ctx, req)
	}
	return models.GenerateResponse{Content: "{}", Model: "mock-v1"}, nil
}

// NewProvider returns a Provider with a canned valid plan response, enough to
// drive the pipeline end to end without external calls.
func NewProvider() *Provider {
	return &Provider{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, req models.GenerateRequest) (models.GenerateResponse, error) {
			if !req.JSONMode {
				return models.GenerateResponse{Content: cannedStrategy, Model: "mock-v1"}, nil
			}
			return models.GenerateResponse{Content: CannedPlanJSON, Model: "mock-v1"}, nil
		},
	}
}

// NewFailingProvider returns a Provider that always returns the given error.
func NewFailingProvider(err error) *Provider {
	return &Provider{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.GenerateRequest) (models.GenerateResponse, error) {
			return models.GenerateResponse{}, err
		},
	}
}

// NewBlockingProvider returns a Provider that blocks until its context is
// cancelled, for deadline and cancellation tests.
func NewBlockingProvider() *Provider {
	return &Provider{
		Name_: "mock-blocking",
		GenerateFunc: func(ctx context.Context, _ models.GenerateRequest) (models.GenerateResponse, error) {
			<-ctx.Done()
			return models.GenerateResponse{}, ctx.Err()
		},
	}
}

const cannedStrategy = `Demand is concentrating around the entertainment district as evening events let out. ` +
	`Surge pricing is likely near the arena within the next hour, and airport queues are moving steadily. ` +
	`Position centrally, keep acceptance high, and favor short hops between the listed venues to maximize ` +
	`completed trips per hour. Expect hourly earnings in the upper band for this market given the weather ` +
	`and the day of week, with the best returns coming from staying close to the staging area rather than ` +
	`chasing distant pings across town.`

// CannedPlanJSON passes the plan schema: staging area plus four venues with
// substantive reasoning.
const CannedPlanJSON = `{
  "staging_area": {
    "name": "Central Plaza Garage",
    "address": "300 Main St",
    "reasoning": "Centrally positioned within a one to two minute drive of every recommended venue below."
  },
  "venues": [
    {"name": "Union Arena", "address": "500 Arena Way", "category": "entertainment", "distance_miles": 0.8, "drive_time_minutes": 3, "reasoning": "Evening event crowd releases in waves and generates sustained ride demand for at least ninety minutes after the final whistle."},
    {"name": "Grand Hotel", "address": "21 Commerce St", "category": "hotel", "distance_miles": 0.5, "drive_time_minutes": 2, "reasoning": "Business travelers request airport trips through the evening and the doorman queue keeps pickups orderly and quick to turn around."},
    {"name": "Riverside Food Hall", "address": "88 Dock St", "category": "dining", "distance_miles": 1.1, "drive_time_minutes": 4, "reasoning": "Dinner crowd peaks between seven and nine with steady short-hop requests back toward residential neighborhoods north of the river."},
    {"name": "Terminal Rail Station", "address": "1 Station Pl", "category": "transit", "distance_miles": 1.4, "drive_time_minutes": 5, "reasoning": "Late arriving regional trains drop riders with luggage who strongly prefer cars over the tram for the last leg home."}
  ]
}`

var _ models.Provider = (*Provider)(nil)
