// Package models contains shared data models used across the triad codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is one immutable driver context for which a pipeline run produces
// recommendations. It is created once per client request and never mutated;
// every job, stage result, and final result references it by ID.
type Snapshot struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	Context   SnapshotContext `db:"context"    json:"context"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// SnapshotContext is the environmental payload captured at snapshot time.
// Stored as a single JSONB column; the pipeline treats it as read-only.
type SnapshotContext struct {
	Coordinates      Coordinates    `json:"coordinates" validate:"required"`
	FormattedAddress string         `json:"formatted_address,omitempty"`
	LocalTime        string         `json:"local_time" validate:"required"`
	Timezone         string         `json:"timezone,omitempty"`
	DayOfWeek        string         `json:"day_of_week,omitempty"`
	Weather          *Weather       `json:"weather,omitempty"`
	AirportActivity  string         `json:"airport_activity,omitempty"`
	CatalogVenues    []CatalogVenue `json:"catalog_venues,omitempty" validate:"max=200,dive"`
}

// Coordinates is a GPS position.
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Weather holds the conditions observed at snapshot time.
type Weather struct {
	TemperatureF float64 `json:"temperature_f,omitempty"`
	Description  string  `json:"description,omitempty"`
}

// CatalogVenue is a known venue near the snapshot location. When present, the
// planner must select from the catalog instead of inventing venues.
type CatalogVenue struct {
	Name             string `json:"name" validate:"required"`
	Category         string `json:"category,omitempty"`
	FormattedAddress string `json:"formatted_address,omitempty"`
}
