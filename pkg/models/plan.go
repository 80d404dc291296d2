package models

// Stage names, in pipeline order.
const (
	StageStrategist = "strategist"
	StagePlanner    = "planner"
	StageValidator  = "validator"
)

// Strategy is the strategist stage output: a prose market analysis that feeds
// the planner prompt.
type Strategy struct {
	Analysis string `json:"analysis"`
}

// Plan is the structured output of the planner stage and, after correction,
// of the validator stage.
type Plan struct {
	StagingArea StagingArea `json:"staging_area"`
	Venues      []Venue     `json:"venues"`
}

// StagingArea is the central waiting position between pickups.
type StagingArea struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Reasoning string `json:"reasoning"`
}

// Venue is a single recommended pickup location.
type Venue struct {
	Name             string  `json:"name"`
	Address          string  `json:"address"`
	Category         string  `json:"category"`
	DistanceMiles    float64 `json:"distance_miles"`
	DriveTimeMinutes float64 `json:"drive_time_minutes"`
	Reasoning        string  `json:"reasoning"`
}
