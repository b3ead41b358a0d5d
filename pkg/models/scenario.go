package models

import "time"

// Scenario bundles upload references under a name so predictions can be compared.
type Scenario struct {
	ID               string                 `db:"id"                json:"id"`
	Name             string                 `db:"name"              json:"name"`
	Description      *string                `db:"description"       json:"description"`
	UrbanData        UrbanExpansionData     `db:"urban_data"        json:"urbanData"`
	ClimateData      map[string]ClimateData `db:"climate_data"      json:"climateData"`
	HistoricalYields *HistoricalYieldData   `db:"historical_yields" json:"historicalYields"`
	Predictions      []PredictionJob        `db:"predictions"       json:"predictions"`
	CreatedAt        time.Time              `db:"created_at"        json:"createdAt"`
	UpdatedAt        time.Time              `db:"updated_at"        json:"updatedAt"`
}
