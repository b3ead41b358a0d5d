package models

// RegionBounds is a lat/lon bounding box.
type RegionBounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

type Region struct {
	ID     *string      `json:"id,omitempty"`
	Name   string       `json:"name" validate:"required"`
	Bounds RegionBounds `json:"bounds"`
	Code   *string      `json:"code,omitempty"`
}

// PredictionRequest references previously uploaded assets by id.
type PredictionRequest struct {
	UrbanDataID           string  `json:"urbanDataId"         validate:"required"`
	TemperatureDataID     string  `json:"temperatureDataId"   validate:"required"`
	PrecipitationDataID   string  `json:"precipitationDataId" validate:"required"`
	HistoricalYieldDataID *string `json:"historicalYieldDataId,omitempty"`
	Year                  int     `json:"year"                validate:"required"`
	Region                *Region `json:"region,omitempty"    validate:"omitempty"`
}
