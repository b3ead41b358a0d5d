package models

import "time"

// Asset kinds double as File Store subdirectories.
const (
	KindUrban           = "urban"
	KindClimate         = "climate"
	KindHistoricalYield = "historical-yields"
)

const (
	ClimateTemperature   = "temperature"
	ClimatePrecipitation = "precipitation"
)

// IsClimateType reports whether t is a known climate data type.
func IsClimateType(t string) bool {
	return t == ClimateTemperature || t == ClimatePrecipitation
}

// UrbanExpansionData describes an uploaded urban expansion raster.
type UrbanExpansionData struct {
	ID         string    `json:"id"         validate:"required"`
	Filename   string    `json:"filename"   validate:"required"`
	UploadedAt time.Time `json:"uploadedAt" validate:"required"`
	Year       *int      `json:"year"`
	Region     *string   `json:"region"`
}

// ClimateData describes an uploaded temperature or precipitation dataset.
type ClimateData struct {
	ID         string    `json:"id"         validate:"required"`
	Filename   string    `json:"filename"   validate:"required"`
	Type       string    `json:"type"       validate:"required,oneof=temperature precipitation"`
	UploadedAt time.Time `json:"uploadedAt" validate:"required"`
	Year       *int      `json:"year"`
}

// HistoricalYieldData describes an uploaded historical crop-yield dataset.
type HistoricalYieldData struct {
	ID         string    `json:"id"         validate:"required"`
	Filename   string    `json:"filename"   validate:"required"`
	UploadedAt time.Time `json:"uploadedAt" validate:"required"`
	Years      []int     `json:"years"`
}
