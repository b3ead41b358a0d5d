package staging

// ModelInput is the payload POSTed to the inference service.
type ModelInput struct {
	UrbanExpansion   *RasterData `json:"urban_expansion"`
	Temperature      *GridData   `json:"temperature"`
	Precipitation    *GridData   `json:"precipitation"`
	HistoricalYields *GridData   `json:"historical_yields"`
}

// AssembleModelInput combines staged assets. historical may be nil.
func AssembleModelInput(urban *RasterData, temperature, precipitation, historical *GridData) ModelInput {
	return ModelInput{
		UrbanExpansion:   urban,
		Temperature:      temperature,
		Precipitation:    precipitation,
		HistoricalYields: historical,
	}
}
