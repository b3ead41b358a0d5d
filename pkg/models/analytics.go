package models

type TimeSeriesDataPoint struct {
	Year        int     `json:"year"`
	Yield       float64 `json:"yield"`
	UrbanExtent float64 `json:"urbanExtent"`
}

type RegionalStats struct {
	AverageYield     float64 `json:"averageYield"`
	TotalUrbanExtent float64 `json:"totalUrbanExtent"`
	YieldTrend       string  `json:"yieldTrend"` // increasing | decreasing | stable
}

type AnalyticsData struct {
	RegionID      string                `json:"regionId"`
	TimeSeries    []TimeSeriesDataPoint `json:"timeSeries"`
	RegionalStats RegionalStats         `json:"regionalStats"`
}
