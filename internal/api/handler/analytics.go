package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/urban-yield/urban-api/internal/api/response"
	"github.com/urban-yield/urban-api/pkg/models"
)

// Illustrative figures until analytics are computed from stored predictions.
var (
	sampleTimeSeries = []models.TimeSeriesDataPoint{
		{Year: 1992, Yield: 3.5, UrbanExtent: 0.1},
		{Year: 2000, Yield: 3.2, UrbanExtent: 0.15},
		{Year: 2010, Yield: 2.9, UrbanExtent: 0.25},
		{Year: 2016, Yield: 2.7, UrbanExtent: 0.3},
	}
	sampleRegionalStats = models.RegionalStats{
		AverageYield:     3.075,
		TotalUrbanExtent: 0.2,
		YieldTrend:       "decreasing",
	}
	publishedMetrics = models.ModelMetrics{MAE: 0.3689, RMSE: 0.6887, MSE: 0.4743}
)

// NewRegionAnalyticsHandler returns an http.HandlerFunc for GET /api/analytics/region/{regionID}.
func NewRegionAnalyticsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, models.AnalyticsData{
			RegionID:      chi.URLParam(r, "regionID"),
			TimeSeries:    sampleTimeSeries,
			RegionalStats: sampleRegionalStats,
		})
	}
}

// NewModelMetricsHandler returns an http.HandlerFunc for GET /api/analytics/metrics.
func NewModelMetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, publishedMetrics)
	}
}
