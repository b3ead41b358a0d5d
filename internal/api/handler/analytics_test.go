package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urban-yield/urban-api/internal/api/handler"
	"github.com/urban-yield/urban-api/pkg/models"
)

func TestRegionAnalytics_EchoesRegion(t *testing.T) {
	h := handler.NewRegionAnalyticsHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, withURLParam(httptest.NewRequest("GET", "/api/analytics/region/ghana", nil), "regionID", "ghana"))

	require.Equal(t, http.StatusOK, w.Code)
	var got models.AnalyticsData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "ghana", got.RegionID)
	require.Len(t, got.TimeSeries, 4)
	assert.Equal(t, 1992, got.TimeSeries[0].Year)
	assert.Equal(t, "decreasing", got.RegionalStats.YieldTrend)
}

func TestModelMetrics(t *testing.T) {
	h := handler.NewModelMetricsHandler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/analytics/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"mae":0.3689,"rmse":0.6887,"mse":0.4743,"accuracy":null}`, w.Body.String())
}

func TestRoot(t *testing.T) {
	w := httptest.NewRecorder()
	handler.NewRootHandler().ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"URBAN API","version":"1.0.0"}`, w.Body.String())
}
