package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urban-yield/urban-api/internal/api/handler"
	"github.com/urban-yield/urban-api/internal/scenario"
	"github.com/urban-yield/urban-api/internal/store"
	"github.com/urban-yield/urban-api/pkg/models"
)

const validScenario = `{
	"name": "baseline",
	"description": "no expansion",
	"urbanData": {"id": "u1", "filename": "urban.tif", "uploadedAt": "2026-01-01T00:00:00Z", "year": 2016, "region": null},
	"climateData": {
		"temperature": {"id": "t1", "filename": "t.nc", "type": "temperature", "uploadedAt": "2026-01-01T00:00:00Z"},
		"precipitation": {"id": "p1", "filename": "p.nc", "type": "precipitation", "uploadedAt": "2026-01-01T00:00:00Z"}
	}
}`

func newScenarioService() *scenario.Service {
	return scenario.NewService(store.NewMemoryStore())
}

func createScenario(t *testing.T, svc handler.ScenarioService) *models.Scenario {
	t.Helper()
	w := httptest.NewRecorder()
	handler.NewCreateScenarioHandler(svc).ServeHTTP(w,
		httptest.NewRequest("POST", "/api/scenarios", bytes.NewBufferString(validScenario)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var sc models.Scenario
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sc))
	return &sc
}

func TestCreateScenario_Success(t *testing.T) {
	sc := createScenario(t, newScenarioService())

	assert.NotEmpty(t, sc.ID)
	assert.Equal(t, "baseline", sc.Name)
	require.NotNil(t, sc.Description)
	assert.Equal(t, "no expansion", *sc.Description)
	assert.Equal(t, "u1", sc.UrbanData.ID)
	assert.Equal(t, "p1", sc.ClimateData["precipitation"].ID)
	assert.NotNil(t, sc.Predictions)
}

func TestCreateScenario_InvalidJSON(t *testing.T) {
	w := httptest.NewRecorder()
	handler.NewCreateScenarioHandler(newScenarioService()).ServeHTTP(w,
		httptest.NewRequest("POST", "/api/scenarios", bytes.NewBufferString(`[`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Error creating scenario: invalid JSON body", errorDetail(t, w))
}

func TestCreateScenario_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	handler.NewCreateScenarioHandler(newScenarioService()).ServeHTTP(w,
		httptest.NewRequest("POST", "/api/scenarios", bytes.NewBufferString(`{"description":"x"}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	d := errorDetail(t, w)
	assert.Contains(t, d, "Error creating scenario: ")
	assert.Contains(t, d, "name is required")
}

func TestGetScenario(t *testing.T) {
	svc := newScenarioService()
	sc := createScenario(t, svc)
	h := handler.NewGetScenarioHandler(svc)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, withURLParam(httptest.NewRequest("GET", "/api/scenarios/"+sc.ID, nil), "scenarioID", sc.ID))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, withURLParam(httptest.NewRequest("GET", "/api/scenarios/nope", nil), "scenarioID", "nope"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Scenario not found", errorDetail(t, w))
}

func TestListScenarios(t *testing.T) {
	svc := newScenarioService()
	h := handler.NewListScenariosHandler(svc)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/scenarios", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	createScenario(t, svc)
	createScenario(t, svc)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/scenarios", nil))
	var list []models.Scenario
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)
}

func TestPatchScenario(t *testing.T) {
	svc := newScenarioService()
	sc := createScenario(t, svc)
	h := handler.NewPatchScenarioHandler(svc)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, withURLParam(
		httptest.NewRequest("PATCH", "/api/scenarios/"+sc.ID, bytes.NewBufferString(`{"name":"renamed","description":null}`)),
		"scenarioID", sc.ID))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got models.Scenario
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "renamed", got.Name)
	assert.Nil(t, got.Description)
	assert.False(t, got.UpdatedAt.Before(sc.UpdatedAt))
}

func TestPatchScenario_Errors(t *testing.T) {
	svc := newScenarioService()
	sc := createScenario(t, svc)
	h := handler.NewPatchScenarioHandler(svc)

	tests := []struct {
		name   string
		id     string
		body   string
		code   int
		detail string
	}{
		{"unknown id", "nope", `{"name":"x"}`, http.StatusNotFound, "Scenario not found"},
		{"empty name", sc.ID, `{"name":"  "}`, http.StatusBadRequest, "name must not be empty"},
		{"bad json", sc.ID, `{"name":`, http.StatusBadRequest, "Invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, withURLParam(
				httptest.NewRequest("PATCH", "/api/scenarios/"+tt.id, bytes.NewBufferString(tt.body)),
				"scenarioID", tt.id))
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.detail, errorDetail(t, w))
		})
	}
}

func TestDeleteScenario(t *testing.T) {
	svc := newScenarioService()
	sc := createScenario(t, svc)
	h := handler.NewDeleteScenarioHandler(svc)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, withURLParam(httptest.NewRequest("DELETE", "/api/scenarios/"+sc.ID, nil), "scenarioID", sc.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Scenario deleted"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, withURLParam(httptest.NewRequest("DELETE", "/api/scenarios/"+sc.ID, nil), "scenarioID", sc.ID))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompareScenarios(t *testing.T) {
	svc := newScenarioService()
	a := createScenario(t, svc)
	b := createScenario(t, svc)
	h := handler.NewCompareScenariosHandler(svc)

	body, _ := json.Marshal(map[string]any{"scenarioIds": []string{b.ID, a.ID}})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/scenarios/compare", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got struct {
		Scenarios   []models.Scenario `json:"scenarios"`
		Differences struct {
			ScenarioCount     int `json:"scenario_count"`
			ComparisonMetrics struct {
				YieldDifferences       map[string]float64 `json:"yield_differences"`
				UrbanExtentDifferences map[string]float64 `json:"urban_extent_differences"`
			} `json:"comparison_metrics"`
		} `json:"differences"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Scenarios, 2)
	assert.Equal(t, b.ID, got.Scenarios[0].ID)
	assert.Equal(t, a.ID, got.Scenarios[1].ID)
	assert.Equal(t, 2, got.Differences.ScenarioCount)
	assert.NotNil(t, got.Differences.ComparisonMetrics.YieldDifferences)
}

func TestCompareScenarios_UnknownID(t *testing.T) {
	svc := newScenarioService()
	a := createScenario(t, svc)
	h := handler.NewCompareScenariosHandler(svc)

	body, _ := json.Marshal(map[string]any{"scenarioIds": []string{a.ID, "ghost"}})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/scenarios/compare", bytes.NewReader(body)))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Scenario ghost not found", errorDetail(t, w))
}

func TestCompareScenarios_RequiresIDs(t *testing.T) {
	h := handler.NewCompareScenariosHandler(newScenarioService())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/scenarios/compare", bytes.NewBufferString(`{}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "scenarioIds is required", errorDetail(t, w))
}

// --- failing service for unexpected errors ---

type brokenScenarios struct{ handler.ScenarioService }

func (brokenScenarios) List(context.Context) ([]*models.Scenario, error) {
	return nil, errors.New("connection reset")
}

func (brokenScenarios) Get(context.Context, string) (*models.Scenario, error) {
	return nil, errors.New("connection reset")
}

func TestScenarioHandlers_UnexpectedErrorIs500(t *testing.T) {
	svc := brokenScenarios{}

	w := httptest.NewRecorder()
	handler.NewListScenariosHandler(svc).ServeHTTP(w, httptest.NewRequest("GET", "/api/scenarios", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error: connection reset", errorDetail(t, w))

	w = httptest.NewRecorder()
	handler.NewGetScenarioHandler(svc).ServeHTTP(w,
		withURLParam(httptest.NewRequest("GET", "/api/scenarios/x", nil), "scenarioID", "x"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
