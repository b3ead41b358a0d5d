// Package scenario manages named bundles of uploads used to compare predictions.
package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/urban-yield/urban-api/internal/store"
	"github.com/urban-yield/urban-api/internal/validation"
	"github.com/urban-yield/urban-api/pkg/models"
)

// ErrInvalid is returned when a request fails validation. Nothing is stored.
var ErrInvalid = validation.ErrInvalid

// MissingError reports an unknown scenario id during comparison.
type MissingError struct {
	ID string
}

func (e *MissingError) Error() string { return fmt.Sprintf("scenario %s not found", e.ID) }

func (e *MissingError) Unwrap() error { return store.ErrNotFound }

// CreateRequest is the body of POST /api/scenarios.
type CreateRequest struct {
	Name             string                      `json:"name"             validate:"required"`
	Description      *string                     `json:"description"`
	UrbanData        *models.UrbanExpansionData  `json:"urbanData"        validate:"required"`
	ClimateData      *ClimateInput               `json:"climateData"      validate:"required"`
	HistoricalYields *models.HistoricalYieldData `json:"historicalYields" validate:"omitempty"`
}

// ClimateInput holds the two climate descriptors a scenario needs.
type ClimateInput struct {
	Temperature   *models.ClimateData `json:"temperature"   validate:"required"`
	Precipitation *models.ClimateData `json:"precipitation" validate:"required"`
}

// PatchRequest is the body of PATCH /api/scenarios/{id}. Absent fields are
// left unchanged; a null description clears it.
type PatchRequest struct {
	Name        *string        `json:"name"`
	Description OptionalString `json:"description"`
}

// OptionalString tells an absent JSON field apart from an explicit null.
type OptionalString struct {
	Set   bool
	Value *string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// CompareRequest is the body of POST /api/scenarios/compare.
type CompareRequest struct {
	ScenarioIDs []string `json:"scenarioIds" validate:"required"`
}

// Comparison is the result of comparing scenarios. Metrics are not computed yet.
type Comparison struct {
	Scenarios   []*models.Scenario `json:"scenarios"`
	Differences Differences        `json:"differences"`
}

type Differences struct {
	ScenarioCount     int               `json:"scenario_count"`
	ComparisonMetrics ComparisonMetrics `json:"comparison_metrics"`
}

type ComparisonMetrics struct {
	YieldDifferences       map[string]float64 `json:"yield_differences"`
	UrbanExtentDifferences map[string]float64 `json:"urban_extent_differences"`
}

// Service implements scenario CRUD over a repository.
type Service struct {
	repo store.ScenarioRepository
	now  func() time.Time
}

// NewService creates a Service backed by repo.
func NewService(repo store.ScenarioRepository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create validates req and stores a new scenario with no predictions.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Scenario, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	now := s.now()
	sc := &models.Scenario{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		UrbanData:   *req.UrbanData,
		ClimateData: map[string]models.ClimateData{
			models.ClimateTemperature:   *req.ClimateData.Temperature,
			models.ClimatePrecipitation: *req.ClimateData.Precipitation,
		},
		HistoricalYields: req.HistoricalYields,
		Predictions:      []models.PredictionJob{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.CreateScenario(ctx, sc); err != nil {
		return nil, fmt.Errorf("creating scenario: %w", err)
	}
	return sc, nil
}

// Get returns one scenario or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*models.Scenario, error) {
	return s.repo.GetScenario(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*models.Scenario, error) {
	return s.repo.ListScenarios(ctx)
}

// Patch applies name and description changes and bumps updatedAt.
func (s *Service) Patch(ctx context.Context, id string, req PatchRequest) (*models.Scenario, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, validation.Invalid("name must not be empty")
	}

	sc, err := s.repo.GetScenario(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		sc.Name = *req.Name
	}
	if req.Description.Set {
		sc.Description = req.Description.Value
	}
	sc.UpdatedAt = s.now()

	if err := s.repo.PutScenario(ctx, sc); err != nil {
		return nil, fmt.Errorf("updating scenario: %w", err)
	}
	return sc, nil
}

// Delete removes a scenario. Unknown ids return store.ErrNotFound.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteScenario(ctx, id)
}

// Compare loads every requested scenario in order. The first unknown id
// fails the whole comparison with a *MissingError.
func (s *Service) Compare(ctx context.Context, req CompareRequest) (*Comparison, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	scenarios := make([]*models.Scenario, 0, len(req.ScenarioIDs))
	for _, id := range req.ScenarioIDs {
		sc, err := s.repo.GetScenario(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, &MissingError{ID: id}
		}
		if err != nil {
			return nil, fmt.Errorf("loading scenario %s: %w", id, err)
		}
		scenarios = append(scenarios, sc)
	}

	return &Comparison{
		Scenarios: scenarios,
		Differences: Differences{
			ScenarioCount: len(scenarios),
			ComparisonMetrics: ComparisonMetrics{
				YieldDifferences:       map[string]float64{},
				UrbanExtentDifferences: map[string]float64{},
			},
		},
	}, nil
}
