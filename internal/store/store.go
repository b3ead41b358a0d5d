package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/urban-yield/urban-api/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// JobRepository persists prediction jobs. Records handed in and out are copies;
// callers never share memory with the repository.
type JobRepository interface {
	CreateJob(ctx context.Context, job *models.PredictionJob) error
	GetJob(ctx context.Context, id string) (*models.PredictionJob, error)
	// PutJob replaces a stored job. The status move from the stored record to
	// job must be a valid transition, otherwise ErrInvalidTransition.
	PutJob(ctx context.Context, job *models.PredictionJob) error
	ListJobs(ctx context.Context) ([]*models.PredictionJob, error)
}

// ScenarioRepository persists scenarios.
type ScenarioRepository interface {
	CreateScenario(ctx context.Context, s *models.Scenario) error
	GetScenario(ctx context.Context, id string) (*models.Scenario, error)
	ListScenarios(ctx context.Context) ([]*models.Scenario, error)
	PutScenario(ctx context.Context, s *models.Scenario) error
	DeleteScenario(ctx context.Context, id string) error
}

// Store is the data access interface. All repository operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	JobRepository
	ScenarioRepository
}

func checkTransition(from, to string) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func cloneScenario(s *models.Scenario) *models.Scenario {
	if s == nil {
		return nil
	}
	c := *s
	if s.Description != nil {
		d := *s.Description
		c.Description = &d
	}
	if s.ClimateData != nil {
		c.ClimateData = make(map[string]models.ClimateData, len(s.ClimateData))
		for k, v := range s.ClimateData {
			c.ClimateData[k] = v
		}
	}
	if s.HistoricalYields != nil {
		h := *s.HistoricalYields
		h.Years = append([]int(nil), s.HistoricalYields.Years...)
		c.HistoricalYields = &h
	}
	c.Predictions = make([]models.PredictionJob, 0, len(s.Predictions))
	for i := range s.Predictions {
		c.Predictions = append(c.Predictions, *s.Predictions[i].Clone())
	}
	return &c
}
