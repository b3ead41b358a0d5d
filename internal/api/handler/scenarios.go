package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/urban-yield/urban-api/internal/api/response"
	"github.com/urban-yield/urban-api/internal/scenario"
	"github.com/urban-yield/urban-api/internal/store"
	"github.com/urban-yield/urban-api/pkg/models"
)

// ScenarioService defines the scenario operations the handlers depend on.
type ScenarioService interface {
	Create(ctx context.Context, req scenario.CreateRequest) (*models.Scenario, error)
	Get(ctx context.Context, id string) (*models.Scenario, error)
	List(ctx context.Context) ([]*models.Scenario, error)
	Patch(ctx context.Context, id string, req scenario.PatchRequest) (*models.Scenario, error)
	Delete(ctx context.Context, id string) error
	Compare(ctx context.Context, req scenario.CompareRequest) (*scenario.Comparison, error)
}

// NewCreateScenarioHandler returns an http.HandlerFunc for POST /api/scenarios.
func NewCreateScenarioHandler(svc ScenarioService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scenario.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "Error creating scenario: invalid JSON body")
			return
		}

		sc, err := svc.Create(r.Context(), req)
		if err != nil {
			if errors.Is(err, scenario.ErrInvalid) {
				response.Error(w, http.StatusBadRequest, "Error creating scenario: "+err.Error())
				return
			}
			response.Internal(w, err)
			return
		}
		response.JSON(w, sc)
	}
}

// NewGetScenarioHandler returns an http.HandlerFunc for GET /api/scenarios/{scenarioID}.
func NewGetScenarioHandler(svc ScenarioService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, err := svc.Get(r.Context(), chi.URLParam(r, "scenarioID"))
		if err != nil {
			scenarioError(w, err)
			return
		}
		response.JSON(w, sc)
	}
}

// NewListScenariosHandler returns an http.HandlerFunc for GET /api/scenarios.
func NewListScenariosHandler(svc ScenarioService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			response.Internal(w, err)
			return
		}
		if list == nil {
			list = []*models.Scenario{}
		}
		response.JSON(w, list)
	}
}

// NewPatchScenarioHandler returns an http.HandlerFunc for PATCH /api/scenarios/{scenarioID}.
func NewPatchScenarioHandler(svc ScenarioService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scenario.PatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		sc, err := svc.Patch(r.Context(), chi.URLParam(r, "scenarioID"), req)
		if err != nil {
			scenarioError(w, err)
			return
		}
		response.JSON(w, sc)
	}
}

// NewDeleteScenarioHandler returns an http.HandlerFunc for DELETE /api/scenarios/{scenarioID}.
func NewDeleteScenarioHandler(svc ScenarioService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "scenarioID")); err != nil {
			scenarioError(w, err)
			return
		}
		response.JSON(w, map[string]string{"message": "Scenario deleted"})
	}
}

// NewCompareScenariosHandler returns an http.HandlerFunc for POST /api/scenarios/compare.
func NewCompareScenariosHandler(svc ScenarioService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scenario.CompareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		cmp, err := svc.Compare(r.Context(), req)
		if err != nil {
			var missing *scenario.MissingError
			if errors.As(err, &missing) {
				response.Error(w, http.StatusNotFound, "Scenario "+missing.ID+" not found")
				return
			}
			scenarioError(w, err)
			return
		}
		response.JSON(w, cmp)
	}
}

func scenarioError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "Scenario not found")
	case errors.Is(err, scenario.ErrInvalid):
		response.Error(w, http.StatusBadRequest, err.Error())
	default:
		response.Internal(w, err)
	}
}
