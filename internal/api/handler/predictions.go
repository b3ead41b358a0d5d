package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/urban-yield/urban-api/internal/api/response"
	"github.com/urban-yield/urban-api/internal/store"
	"github.com/urban-yield/urban-api/internal/validation"
	"github.com/urban-yield/urban-api/pkg/models"
)

// JobTracker defines the prediction job operations the handlers depend on.
type JobTracker interface {
	Submit(ctx context.Context, req models.PredictionRequest) (*models.PredictionJob, error)
	Get(ctx context.Context, id string) (*models.PredictionJob, error)
	List(ctx context.Context) ([]*models.PredictionJob, error)
}

// NewCreatePredictionHandler returns an http.HandlerFunc for POST /api/predictions.
// The job comes back pending; clients poll for the outcome.
func NewCreatePredictionHandler(jobs JobTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.PredictionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if err := validation.Struct(req); err != nil {
			response.Error(w, http.StatusBadRequest, err.Error())
			return
		}

		job, err := jobs.Submit(r.Context(), req)
		if err != nil {
			response.Internal(w, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewGetPredictionHandler returns an http.HandlerFunc for GET /api/predictions/{predictionID}.
func NewGetPredictionHandler(jobs JobTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := jobs.Get(r.Context(), chi.URLParam(r, "predictionID"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "Prediction not found")
				return
			}
			response.Internal(w, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewListPredictionsHandler returns an http.HandlerFunc for GET /api/predictions.
func NewListPredictionsHandler(jobs JobTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := jobs.List(r.Context())
		if err != nil {
			response.Internal(w, err)
			return
		}
		if list == nil {
			list = []*models.PredictionJob{}
		}
		response.JSON(w, list)
	}
}
