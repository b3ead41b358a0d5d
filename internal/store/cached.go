package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/urban-yield/urban-api/internal/cache"
	"github.com/urban-yield/urban-api/pkg/models"
)

// CachedJobs wraps a Store with a Redis read-through cache for job lookups.
// Writes go to the underlying store first and then refresh the cache. A read
// that misses only fills the cache with terminal jobs, since a job still in
// flight may be written by its worker between the read and the fill. Cache
// failures are logged and never fail the call.
type CachedJobs struct {
	Store
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedJobs decorates s so that job reads are served from c when possible.
func NewCachedJobs(s Store, c cache.Cache, ttl time.Duration) *CachedJobs {
	return &CachedJobs{Store: s, cache: c, ttl: ttl}
}

func (s *CachedJobs) CreateJob(ctx context.Context, job *models.PredictionJob) error {
	if err := s.Store.CreateJob(ctx, job); err != nil {
		return err
	}
	s.remember(ctx, job)
	return nil
}

func (s *CachedJobs) GetJob(ctx context.Context, id string) (*models.PredictionJob, error) {
	cached, found, err := cache.GetJSON[models.PredictionJob](ctx, s.cache, cache.JobKey(id))
	if err != nil {
		slog.Warn("job cache read failed", "job_id", id, "error", err)
	}
	if found {
		return cached, nil
	}

	j, err := s.Store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if models.IsTerminal(j.Status) {
		s.remember(ctx, j)
	}
	return j, nil
}

func (s *CachedJobs) PutJob(ctx context.Context, job *models.PredictionJob) error {
	if err := s.Store.PutJob(ctx, job); err != nil {
		return err
	}
	s.remember(ctx, job)
	return nil
}

func (s *CachedJobs) remember(ctx context.Context, job *models.PredictionJob) {
	if err := cache.SetJSON(ctx, s.cache, cache.JobKey(job.ID), job, s.ttl); err != nil {
		slog.Warn("job cache write failed", "job_id", job.ID, "error", err)
		// A stale entry must not outlive the write it missed.
		_ = s.cache.Delete(ctx, cache.JobKey(job.ID))
	}
}
