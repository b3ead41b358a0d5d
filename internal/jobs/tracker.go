// Package jobs runs prediction jobs in the background and tracks their status.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/urban-yield/urban-api/internal/inference"
	"github.com/urban-yield/urban-api/internal/staging"
	"github.com/urban-yield/urban-api/internal/store"
	"github.com/urban-yield/urban-api/pkg/models"
)

// Variable hints used to pick dataset variables during staging.
const (
	hintTemperature   = "temperature"
	hintPrecipitation = "precipitation"
	hintYield         = "yield"
)

// AssetResolver finds the local path of an uploaded asset.
type AssetResolver interface {
	Resolve(ctx context.Context, id, subdir string) (path string, ok bool, err error)
}

// Stager loads uploaded files into model-ready grids.
type Stager interface {
	StageRaster(path string) (*staging.RasterData, error)
	StageGridSeries(path, hint string) (*staging.GridData, error)
}

// Repository writes are attempted up to writeAttempts times, doubling the
// wait from writeBackoff between attempts.
const (
	writeAttempts = 3
	writeBackoff  = 100 * time.Millisecond
)

// Tracker creates prediction jobs and runs them on a worker pool. Each job's
// record is written only by the task running it.
type Tracker struct {
	jobs   store.JobRepository
	files  AssetResolver
	stager Stager
	model  inference.Client
	pool   *Pool

	mu      sync.Mutex
	handles map[string]*Handle

	now     func() time.Time
	backoff time.Duration
}

// NewTracker creates a Tracker that schedules work on pool.
func NewTracker(jobs store.JobRepository, files AssetResolver, stager Stager, model inference.Client, pool *Pool) *Tracker {
	return &Tracker{
		jobs:    jobs,
		files:   files,
		stager:  stager,
		model:   model,
		pool:    pool,
		handles: make(map[string]*Handle),
		now:     func() time.Time { return time.Now().UTC() },
		backoff: writeBackoff,
	}
}

// Submit stores a pending job and queues it. The returned job is always
// pending, however quickly the work finishes.
func (t *Tracker) Submit(ctx context.Context, req models.PredictionRequest) (*models.PredictionJob, error) {
	job := &models.PredictionJob{
		ID:        uuid.New().String(),
		Status:    models.JobStatusPending,
		CreatedAt: t.now(),
	}

	if err := t.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	runCtx := context.WithoutCancel(ctx)
	pending := job.Clone()

	t.mu.Lock()
	h, err := t.pool.Submit(func() { t.run(runCtx, job, req) })
	if err == nil {
		t.handles[job.ID] = h
	}
	t.mu.Unlock()

	if err != nil {
		t.abandon(runCtx, job, err)
		return nil, fmt.Errorf("scheduling job: %w", err)
	}

	slog.Info("prediction job submitted", "job_id", job.ID)
	return pending, nil
}

// Get returns the current state of a job, or store.ErrNotFound.
func (t *Tracker) Get(ctx context.Context, id string) (*models.PredictionJob, error) {
	return t.jobs.GetJob(ctx, id)
}

// List returns every known job.
func (t *Tracker) List(ctx context.Context) ([]*models.PredictionJob, error) {
	return t.jobs.ListJobs(ctx)
}

// Await blocks until the task for id has finished or ctx ends. Unknown and
// already finished jobs return immediately.
func (t *Tracker) Await(ctx context.Context, id string) error {
	t.mu.Lock()
	h, ok := t.handles[id]
	t.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes one job. It recovers panics and drives the job to completed
// or failed, giving up only when the repository refuses every write.
func (t *Tracker) run(ctx context.Context, job *models.PredictionJob, req models.PredictionRequest) {
	defer t.forget(job.ID)

	if !t.transition(ctx, job, models.JobStatusProcessing) {
		t.failUnstarted(ctx, job, "job could not be started")
		return
	}
	slog.Info("prediction job processing", "job_id", job.ID)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in prediction job", "error", r, "job_id", job.ID)
			t.fail(ctx, job, fmt.Sprintf("panic: %v", r))
		}
	}()

	out, err := t.execute(ctx, job.ID, req)
	if err != nil {
		slog.Warn("prediction pipeline error", "job_id", job.ID, "status", inference.HTTPStatus(err), "error", err)
		t.fail(ctx, job, err.Error())
		return
	}

	job.PredictionMap = out.PredictionMap
	job.Metrics = out.Metrics
	job.Confidence = out.Confidence
	completedAt := t.now()
	job.CompletedAt = &completedAt
	if !t.transition(ctx, job, models.JobStatusCompleted) {
		job.PredictionMap, job.Metrics, job.Confidence = nil, nil, nil
		t.fail(ctx, job, "prediction result could not be stored")
		return
	}
	slog.Info("prediction job completed", "job_id", job.ID)
}

func (t *Tracker) execute(ctx context.Context, jobID string, req models.PredictionRequest) (*inference.Output, error) {
	paths, err := t.resolve(ctx, jobID, req)
	if err != nil {
		return nil, err
	}

	input, err := t.stage(paths)
	if err != nil {
		return nil, err
	}

	return t.model.Predict(ctx, input)
}

type assetPaths struct {
	urban         string
	temperature   string
	precipitation string
	historical    string
}

// resolve finds every referenced asset. All required assets are checked so
// the error names each missing one.
func (t *Tracker) resolve(ctx context.Context, jobID string, req models.PredictionRequest) (assetPaths, error) {
	var (
		paths   assetPaths
		missing []string
	)

	required := []struct {
		name, id, subdir string
		dst              *string
	}{
		{"urban", req.UrbanDataID, models.KindUrban, &paths.urban},
		{models.ClimateTemperature, req.TemperatureDataID, models.KindClimate, &paths.temperature},
		{models.ClimatePrecipitation, req.PrecipitationDataID, models.KindClimate, &paths.precipitation},
	}
	for _, a := range required {
		p, ok, err := t.files.Resolve(ctx, a.id, a.subdir)
		if err != nil {
			return paths, fmt.Errorf("resolving %s data: %w", a.name, err)
		}
		if !ok {
			missing = append(missing, a.name+"="+a.id)
			continue
		}
		*a.dst = p
	}
	if len(missing) > 0 {
		return paths, fmt.Errorf("one or more data files not found: %s", strings.Join(missing, ", "))
	}

	if id := req.HistoricalYieldDataID; id != nil && *id != "" {
		p, ok, err := t.files.Resolve(ctx, *id, models.KindHistoricalYield)
		switch {
		case err != nil:
			return paths, fmt.Errorf("resolving historical yield data: %w", err)
		case !ok:
			slog.Warn("historical yield data not found, continuing without it", "job_id", jobID, "historical_yield_id", *id)
		default:
			paths.historical = p
		}
	}

	return paths, nil
}

// stage loads all resolved assets concurrently.
func (t *Tracker) stage(paths assetPaths) (staging.ModelInput, error) {
	var (
		g                        errgroup.Group
		urban                    *staging.RasterData
		temp, precip, historical *staging.GridData
	)

	g.Go(guard(func() (err error) {
		urban, err = t.stager.StageRaster(paths.urban)
		return err
	}))
	g.Go(guard(func() (err error) {
		temp, err = t.stager.StageGridSeries(paths.temperature, hintTemperature)
		return err
	}))
	g.Go(guard(func() (err error) {
		precip, err = t.stager.StageGridSeries(paths.precipitation, hintPrecipitation)
		return err
	}))
	if paths.historical != "" {
		g.Go(guard(func() (err error) {
			historical, err = t.stager.StageGridSeries(paths.historical, hintYield)
			return err
		}))
	}

	if err := g.Wait(); err != nil {
		return staging.ModelInput{}, err
	}
	return staging.AssembleModelInput(urban, temp, precip, historical), nil
}

// guard turns a panic in a staging goroutine into an error.
func guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}
}

func (t *Tracker) fail(ctx context.Context, job *models.PredictionJob, msg string) {
	job.Error = &msg
	completedAt := t.now()
	job.CompletedAt = &completedAt
	if t.transition(ctx, job, models.JobStatusFailed) {
		slog.Warn("prediction job failed", "job_id", job.ID, "error", msg)
	}
}

// transition writes job with status to the repository. It refuses moves that
// are not allowed from the job's current status and retries failed writes.
func (t *Tracker) transition(ctx context.Context, job *models.PredictionJob, status string) bool {
	from := job.Status
	if !models.CanTransition(from, status) {
		slog.Error("refusing job status transition", "job_id", job.ID, "from", from, "to", status)
		return false
	}

	job.Status = status
	if err := t.put(ctx, job); err != nil {
		job.Status = from
		slog.Error("failed to update job", "job_id", job.ID, "status", status, "error", err)
		return false
	}
	return true
}

func (t *Tracker) put(ctx context.Context, job *models.PredictionJob) error {
	wait := t.backoff
	var err error
	for attempt := 1; ; attempt++ {
		err = t.jobs.PutJob(ctx, job)
		if err == nil || errors.Is(err, store.ErrInvalidTransition) || attempt == writeAttempts {
			return err
		}
		slog.Warn("job update failed, retrying", "job_id", job.ID, "status", job.Status, "attempt", attempt, "error", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
		wait *= 2
	}
}

// failUnstarted fails a job whose move to processing was not confirmed. The
// repository is consulted because an unacknowledged write may have landed.
func (t *Tracker) failUnstarted(ctx context.Context, job *models.PredictionJob, msg string) {
	if !t.transition(ctx, job, models.JobStatusProcessing) {
		cur, err := t.jobs.GetJob(ctx, job.ID)
		if err != nil || cur.Status != models.JobStatusProcessing {
			slog.Error("prediction job left unfinished", "job_id", job.ID, "error", err)
			return
		}
		job.Status = cur.Status
	}
	t.fail(ctx, job, msg)
}

// abandon fails a job that could not be scheduled.
func (t *Tracker) abandon(ctx context.Context, job *models.PredictionJob, cause error) {
	msg := "job could not be scheduled"
	if errors.Is(cause, ErrPoolClosed) {
		msg = "server is shutting down"
	}
	t.failUnstarted(ctx, job, msg)
}

func (t *Tracker) forget(id string) {
	t.mu.Lock()
	delete(t.handles, id)
	t.mu.Unlock()
}
