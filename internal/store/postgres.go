package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urban-yield/urban-api/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, status, prediction_map, metrics, confidence, error, created_at, completed_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.PredictionJob) error {
	metrics, err := jsonParam(job.Metrics)
	if err != nil {
		return fmt.Errorf("encode job metrics: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO prediction_jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.Status, job.PredictionMap, metrics, job.Confidence, job.Error, job.CreatedAt, job.CompletedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*models.PredictionJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM prediction_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) PutJob(ctx context.Context, job *models.PredictionJob) error {
	metrics, err := jsonParam(job.Metrics)
	if err != nil {
		return fmt.Errorf("encode job metrics: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin put job: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM prediction_jobs WHERE id = $1 FOR UPDATE`, job.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	if err := checkTransition(current, job.Status); err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE prediction_jobs
		 SET status = $2, prediction_map = $3, metrics = $4, confidence = $5, error = $6, completed_at = $7
		 WHERE id = $1`,
		job.ID, job.Status, job.PredictionMap, metrics, job.Confidence, job.Error, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListJobs(ctx context.Context) ([]*models.PredictionJob, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM prediction_jobs ORDER BY created_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.PredictionJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*models.PredictionJob, error) {
	var j models.PredictionJob
	var metrics []byte
	if err := row.Scan(&j.ID, &j.Status, &j.PredictionMap, &metrics, &j.Confidence, &j.Error,
		&j.CreatedAt, &j.CompletedAt); err != nil {
		return nil, err
	}
	if len(metrics) > 0 {
		var m models.ModelMetrics
		if err := json.Unmarshal(metrics, &m); err != nil {
			return nil, fmt.Errorf("decode job metrics: %w", err)
		}
		j.Metrics = &m
	}
	return &j, nil
}

// --- Scenarios ---

const scenarioColumns = `id, name, description, urban_data, climate_data, historical_yields, predictions, created_at, updated_at`

func (s *PostgresStore) CreateScenario(ctx context.Context, sc *models.Scenario) error {
	args, err := scenarioArgs(sc)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO scenarios (`+scenarioColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, args...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create scenario: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetScenario(ctx context.Context, id string) (*models.Scenario, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+scenarioColumns+` FROM scenarios WHERE id = $1`, id)
	sc, err := scanScenario(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scenario: %w", err)
	}
	return sc, nil
}

func (s *PostgresStore) ListScenarios(ctx context.Context) ([]*models.Scenario, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+scenarioColumns+` FROM scenarios ORDER BY created_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	out := []*models.Scenario{}
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutScenario(ctx context.Context, sc *models.Scenario) error {
	args, err := scenarioArgs(sc)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE scenarios
		 SET name = $2, description = $3, urban_data = $4, climate_data = $5,
		     historical_yields = $6, predictions = $7, created_at = $8, updated_at = $9
		 WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update scenario: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteScenario(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scenarios WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete scenario: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scenarioArgs(sc *models.Scenario) ([]any, error) {
	urban, err := jsonParam(sc.UrbanData)
	if err != nil {
		return nil, fmt.Errorf("encode urban data: %w", err)
	}
	climate, err := jsonParam(sc.ClimateData)
	if err != nil {
		return nil, fmt.Errorf("encode climate data: %w", err)
	}
	yields, err := jsonParam(sc.HistoricalYields)
	if err != nil {
		return nil, fmt.Errorf("encode historical yields: %w", err)
	}
	preds := sc.Predictions
	if preds == nil {
		preds = []models.PredictionJob{}
	}
	predictions, err := jsonParam(preds)
	if err != nil {
		return nil, fmt.Errorf("encode predictions: %w", err)
	}
	return []any{sc.ID, sc.Name, sc.Description, urban, climate, yields, predictions, sc.CreatedAt, sc.UpdatedAt}, nil
}

func scanScenario(row pgx.Row) (*models.Scenario, error) {
	var sc models.Scenario
	var urban, climate, yields, predictions []byte
	if err := row.Scan(&sc.ID, &sc.Name, &sc.Description, &urban, &climate, &yields, &predictions,
		&sc.CreatedAt, &sc.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(urban, &sc.UrbanData); err != nil {
		return nil, fmt.Errorf("decode urban data: %w", err)
	}
	if err := json.Unmarshal(climate, &sc.ClimateData); err != nil {
		return nil, fmt.Errorf("decode climate data: %w", err)
	}
	if len(yields) > 0 {
		if err := json.Unmarshal(yields, &sc.HistoricalYields); err != nil {
			return nil, fmt.Errorf("decode historical yields: %w", err)
		}
	}
	sc.Predictions = []models.PredictionJob{}
	if len(predictions) > 0 {
		if err := json.Unmarshal(predictions, &sc.Predictions); err != nil {
			return nil, fmt.Errorf("decode predictions: %w", err)
		}
	}
	return &sc, nil
}

// jsonParam encodes v for a JSONB column. A nil value maps to SQL NULL.
func jsonParam(v any) (*string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	s := string(b)
	return &s, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
