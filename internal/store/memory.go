package store

import (
	"context"
	"sync"

	"github.com/urban-yield/urban-api/pkg/models"
)

// MemoryStore implements Store with mutex-guarded maps. Records are kept in
// insertion order and every read returns a copy, so pollers see snapshots.
// Contents are lost when the process exits.
type MemoryStore struct {
	mu sync.RWMutex

	jobs     map[string]*models.PredictionJob
	jobOrder []string

	scenarios     map[string]*models.Scenario
	scenarioOrder []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*models.PredictionJob),
		scenarios: make(map[string]*models.Scenario),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// --- Jobs ---

func (s *MemoryStore) CreateJob(ctx context.Context, job *models.PredictionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrDuplicateKey
	}
	s.jobs[job.ID] = job.Clone()
	s.jobOrder = append(s.jobOrder, job.ID)
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*models.PredictionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

func (s *MemoryStore) PutJob(ctx context.Context, job *models.PredictionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if err := checkTransition(cur.Status, job.Status); err != nil {
		return err
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) ListJobs(ctx context.Context) ([]*models.PredictionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.PredictionJob, 0, len(s.jobOrder))
	for _, id := range s.jobOrder {
		out = append(out, s.jobs[id].Clone())
	}
	return out, nil
}

// --- Scenarios ---

func (s *MemoryStore) CreateScenario(ctx context.Context, sc *models.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scenarios[sc.ID]; ok {
		return ErrDuplicateKey
	}
	s.scenarios[sc.ID] = cloneScenario(sc)
	s.scenarioOrder = append(s.scenarioOrder, sc.ID)
	return nil
}

func (s *MemoryStore) GetScenario(ctx context.Context, id string) (*models.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scenarios[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneScenario(sc), nil
}

func (s *MemoryStore) ListScenarios(ctx context.Context) ([]*models.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Scenario, 0, len(s.scenarioOrder))
	for _, id := range s.scenarioOrder {
		out = append(out, cloneScenario(s.scenarios[id]))
	}
	return out, nil
}

func (s *MemoryStore) PutScenario(ctx context.Context, sc *models.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scenarios[sc.ID]; !ok {
		return ErrNotFound
	}
	s.scenarios[sc.ID] = cloneScenario(sc)
	return nil
}

func (s *MemoryStore) DeleteScenario(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scenarios[id]; !ok {
		return ErrNotFound
	}
	delete(s.scenarios, id)
	for i, sid := range s.scenarioOrder {
		if sid == id {
			s.scenarioOrder = append(s.scenarioOrder[:i], s.scenarioOrder[i+1:]...)
			break
		}
	}
	return nil
}
