package models

import "time"

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// validTransitions lists the only status moves a prediction job may make.
var validTransitions = map[string][]string{
	JobStatusPending:    {JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status is completed or failed.
func IsTerminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// ModelMetrics are the error metrics reported by the inference service.
type ModelMetrics struct {
	MAE      float64  `json:"mae"`
	RMSE     float64  `json:"rmse"`
	MSE      float64  `json:"mse"`
	Accuracy *float64 `json:"accuracy"`
}

// PredictionJob tracks an async crop-yield prediction. POST /api/predictions returns it
// in pending state; the client polls GET /api/predictions/{id} until it is completed or failed.
// CompletedAt is set on both terminal paths.
type PredictionJob struct {
	ID            string        `db:"id"             json:"id"`
	Status        string        `db:"status"         json:"status"`
	PredictionMap *string       `db:"prediction_map" json:"predictionMap"`
	Metrics       *ModelMetrics `db:"metrics"        json:"metrics"`
	Confidence    *float64      `db:"confidence"     json:"confidence"`
	CreatedAt     time.Time     `db:"created_at"     json:"createdAt"`
	CompletedAt   *time.Time    `db:"completed_at"   json:"completedAt"`
	Error         *string       `db:"error"          json:"error"`
}

// Clone returns a deep copy so callers never share pointer fields with a repository.
func (j *PredictionJob) Clone() *PredictionJob {
	if j == nil {
		return nil
	}
	c := *j
	if j.PredictionMap != nil {
		v := *j.PredictionMap
		c.PredictionMap = &v
	}
	if j.Metrics != nil {
		m := *j.Metrics
		if j.Metrics.Accuracy != nil {
			a := *j.Metrics.Accuracy
			m.Accuracy = &a
		}
		c.Metrics = &m
	}
	if j.Confidence != nil {
		v := *j.Confidence
		c.Confidence = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		c.CompletedAt = &v
	}
	if j.Error != nil {
		v := *j.Error
		c.Error = &v
	}
	return &c
}
