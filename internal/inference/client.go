// Package inference calls the remote crop-yield model service.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urban-yield/urban-api/internal/staging"
	"github.com/urban-yield/urban-api/pkg/models"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 64 << 10

// Client is the interface for requesting predictions.
type Client interface {
	Predict(ctx context.Context, input staging.ModelInput) (*Output, error)
}

// Output is the subset of the model response a prediction job keeps.
type Output struct {
	PredictionMap *string
	Confidence    *float64
	Metrics       *models.ModelMetrics
}

// HTTPClient implements Client against the model service's HTTP API.
// There is no retry; a failed call fails the job.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new model service client. timeout bounds the whole
// exchange including reading the response.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Predict(ctx context.Context, input staging.ModelInput) (*Output, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding model input: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, classifyError(fmt.Errorf("decoding model response: %w", err))
	}
	return parseOutput(raw)
}

func parseOutput(raw map[string]json.RawMessage) (*Output, error) {
	out := &Output{}

	if pm, ok := raw["prediction_map"]; ok && !isNull(pm) {
		var s string
		if err := json.Unmarshal(pm, &s); err != nil {
			// Non-string maps are kept as their JSON text.
			s = string(pm)
		}
		out.PredictionMap = &s
	}

	if c, ok := raw["confidence"]; ok && !isNull(c) {
		var f float64
		if err := json.Unmarshal(c, &f); err != nil {
			return nil, fmt.Errorf("%w: confidence: %v", ErrUnavailable, err)
		}
		out.Confidence = &f
	}

	if m, ok := raw["metrics"]; ok && truthy(m) {
		// Values nested under metrics win; missing ones come from the top level.
		var nested map[string]json.RawMessage
		_ = json.Unmarshal(m, &nested)
		lookup := func(key string) (json.RawMessage, bool) {
			if v, ok := nested[key]; ok && !isNull(v) {
				return v, true
			}
			v, ok := raw[key]
			return v, ok && !isNull(v)
		}

		metrics := &models.ModelMetrics{}
		for key, dst := range map[string]*float64{"mae": &metrics.MAE, "rmse": &metrics.RMSE, "mse": &metrics.MSE} {
			if v, ok := lookup(key); ok {
				if err := json.Unmarshal(v, dst); err != nil {
					return nil, fmt.Errorf("%w: metric %s: %v", ErrUnavailable, key, err)
				}
			}
		}
		if v, ok := lookup("accuracy"); ok {
			var a float64
			if err := json.Unmarshal(v, &a); err != nil {
				return nil, fmt.Errorf("%w: metric accuracy: %v", ErrUnavailable, err)
			}
			metrics.Accuracy = &a
		}
		out.Metrics = metrics
	}

	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// truthy follows the usual JSON truthiness: null, false, 0, "" and empty
// containers are false.
func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return false
}
