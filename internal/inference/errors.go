package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for inference failures.
var (
	ErrTimeout     = errors.New("model prediction request timed out")
	ErrUnavailable = errors.New("error calling model service")
)

// RemoteError is a non-2xx answer from the model service.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("model service error: %s", e.Body)
}

// HTTPStatus maps an inference error to the status code a caller should
// surface: 504 for timeouts, the remote status for remote errors, 500 otherwise.
func HTTPStatus(err error) int {
	var re *RemoteError
	switch {
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &re):
		return re.StatusCode
	default:
		return http.StatusInternalServerError
	}
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
