package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/urban-yield/urban-api/internal/api"
	mw "github.com/urban-yield/urban-api/internal/api/middleware"
	"github.com/urban-yield/urban-api/internal/cache"
)

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

func okJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

func newTestRouter(t *testing.T, withAuth bool) http.Handler {
	t.Helper()
	deps := api.Dependencies{
		RateLimit:      mw.NewRateLimit(&stubCache{}, 60),
		AllowedOrigins: []string{"http://localhost:3000"},
		RootHandler:    okJSON(`{"message":"URBAN API"}`),
		HealthHandler:  okJSON(`{"status":"healthy"}`),
		ListPredictions: func(w http.ResponseWriter, r *http.Request) {
			client, _ := mw.GetClient(r)
			okJSON(`{"client":"` + client + `"}`)(w, r)
		},
	}
	if withAuth {
		h, err := bcrypt.GenerateFromPassword([]byte("urb_secret_key"), bcrypt.MinCost)
		require.NoError(t, err)
		deps.Auth = mw.NewAuth(string(h))
	}
	return api.NewRouter(deps)
}

func serve(router http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["detail"].(string)
}

func TestRouter_PublicEndpoints(t *testing.T) {
	router := newTestRouter(t, true)

	for _, path := range []string{"/", "/api/health"} {
		t.Run(path, func(t *testing.T) {
			w := serve(router, "GET", path, nil)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestRouter_SetsRequestID(t *testing.T) {
	router := newTestRouter(t, false)

	w := serve(router, "GET", "/api/health", http.Header{"X-Request-Id": {"req-123"}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t, true)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/upload/urban"},
		{"POST", "/api/upload/climate"},
		{"POST", "/api/upload/historical-yields"},
		{"POST", "/api/predictions"},
		{"GET", "/api/predictions"},
		{"GET", "/api/predictions/abc"},
		{"POST", "/api/scenarios"},
		{"GET", "/api/scenarios"},
		{"GET", "/api/scenarios/abc"},
		{"PATCH", "/api/scenarios/abc"},
		{"DELETE", "/api/scenarios/abc"},
		{"POST", "/api/scenarios/compare"},
		{"GET", "/api/analytics/region/r1"},
		{"GET", "/api/analytics/metrics"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := serve(router, ep.method, ep.path, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Missing or invalid Authorization header", detail(t, w))
		})
	}
}

func TestRouter_ValidKeyReachesHandler(t *testing.T) {
	router := newTestRouter(t, true)

	w := serve(router, "GET", "/api/predictions", http.Header{"Authorization": {"Bearer urb_secret_key"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"client":"urb_secr"}`, w.Body.String())
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_NoAuthConfiguredIsAnonymous(t *testing.T) {
	router := newTestRouter(t, false)

	w := serve(router, "GET", "/api/predictions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"client":"anonymous"}`, w.Body.String())
}

func TestRouter_UnwiredHandlerReturns501(t *testing.T) {
	router := newTestRouter(t, false)

	w := serve(router, "POST", "/api/scenarios/compare", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, "Not implemented", detail(t, w))
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t, false)

	w := serve(router, "GET", "/api/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not Found", detail(t, w))
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, false)

	w := serve(router, "PUT", "/api/predictions", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "Method Not Allowed", detail(t, w))
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t, true)

	w := serve(router, "OPTIONS", "/api/predictions", http.Header{
		"Origin":                        {"http://localhost:3000"},
		"Access-Control-Request-Method": {"POST"},
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

var _ cache.Cache = (*stubCache)(nil)
