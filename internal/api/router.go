package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	mw "github.com/urban-yield/urban-api/internal/api/middleware"
	"github.com/urban-yield/urban-api/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth           *mw.Auth
	RateLimit      *mw.RateLimit
	AllowedOrigins []string

	RootHandler   http.HandlerFunc
	HealthHandler http.HandlerFunc

	UploadUrban            http.HandlerFunc
	UploadClimate          http.HandlerFunc
	UploadHistoricalYields http.HandlerFunc

	CreatePrediction http.HandlerFunc
	GetPrediction    http.HandlerFunc
	ListPredictions  http.HandlerFunc

	CreateScenario   http.HandlerFunc
	ListScenarios    http.HandlerFunc
	GetScenario      http.HandlerFunc
	PatchScenario    http.HandlerFunc
	DeleteScenario   http.HandlerFunc
	CompareScenarios http.HandlerFunc

	RegionAnalytics http.HandlerFunc
	ModelMetrics    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if len(deps.AllowedOrigins) > 0 {
		r.Use(mw.CORS(deps.AllowedOrigins))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	// Public
	r.Get("/", orNotImplemented(deps.RootHandler))
	r.Get("/api/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Route("/api/upload", func(r chi.Router) {
			r.Post("/urban", orNotImplemented(deps.UploadUrban))
			r.Post("/climate", orNotImplemented(deps.UploadClimate))
			r.Post("/historical-yields", orNotImplemented(deps.UploadHistoricalYields))
		})

		r.Route("/api/predictions", func(r chi.Router) {
			r.Post("/", orNotImplemented(deps.CreatePrediction))
			r.Get("/", orNotImplemented(deps.ListPredictions))
			r.Get("/{predictionID}", orNotImplemented(deps.GetPrediction))
		})

		r.Route("/api/scenarios", func(r chi.Router) {
			r.Post("/", orNotImplemented(deps.CreateScenario))
			r.Get("/", orNotImplemented(deps.ListScenarios))
			r.Post("/compare", orNotImplemented(deps.CompareScenarios))
			r.Get("/{scenarioID}", orNotImplemented(deps.GetScenario))
			r.Patch("/{scenarioID}", orNotImplemented(deps.PatchScenario))
			r.Delete("/{scenarioID}", orNotImplemented(deps.DeleteScenario))
		})

		r.Get("/api/analytics/region/{regionID}", orNotImplemented(deps.RegionAnalytics))
		r.Get("/api/analytics/metrics", orNotImplemented(deps.ModelMetrics))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotImplemented, "Not implemented")
	}
}
