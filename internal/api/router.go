package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/harvest/backend/internal/api/handlers"
	"github.com/wonny/harvest/backend/pkg/logger"
)

// Handlers groups every endpoint handler
type Handlers struct {
	Verification *handlers.VerificationHandler
	Forecast     *handlers.ForecastHandler
	Jobs         *handlers.JobHandler
}

// NewRouter creates and configures the HTTP router. gatherer may be nil.
// ⭐ SSOT: routes are declared in this function only
func NewRouter(h Handlers, gatherer prometheus.Gatherer, log *logger.Logger) http.Handler {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	// Subrouters resolve method mismatches on their own
	api.MethodNotAllowedHandler = r.MethodNotAllowedHandler

	// Upstream records service
	api.HandleFunc("/verification/events", h.Verification.PostEvent).Methods("POST")

	// Forecast output
	api.HandleFunc("/forecasts/current", h.Forecast.GetCurrent).Methods("GET")
	api.HandleFunc("/forecasts/export.csv", h.Forecast.ExportCSV).Methods("GET")
	api.HandleFunc("/forecasts/chart", h.Forecast.GetChart).Methods("GET")
	api.HandleFunc("/forecasts/full-run", h.Forecast.TriggerFullRun).Methods("POST")
	api.HandleFunc("/batches", h.Forecast.ListBatches).Methods("GET")

	// Retraining jobs
	api.HandleFunc("/jobs", h.Jobs.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.Jobs.GetJob).Methods("GET")
	r.HandleFunc("/ws/jobs", h.Jobs.Stream).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "harvest-forecast-api",
	})
}

// methodNotAllowedHandler answers a known path hit with the wrong method
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "Method not allowed",
	})
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the hijacker
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Websocket upgrades need the raw writer
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
