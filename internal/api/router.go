package api

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/courtdata/fastbreak/internal/api/handlers"
	"github.com/courtdata/fastbreak/pkg/logger"
)

// NewRouter wires the serving routes. Artifact bodies are public and
// cacheable; the /api surface is for operators.
func NewRouter(artifacts *handlers.ArtifactHandler, pipeline *handlers.PipelineHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// The literal index route must win over the {type} template.
	r.HandleFunc("/artifacts/index/latest.json", artifacts.GetIndex).Methods("GET")
	r.HandleFunc("/artifacts/{type}/{date}/{id}.json", artifacts.GetArtifact).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/pipeline/status", pipeline.GetStatus).Methods("GET")

	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "fastbreak-api",
	})
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware turns handler panics into 500 responses.
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
