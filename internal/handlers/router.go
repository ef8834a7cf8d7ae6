package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/maneesh/voicehub/internal/auth"
	"github.com/maneesh/voicehub/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RouterConfig wires the HTTP surface. Metrics and Checks are optional.
type RouterConfig struct {
	Service  UploadService
	Verifier auth.Verifier
	Metrics  *metrics.Metrics
	Checks   map[string]Pinger
}

// NewRouter builds the API router
func NewRouter(cfg RouterConfig) *mux.Router {
	writeHandler := NewWriteHandler(cfg.Service)
	readHandler := NewReadHandler(cfg.Service, cfg.Checks)
	requireAuth := auth.Middleware(cfg.Verifier)

	router := mux.NewRouter()
	router.Use(Recoverer, LogRequest)
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware)
	}
	router.Use(CORS)

	// Health check and metrics endpoints (no tracing needed)
	router.HandleFunc("/health", readHandler.Health).Methods("GET")
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics.Handler()).Methods("GET")
	}

	// Upload operations with tracing
	route := func(path, method string, h http.HandlerFunc) {
		router.Handle(path, otelhttp.NewHandler(requireAuth(h), method+" "+path)).Methods(method)
	}

	route("/api/upload/chunked", http.MethodPost, writeHandler.Initiate)
	route("/api/upload/chunked", http.MethodPut, writeHandler.Complete)
	route("/api/upload/chunked", http.MethodDelete, writeHandler.Abort)
	route("/api/upload/chunked/sign", http.MethodPost, writeHandler.SignParts)
	route("/api/upload", http.MethodPost, writeHandler.UploadSmall)
	route("/api/upload", http.MethodDelete, writeHandler.DeleteObject)
	route("/api/upload", http.MethodGet, readHandler.ListObjects)

	// Preflight is answered by the CORS middleware once a route matches.
	for _, path := range []string{"/api/upload/chunked", "/api/upload/chunked/sign", "/api/upload"} {
		router.HandleFunc(path, preflight).Methods(http.MethodOptions)
	}

	return router
}

func preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
