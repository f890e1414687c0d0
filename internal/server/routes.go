package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerd/ledgerd/internal/task"
)

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(orch *task.Orchestrator) http.Handler {
	return newMux(orch)
}

func newMux(orch *task.Orchestrator) http.Handler {
	h := &handler{orch: orch}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /api/v1/jobs", h.enqueueJob)
	mux.HandleFunc("GET /api/v1/jobs", h.listActiveJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", h.getJob)
	mux.HandleFunc("DELETE /api/v1/jobs/{id}", h.cancelOrRemoveJob)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Apply middleware stack: recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
