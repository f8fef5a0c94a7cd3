// Package adminhttp exposes the operational surface of the service —
// health, readiness, liveness, and Prometheus metrics — over HTTP. The
// archive upload/restore API itself lives elsewhere (or, for a given
// deployment, isn't HTTP at all); this package only wires the routes an
// orchestrator or scrape target needs.
package adminhttp

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/splitstore/internal/metrics"
	"github.com/kenneth/splitstore/internal/middleware"
	"github.com/kenneth/splitstore/internal/store"
)

// Server holds the dependencies the admin routes check or report on.
type Server struct {
	Store   store.ArchiveStore
	Metrics *metrics.Metrics
	Logger  *logrus.Logger
}

// NewRouter builds the admin mux with logging and panic recovery
// wrapped around every route, mirroring the teacher's RegisterRoutes
// wiring.
func NewRouter(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(s.Logger))
	r.Use(middleware.RecoveryMiddleware(s.Logger))

	r.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", metrics.ReadinessHandler(s.storeHealthCheck)).Methods(http.MethodGet)
	r.HandleFunc("/live", metrics.LivenessHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)

	return r
}

// storeHealthCheck reports whether the document store is reachable by
// running its cheapest query (the scheduler's own queued-work check).
func (s *Server) storeHealthCheck(ctx context.Context) error {
	_, err := s.Store.HasQueuedWork(ctx)
	return err
}
