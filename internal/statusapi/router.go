package statusapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sevigo/audit-scanner/internal/statusapi/handler"
	"github.com/sevigo/audit-scanner/internal/storage"
)

// NewRouter builds the status API's chi router: health, fleet status, and
// Prometheus scrape, adapted from the teacher's internal/server/router.go
// middleware stack onto a read-only observability surface.
func NewRouter(store storage.Store, gatherer prometheus.Gatherer, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		statusHandler := handler.NewStatusHandler(store, logger)
		r.Get("/status", statusHandler.List)
	})

	return r
}
