package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edvin/shopvault/internal/maintenance"
)

// newRouter serves the daemon's small HTTP surface: liveness, Prometheus
// metrics, and the maintenance flag for the live service to poll.
func newRouter(reg *prometheus.Registry, coord *maintenance.Coordinator) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/maintenance", func(w http.ResponseWriter, _ *http.Request) {
		st, err := coord.State()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	})

	return r
}
