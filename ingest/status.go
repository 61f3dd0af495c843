package ingest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/crewire/ingest/model"
)

// StatusHandler returns the operational HTTP surface: health, last-run
// summary, currently blocked sources, and Prometheus metrics.
func (s *Service) StatusHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status/summary", func(w http.ResponseWriter, _ *http.Request) {
		run := s.LastRun()
		if run == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no run completed yet"})
			return
		}
		writeJSON(w, http.StatusOK, run.Summary)
	})

	r.Get("/status/blocked", func(w http.ResponseWriter, _ *http.Request) {
		run := s.LastRun()
		if run == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no run completed yet"})
			return
		}
		writeJSON(w, http.StatusOK, run.Blocked)
	})

	r.Get("/status/results", func(w http.ResponseWriter, _ *http.Request) {
		run := s.LastRun()
		if run == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no run completed yet"})
			return
		}
		out := append([]model.FetchResult(nil), run.Results...)
		for i := range out {
			out[i].Items = nil // accounting only; the item list can be large
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
