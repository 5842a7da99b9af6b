package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/health"
	v "github.com/keithlinneman/linnemanlabs-monitoring/internal/version"
)

type statusResponse struct {
	App      string `json:"app"`
	Build    v.Info `json:"build"`
	Host     string `json:"host"`
	Draining bool   `json:"draining"`
}

// statusRoutes registers the one business route the host serves.
func statusRoutes(vi v.Info, gate *health.ShutdownGate) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/api/v1/status", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			_ = json.NewEncoder(w).Encode(statusResponse{
				App:      appName,
				Build:    vi,
				Host:     health.MachineName(),
				Draining: gate.Draining(),
			})
		})
	}
}
