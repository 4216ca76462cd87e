package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/refresh", s.handleRefresh)

		// Thermostat endpoints
		r.Route("/thermostats", func(r chi.Router) {
			r.Get("/", s.handleListThermostats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetThermostat)
				r.Get("/zones", s.handleListThermostatZones)
				r.Put("/fan-mode", s.handleSetFanMode)
				r.Put("/fan-speed", s.handleSetFanSpeed)
				r.Put("/air-cleaner", s.handleSetAirCleaner)
				r.Put("/humidity", s.handleSetHumidity)
				r.Put("/emergency-heat", s.handleSetEmergencyHeat)
				r.Put("/follow-schedule", s.handleSetFollowSchedule)
			})
		})

		// Zone endpoints
		r.Route("/zones/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetZone)
			r.Get("/readings", s.handleListZoneReadings)
			r.Put("/mode", s.handleSetZoneMode)
			r.Put("/setpoints", s.handleSetZoneSetpoints)
			r.Put("/preset", s.handleSetZonePreset)
			r.Post("/hold", s.handlePermanentHold)
			r.Post("/return-to-schedule", s.handleReturnToSchedule)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var lastUpdate string
	if t := s.client.LastUpdate(); !t.IsZero() {
		lastUpdate = t.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"last_update": lastUpdate,
	})
}

// handleRefresh forces an immediate snapshot fetch from the cloud.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Refresh(r.Context()); err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"last_update": s.client.LastUpdate().UTC().Format(time.RFC3339),
	})
}
