package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-nexia/internal/nexia"
)

// zoneResponse is the API representation of a zone.
type zoneResponse struct {
	ID              int64    `json:"id"`
	ThermostatID    int64    `json:"thermostat_id"`
	Name            string   `json:"name,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	HeatingSetpoint *float64 `json:"heating_setpoint,omitempty"`
	CoolingSetpoint *float64 `json:"cooling_setpoint,omitempty"`
	Mode            string   `json:"mode,omitempty"`
	RequestedMode   string   `json:"requested_mode,omitempty"`
	Status          string   `json:"status,omitempty"`
	Preset          string   `json:"preset,omitempty"`
	RunMode         string   `json:"run_mode,omitempty"`
	PermanentHold   bool     `json:"permanent_hold"`
	Calling         bool     `json:"calling"`
	SetpointStatus  string   `json:"setpoint_status,omitempty"`
}

// buildZoneResponse harvests the readable fields of a zone.
func buildZoneResponse(z *nexia.Zone) zoneResponse {
	resp := zoneResponse{
		ID:            z.ID(),
		ThermostatID:  z.Thermostat().ID(),
		PermanentHold: z.IsInPermanentHold(),
		Calling:       z.IsCalling(),
	}
	resp.Name, _ = z.Name()
	resp.Mode, _ = z.CurrentMode()
	resp.RequestedMode, _ = z.RequestedMode()
	resp.Status, _ = z.Status()
	resp.Preset, _ = z.Preset()
	resp.RunMode, _ = z.RunMode()
	resp.SetpointStatus, _ = z.SetpointStatus()

	if temp, err := z.Temperature(); err == nil {
		resp.Temperature = &temp
	}
	if heat, err := z.HeatingSetpoint(); err == nil {
		resp.HeatingSetpoint = &heat
	}
	if cool, err := z.CoolingSetpoint(); err == nil {
		resp.CoolingSetpoint = &cool
	}
	return resp
}

// handleGetZone returns one zone by cloud id.
func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	zone, ok := s.zoneFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, buildZoneResponse(zone))
}

// handleListZoneReadings returns recorded samples for a zone, newest first.
func (s *Server) handleListZoneReadings(w http.ResponseWriter, r *http.Request) {
	if s.readings == nil {
		writeNotFound(w, "reading history is not enabled")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid zone id")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
	}

	readings, err := s.readings.ListByZone(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"count":    len(readings),
	})
}

// =============================================================================
// Zone Controls
// =============================================================================

func (s *Server) handleSetZoneMode(w http.ResponseWriter, r *http.Request) {
	zone, ok := s.zoneFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := zone.SetMode(r.Context(), req.Mode); err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildZoneResponse(zone))
}

func (s *Server) handleSetZoneSetpoints(w http.ResponseWriter, r *http.Request) {
	zone, ok := s.zoneFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Heat   *float64 `json:"heat"`
		Cool   *float64 `json:"cool"`
		Target *float64 `json:"target"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := zone.SetSetpoints(r.Context(), req.Heat, req.Cool, req.Target); err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildZoneResponse(zone))
}

func (s *Server) handleSetZonePreset(w http.ResponseWriter, r *http.Request) {
	zone, ok := s.zoneFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Preset string `json:"preset"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := zone.SetPreset(r.Context(), req.Preset); err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildZoneResponse(zone))
}

func (s *Server) handlePermanentHold(w http.ResponseWriter, r *http.Request) {
	zone, ok := s.zoneFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Heat *float64 `json:"heat"`
		Cool *float64 `json:"cool"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := zone.PermanentHold(r.Context(), req.Heat, req.Cool); err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildZoneResponse(zone))
}

func (s *Server) handleReturnToSchedule(w http.ResponseWriter, r *http.Request) {
	zone, ok := s.zoneFromPath(w, r)
	if !ok {
		return
	}
	if err := zone.ReturnToSchedule(r.Context()); err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildZoneResponse(zone))
}

// zoneFromPath resolves the {id} path parameter to a zone, writing the
// error response on failure.
func (s *Server) zoneFromPath(w http.ResponseWriter, r *http.Request) (*nexia.Zone, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid zone id")
		return nil, false
	}
	zone, err := s.client.Zone(r.Context(), id)
	if err != nil {
		writeCloudError(w, err)
		return nil, false
	}
	return zone, true
}
