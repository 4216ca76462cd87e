package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-nexia/internal/nexia"
)

// thermostatResponse is the API representation of a thermostat.
// Capability-dependent fields are omitted when the device lacks them.
type thermostatResponse struct {
	ID                  int64          `json:"id"`
	Name                string         `json:"name,omitempty"`
	Model               string         `json:"model,omitempty"`
	FirmwareVersion     string         `json:"firmware_version,omitempty"`
	DeviceID            string         `json:"device_id,omitempty"`
	Unit                string         `json:"unit,omitempty"`
	SystemStatus        string         `json:"system_status,omitempty"`
	BlowerActive        bool           `json:"blower_active"`
	FanMode             string         `json:"fan_mode,omitempty"`
	FanSpeed            *float64       `json:"fan_speed,omitempty"`
	AirCleanerMode      string         `json:"air_cleaner_mode,omitempty"`
	OutdoorTemperature  *float64       `json:"outdoor_temperature,omitempty"`
	IndoorHumidity      *float64       `json:"indoor_humidity,omitempty"`
	CompressorSpeed     *float64       `json:"compressor_speed,omitempty"`
	EmergencyHeatActive *bool          `json:"emergency_heat_active,omitempty"`
	HumidifySetpoint    *float64       `json:"humidify_setpoint,omitempty"`
	DehumidifySetpoint  *float64       `json:"dehumidify_setpoint,omitempty"`
	Zones               []zoneResponse `json:"zones,omitempty"`
}

// buildThermostatResponse harvests the readable fields of a thermostat.
// Accessor failures leave the field empty rather than failing the request.
func buildThermostatResponse(t *nexia.Thermostat, includeZones bool) thermostatResponse {
	resp := thermostatResponse{
		ID:           t.ID(),
		BlowerActive: t.IsBlowerActive(),
	}
	resp.Name, _ = t.Name()
	resp.Model, _ = t.Model()
	resp.FirmwareVersion, _ = t.FirmwareVersion()
	resp.DeviceID, _ = t.DeviceID()
	resp.Unit, _ = t.Unit()
	resp.SystemStatus, _ = t.SystemStatus()
	resp.FanMode, _ = t.FanMode()

	if t.HasRelativeHumidity() {
		if humidity, err := t.RelativeHumidity(); err == nil {
			resp.IndoorHumidity = &humidity
		}
	}
	if t.HasVariableFanSpeed() {
		if speed, err := t.FanSpeedSetpoint(); err == nil {
			resp.FanSpeed = &speed
		}
	}
	if t.HasAirCleaner() {
		resp.AirCleanerMode, _ = t.AirCleanerMode()
	}
	if t.HasOutdoorTemperature() {
		if temp, err := t.OutdoorTemperature(); err == nil && !math.IsNaN(temp) {
			resp.OutdoorTemperature = &temp
		}
	}
	if t.HasVariableSpeedCompressor() {
		speed := t.CompressorSpeed()
		resp.CompressorSpeed = &speed
	}
	if t.HasEmergencyHeat() {
		if active, err := t.IsEmergencyHeatActive(); err == nil {
			resp.EmergencyHeatActive = &active
		}
	}
	if t.HasHumidifySupport() {
		if setpoint, err := t.HumidifySetpoint(); err == nil {
			resp.HumidifySetpoint = &setpoint
		}
	}
	if t.HasDehumidifySupport() {
		if setpoint, err := t.DehumidifySetpoint(); err == nil {
			resp.DehumidifySetpoint = &setpoint
		}
	}

	if includeZones {
		for _, zone := range t.Zones() {
			resp.Zones = append(resp.Zones, buildZoneResponse(zone))
		}
	}
	return resp
}

// handleListThermostats returns every thermostat in the house snapshot.
func (s *Server) handleListThermostats(w http.ResponseWriter, r *http.Request) {
	thermostats, err := s.client.Thermostats(r.Context())
	if err != nil {
		writeCloudError(w, err)
		return
	}

	responses := make([]thermostatResponse, 0, len(thermostats))
	for _, t := range thermostats {
		responses = append(responses, buildThermostatResponse(t, true))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thermostats": responses,
		"count":       len(responses),
	})
}

// handleGetThermostat returns one thermostat by cloud id.
func (s *Server) handleGetThermostat(w http.ResponseWriter, r *http.Request) {
	t, ok := s.thermostatFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, buildThermostatResponse(t, true))
}

// handleListThermostatZones returns the zones of one thermostat.
func (s *Server) handleListThermostatZones(w http.ResponseWriter, r *http.Request) {
	t, ok := s.thermostatFromPath(w, r)
	if !ok {
		return
	}

	zones := t.Zones()
	responses := make([]zoneResponse, 0, len(zones))
	for _, zone := range zones {
		responses = append(responses, buildZoneResponse(zone))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"zones": responses,
		"count": len(responses),
	})
}

// =============================================================================
// Thermostat Controls
// =============================================================================

func (s *Server) handleSetFanMode(w http.ResponseWriter, r *http.Request) {
	t, ok := s.thermostatFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := t.SetFanMode(r.Context(), req.Mode); err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildThermostatResponse(t, false))
}

func (s *Server) handleSetFanSpeed(w http.ResponseWriter, r *http.Request) {
	t, ok := s.thermostatFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Speed *float64 `json:"speed"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Speed == nil {
		writeBadRequest(w, "speed is required")
		return
	}
	if err := t.SetFanSpeedSetpoint(r.Context(), *req.Speed); err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildThermostatResponse(t, false))
}

func (s *Server) handleSetAirCleaner(w http.ResponseWriter, r *http.Request) {
	t, ok := s.thermostatFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := t.SetAirCleanerMode(r.Context(), req.Mode); err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildThermostatResponse(t, false))
}

func (s *Server) handleSetHumidity(w http.ResponseWriter, r *http.Request) {
	t, ok := s.thermostatFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Humidify   *float64 `json:"humidify"`
		Dehumidify *float64 `json:"dehumidify"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Humidify == nil && req.Dehumidify == nil {
		writeBadRequest(w, "humidify or dehumidify is required")
		return
	}
	if err := t.SetHumiditySetpoints(r.Context(), req.Humidify, req.Dehumidify); err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildThermostatResponse(t, false))
}

func (s *Server) handleSetEmergencyHeat(w http.ResponseWriter, r *http.Request) {
	t, ok := s.thermostatFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		On *bool `json:"on"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.On == nil {
		writeBadRequest(w, "on is required")
		return
	}
	if err := t.SetEmergencyHeat(r.Context(), *req.On); err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildThermostatResponse(t, false))
}

func (s *Server) handleSetFollowSchedule(w http.ResponseWriter, r *http.Request) {
	t, ok := s.thermostatFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		Follow *bool `json:"follow"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Follow == nil {
		writeBadRequest(w, "follow is required")
		return
	}
	if err := t.SetFollowSchedule(r.Context(), *req.Follow); err != nil {
		writeCloudError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buildThermostatResponse(t, false))
}

// =============================================================================
// Helpers
// =============================================================================

// thermostatFromPath resolves the {id} path parameter to a thermostat,
// writing the error response on failure.
func (s *Server) thermostatFromPath(w http.ResponseWriter, r *http.Request) (*nexia.Thermostat, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid thermostat id")
		return nil, false
	}
	t, err := s.client.Thermostat(r.Context(), id)
	if err != nil {
		writeCloudError(w, err)
		return nil, false
	}
	return t, true
}

// decodeBody decodes a JSON request body, writing a 400 response on failure.
// An empty body decodes to the zero value so optional payloads stay optional.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid request body")
		return false
	}
	return true
}
