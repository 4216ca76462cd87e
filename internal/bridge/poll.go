package bridge

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/nerrad567/gray-logic-nexia/internal/history"
	"github.com/nerrad567/gray-logic-nexia/internal/nexia"
)

// pollOnce refreshes the cloud snapshot and publishes the resulting state.
//
// Every thermostat and zone gets a retained state message when its state
// changed since the last publish. Zone samples are recorded to the history
// store and forwarded to the metrics writer on every cycle.
func (b *Bridge) pollOnce(ctx context.Context) error {
	if err := b.client.Refresh(ctx); err != nil {
		b.pollErrors.Add(1)
		b.pollErrorStreak.Add(1)
		return err
	}
	b.pollErrorStreak.Store(0)
	b.pollsTotal.Add(1)

	thermostats, err := b.client.Thermostats(ctx)
	if err != nil {
		return err
	}

	zones := 0
	for _, thermostat := range thermostats {
		b.publishIfChanged(ThermostatAddress(thermostat.ID()), thermostatState(thermostat))
		b.writeThermostatMetrics(thermostat)

		for _, zone := range thermostat.Zones() {
			zones++
			b.publishIfChanged(ZoneAddress(zone.ID()), zoneState(zone))
			b.recordZoneSample(ctx, zone)
		}
	}

	b.thermostatCount.Store(int64(len(thermostats)))
	b.zoneCount.Store(int64(zones))
	b.lastPollUnixNano.Store(time.Now().UnixNano())

	b.logger.Debug("poll complete", "thermostats", len(thermostats), "zones", zones)
	return nil
}

// publishIfChanged publishes a retained state message unless the state is
// byte-identical to the last successful publish for this address.
func (b *Bridge) publishIfChanged(address string, state map[string]any) {
	key, err := json.Marshal(state)
	if err != nil {
		b.logger.Error("marshalling device state", "address", address, "error", err)
		return
	}

	b.publishedMu.Lock()
	unchanged := b.published[address] == string(key)
	b.publishedMu.Unlock()
	if unchanged {
		return
	}

	payload, err := json.Marshal(NewStateMessage(address, state))
	if err != nil {
		b.logger.Error("marshalling state message", "address", address, "error", err)
		return
	}
	topic := b.topics.BridgeState(ProtocolNexia, address)
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		// Cache stays stale so the next poll retries the publish.
		b.logger.Warn("publishing state", "topic", topic, "error", err)
		return
	}

	b.publishedMu.Lock()
	b.published[address] = string(key)
	b.publishedMu.Unlock()
}

// thermostatState builds the state payload for one thermostat. Fields the
// device does not report are omitted.
func thermostatState(t *nexia.Thermostat) map[string]any {
	state := map[string]any{
		"blower_active": t.IsBlowerActive(),
	}
	if name, err := t.Name(); err == nil {
		state["name"] = name
	}
	if status, err := t.SystemStatus(); err == nil {
		state["system_status"] = status
	}
	if mode, err := t.FanMode(); err == nil {
		state["fan_mode"] = mode
	}
	if unit, err := t.Unit(); err == nil {
		state["unit"] = unit
	}
	if t.HasRelativeHumidity() {
		if humidity, err := t.RelativeHumidity(); err == nil {
			state["indoor_humidity"] = humidity
		}
	}
	if t.HasVariableFanSpeed() {
		if speed, err := t.FanSpeedSetpoint(); err == nil {
			state["fan_speed"] = speed
		}
	}
	if t.HasAirCleaner() {
		if mode, err := t.AirCleanerMode(); err == nil {
			state["air_cleaner_mode"] = mode
		}
	}
	if t.HasOutdoorTemperature() {
		if temp, err := t.OutdoorTemperature(); err == nil && !math.IsNaN(temp) {
			state["outdoor_temperature"] = temp
		}
	}
	if t.HasVariableSpeedCompressor() {
		state["compressor_speed"] = t.CompressorSpeed()
		state["requested_compressor_speed"] = t.RequestedCompressorSpeed()
	}
	if t.HasEmergencyHeat() {
		if active, err := t.IsEmergencyHeatActive(); err == nil {
			state["emergency_heat_active"] = active
		}
	}
	return state
}

// zoneState builds the state payload for one zone.
func zoneState(z *nexia.Zone) map[string]any {
	state := map[string]any{
		"thermostat_id":  z.Thermostat().ID(),
		"calling":        z.IsCalling(),
		"permanent_hold": z.IsInPermanentHold(),
	}
	if name, err := z.Name(); err == nil {
		state["name"] = name
	}
	if temp, err := z.Temperature(); err == nil {
		state["temperature"] = temp
	}
	if heat, err := z.HeatingSetpoint(); err == nil {
		state["heating_setpoint"] = heat
	}
	if cool, err := z.CoolingSetpoint(); err == nil {
		state["cooling_setpoint"] = cool
	}
	if mode, err := z.CurrentMode(); err == nil {
		state["mode"] = mode
	}
	if mode, err := z.RequestedMode(); err == nil {
		state["requested_mode"] = mode
	}
	if status, err := z.Status(); err == nil {
		state["status"] = status
	}
	if preset, err := z.Preset(); err == nil {
		state["preset"] = preset
	}
	if setpointStatus, err := z.SetpointStatus(); err == nil {
		state["setpoint_status"] = setpointStatus
	}
	return state
}

// writeThermostatMetrics forwards thermostat samples to the metrics writer.
func (b *Bridge) writeThermostatMetrics(t *nexia.Thermostat) {
	if b.metrics == nil {
		return
	}
	if t.HasOutdoorTemperature() {
		if temp, err := t.OutdoorTemperature(); err == nil && !math.IsNaN(temp) {
			b.metrics.WriteThermostatMetric(t.ID(), "outdoor_temperature", temp)
		}
	}
	if t.HasRelativeHumidity() {
		if humidity, err := t.RelativeHumidity(); err == nil {
			b.metrics.WriteThermostatMetric(t.ID(), "indoor_humidity", humidity)
		}
	}
	if t.HasVariableSpeedCompressor() {
		b.metrics.WriteThermostatMetric(t.ID(), "compressor_speed", t.CompressorSpeed())
	}
}

// recordZoneSample stores one history row and one metrics point for a zone.
// A zone without a readable temperature is skipped.
func (b *Bridge) recordZoneSample(ctx context.Context, z *nexia.Zone) {
	temp, err := z.Temperature()
	if err != nil {
		return
	}
	heat, _ := z.HeatingSetpoint()
	cool, _ := z.CoolingSetpoint()
	mode, _ := z.CurrentMode()
	status, _ := z.Status()
	thermostatID := z.Thermostat().ID()

	if b.metrics != nil {
		b.metrics.WriteZoneReading(thermostatID, z.ID(), map[string]interface{}{
			"temperature":      temp,
			"heating_setpoint": heat,
			"cooling_setpoint": cool,
			"calling":          z.IsCalling(),
		})
	}

	if b.readings == nil {
		return
	}
	reading := &history.ZoneReading{
		ZoneID:          z.ID(),
		ThermostatID:    thermostatID,
		Temperature:     temp,
		HeatingSetpoint: heat,
		CoolingSetpoint: cool,
		Mode:            mode,
		Status:          status,
	}
	if err := b.readings.Record(ctx, reading); err != nil {
		b.logger.Warn("recording zone reading", "zone_id", z.ID(), "error", err)
	}
}
