package nexia

import (
	"fmt"
	"math"
	"strings"
)

// ID returns the thermostat's cloud identifier.
func (t *Thermostat) ID() int64 {
	v, _ := t.attr("id")
	id, _ := asInt64(v)
	return id
}

// Name returns the thermostat's user-assigned name.
func (t *Thermostat) Name() (string, error) {
	v, ok := t.attr("name")
	if !ok {
		return "", fmt.Errorf("%w: name", ErrKeyNotFound)
	}
	s, _ := asString(v)
	return s, nil
}

// Model returns the hardware model string.
func (t *Thermostat) Model() (string, error) {
	return t.advancedInfo("Model")
}

// FirmwareVersion returns the firmware version string.
func (t *Thermostat) FirmwareVersion() (string, error) {
	return t.advancedInfo("Firmware Version")
}

// FirmwareBuild returns the firmware build number string.
func (t *Thermostat) FirmwareBuild() (string, error) {
	return t.advancedInfo("Firmware Build Number")
}

// DeviceID returns the device's unique hardware identifier (AUID).
func (t *Thermostat) DeviceID() (string, error) {
	return t.advancedInfo("AUID")
}

// =============================================================================
// Capabilities
// =============================================================================

// HasZones reports whether the unit exposes individually controllable
// zones. Unzoned units report an empty zones list.
func (t *Thermostat) HasZones() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.zones) > 0
}

// HasRelativeHumidity reports whether an indoor humidity reading is
// present. Units without the sensor omit the attribute or report it empty.
func (t *Thermostat) HasRelativeHumidity() bool {
	v, ok := t.attr("indoor_humidity")
	return ok && asBool(v)
}

// HasVariableSpeedCompressor reports whether the unit exposes compressor
// speed readings. Absent data reads as unsupported.
func (t *Thermostat) HasVariableSpeedCompressor() bool {
	_, ok := t.feature("thermostat_compressor_speed")
	return ok
}

// HasEmergencyHeat reports whether the unit supports emergency heat.
func (t *Thermostat) HasEmergencyHeat() bool {
	v, ok := t.attr("emergency_heat_supported")
	return ok && asBool(v)
}

// HasOutdoorTemperature reports whether an outdoor sensor is attached.
func (t *Thermostat) HasOutdoorTemperature() bool {
	v, ok := t.attr("has_outdoor_temperature")
	return ok && asBool(v)
}

// HasVariableFanSpeed reports whether the fan speed is adjustable.
func (t *Thermostat) HasVariableFanSpeed() bool {
	_, ok := t.setting("fan_speed")
	return ok
}

// HasAirCleaner reports whether an air cleaner mode setting is present.
func (t *Thermostat) HasAirCleaner() bool {
	_, ok := t.setting("air_cleaner_mode")
	return ok
}

// HasHumidifySupport reports whether a humidify setpoint is present.
func (t *Thermostat) HasHumidifySupport() bool {
	_, ok := t.setting("humidify")
	return ok
}

// HasDehumidifySupport reports whether a dehumidify setpoint is present.
func (t *Thermostat) HasDehumidifySupport() bool {
	_, ok := t.setting("dehumidify")
	return ok
}

// =============================================================================
// Fan and Air Cleaner
// =============================================================================

// FanMode returns the current fan mode setting value.
func (t *Thermostat) FanMode() (string, error) {
	setting, ok := t.setting("fan_mode")
	if !ok {
		return "", fmt.Errorf("%w: setting fan_mode", ErrKeyNotFound)
	}
	v, ok := settingValue(setting)
	if !ok {
		return "", fmt.Errorf("%w: fan_mode current_value", ErrKeyNotFound)
	}
	return fmt.Sprint(v), nil
}

// FanSpeedSetpoint returns the configured fan speed as a fraction (0..1).
func (t *Thermostat) FanSpeedSetpoint() (float64, error) {
	setting, ok := t.setting("fan_speed")
	if !ok {
		return 0, fmt.Errorf("%w: variable fan speed", ErrUnsupported)
	}
	v, ok := settingValue(setting)
	if !ok {
		return 0, fmt.Errorf("%w: fan_speed current_value", ErrKeyNotFound)
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: fan_speed value %v", ErrInvalidValue, v)
	}
	return f, nil
}

// VariableFanSpeedLimits returns the lowest and highest accepted fan speed
// values, taken from the ends of the reported values list.
func (t *Thermostat) VariableFanSpeedLimits() (min, max float64, err error) {
	setting, ok := t.setting("fan_speed")
	if !ok {
		return 0, 0, fmt.Errorf("%w: variable fan speed", ErrUnsupported)
	}
	values := asList(setting["values"])
	if len(values) == 0 {
		return 0, 0, fmt.Errorf("%w: fan_speed values", ErrKeyNotFound)
	}
	lo, okLo := asFloat(values[0])
	hi, okHi := asFloat(values[len(values)-1])
	if !okLo || !okHi {
		return 0, 0, fmt.Errorf("%w: non-numeric fan_speed values", ErrInvalidValue)
	}
	return lo, hi, nil
}

// AirCleanerMode returns the current air cleaner mode.
func (t *Thermostat) AirCleanerMode() (string, error) {
	setting, ok := t.setting("air_cleaner_mode")
	if !ok {
		return "", fmt.Errorf("%w: air cleaner", ErrUnsupported)
	}
	v, ok := settingValue(setting)
	if !ok {
		return "", fmt.Errorf("%w: air_cleaner_mode current_value", ErrKeyNotFound)
	}
	return fmt.Sprint(v), nil
}

// =============================================================================
// Status
// =============================================================================

// SystemStatus returns the status string reported by the unit, such as
// "Cooling", "Heating", "Waiting..." or "System Idle".
func (t *Thermostat) SystemStatus() (string, error) {
	v, ok := t.attr("system_status")
	if !ok {
		return "", fmt.Errorf("%w: system_status", ErrKeyNotFound)
	}
	s, _ := asString(v)
	return s, nil
}

// IsBlowerActive reports whether the blower is running. Any status other
// than waiting or idle counts as active.
func (t *Thermostat) IsBlowerActive() bool {
	status, err := t.SystemStatus()
	if err != nil {
		return false
	}
	return status != SystemStatusWaiting && status != SystemStatusIdle
}

// IsEmergencyHeatActive reports whether emergency heat is engaged.
//
// Returns:
//   - bool: Engaged state
//   - error: ErrUnsupported when the unit has no emergency heat
func (t *Thermostat) IsEmergencyHeatActive() (bool, error) {
	if !t.HasEmergencyHeat() {
		return false, fmt.Errorf("%w: emergency heat", ErrUnsupported)
	}
	setting, ok := t.setting("emergency_heat_active")
	if !ok {
		return false, fmt.Errorf("%w: setting emergency_heat_active", ErrKeyNotFound)
	}
	v, _ := settingValue(setting)
	return asBool(v), nil
}

// OutdoorTemperature returns the outdoor sensor reading in the unit's
// configured scale. A non-numeric reading, which the cloud reports during
// sensor dropouts, returns NaN with no error.
func (t *Thermostat) OutdoorTemperature() (float64, error) {
	if !t.HasOutdoorTemperature() {
		return 0, fmt.Errorf("%w: outdoor temperature", ErrUnsupported)
	}
	v, ok := t.attr("outdoor_temperature")
	if !ok {
		return 0, fmt.Errorf("%w: outdoor_temperature", ErrKeyNotFound)
	}
	f, ok := asFloat(v)
	if !ok {
		if s, ok := asString(v); ok {
			var parsed float64
			if _, err := fmt.Sscanf(s, "%f", &parsed); err == nil {
				return parsed, nil
			}
		}
		return math.NaN(), nil
	}
	return f, nil
}

// RelativeHumidity returns the indoor humidity as a fraction (0..1).
func (t *Thermostat) RelativeHumidity() (float64, error) {
	v, ok := t.attr("indoor_humidity")
	if !ok {
		return 0, fmt.Errorf("%w: indoor_humidity", ErrKeyNotFound)
	}
	f, ok := asFloat(v)
	if !ok {
		if s, ok := asString(v); ok {
			if _, err := fmt.Sscanf(s, "%f", &f); err != nil {
				return 0, fmt.Errorf("%w: indoor_humidity %q", ErrInvalidValue, s)
			}
		} else {
			return 0, fmt.Errorf("%w: indoor_humidity %v", ErrInvalidValue, v)
		}
	}
	return f / 100.0, nil
}

// CompressorSpeed returns the current compressor speed as a fraction
// (0..1). Units without the reading return 0.
func (t *Thermostat) CompressorSpeed() float64 {
	return t.compressorSpeedKey("compressor_speed")
}

// RequestedCompressorSpeed returns the speed the control loop is asking
// for, which may lead the current speed during ramp-up.
func (t *Thermostat) RequestedCompressorSpeed() float64 {
	return t.compressorSpeedKey("requested_compressor_speed")
}

func (t *Thermostat) compressorSpeedKey(key string) float64 {
	feature, ok := t.feature("thermostat_compressor_speed")
	if !ok {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, _ := asFloat(feature[key])
	return f
}

// =============================================================================
// Setpoint Envelope
// =============================================================================

// thermostatFeatureValue reads one key of the "thermostat" feature.
func (t *Thermostat) thermostatFeatureValue(key string) (float64, error) {
	feature, ok := t.feature("thermostat")
	if !ok {
		return 0, fmt.Errorf("%w: feature thermostat", ErrKeyNotFound)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := asFloat(feature[key])
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return f, nil
}

// Deadband returns the minimum separation the unit enforces between the
// heating and cooling setpoints.
func (t *Thermostat) Deadband() (float64, error) {
	return t.thermostatFeatureValue("setpoint_delta")
}

// SetpointLimits returns the lowest accepted heating setpoint and the
// highest accepted cooling setpoint.
func (t *Thermostat) SetpointLimits() (heatMin, coolMax float64, err error) {
	heatMin, err = t.thermostatFeatureValue("setpoint_heat_min")
	if err != nil {
		return 0, 0, err
	}
	coolMax, err = t.thermostatFeatureValue("setpoint_cool_max")
	if err != nil {
		return 0, 0, err
	}
	return heatMin, coolMax, nil
}

// Unit returns the temperature scale, "C" or "F".
func (t *Thermostat) Unit() (string, error) {
	feature, ok := t.feature("thermostat")
	if !ok {
		return "", fmt.Errorf("%w: feature thermostat", ErrKeyNotFound)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := asString(feature["scale"])
	if !ok {
		return "", fmt.Errorf("%w: scale", ErrKeyNotFound)
	}
	return strings.ToUpper(s), nil
}

// =============================================================================
// Humidity Setpoints
// =============================================================================

// HumiditySetpointLimits returns the accepted humidity setpoint range as
// fractions. The range is fixed across the product line.
func (t *Thermostat) HumiditySetpointLimits() (min, max float64) {
	return HumidityMin, HumidityMax
}

// DehumidifySetpoint returns the dehumidify target as a fraction.
func (t *Thermostat) DehumidifySetpoint() (float64, error) {
	return t.humiditySetting("dehumidify")
}

// HumidifySetpoint returns the humidify target as a fraction.
func (t *Thermostat) HumidifySetpoint() (float64, error) {
	return t.humiditySetting("humidify")
}

func (t *Thermostat) humiditySetting(settingType string) (float64, error) {
	setting, ok := t.setting(settingType)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, settingType)
	}
	v, ok := settingValue(setting)
	if !ok {
		return 0, fmt.Errorf("%w: %s current_value", ErrKeyNotFound, settingType)
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s value %v", ErrInvalidValue, settingType, v)
	}
	return f, nil
}
