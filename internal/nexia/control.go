package nexia

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// =============================================================================
// POST Helpers
// =============================================================================

// postField posts a control value to a thermostat field and merges the
// confirmed state from the response into the cache.
func (t *Thermostat) postField(ctx context.Context, field string, payload any) error {
	result, err := t.client.session.post(ctx, fmt.Sprintf("/xxl_thermostats/%d/%s", t.ID(), field), payload)
	if err != nil {
		return err
	}
	t.client.mergeFragment(result, t.client.mergeThermostat)
	return nil
}

// postField posts a control value to a zone field and merges the confirmed
// state from the response into the cache.
func (z *Zone) postField(ctx context.Context, field string, payload any) error {
	result, err := z.client.session.post(ctx, fmt.Sprintf("/xxl_zones/%d/%s", z.ID(), field), payload)
	if err != nil {
		return err
	}
	z.client.mergeFragment(result, z.client.mergeZone)
	return nil
}

// mergeFragment decodes a POST result and hands it to the merge function.
// A response that is not an object is ignored; the next poll reconciles.
func (c *Client) mergeFragment(result json.RawMessage, merge func(map[string]any)) {
	if len(result) == 0 {
		return
	}
	var fragment map[string]any
	if err := json.Unmarshal(result, &fragment); err != nil {
		if c.logger != nil {
			c.logger.Warn("ignoring unparseable write confirmation", "error", err)
		}
		return
	}
	merge(fragment)
}

func valuePayload(v any) map[string]any {
	return map[string]any{"value": v}
}

// =============================================================================
// Thermostat Controls
// =============================================================================

// SetFanMode sets the fan mode.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mode: One of FanModes (case-insensitive)
//
// Returns:
//   - error: ErrInvalidValue for an unknown mode, or a transport error
func (t *Thermostat) SetFanMode(ctx context.Context, mode string) error {
	mode = strings.ToLower(mode)
	if !contains(FanModes, mode) {
		return fmt.Errorf("%w: fan mode %q (valid: %s)", ErrInvalidValue, mode, strings.Join(FanModes, ", "))
	}
	return t.postField(ctx, "fan_mode", valuePayload(mode))
}

// SetFanSpeedSetpoint sets the variable fan speed as a fraction, which must
// fall within VariableFanSpeedLimits.
func (t *Thermostat) SetFanSpeedSetpoint(ctx context.Context, speed float64) error {
	min, max, err := t.VariableFanSpeedLimits()
	if err != nil {
		return err
	}
	if speed < min || speed > max {
		return fmt.Errorf("%w: fan speed %v not between %v and %v", ErrInvalidValue, speed, min, max)
	}
	return t.postField(ctx, "fan_speed", valuePayload(speed))
}

// SetAirCleanerMode sets the air cleaner mode. Setting the mode it already
// has is a no-op without network traffic.
func (t *Thermostat) SetAirCleanerMode(ctx context.Context, mode string) error {
	mode = strings.ToLower(mode)
	if !contains(AirCleanerModes, mode) {
		return fmt.Errorf("%w: air cleaner mode %q (valid: %s)", ErrInvalidValue, mode, strings.Join(AirCleanerModes, ", "))
	}
	current, err := t.AirCleanerMode()
	if err != nil {
		return err
	}
	if current == mode {
		return nil
	}
	return t.postField(ctx, "air_cleaner_mode", valuePayload(mode))
}

// SetFollowSchedule enables or disables scheduled operation for the whole
// unit. The cloud takes this value as a string.
func (t *Thermostat) SetFollowSchedule(ctx context.Context, follow bool) error {
	value := "false"
	if follow {
		value = "true"
	}
	return t.postField(ctx, "scheduling_enabled", valuePayload(value))
}

// SetEmergencyHeat enables or disables emergency heat.
//
// Returns:
//   - error: ErrUnsupported when the unit has no emergency heat
func (t *Thermostat) SetEmergencyHeat(ctx context.Context, on bool) error {
	if !t.HasEmergencyHeat() {
		return fmt.Errorf("%w: emergency heat", ErrUnsupported)
	}
	return t.postField(ctx, "emergency_heat", valuePayload(on))
}

// SetHumiditySetpoints sets the humidify and dehumidify targets as
// fractions. A nil value keeps the current setpoint for that side.
//
// Values are rounded to the nearest 0.05 before validation. Both must lie
// within HumiditySetpointLimits and humidify must not exceed dehumidify.
// The cloud derives the humidify side from the posted dehumidify value, so
// one write covers both.
//
// Returns:
//   - error: ErrUnsupported when the unit has no humidity sensor
func (t *Thermostat) SetHumiditySetpoints(ctx context.Context, humidify, dehumidify *float64) error {
	if !t.HasRelativeHumidity() {
		return fmt.Errorf("%w: humidity control", ErrUnsupported)
	}
	if humidify == nil && dehumidify == nil {
		return nil
	}

	var humidifyVal, dehumidifyVal float64
	humidifySupported := t.HasHumidifySupport()
	dehumidifySupported := t.HasDehumidifySupport()

	if humidifySupported {
		if humidify != nil {
			humidifyVal = roundHumidity(*humidify)
		} else {
			current, err := t.HumidifySetpoint()
			if err != nil {
				return err
			}
			humidifyVal = roundHumidity(current)
		}
	} else if humidify != nil {
		return fmt.Errorf("%w: humidify", ErrUnsupported)
	}

	if dehumidifySupported {
		if dehumidify != nil {
			dehumidifyVal = roundHumidity(*dehumidify)
		} else {
			current, err := t.DehumidifySetpoint()
			if err != nil {
				return err
			}
			dehumidifyVal = roundHumidity(current)
		}
	} else if dehumidify != nil {
		return fmt.Errorf("%w: dehumidify", ErrUnsupported)
	}

	if !dehumidifySupported {
		return fmt.Errorf("%w: humidity setpoints", ErrUnsupported)
	}

	if humidifySupported && dehumidifySupported {
		if !(HumidityMin <= humidifyVal && humidifyVal <= dehumidifyVal && dehumidifyVal <= HumidityMax) {
			return fmt.Errorf("%w: setpoints must satisfy %v <= humidify <= dehumidify <= %v",
				ErrInvalidValue, HumidityMin, HumidityMax)
		}
	} else if dehumidifyVal < HumidityMin || dehumidifyVal > HumidityMax {
		return fmt.Errorf("%w: dehumidify setpoint %v not between %v and %v",
			ErrInvalidValue, dehumidifyVal, HumidityMin, HumidityMax)
	}

	return t.postField(ctx, "dehumidify", valuePayload(dehumidifyVal))
}

// SetDehumidifySetpoint sets the dehumidify target as a fraction.
func (t *Thermostat) SetDehumidifySetpoint(ctx context.Context, setpoint float64) error {
	return t.SetHumiditySetpoints(ctx, nil, &setpoint)
}

// SetHumidifySetpoint sets the humidify target as a fraction.
func (t *Thermostat) SetHumidifySetpoint(ctx context.Context, setpoint float64) error {
	return t.SetHumiditySetpoints(ctx, &setpoint, nil)
}

// =============================================================================
// Setpoint Validation
// =============================================================================

// CheckHeatCoolSetpoints validates a heat/cool setpoint pair against the
// unit's envelope. Nil values skip the checks that need them. Values are
// rounded to the unit's scale resolution before checking.
//
// Returns:
//   - error: ErrInvalidValue describing the first violated constraint
func (t *Thermostat) CheckHeatCoolSetpoints(heat, cool *float64) error {
	deadband, err := t.Deadband()
	if err != nil {
		return err
	}
	heatMin, coolMax, err := t.SetpointLimits()
	if err != nil {
		return err
	}

	var heatVal, coolVal float64
	if heat != nil {
		heatVal, err = t.RoundTemp(*heat)
		if err != nil {
			return err
		}
	}
	if cool != nil {
		coolVal, err = t.RoundTemp(*cool)
		if err != nil {
			return err
		}
	}

	if heat != nil && cool != nil {
		if !(heatVal < coolVal) {
			return fmt.Errorf("%w: heat setpoint %v must be below cool setpoint %v",
				ErrInvalidValue, heatVal, coolVal)
		}
		if coolVal-heatVal < deadband {
			return fmt.Errorf("%w: setpoints must be at least %v degrees apart",
				ErrInvalidValue, deadband)
		}
	}
	if heat != nil && heatVal > coolMax {
		return fmt.Errorf("%w: heat setpoint %v above maximum %v", ErrInvalidValue, heatVal, coolMax)
	}
	if cool != nil && coolVal < heatMin {
		return fmt.Errorf("%w: cool setpoint %v below minimum %v", ErrInvalidValue, coolVal, heatMin)
	}
	return nil
}

// RoundTemp rounds a temperature to the unit's scale resolution: the
// nearest half degree for Celsius, the nearest whole degree for Fahrenheit.
func (t *Thermostat) RoundTemp(temperature float64) (float64, error) {
	unit, err := t.Unit()
	if err != nil {
		return 0, err
	}
	if unit == UnitCelsius {
		return math.Round(temperature*2) / 2, nil
	}
	return math.Round(temperature), nil
}

// =============================================================================
// Zone Controls
// =============================================================================

// ReturnToSchedule releases any hold and returns the zone to its schedule.
func (z *Zone) ReturnToSchedule(ctx context.Context) error {
	return z.postField(ctx, "return_to_schedule", map[string]any{})
}

// PermanentHold holds the zone at the given setpoints indefinitely.
//
// Provide both temperatures or neither; with neither, the current setpoints
// are held. Providing only one is an error because the other half of the
// pair would be unspecified.
func (z *Zone) PermanentHold(ctx context.Context, heat, cool *float64) error {
	if (heat == nil) != (cool == nil) {
		return fmt.Errorf("%w: provide both heat and cool setpoints, or neither", ErrInvalidValue)
	}

	var heatVal, coolVal float64
	if heat == nil {
		var err error
		heatVal, err = z.HeatingSetpoint()
		if err != nil {
			return err
		}
		coolVal, err = z.CoolingSetpoint()
		if err != nil {
			return err
		}
	} else {
		heatVal, coolVal = *heat, *cool
	}

	if err := z.ensurePermanentHold(ctx); err != nil {
		return err
	}
	return z.setSetpoints(ctx, heatVal, coolVal)
}

// SetSetpoints sets the zone's heat/cool setpoints.
//
// Either pass heat and/or cool directly, or pass a single target and let
// the zone's operating mode decide how to split it:
//   - COOL: cool follows the target; heat drops below it by the deadband
//     if needed
//   - HEAT: heat follows the target; cool rises above it by the deadband
//     if needed
//   - otherwise: setpoints straddle the target by half the deadband
//
// When only one of heat/cool is given, the other is derived from its
// current value, pushed apart by the deadband if required.
func (z *Zone) SetSetpoints(ctx context.Context, heat, cool, target *float64) error {
	t := z.thermostat
	deadband, err := t.Deadband()
	if err != nil {
		return err
	}

	var heatVal, coolVal float64
	if target == nil {
		if heat == nil && cool == nil {
			return fmt.Errorf("%w: no setpoints given", ErrInvalidValue)
		}
		if heat != nil {
			heatVal, err = t.RoundTemp(*heat)
			if err != nil {
				return err
			}
		}
		if cool != nil {
			coolVal, err = t.RoundTemp(*cool)
			if err != nil {
				return err
			}
		}
		if heat == nil {
			current, err := z.HeatingSetpoint()
			if err != nil {
				return err
			}
			heatVal = math.Min(current, coolVal-deadband)
		}
		if cool == nil {
			current, err := z.CoolingSetpoint()
			if err != nil {
				return err
			}
			coolVal = math.Max(current, heatVal+deadband)
		}
	} else {
		rounded, err := t.RoundTemp(*target)
		if err != nil {
			return err
		}
		mode, err := z.CurrentMode()
		if err != nil {
			return err
		}
		switch mode {
		case ModeCool:
			coolVal = rounded
			current, err := z.HeatingSetpoint()
			if err != nil {
				return err
			}
			heatVal = math.Min(current, coolVal-deadband)
		case ModeHeat:
			heatVal = rounded
			current, err := z.CoolingSetpoint()
			if err != nil {
				return err
			}
			coolVal = math.Max(current, heatVal+deadband)
		default:
			half := math.Ceil(deadband / 2)
			coolVal = rounded + half
			heatVal = rounded - half
		}
	}

	return z.setSetpoints(ctx, heatVal, coolVal)
}

// setSetpoints validates and posts a setpoint pair, skipping the write when
// the zone already has exactly these values.
func (z *Zone) setSetpoints(ctx context.Context, heat, cool float64) error {
	if err := z.thermostat.CheckHeatCoolSetpoints(&heat, &cool); err != nil {
		return err
	}

	currentHeat, err := z.HeatingSetpoint()
	if err != nil {
		return err
	}
	currentCool, err := z.CoolingSetpoint()
	if err != nil {
		return err
	}
	if currentHeat == heat && currentCool == cool {
		return nil
	}

	return z.postField(ctx, "setpoints", map[string]any{"heat": heat, "cool": cool})
}

// ensurePermanentHold posts a permanent hold run mode unless the zone is
// already holding.
func (z *Zone) ensurePermanentHold(ctx context.Context) error {
	if z.IsInPermanentHold() {
		return nil
	}
	return z.postField(ctx, "run_mode", valuePayload(HoldPermanent))
}

// SetPreset selects a preset by label. Selecting the active preset is a
// no-op without network traffic.
//
// Returns:
//   - error: ErrPresetNotFound when the label matches no reported preset
func (z *Zone) SetPreset(ctx context.Context, preset string) error {
	current, err := z.Preset()
	if err != nil {
		return err
	}
	if current == preset {
		return nil
	}

	setting, ok := z.setting("preset_selected")
	if !ok {
		return fmt.Errorf("%w: setting preset_selected", ErrKeyNotFound)
	}
	value, ok := optionValue(setting, preset)
	if !ok {
		presets, _ := z.Presets()
		return fmt.Errorf("%w: %q (valid: %s)", ErrPresetNotFound, preset, strings.Join(presets, ", "))
	}
	return z.postField(ctx, "preset_selected", valuePayload(value))
}

// SetMode sets the zone's operating mode, adjusting the run mode so the
// change takes effect immediately: AUTO returns the zone to its schedule
// first, every other mode establishes a permanent hold first.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mode: One of Modes (case-insensitive)
func (z *Zone) SetMode(ctx context.Context, mode string) error {
	mode = strings.ToUpper(mode)
	if !contains(Modes, mode) {
		return fmt.Errorf("%w: mode %q (valid: %s)", ErrInvalidValue, mode, strings.Join(Modes, ", "))
	}

	if mode == ModeAuto {
		if err := z.ReturnToSchedule(ctx); err != nil {
			return err
		}
	} else if err := z.ensurePermanentHold(ctx); err != nil {
		return err
	}

	current, err := z.CurrentMode()
	if err == nil && current == mode {
		return nil
	}
	return z.postField(ctx, "zone_mode", valuePayload(mode))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// roundHumidity rounds to the nearest 0.05 and trims float noise to two
// decimal places.
func roundHumidity(v float64) float64 {
	return math.Round(math.Round(v/0.05)*0.05*100) / 100
}
