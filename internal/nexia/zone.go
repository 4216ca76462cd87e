package nexia

import (
	"fmt"
	"strings"
)

// ID returns the zone's cloud identifier.
func (z *Zone) ID() int64 {
	v, _ := z.attr("id")
	id, _ := asInt64(v)
	return id
}

// Thermostat returns the zone's owning thermostat.
func (z *Zone) Thermostat() *Thermostat {
	return z.thermostat
}

// Name returns the zone's user-assigned name.
func (z *Zone) Name() (string, error) {
	v, ok := z.attr("name")
	if !ok {
		return "", fmt.Errorf("%w: name", ErrKeyNotFound)
	}
	s, _ := asString(v)
	return s, nil
}

// Temperature returns the zone's current temperature in the thermostat's
// configured scale.
func (z *Zone) Temperature() (float64, error) {
	v, ok := z.attr("temperature")
	if !ok {
		return 0, fmt.Errorf("%w: temperature", ErrKeyNotFound)
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: temperature %v", ErrInvalidValue, v)
	}
	return f, nil
}

// HeatingSetpoint returns the zone's heating setpoint.
func (z *Zone) HeatingSetpoint() (float64, error) {
	return z.setpoint("heat")
}

// CoolingSetpoint returns the zone's cooling setpoint.
func (z *Zone) CoolingSetpoint() (float64, error) {
	return z.setpoint("cool")
}

func (z *Zone) setpoint(key string) (float64, error) {
	v, ok := z.attr("setpoints")
	if !ok {
		return 0, fmt.Errorf("%w: setpoints", ErrKeyNotFound)
	}
	setpoints, ok := v.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%w: setpoints %v", ErrInvalidValue, v)
	}
	f, ok := asFloat(setpoints[key])
	if !ok {
		return 0, fmt.Errorf("%w: setpoints.%s", ErrKeyNotFound, key)
	}
	return f, nil
}

// =============================================================================
// Modes
// =============================================================================

// CurrentMode returns the zone's configured operating mode, uppercased to
// match the Mode constants.
func (z *Zone) CurrentMode() (string, error) {
	setting, ok := z.setting("zone_mode")
	if !ok {
		return "", fmt.Errorf("%w: setting zone_mode", ErrKeyNotFound)
	}
	v, ok := settingValue(setting)
	if !ok {
		return "", fmt.Errorf("%w: zone_mode current_value", ErrKeyNotFound)
	}
	return strings.ToUpper(fmt.Sprint(v)), nil
}

// RequestedMode returns the mode the zone is actually pursuing, which can
// differ from CurrentMode while a mode change is propagating to the unit.
func (z *Zone) RequestedMode() (string, error) {
	feature, ok := z.feature("thermostat_mode")
	if !ok {
		return "", fmt.Errorf("%w: feature thermostat_mode", ErrKeyNotFound)
	}
	z.mu.RLock()
	defer z.mu.RUnlock()
	v, ok := asString(feature["value"])
	if !ok {
		return "", fmt.Errorf("%w: thermostat_mode value", ErrKeyNotFound)
	}
	return strings.ToUpper(v), nil
}

// =============================================================================
// Presets
// =============================================================================

// Presets returns the preset labels the zone offers.
func (z *Zone) Presets() ([]string, error) {
	setting, ok := z.setting("preset_selected")
	if !ok {
		return nil, fmt.Errorf("%w: setting preset_selected", ErrKeyNotFound)
	}
	var labels []string
	for _, opt := range settingOptions(setting) {
		labels = append(labels, opt.Label)
	}
	return labels, nil
}

// Preset returns the label of the currently selected preset. The cloud
// stores the selection as an index into the labels list.
func (z *Zone) Preset() (string, error) {
	setting, ok := z.setting("preset_selected")
	if !ok {
		return "", fmt.Errorf("%w: setting preset_selected", ErrKeyNotFound)
	}
	v, ok := settingValue(setting)
	if !ok {
		return "", fmt.Errorf("%w: preset_selected current_value", ErrKeyNotFound)
	}
	idx, ok := asInt64(v)
	if !ok {
		return "", fmt.Errorf("%w: preset_selected value %v", ErrInvalidValue, v)
	}
	labels := asList(setting["labels"])
	if idx < 0 || int(idx) >= len(labels) {
		return "", fmt.Errorf("%w: preset index %d out of range", ErrInvalidValue, idx)
	}
	label, _ := asString(labels[idx])
	return label, nil
}

// =============================================================================
// Status
// =============================================================================

// Status returns the zone's status string, such as "Relieving Air" or
// "Damper Closed".
func (z *Zone) Status() (string, error) {
	v, ok := z.attr("zone_status")
	if !ok {
		return "", fmt.Errorf("%w: zone_status", ErrKeyNotFound)
	}
	s, _ := asString(v)
	return s, nil
}

// RunMode returns the label of the zone's current run mode, such as
// "Permanent Hold" or "Run Schedule".
func (z *Zone) RunMode() (string, error) {
	setting, ok := z.setting("run_mode")
	if !ok {
		return "", fmt.Errorf("%w: setting run_mode", ErrKeyNotFound)
	}
	v, ok := settingValue(setting)
	if !ok {
		return "", fmt.Errorf("%w: run_mode current_value", ErrKeyNotFound)
	}
	label, ok := optionLabel(setting, v)
	if !ok {
		return "", fmt.Errorf("%w: run_mode option for %v", ErrKeyNotFound, v)
	}
	return label, nil
}

// IsInPermanentHold reports whether the zone is holding its setpoints
// rather than following the schedule.
func (z *Zone) IsInPermanentHold() bool {
	setting, ok := z.setting("run_mode")
	if !ok {
		return false
	}
	v, _ := settingValue(setting)
	return fmt.Sprint(v) == HoldPermanent
}

// IsCalling reports whether the zone is demanding heating or cooling.
func (z *Zone) IsCalling() bool {
	v, ok := z.attr("operating_state")
	return ok && asBool(v)
}

// SetpointStatus returns a human-readable description of where the zone's
// setpoints come from: the run mode label, qualified by the active preset
// when one is selected.
func (z *Zone) SetpointStatus() (string, error) {
	runMode, err := z.RunMode()
	if err != nil {
		return "", err
	}
	if z.IsInPermanentHold() {
		return runMode, nil
	}
	preset, err := z.Preset()
	if err != nil {
		return "", err
	}
	if preset == PresetNone {
		return runMode, nil
	}
	return fmt.Sprintf("%s - %s", runMode, preset), nil
}
