package nexia

import (
	"fmt"
	"sync"
)

// Snapshot holds the decoded state of one house: every thermostat and its
// zones as last reported by the cloud, plus any merged write confirmations.
type Snapshot struct {
	thermostats []*Thermostat
}

// Thermostat wraps one thermostat dict from the house snapshot.
//
// Thread Safety:
//   - Attribute reads take the client's state lock, so they are safe
//     against concurrent snapshot merges.
type Thermostat struct {
	client *Client

	// mu aliases the owning client's stateMu.
	mu *sync.RWMutex

	attrs map[string]any
	zones []*Zone
}

// Zone wraps one zone dict from a thermostat.
type Zone struct {
	client     *Client
	thermostat *Thermostat

	mu *sync.RWMutex

	attrs map[string]any
}

// Option is one selectable value of a setting, as reported by the cloud.
type Option struct {
	Label string
	Value string
}

// newSnapshot builds a Snapshot from the raw thermostat dicts of a house
// response. Caller must hold the client's state write lock.
func newSnapshot(c *Client, items []map[string]any) *Snapshot {
	snap := &Snapshot{}
	for _, item := range items {
		snap.thermostats = append(snap.thermostats, newThermostat(c, item))
	}
	return snap
}

func newThermostat(c *Client, attrs map[string]any) *Thermostat {
	t := &Thermostat{
		client: c,
		mu:     &c.stateMu,
		attrs:  attrs,
	}
	t.rebuildZones()
	return t
}

// rebuildZones recreates the zone wrappers from the current attrs. Caller
// must hold the state write lock (or own the thermostat exclusively).
func (t *Thermostat) rebuildZones() {
	t.zones = nil
	for _, raw := range asList(t.attrs["zones"]) {
		attrs, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		t.zones = append(t.zones, &Zone{
			client:     t.client,
			thermostat: t,
			mu:         t.mu,
			attrs:      attrs,
		})
	}
}

// =============================================================================
// Raw Attribute Access
// =============================================================================

// attr returns a top-level attribute under the read lock.
func (t *Thermostat) attr(key string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.attrs[key]
	return v, ok
}

func (z *Zone) attr(key string) (any, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	v, ok := z.attrs[key]
	return v, ok
}

// setting looks up an entry of the settings list by its type key.
func (t *Thermostat) setting(settingType string) (map[string]any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return findByIdentity(t.attrs["settings"], "type", settingType)
}

func (z *Zone) setting(settingType string) (map[string]any, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return findByIdentity(z.attrs["settings"], "type", settingType)
}

// feature looks up an entry of the features list by its name key.
func (t *Thermostat) feature(name string) (map[string]any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return findByIdentity(t.attrs["features"], "name", name)
}

func (z *Zone) feature(name string) (map[string]any, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return findByIdentity(z.attrs["features"], "name", name)
}

// advancedInfo looks up an item of the advanced_info feature by label and
// returns its value as a string.
func (t *Thermostat) advancedInfo(label string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info, ok := findByIdentity(t.attrs["features"], "name", "advanced_info")
	if !ok {
		return "", fmt.Errorf("%w: feature advanced_info", ErrKeyNotFound)
	}
	item, ok := findByIdentity(info["items"], "label", label)
	if !ok {
		return "", fmt.Errorf("%w: advanced_info item %q", ErrKeyNotFound, label)
	}
	return fmt.Sprint(item["value"]), nil
}

// findByIdentity scans a list of dicts for the first whose key matches want.
// Numbers compare by value so a float64 from JSON matches an int64 id.
func findByIdentity(list any, key string, want any) (map[string]any, bool) {
	for _, raw := range asList(list) {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if identityEqual(entry[key], want) {
			return entry, true
		}
	}
	return nil, false
}

func identityEqual(got, want any) bool {
	if gf, ok := asFloat(got); ok {
		if wf, ok := asFloat(want); ok {
			return gf == wf
		}
		return false
	}
	return got == want
}

// =============================================================================
// Value Coercion
// =============================================================================

// asFloat converts a decoded JSON value to float64. Integers from merged
// payloads coerce as well; strings do not.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b != "" && b != "false"
	case nil:
		return false
	}
	if f, ok := asFloat(v); ok {
		return f != 0
	}
	return true
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

// settingValue returns the current_value of a setting as a raw value.
func settingValue(setting map[string]any) (any, bool) {
	v, ok := setting["current_value"]
	return v, ok
}

// settingOptions decodes the options list of a setting.
func settingOptions(setting map[string]any) []Option {
	var opts []Option
	for _, raw := range asList(setting["options"]) {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		label, _ := asString(entry["label"])
		value := fmt.Sprint(entry["value"])
		opts = append(opts, Option{Label: label, Value: value})
	}
	return opts
}

// optionLabel maps a setting value to its label via the options list.
func optionLabel(setting map[string]any, value any) (string, bool) {
	for _, raw := range asList(setting["options"]) {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if identityEqual(entry["value"], value) {
			label, ok := asString(entry["label"])
			return label, ok
		}
	}
	return "", false
}

// optionValue maps a label to its setting value via the options list.
func optionValue(setting map[string]any, label string) (any, bool) {
	for _, raw := range asList(setting["options"]) {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if entry["label"] == label {
			return entry["value"], true
		}
	}
	return nil, false
}
