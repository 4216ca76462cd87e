package nexia

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Fake Cloud Harness
// =============================================================================

const (
	testHouseID      = int64(123456)
	testThermostatID = int64(2059652)
	testZoneEastID   = int64(83261002)
	testZoneWestID   = int64(83261005)
)

// recordedRequest is one request captured by the fake cloud.
type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeCloud emulates the mobile API for tests: login, house discovery, the
// house snapshot, and thermostat/zone control posts.
type fakeCloud struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest

	// login behaviour
	loginCount    int
	failLogin     bool
	failLoginMsg  string
	redirectLogin bool

	// expireNext causes the next authenticated request to 302 once,
	// simulating session expiry.
	expireNext bool

	// house is the mutable thermostat fixture served by GET /houses.
	house []map[string]any

	// controlResult overrides the fragment returned by control posts.
	// Nil means echo a minimal fragment containing the posted value.
	controlResult map[string]any
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	fc := &fakeCloud{
		house: []map[string]any{testThermostatFixture()},
	}
	fc.server = httptest.NewServer(http.HandlerFunc(fc.handle))
	t.Cleanup(fc.server.Close)
	return fc
}

func (fc *fakeCloud) handle(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{}
	if data, err := io.ReadAll(r.Body); err == nil && len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}

	fc.mu.Lock()
	fc.requests = append(fc.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})

	if r.URL.Path == "/accounts/sign_in" {
		fc.loginCount++
		failLogin, msg, redirect := fc.failLogin, fc.failLoginMsg, fc.redirectLogin
		fc.mu.Unlock()

		if redirect {
			w.Header().Set("Location", fc.server.URL+"/account/forgotten_credentials")
			w.WriteHeader(http.StatusFound)
			return
		}
		if failLogin {
			writeJSON(w, map[string]any{"success": false, "error": msg})
			return
		}
		writeJSON(w, map[string]any{
			"success": true,
			"result":  map[string]any{"mobile_id": 900001, "api_key": "test-api-key"},
		})
		return
	}

	if fc.expireNext {
		fc.expireNext = false
		fc.mu.Unlock()
		w.Header().Set("Location", fc.server.URL+"/login")
		w.WriteHeader(http.StatusFound)
		return
	}

	if r.Header.Get("X-MobileId") == "" {
		fc.mu.Unlock()
		w.Header().Set("Location", fc.server.URL+"/login")
		w.WriteHeader(http.StatusFound)
		return
	}

	switch {
	case r.URL.Path == "/session":
		fc.mu.Unlock()
		writeJSON(w, map[string]any{
			"success": true,
			"result": map[string]any{
				"_links": map[string]any{
					"child": []any{
						map[string]any{"data": map[string]any{"id": testHouseID}},
					},
				},
			},
		})

	case r.URL.Path == fmt.Sprintf("/houses/%d", testHouseID):
		house := fc.house
		fc.mu.Unlock()
		writeJSON(w, map[string]any{
			"success": true,
			"result": map[string]any{
				"_links": map[string]any{
					"child": []any{
						map[string]any{"data": map[string]any{"items": house}},
					},
				},
			},
		})

	case strings.HasPrefix(r.URL.Path, "/xxl_thermostats/"), strings.HasPrefix(r.URL.Path, "/xxl_zones/"):
		result := fc.controlResult
		fc.mu.Unlock()
		if result == nil {
			result = map[string]any{}
		}
		writeJSON(w, map[string]any{"success": true, "result": result})

	default:
		fc.mu.Unlock()
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// requestsTo returns the captured requests matching the path.
func (fc *fakeCloud) requestsTo(path string) []recordedRequest {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var out []recordedRequest
	for _, req := range fc.requests {
		if req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

func (fc *fakeCloud) logins() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.loginCount
}

func (fc *fakeCloud) setExpireNext() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.expireNext = true
}

func (fc *fakeCloud) setControlResult(result map[string]any) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.controlResult = result
}

// =============================================================================
// Fixtures
// =============================================================================

// testThermostatFixture builds a two-zone XL1050 in the shape the cloud
// reports: numeric readings arrive as JSON strings in several places.
func testThermostatFixture() map[string]any {
	return map[string]any{
		"id":                       float64(testThermostatID),
		"name":                     "Downstairs East Wing",
		"system_status":            "System Idle",
		"has_outdoor_temperature":  true,
		"outdoor_temperature":      "88",
		"indoor_humidity":          "36",
		"emergency_heat_supported": true,
		"features": []any{
			map[string]any{
				"name": "advanced_info",
				"items": []any{
					map[string]any{"label": "Model", "value": "XL1050"},
					map[string]any{"label": "AUID", "value": "02853DF0"},
					map[string]any{"label": "Firmware Build Number", "value": "1581321824"},
					map[string]any{"label": "Firmware Version", "value": "5.9.1"},
				},
			},
			map[string]any{
				"name":              "thermostat",
				"scale":             "f",
				"setpoint_delta":    float64(3),
				"setpoint_heat_min": float64(55),
				"setpoint_cool_max": float64(99),
			},
			map[string]any{
				"name":                       "thermostat_compressor_speed",
				"compressor_speed":           0.69,
				"requested_compressor_speed": 0.75,
			},
		},
		"settings": []any{
			map[string]any{
				"type":          "fan_mode",
				"current_value": "auto",
				"options": []any{
					map[string]any{"label": "Auto", "value": "auto"},
					map[string]any{"label": "On", "value": "on"},
					map[string]any{"label": "Circulate", "value": "circulate"},
				},
			},
			map[string]any{
				"type":          "fan_speed",
				"current_value": 0.35,
				"values":        []any{0.35, 0.5, 0.75, 1.0},
			},
			map[string]any{"type": "air_cleaner_mode", "current_value": "auto"},
			map[string]any{"type": "dehumidify", "current_value": 0.5},
			map[string]any{"type": "humidify", "current_value": 0.45},
			map[string]any{"type": "emergency_heat_active", "current_value": false},
		},
		"zones": []any{
			testZoneFixture(testZoneEastID, "Living East", "permanent_hold", float64(0)),
			testZoneFixture(testZoneWestID, "Living West", "run_schedule", float64(1)),
		},
	}
}

func testZoneFixture(id int64, name, runMode string, preset float64) map[string]any {
	return map[string]any{
		"id":              float64(id),
		"name":            name,
		"temperature":     float64(77),
		"zone_status":     "Relieving Air",
		"operating_state": "Damper Open",
		"setpoints":       map[string]any{"heat": float64(63), "cool": float64(80)},
		"settings": []any{
			map[string]any{
				"type":          "zone_mode",
				"current_value": "auto",
				"options": []any{
					map[string]any{"label": "Auto", "value": "AUTO"},
					map[string]any{"label": "Cooling", "value": "COOL"},
					map[string]any{"label": "Heating", "value": "HEAT"},
					map[string]any{"label": "Off", "value": "OFF"},
				},
			},
			map[string]any{
				"type":          "run_mode",
				"current_value": runMode,
				"options": []any{
					map[string]any{"label": "Permanent Hold", "value": "permanent_hold"},
					map[string]any{"label": "Run Schedule", "value": "run_schedule"},
				},
			},
			map[string]any{
				"type":          "preset_selected",
				"current_value": preset,
				"labels":        []any{"None", "Home", "Away", "Sleep"},
				"options": []any{
					map[string]any{"label": "None", "value": float64(0)},
					map[string]any{"label": "Home", "value": float64(1)},
					map[string]any{"label": "Away", "value": float64(2)},
					map[string]any{"label": "Sleep", "value": float64(3)},
				},
			},
		},
		"features": []any{
			map[string]any{"name": "thermostat_mode", "value": "auto", "label": "Auto"},
		},
	}
}

// =============================================================================
// Client Construction Helpers
// =============================================================================

// newTestClient builds a client against the fake cloud with a controllable
// clock starting at a fixed instant.
func newTestClient(t *testing.T, fc *fakeCloud) (*Client, *fakeClock) {
	t.Helper()
	client, err := New(Config{
		Username: "user@example.com",
		Password: "hunter2",
		BaseURL:  fc.server.URL,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	clock := &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	client.now = clock.Now
	return client, clock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
