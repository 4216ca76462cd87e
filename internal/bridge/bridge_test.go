package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-nexia/internal/history"
	"github.com/nerrad567/gray-logic-nexia/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-nexia/internal/nexia"
)

const (
	testHouseID      = 123456
	testThermostatID = 2059652
	testZoneID       = 83261002
)

// =============================================================================
// Fake Cloud
// =============================================================================

type cloudPost struct {
	Path string
	Body map[string]any
}

// cloudServer is a minimal stand-in for the mobile API: login, house
// discovery, snapshot, and control endpoints.
type cloudServer struct {
	srv *httptest.Server

	mu    sync.Mutex
	items []map[string]any
	posts []cloudPost
}

func newCloudServer(t *testing.T) *cloudServer {
	t.Helper()

	cs := &cloudServer{items: houseItems(77)}
	cs.srv = httptest.NewServer(http.HandlerFunc(cs.handle))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *cloudServer) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/accounts/sign_in":
		writeJSON(w, map[string]any{
			"success": true,
			"result":  map[string]any{"mobile_id": 900001, "api_key": "test-api-key"},
		})

	case r.URL.Path == "/session":
		writeJSON(w, map[string]any{
			"success": true,
			"result": map[string]any{
				"_links": map[string]any{
					"child": []map[string]any{{"data": map[string]any{"id": testHouseID}}},
				},
			},
		})

	case r.URL.Path == fmt.Sprintf("/houses/%d", testHouseID):
		cs.mu.Lock()
		items := cs.items
		cs.mu.Unlock()
		writeJSON(w, map[string]any{
			"success": true,
			"result": map[string]any{
				"_links": map[string]any{
					"child": []map[string]any{{"data": map[string]any{"items": items}}},
				},
			},
		})

	case strings.HasPrefix(r.URL.Path, "/xxl_thermostats/"),
		strings.HasPrefix(r.URL.Path, "/xxl_zones/"):
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		cs.mu.Lock()
		cs.posts = append(cs.posts, cloudPost{Path: r.URL.Path, Body: body})
		cs.mu.Unlock()
		writeJSON(w, map[string]any{"success": true, "result": map[string]any{}})

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// postsTo returns the recorded control posts for a path.
func (cs *cloudServer) postsTo(path string) []cloudPost {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var matched []cloudPost
	for _, p := range cs.posts {
		if p.Path == path {
			matched = append(matched, p)
		}
	}
	return matched
}

// setZoneTemperature mutates the house fixture for change-detection tests.
func (cs *cloudServer) setZoneTemperature(temp float64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.items = houseItems(temp)
}

func houseItems(zoneTemp float64) []map[string]any {
	return []map[string]any{{
		"id":                      testThermostatID,
		"name":                    "Downstairs East Wing",
		"system_status":           "System Idle",
		"indoor_humidity":         "36",
		"has_outdoor_temperature": true,
		"outdoor_temperature":     "88",
		"settings": []map[string]any{
			{"type": "fan_mode", "current_value": "auto", "options": []map[string]any{
				{"label": "Auto", "value": "auto"},
				{"label": "On", "value": "on"},
				{"label": "Circulate", "value": "circulate"},
			}},
		},
		"features": []map[string]any{
			{
				"name":              "thermostat",
				"scale":             "f",
				"setpoint_delta":    3,
				"setpoint_heat_min": 55,
				"setpoint_cool_max": 99,
			},
		},
		"zones": []map[string]any{{
			"id":              testZoneID,
			"name":            "East Wing",
			"temperature":     zoneTemp,
			"zone_status":     "Relieving Air",
			"operating_state": "Damper Open",
			"setpoints":       map[string]any{"heat": 63, "cool": 80},
			"settings": []map[string]any{
				{"type": "zone_mode", "current_value": "auto", "options": []map[string]any{
					{"label": "Auto", "value": "AUTO"},
					{"label": "Cooling", "value": "COOL"},
					{"label": "Heating", "value": "HEAT"},
					{"label": "Off", "value": "OFF"},
				}},
				{"type": "run_mode", "current_value": "run_schedule", "options": []map[string]any{
					{"label": "Permanent Hold", "value": "permanent_hold"},
					{"label": "Run Schedule", "value": "run_schedule"},
				}},
				{
					"type":          "preset_selected",
					"current_value": 0,
					"labels":        []any{"None", "Home", "Away"},
					"options": []map[string]any{
						{"label": "None", "value": 0},
						{"label": "Home", "value": 1},
						{"label": "Away", "value": 2},
					},
				},
			},
			"features": []map[string]any{
				{"name": "thermostat_mode", "value": "auto"},
			},
		}},
	}}
}

// =============================================================================
// Mock MQTT
// =============================================================================

type publishedMessage struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockMQTT struct {
	mu           sync.Mutex
	disconnected bool
	messages     []publishedMessage
	subs         map[string]mqtt.MessageHandler
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{subs: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{
		Topic: topic, Payload: payload, QoS: qos, Retained: retained,
	})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disconnected
}

func (m *mockMQTT) messagesOn(topic string) []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []publishedMessage
	for _, msg := range m.messages {
		if msg.Topic == topic {
			matched = append(matched, msg)
		}
	}
	return matched
}

func (m *mockMQTT) hasSubscription(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[topic]
	return ok
}

// =============================================================================
// Fake History and Metrics
// =============================================================================

type fakeReadings struct {
	mu      sync.Mutex
	records []history.ZoneReading
}

func (f *fakeReadings) Record(_ context.Context, reading *history.ZoneReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *reading)
	return nil
}

func (f *fakeReadings) ListByZone(context.Context, int64, int) ([]history.ZoneReading, error) {
	return nil, nil
}

func (f *fakeReadings) Prune(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

type metricWrite struct {
	ThermostatID int64
	Metric       string
	Value        float64
}

type fakeMetrics struct {
	mu          sync.Mutex
	zoneWrites  []map[string]interface{}
	thermostats []metricWrite
}

func (f *fakeMetrics) WriteZoneReading(_, _ int64, fields map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zoneWrites = append(f.zoneWrites, fields)
}

func (f *fakeMetrics) WriteThermostatMetric(thermostatID int64, metric string, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thermostats = append(f.thermostats, metricWrite{thermostatID, metric, value})
}

// =============================================================================
// Test Helpers
// =============================================================================

func newTestBridge(t *testing.T, cs *cloudServer, configure func(*Options)) (*Bridge, *mockMQTT) {
	t.Helper()

	client, err := nexia.New(nexia.Config{
		Username: "user@example.com",
		Password: "secret",
		BaseURL:  cs.srv.URL,
	})
	if err != nil {
		t.Fatalf("nexia.New() error = %v", err)
	}

	broker := newMockMQTT()
	opts := Options{
		Client:       client,
		MQTT:         broker,
		PollInterval: -1,
		Version:      "test",
	}
	if configure != nil {
		configure(&opts)
	}

	b, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { b.ctxCancel() })
	return b, broker
}

func decodeState(t *testing.T, msg publishedMessage) StateMessage {
	t.Helper()
	var state StateMessage
	if err := json.Unmarshal(msg.Payload, &state); err != nil {
		t.Fatalf("decoding state message: %v", err)
	}
	return state
}

func decodeAck(t *testing.T, msg publishedMessage) AckMessage {
	t.Helper()
	var ack AckMessage
	if err := json.Unmarshal(msg.Payload, &ack); err != nil {
		t.Fatalf("decoding ack message: %v", err)
	}
	return ack
}

func commandPayload(t *testing.T, id, command string, params map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(CommandMessage{
		ID:         id,
		Timestamp:  time.Now().UTC(),
		Command:    command,
		Parameters: params,
		Source:     "test",
	})
	if err != nil {
		t.Fatalf("encoding command: %v", err)
	}
	return payload
}

// =============================================================================
// Address Tests
// =============================================================================

func TestParseAddress(t *testing.T) {
	tests := []struct {
		address  string
		wantKind string
		wantID   int64
		wantErr  bool
	}{
		{"zone-83261002", AddressKindZone, 83261002, false},
		{"thermostat-2059652", AddressKindThermostat, 2059652, false},
		{"zone", "", 0, true},
		{"sensor-42", "", 0, true},
		{"zone-abc", "", 0, true},
		{"zone--5", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			kind, id, err := ParseAddress(tt.address)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.address, err, tt.wantErr)
			}
			if kind != tt.wantKind || id != tt.wantID {
				t.Errorf("ParseAddress(%q) = (%q, %d), want (%q, %d)",
					tt.address, kind, id, tt.wantKind, tt.wantID)
			}
		})
	}
}

func TestAddressBuilders(t *testing.T) {
	if got := ZoneAddress(83261002); got != "zone-83261002" {
		t.Errorf("ZoneAddress() = %q", got)
	}
	if got := ThermostatAddress(2059652); got != "thermostat-2059652" {
		t.Errorf("ThermostatAddress() = %q", got)
	}
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_Validation(t *testing.T) {
	client, err := nexia.New(nexia.Config{Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("nexia.New() error = %v", err)
	}

	if _, err := New(Options{MQTT: newMockMQTT()}); err == nil {
		t.Error("New() without client should fail")
	}
	if _, err := New(Options{Client: client}); err == nil {
		t.Error("New() without mqtt should fail")
	}
}

func TestStartStop(t *testing.T) {
	cs := newCloudServer(t)
	b, broker := newTestBridge(t, cs, nil)

	if err := b.Stop(); err != ErrNotStarted {
		t.Errorf("Stop() before Start = %v, want ErrNotStarted", err)
	}

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := b.Start(context.Background()); err != ErrAlreadyStarted {
		t.Errorf("second Start() = %v, want ErrAlreadyStarted", err)
	}

	if !broker.hasSubscription("graylogic/command/nexia/+") {
		t.Error("Start() should subscribe to the command topic")
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := b.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	// Starting and stopping statuses bracket the run.
	health := broker.messagesOn("graylogic/health/nexia")
	if len(health) < 2 {
		t.Fatalf("len(health messages) = %d, want at least 2", len(health))
	}
	var first, last HealthMessage
	if err := json.Unmarshal(health[0].Payload, &first); err != nil {
		t.Fatalf("decoding health message: %v", err)
	}
	if err := json.Unmarshal(health[len(health)-1].Payload, &last); err != nil {
		t.Fatalf("decoding health message: %v", err)
	}
	if first.Status != HealthStarting {
		t.Errorf("first health status = %q, want %q", first.Status, HealthStarting)
	}
	if last.Status != HealthStopping {
		t.Errorf("last health status = %q, want %q", last.Status, HealthStopping)
	}
}

// =============================================================================
// Poll Tests
// =============================================================================

func TestPollOnce_PublishesRetainedState(t *testing.T) {
	cs := newCloudServer(t)
	b, broker := newTestBridge(t, cs, nil)

	if err := b.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce() error = %v", err)
	}

	zoneMsgs := broker.messagesOn("graylogic/state/nexia/zone-83261002")
	if len(zoneMsgs) != 1 {
		t.Fatalf("len(zone state messages) = %d, want 1", len(zoneMsgs))
	}
	if !zoneMsgs[0].Retained || zoneMsgs[0].QoS != 1 {
		t.Errorf("zone state retained = %v qos = %d, want retained qos 1",
			zoneMsgs[0].Retained, zoneMsgs[0].QoS)
	}

	state := decodeState(t, zoneMsgs[0])
	if state.Protocol != ProtocolNexia || state.Address != "zone-83261002" {
		t.Errorf("state envelope = %q/%q", state.Protocol, state.Address)
	}
	if state.State["temperature"] != 77.0 {
		t.Errorf("temperature = %v, want 77", state.State["temperature"])
	}
	if state.State["mode"] != "AUTO" {
		t.Errorf("mode = %v, want AUTO", state.State["mode"])
	}
	if state.State["setpoint_status"] != "Run Schedule" {
		t.Errorf("setpoint_status = %v, want Run Schedule", state.State["setpoint_status"])
	}

	thermostatMsgs := broker.messagesOn("graylogic/state/nexia/thermostat-2059652")
	if len(thermostatMsgs) != 1 {
		t.Fatalf("len(thermostat state messages) = %d, want 1", len(thermostatMsgs))
	}
	tstate := decodeState(t, thermostatMsgs[0])
	if tstate.State["system_status"] != "System Idle" {
		t.Errorf("system_status = %v", tstate.State["system_status"])
	}
	if tstate.State["outdoor_temperature"] != 88.0 {
		t.Errorf("outdoor_temperature = %v, want 88", tstate.State["outdoor_temperature"])
	}
	if tstate.State["indoor_humidity"] != 0.36 {
		t.Errorf("indoor_humidity = %v, want 0.36", tstate.State["indoor_humidity"])
	}
	if tstate.State["blower_active"] != false {
		t.Errorf("blower_active = %v, want false", tstate.State["blower_active"])
	}
}

func TestPollOnce_SkipsUnchangedState(t *testing.T) {
	cs := newCloudServer(t)
	b, broker := newTestBridge(t, cs, nil)
	ctx := context.Background()

	if err := b.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce() error = %v", err)
	}
	if err := b.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce() error = %v", err)
	}

	zoneTopic := "graylogic/state/nexia/zone-83261002"
	if got := len(broker.messagesOn(zoneTopic)); got != 1 {
		t.Errorf("unchanged state published %d times, want 1", got)
	}

	// A temperature change republishes the zone but not the thermostat.
	cs.setZoneTemperature(78)
	if err := b.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce() error = %v", err)
	}
	if got := len(broker.messagesOn(zoneTopic)); got != 2 {
		t.Errorf("changed zone published %d times, want 2", got)
	}
	if got := len(broker.messagesOn("graylogic/state/nexia/thermostat-2059652")); got != 1 {
		t.Errorf("unchanged thermostat published %d times, want 1", got)
	}
}

func TestPollOnce_RecordsReadings(t *testing.T) {
	cs := newCloudServer(t)
	readings := &fakeReadings{}
	b, _ := newTestBridge(t, cs, func(opts *Options) {
		opts.Readings = readings
	})

	if err := b.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce() error = %v", err)
	}

	readings.mu.Lock()
	defer readings.mu.Unlock()
	if len(readings.records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(readings.records))
	}
	rec := readings.records[0]
	if rec.ZoneID != testZoneID || rec.ThermostatID != testThermostatID {
		t.Errorf("reading ids = %d/%d", rec.ZoneID, rec.ThermostatID)
	}
	if rec.Temperature != 77 || rec.HeatingSetpoint != 63 || rec.CoolingSetpoint != 80 {
		t.Errorf("reading values = %v/%v/%v", rec.Temperature, rec.HeatingSetpoint, rec.CoolingSetpoint)
	}
	if rec.Mode != "AUTO" {
		t.Errorf("reading mode = %q, want AUTO", rec.Mode)
	}
}

func TestPollOnce_WritesMetrics(t *testing.T) {
	cs := newCloudServer(t)
	metrics := &fakeMetrics{}
	b, _ := newTestBridge(t, cs, func(opts *Options) {
		opts.Metrics = metrics
	})

	if err := b.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce() error = %v", err)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.zoneWrites) != 1 {
		t.Fatalf("len(zoneWrites) = %d, want 1", len(metrics.zoneWrites))
	}
	if metrics.zoneWrites[0]["temperature"] != 77.0 {
		t.Errorf("zone temperature = %v, want 77", metrics.zoneWrites[0]["temperature"])
	}

	wantMetrics := map[string]float64{
		"outdoor_temperature": 88,
		"indoor_humidity":     0.36,
	}
	for _, write := range metrics.thermostats {
		want, ok := wantMetrics[write.Metric]
		if !ok {
			t.Errorf("unexpected thermostat metric %q", write.Metric)
			continue
		}
		if write.Value != want || write.ThermostatID != testThermostatID {
			t.Errorf("metric %q = %v for %d, want %v for %d",
				write.Metric, write.Value, write.ThermostatID, want, int64(testThermostatID))
		}
		delete(wantMetrics, write.Metric)
	}
	if len(wantMetrics) != 0 {
		t.Errorf("missing thermostat metrics: %v", wantMetrics)
	}
}

func TestPollOnce_CountsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client, err := nexia.New(nexia.Config{
		Username: "user@example.com",
		Password: "secret",
		BaseURL:  srv.URL,
	})
	if err != nil {
		t.Fatalf("nexia.New() error = %v", err)
	}
	b, err := New(Options{Client: client, MQTT: newMockMQTT(), PollInterval: -1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { b.ctxCancel() })

	if err := b.pollOnce(context.Background()); err == nil {
		t.Fatal("pollOnce() should fail against a broken cloud")
	}
	if got := b.pollErrors.Load(); got != 1 {
		t.Errorf("pollErrors = %d, want 1", got)
	}
	if got := b.pollErrorStreak.Load(); got != 1 {
		t.Errorf("pollErrorStreak = %d, want 1", got)
	}
}

// =============================================================================
// Command Tests
// =============================================================================

func TestHandleCommand_SetModeAccepted(t *testing.T) {
	cs := newCloudServer(t)
	b, broker := newTestBridge(t, cs, nil)

	topic := "graylogic/command/nexia/zone-83261002"
	payload := commandPayload(t, "cmd-1", CmdSetMode, map[string]any{"mode": "HEAT"})
	if err := b.handleCommand(topic, payload); err != nil {
		t.Fatalf("handleCommand() error = %v", err)
	}

	// Leaving the schedule first, then the mode change.
	holdPosts := cs.postsTo(fmt.Sprintf("/xxl_zones/%d/run_mode", testZoneID))
	if len(holdPosts) != 1 || holdPosts[0].Body["value"] != "permanent_hold" {
		t.Errorf("run_mode posts = %v, want one permanent_hold", holdPosts)
	}
	modePosts := cs.postsTo(fmt.Sprintf("/xxl_zones/%d/zone_mode", testZoneID))
	if len(modePosts) != 1 || modePosts[0].Body["value"] != "HEAT" {
		t.Errorf("zone_mode posts = %v, want one HEAT", modePosts)
	}

	acks := broker.messagesOn("graylogic/ack/nexia/zone-83261002")
	if len(acks) != 1 {
		t.Fatalf("len(acks) = %d, want 1", len(acks))
	}
	ack := decodeAck(t, acks[0])
	if ack.Status != AckAccepted || ack.CommandID != "cmd-1" {
		t.Errorf("ack = %+v, want accepted cmd-1", ack)
	}
	if ack.Error != nil {
		t.Errorf("ack.Error = %+v, want nil", ack.Error)
	}

	// The confirmed state goes out without waiting for the next poll.
	if len(broker.messagesOn("graylogic/state/nexia/zone-83261002")) == 0 {
		t.Error("accepted command should publish the confirmed state")
	}
}

func TestHandleCommand_SetSetpoints(t *testing.T) {
	cs := newCloudServer(t)
	b, broker := newTestBridge(t, cs, nil)

	topic := "graylogic/command/nexia/zone-83261002"
	payload := commandPayload(t, "cmd-2", CmdSetSetpoints, map[string]any{"heat": 65.0, "cool": 78.0})
	if err := b.handleCommand(topic, payload); err != nil {
		t.Fatalf("handleCommand() error = %v", err)
	}

	posts := cs.postsTo(fmt.Sprintf("/xxl_zones/%d/setpoints", testZoneID))
	if len(posts) != 1 {
		t.Fatalf("len(setpoint posts) = %d, want 1", len(posts))
	}
	if posts[0].Body["heat"] != 65.0 || posts[0].Body["cool"] != 78.0 {
		t.Errorf("setpoint body = %v, want heat 65 cool 78", posts[0].Body)
	}

	acks := broker.messagesOn("graylogic/ack/nexia/zone-83261002")
	if len(acks) != 1 || decodeAck(t, acks[0]).Status != AckAccepted {
		t.Fatalf("expected one accepted ack, got %v", acks)
	}
}

func TestHandleCommand_FanMode(t *testing.T) {
	cs := newCloudServer(t)
	b, broker := newTestBridge(t, cs, nil)

	topic := "graylogic/command/nexia/thermostat-2059652"
	payload := commandPayload(t, "cmd-3", CmdSetFanMode, map[string]any{"mode": "on"})
	if err := b.handleCommand(topic, payload); err != nil {
		t.Fatalf("handleCommand() error = %v", err)
	}

	posts := cs.postsTo(fmt.Sprintf("/xxl_thermostats/%d/fan_mode", testThermostatID))
	if len(posts) != 1 || posts[0].Body["value"] != "on" {
		t.Errorf("fan_mode posts = %v, want one on", posts)
	}

	acks := broker.messagesOn("graylogic/ack/nexia/thermostat-2059652")
	if len(acks) != 1 || decodeAck(t, acks[0]).Status != AckAccepted {
		t.Fatalf("expected one accepted ack, got %d", len(acks))
	}
}

func TestHandleCommand_Failures(t *testing.T) {
	tests := []struct {
		name     string
		address  string
		command  string
		params   map[string]any
		wantCode string
	}{
		{
			name:     "unknown command",
			address:  "zone-83261002",
			command:  "defrost",
			wantCode: ErrCodeInvalidCommand,
		},
		{
			name:     "missing parameter",
			address:  "zone-83261002",
			command:  CmdSetMode,
			wantCode: ErrCodeInvalidParameters,
		},
		{
			name:     "invalid fan mode",
			address:  "thermostat-2059652",
			command:  CmdSetFanMode,
			params:   map[string]any{"mode": "turbo"},
			wantCode: ErrCodeInvalidParameters,
		},
		{
			name:     "unsupported capability",
			address:  "thermostat-2059652",
			command:  CmdSetEmergencyHeat,
			params:   map[string]any{"on": true},
			wantCode: ErrCodeUnsupported,
		},
		{
			name:     "unknown zone",
			address:  "zone-999",
			command:  CmdReturnToSchedule,
			wantCode: ErrCodeUnknownDevice,
		},
		{
			name:     "malformed address",
			address:  "boiler-1",
			command:  CmdReturnToSchedule,
			wantCode: ErrCodeUnknownDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := newCloudServer(t)
			b, broker := newTestBridge(t, cs, nil)

			topic := "graylogic/command/nexia/" + tt.address
			payload := commandPayload(t, "cmd-x", tt.command, tt.params)
			if err := b.handleCommand(topic, payload); err != nil {
				t.Fatalf("handleCommand() error = %v", err)
			}

			acks := broker.messagesOn("graylogic/ack/nexia/" + tt.address)
			if len(acks) != 1 {
				t.Fatalf("len(acks) = %d, want 1", len(acks))
			}
			ack := decodeAck(t, acks[0])
			if ack.Status != AckFailed {
				t.Fatalf("ack status = %q, want failed", ack.Status)
			}
			if ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack error = %+v, want code %q", ack.Error, tt.wantCode)
			}
			if got := b.commandErrors.Load(); got != 1 {
				t.Errorf("commandErrors = %d, want 1", got)
			}
		})
	}
}

func TestHandleCommand_MalformedPayload(t *testing.T) {
	cs := newCloudServer(t)
	b, broker := newTestBridge(t, cs, nil)

	topic := "graylogic/command/nexia/zone-83261002"
	if err := b.handleCommand(topic, []byte("not json")); err == nil {
		t.Error("handleCommand() should report the decode failure")
	}

	acks := broker.messagesOn("graylogic/ack/nexia/zone-83261002")
	if len(acks) != 1 {
		t.Fatalf("len(acks) = %d, want 1", len(acks))
	}
	ack := decodeAck(t, acks[0])
	if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != ErrCodeInvalidCommand {
		t.Errorf("ack = %+v, want failed INVALID_COMMAND", ack)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: x", errUnknownCommand), ErrCodeInvalidCommand},
		{fmt.Errorf("%w: x", errInvalidParameter), ErrCodeInvalidParameters},
		{fmt.Errorf("%w: x", nexia.ErrInvalidValue), ErrCodeInvalidParameters},
		{fmt.Errorf("%w: x", nexia.ErrPresetNotFound), ErrCodeInvalidParameters},
		{fmt.Errorf("%w: x", nexia.ErrUnsupported), ErrCodeUnsupported},
		{fmt.Errorf("%w: x", nexia.ErrZoneNotFound), ErrCodeUnknownDevice},
		{fmt.Errorf("%w: x", nexia.ErrThermostatNotFound), ErrCodeUnknownDevice},
		{fmt.Errorf("plain failure"), ErrCodeCloudError},
	}

	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

// =============================================================================
// Health Tests
// =============================================================================

func TestDetermineStatus(t *testing.T) {
	broker := newMockMQTT()
	reporter := NewHealthReporter(broker, "test", time.Minute, func() HealthSnapshot {
		return HealthSnapshot{}
	}, nil)

	tests := []struct {
		name         string
		disconnected bool
		snap         HealthSnapshot
		want         HealthStatus
	}{
		{
			name: "never polled",
			snap: HealthSnapshot{},
			want: HealthStarting,
		},
		{
			name: "polling normally",
			snap: HealthSnapshot{LastPoll: time.Now()},
			want: HealthHealthy,
		},
		{
			name: "poll failures",
			snap: HealthSnapshot{LastPoll: time.Now(), PollErrorStreak: pollErrorThreshold},
			want: HealthDegraded,
		},
		{
			name:         "broker disconnected",
			disconnected: true,
			snap:         HealthSnapshot{LastPoll: time.Now()},
			want:         HealthDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker.mu.Lock()
			broker.disconnected = tt.disconnected
			broker.mu.Unlock()

			status, _ := reporter.determineStatus(tt.snap)
			if status != tt.want {
				t.Errorf("determineStatus() = %q, want %q", status, tt.want)
			}
		})
	}
}
