package bridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-nexia/internal/infrastructure/mqtt"
)

// pollErrorThreshold is how many consecutive poll failures mark the
// bridge degraded.
const pollErrorThreshold = 3

// HealthPublisher is the broker surface the health reporter depends on.
// Satisfied by *mqtt.Client and by any MQTTClient.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthSnapshot is one observation of bridge state, produced by the
// stats callback on every report.
type HealthSnapshot struct {
	LastPoll        time.Time
	PollErrorStreak int
	Thermostats     int
	Zones           int
	Statistics      BridgeStatistics
}

// HealthReporter periodically publishes bridge health to MQTT.
//
// Status is derived from the snapshot: a bridge that has never polled is
// starting, one with a run of consecutive poll failures is degraded,
// otherwise it is healthy. Stop publishes a final stopping message.
type HealthReporter struct {
	publisher HealthPublisher
	version   string
	interval  time.Duration
	snapshot  func() HealthSnapshot
	logger    Logger
	topics    mqtt.Topics

	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a health reporter.
//
// Parameters:
//   - publisher: Broker connection used for publishing
//   - version: Bridge version reported in messages
//   - interval: Publish cadence
//   - snapshot: Callback returning current bridge stats
//   - logger: Logger for publish failures
func NewHealthReporter(publisher HealthPublisher, version string, interval time.Duration, snapshot func() HealthSnapshot, logger Logger) *HealthReporter {
	if logger == nil {
		logger = nopLogger{}
	}
	return &HealthReporter{
		publisher: publisher,
		version:   version,
		interval:  interval,
		snapshot:  snapshot,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start publishes an initial starting status and launches the report loop.
func (r *HealthReporter) Start() {
	r.startTime = time.Now()
	r.publishStatus(HealthStarting, "")

	r.wg.Add(1)
	go r.reportLoop()
}

// Stop publishes a final stopping status and halts the report loop.
// Safe to call more than once.
func (r *HealthReporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.publishStatus(HealthStopping, "shutdown")
	})
}

func (r *HealthReporter) reportLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status, reason := r.determineStatus(r.snapshot())
			r.publishStatus(status, reason)
		case <-r.done:
			return
		}
	}
}

// determineStatus derives the health status from a snapshot.
func (r *HealthReporter) determineStatus(snap HealthSnapshot) (HealthStatus, string) {
	if !r.publisher.IsConnected() {
		return HealthDegraded, "mqtt disconnected"
	}
	if snap.PollErrorStreak >= pollErrorThreshold {
		return HealthDegraded, "cloud polling failing"
	}
	if snap.LastPoll.IsZero() {
		return HealthStarting, ""
	}
	return HealthHealthy, ""
}

func (r *HealthReporter) publishStatus(status HealthStatus, reason string) {
	snap := r.snapshot()

	msg := HealthMessage{
		Bridge:        ProtocolNexia,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       r.version,
		UptimeSeconds: int64(time.Since(r.startTime).Seconds()),
		Thermostats:   snap.Thermostats,
		Zones:         snap.Zones,
		Statistics:    &snap.Statistics,
		Reason:        reason,
	}
	if !snap.LastPoll.IsZero() {
		lastPoll := snap.LastPoll
		msg.LastPoll = &lastPoll
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshalling health message", "error", err)
		return
	}
	topic := r.topics.BridgeHealth(ProtocolNexia)
	if err := r.publisher.Publish(topic, payload, 1, true); err != nil {
		r.logger.Warn("publishing health message", "error", err)
	}
}
