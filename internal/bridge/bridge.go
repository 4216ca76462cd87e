package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-nexia/internal/history"
	"github.com/nerrad567/gray-logic-nexia/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-nexia/internal/nexia"
)

const (
	// defaultPollInterval matches the snapshot staleness window so a poll
	// cycle always triggers a real cloud fetch.
	defaultPollInterval = 120 * time.Second

	// defaultHealthInterval is how often health status is published.
	defaultHealthInterval = 30 * time.Second

	// commandTimeout bounds the cloud round-trips for one command.
	commandTimeout = 30 * time.Second

	// pruneInterval is how often the readings retention window is enforced.
	pruneInterval = time.Hour
)

// Bridge lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("bridge: already started")
	ErrNotStarted     = errors.New("bridge: not started")
)

// MQTTClient is the broker surface the bridge depends on.
// Satisfied by *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// MetricsWriter receives time-series samples from the poll loop.
// Satisfied by *influxdb.Client. Writes are fire-and-forget.
type MetricsWriter interface {
	WriteZoneReading(thermostatID, zoneID int64, fields map[string]interface{})
	WriteThermostatMetric(thermostatID int64, metric string, value float64)
}

// Logger is the logging interface used by the bridge.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// nopLogger discards all output.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Options configures a Bridge.
type Options struct {
	// Client is the Nexia cloud client (required).
	Client *nexia.Client

	// MQTT is the broker connection (required).
	MQTT MQTTClient

	// Readings optionally records zone samples on every poll.
	Readings history.Repository

	// Metrics optionally forwards samples to the time-series database.
	Metrics MetricsWriter

	// Logger receives bridge output. Nil disables logging.
	Logger Logger

	// Version is reported in health messages.
	Version string

	// PollInterval is the cadence of the poll loop. 0 means the default;
	// negative disables the loop (polling only via commands).
	PollInterval time.Duration

	// HealthInterval is the cadence of health publishing. 0 means the
	// default.
	HealthInterval time.Duration

	// Retention is how long zone readings are kept. 0 disables pruning.
	Retention time.Duration
}

// Bridge polls the Nexia cloud and bridges state and commands over MQTT.
//
// Thread Safety:
//   - Start and Stop must be called from a single goroutine.
//   - Command handling, polling and health reporting run concurrently and
//     share only the thread-safe client and atomic counters.
type Bridge struct {
	client   *nexia.Client
	mqtt     MQTTClient
	readings history.Repository
	metrics  MetricsWriter
	logger   Logger
	health   *HealthReporter

	pollInterval time.Duration
	retention    time.Duration
	topics       mqtt.Topics

	// published caches the serialised state per address so unchanged
	// state is not republished.
	publishedMu sync.Mutex
	published   map[string]string

	// Operational counters, read by the health reporter.
	pollsTotal       atomic.Uint64
	pollErrors       atomic.Uint64
	commandsTotal    atomic.Uint64
	commandErrors    atomic.Uint64
	pollErrorStreak  atomic.Int64
	lastPollUnixNano atomic.Int64
	thermostatCount  atomic.Int64
	zoneCount        atomic.Int64

	started   bool
	startedMu sync.Mutex
	ctx       context.Context
	ctxCancel context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New creates a Bridge from the options.
//
// Parameters:
//   - opts: Bridge configuration (Client and MQTT are required)
//
// Returns:
//   - *Bridge: Configured bridge, not yet started
//   - error: If required options are missing
func New(opts Options) (*Bridge, error) {
	if opts.Client == nil {
		return nil, errors.New("bridge: nexia client is required")
	}
	if opts.MQTT == nil {
		return nil, errors.New("bridge: mqtt client is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}

	healthInterval := opts.HealthInterval
	if healthInterval == 0 {
		healthInterval = defaultHealthInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		client:       opts.Client,
		mqtt:         opts.MQTT,
		readings:     opts.Readings,
		metrics:      opts.Metrics,
		logger:       logger,
		pollInterval: pollInterval,
		retention:    opts.Retention,
		published:    make(map[string]string),
		ctx:          ctx,
		ctxCancel:    cancel,
		done:         make(chan struct{}),
	}
	b.health = NewHealthReporter(opts.MQTT, opts.Version, healthInterval, b.healthSnapshot, logger)

	return b, nil
}

// Start subscribes to the command topic and launches the poll, prune and
// health loops. The provided context bounds only the initial poll; the
// loops run until Stop is called.
//
// Returns:
//   - error: If the command subscription fails or Start was already called
func (b *Bridge) Start(ctx context.Context) error {
	b.startedMu.Lock()
	if b.started {
		b.startedMu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.startedMu.Unlock()

	commandTopic := b.topics.BridgeCommands(ProtocolNexia)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleCommand); err != nil {
		return fmt.Errorf("bridge: subscribing to %s: %w", commandTopic, err)
	}
	b.logger.Info("bridge subscribed to commands", "topic", commandTopic)

	// First poll primes the retained state topics. A failure here is not
	// fatal; the poll loop retries on its cadence.
	if err := b.pollOnce(ctx); err != nil {
		b.logger.Warn("initial poll failed", "error", err)
	}

	if b.pollInterval > 0 {
		b.wg.Add(1)
		go b.pollLoop()
	}
	if b.readings != nil && b.retention > 0 {
		b.wg.Add(1)
		go b.pruneLoop()
	}
	b.health.Start()

	b.logger.Info("bridge started",
		"poll_interval", b.pollInterval.String(),
		"retention", b.retention.String(),
	)
	return nil
}

// Stop shuts down the loops and waits for them to finish.
// Safe to call more than once.
func (b *Bridge) Stop() error {
	b.startedMu.Lock()
	started := b.started
	b.startedMu.Unlock()
	if !started {
		return ErrNotStarted
	}

	b.stopOnce.Do(func() {
		b.logger.Info("bridge stopping")
		b.health.Stop()
		b.ctxCancel()
		close(b.done)
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
	return nil
}

// pollLoop runs pollOnce on the configured cadence until Stop.
func (b *Bridge) pollLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.pollOnce(b.ctx); err != nil {
				b.logger.Warn("poll failed", "error", err)
			}
		case <-b.done:
			return
		}
	}
}

// pruneLoop enforces the readings retention window.
func (b *Bridge) pruneLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := b.readings.Prune(b.ctx, b.retention)
			if err != nil {
				b.logger.Warn("pruning zone readings failed", "error", err)
				continue
			}
			if deleted > 0 {
				b.logger.Debug("pruned zone readings", "deleted", deleted)
			}
		case <-b.done:
			return
		}
	}
}

// healthSnapshot is the stats callback for the health reporter.
func (b *Bridge) healthSnapshot() HealthSnapshot {
	var lastPoll time.Time
	if nanos := b.lastPollUnixNano.Load(); nanos > 0 {
		lastPoll = time.Unix(0, nanos).UTC()
	}
	return HealthSnapshot{
		LastPoll:        lastPoll,
		PollErrorStreak: int(b.pollErrorStreak.Load()),
		Thermostats:     int(b.thermostatCount.Load()),
		Zones:           int(b.zoneCount.Load()),
		Statistics: BridgeStatistics{
			PollsTotal:    b.pollsTotal.Load(),
			PollErrors:    b.pollErrors.Load(),
			CommandsTotal: b.commandsTotal.Load(),
			CommandErrors: b.commandErrors.Load(),
		},
	}
}
