package nexia

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Cloud endpoint and polling constants.
const (
	// DefaultBaseURL is the production mobile API endpoint.
	DefaultBaseURL = "https://www.mynexia.com/mobile"

	// DefaultUpdateInterval is how long a snapshot stays fresh before the
	// next read triggers a refresh.
	DefaultUpdateInterval = 120 * time.Second

	// UpdateManual disables automatic refresh entirely. The first read
	// still fetches once; after that only Refresh() hits the network.
	UpdateManual = time.Duration(-1)

	// defaultTimeout is the per-request HTTP timeout.
	defaultTimeout = 20 * time.Second

	// defaultLoginAttempts bounds login attempts per client instance.
	// The cloud locks accounts after repeated failures.
	defaultLoginAttempts = 4
)

// Zone operating modes as reported and accepted by the cloud.
const (
	ModeAuto = "AUTO"
	ModeCool = "COOL"
	ModeHeat = "HEAT"
	ModeOff  = "OFF"
)

// Modes lists the accepted zone operating modes.
var Modes = []string{ModeAuto, ModeCool, ModeHeat, ModeOff}

// Fan modes.
const (
	FanModeAuto      = "auto"
	FanModeOn        = "on"
	FanModeCirculate = "circulate"
)

// FanModes lists the accepted fan modes.
var FanModes = []string{FanModeAuto, FanModeOn, FanModeCirculate}

// Air cleaner modes.
const (
	AirCleanerAuto    = "auto"
	AirCleanerQuick   = "quick"
	AirCleanerAllergy = "allergy"
)

// AirCleanerModes lists the accepted air cleaner modes.
var AirCleanerModes = []string{AirCleanerAuto, AirCleanerQuick, AirCleanerAllergy}

// Zone run modes.
const (
	HoldPermanent   = "permanent_hold"
	HoldRunSchedule = "run_schedule"
)

// PresetNone is the preset label meaning no preset is selected.
const PresetNone = "None"

// System status strings reported by the thermostat.
const (
	SystemStatusCooling = "Cooling"
	SystemStatusHeating = "Heating"
	SystemStatusWaiting = "Waiting..."
	SystemStatusIdle    = "System Idle"
)

// Temperature units.
const (
	UnitCelsius    = "C"
	UnitFahrenheit = "F"
)

// Humidity setpoint limits. These are fixed across the product line rather
// than reported by the device.
const (
	HumidityMin = 0.35
	HumidityMax = 0.65
)

// Logger is the optional logging interface accepted by the client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// TokenStore persists the session token pair across restarts so a restart
// does not consume a login attempt.
//
// Load returns the stored mobile id and api key, or (0, "", nil) when
// nothing is stored. Save replaces the stored pair. Clear removes a pair
// that proved stale so it is not retried on the next start.
type TokenStore interface {
	Load(ctx context.Context) (mobileID int64, apiKey string, err error)
	Save(ctx context.Context, mobileID int64, apiKey string) error
	Clear(ctx context.Context) error
}

// Config contains the settings for a Client.
type Config struct {
	// Username is the account email address.
	Username string

	// Password is the account password.
	Password string

	// HouseID selects the house. 0 means discover it from the session
	// after login.
	HouseID int64

	// UpdateInterval is the snapshot staleness window. 0 means
	// DefaultUpdateInterval; UpdateManual disables automatic refresh.
	UpdateInterval time.Duration

	// BaseURL overrides the cloud endpoint. Empty means DefaultBaseURL.
	BaseURL string

	// HTTPClient overrides the HTTP client. The client installs its own
	// redirect policy; 302 responses must surface to the transport layer.
	HTTPClient *http.Client

	// TokenStore optionally persists the session token pair.
	TokenStore TokenStore

	// Logger receives debug and warning output. Nil disables logging.
	Logger Logger
}

// Client is a stateful client for one Nexia account and house.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The snapshot is guarded by a read-write mutex; refreshes are
//     serialised by a separate fetch mutex with a double staleness check.
type Client struct {
	session        *session
	updateInterval time.Duration
	logger         Logger

	// stateMu guards snap and lastUpdate, and is shared with the
	// Thermostat/Zone wrappers for attribute reads during merges.
	stateMu    sync.RWMutex
	snap       *Snapshot
	lastUpdate time.Time

	// fetchMu serialises network refreshes.
	fetchMu sync.Mutex

	// now is replaced in tests to control the staleness clock.
	now func() time.Time
}

// New creates a Client from the configuration.
//
// No network traffic happens here; call Login to establish the session, or
// let the first read trigger it.
//
// Parameters:
//   - cfg: Client configuration (Username and Password are required)
//
// Returns:
//   - *Client: Configured client
//   - error: If required configuration is missing
func New(cfg Config) (*Client, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("nexia: username and password are required")
	}

	interval := cfg.UpdateInterval
	if interval == 0 {
		interval = DefaultUpdateInterval
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	// Session expiry arrives as a 302 to the login page; the transport
	// layer must see it rather than follow it.
	httpClient.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	}

	c := &Client{
		session: &session{
			http:         httpClient,
			baseURL:      baseURL,
			username:     cfg.Username,
			password:     cfg.Password,
			houseID:      cfg.HouseID,
			store:        cfg.TokenStore,
			logger:       cfg.Logger,
			attemptsLeft: defaultLoginAttempts,
		},
		updateInterval: interval,
		logger:         cfg.Logger,
		now:            time.Now,
	}
	return c, nil
}

// Login establishes an authenticated session.
//
// If a TokenStore is configured and holds a token pair, that pair is reused
// and no login attempt is consumed; the pair is validated lazily by the
// first request. Otherwise a fresh login is performed, consuming one
// attempt on failure.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: ErrInvalidCredentials, ErrLoginAttemptsExhausted, or a
//     transport error
func (c *Client) Login(ctx context.Context) error {
	return c.session.ensureAuthenticated(ctx)
}

// HouseID returns the configured or discovered house identifier.
// Returns 0 until login has discovered it.
func (c *Client) HouseID() int64 {
	return c.session.currentHouseID()
}

// LastUpdate returns the time of the last successful snapshot fetch.
// The zero time means no snapshot has been fetched yet.
func (c *Client) LastUpdate() time.Time {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastUpdate
}
