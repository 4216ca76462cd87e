package nexia

import (
	"errors"
	"fmt"
)

// Domain-specific errors for Nexia cloud operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidCredentials is returned when the cloud rejects the account
	// credentials, either with an explicit error or by redirecting the
	// login to the forgotten-credentials page.
	ErrInvalidCredentials = errors.New("nexia: invalid credentials")

	// ErrLoginAttemptsExhausted is returned once the per-client login
	// budget is spent. Further attempts risk locking the account, so all
	// operations fail fast without network traffic.
	ErrLoginAttemptsExhausted = errors.New("nexia: login attempts exhausted")

	// ErrNotLoggedIn is returned when an operation requires an
	// authenticated session and none has been established.
	ErrNotLoggedIn = errors.New("nexia: not logged in")

	// ErrThermostatNotFound is returned when the requested thermostat id
	// is not present in the house snapshot.
	ErrThermostatNotFound = errors.New("nexia: thermostat not found")

	// ErrAmbiguousThermostat is returned when no thermostat id was given
	// and the house contains more than one thermostat.
	ErrAmbiguousThermostat = errors.New("nexia: multiple thermostats, id required")

	// ErrZoneNotFound is returned when the requested zone id is not
	// present on the thermostat.
	ErrZoneNotFound = errors.New("nexia: zone not found")

	// ErrKeyNotFound is returned when an attribute, setting or feature
	// lookup fails against the cached snapshot.
	ErrKeyNotFound = errors.New("nexia: key not found")

	// ErrUnsupported is returned when a value is requested for a
	// capability the device does not report.
	ErrUnsupported = errors.New("nexia: not supported by this thermostat")

	// ErrInvalidValue is returned when a control operation is given a
	// value outside the device's accepted set or range.
	ErrInvalidValue = errors.New("nexia: invalid value")

	// ErrPresetNotFound is returned when a preset label does not match
	// any option reported by the zone.
	ErrPresetNotFound = errors.New("nexia: preset not found")
)

// ResponseError describes a non-2xx response from the cloud API.
//
// It is returned after the transparent re-login retry has been spent, so a
// ResponseError always reflects the final answer from the server.
type ResponseError struct {
	// Method is the HTTP method of the failed request.
	Method string

	// URL is the full request URL.
	URL string

	// StatusCode is the numeric HTTP status.
	StatusCode int

	// Status is the HTTP status line.
	Status string

	// Body is the response body, truncated for logging.
	Body string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("nexia: %s %s failed: %s", e.Method, e.URL, e.Status)
}
