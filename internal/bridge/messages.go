package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ProtocolNexia identifies this bridge in topics and messages.
const ProtocolNexia = "nexia"

// Device address kinds used in MQTT topics.
const (
	AddressKindThermostat = "thermostat"
	AddressKindZone       = "zone"
)

// CommandMessage is received on graylogic/command/nexia/{address}.
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acks.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Command is the command name (e.g., "set_mode", "set_setpoints").
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"mode": "COOL"} for set_mode
	//   {"heat": 20, "cool": 25} for set_setpoints
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was accepted by the cloud.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage is published on graylogic/ack/nexia/{address}.
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("nexia").
	Protocol string `json:"protocol"`

	// Address is the device address from the command topic.
	Address string `json:"address"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g., "INVALID_PARAMETERS").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeUnknownDevice     = "UNKNOWN_DEVICE"
	ErrCodeUnsupported       = "UNSUPPORTED"
	ErrCodeCloudError        = "CLOUD_ERROR"
)

// StateMessage is published retained on graylogic/state/nexia/{address}
// whenever a device's state changes.
type StateMessage struct {
	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Protocol is the protocol identifier ("nexia").
	Protocol string `json:"protocol"`

	// Address is the device address (e.g., "zone-83261002").
	Address string `json:"address"`

	// State contains the current device state.
	// Thermostat: {"system_status": "Cooling", "fan_mode": "auto", ...}
	// Zone: {"temperature": 22.5, "mode": "AUTO", ...}
	State map[string]any `json:"state"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on graylogic/health/nexia.
type HealthMessage struct {
	// Bridge is the bridge identifier ("nexia").
	Bridge string `json:"bridge"`

	// Timestamp is when the status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version,omitempty"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// LastPoll is the time of the last successful cloud poll.
	LastPoll *time.Time `json:"last_poll,omitempty"`

	// Thermostats and Zones count the devices in the last snapshot.
	Thermostats int `json:"thermostats"`
	Zones       int `json:"zones"`

	// Statistics contains operational metrics.
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// BridgeStatistics contains operational metrics.
type BridgeStatistics struct {
	// PollsTotal is the number of completed poll cycles.
	PollsTotal uint64 `json:"polls_total"`

	// PollErrors is the number of failed poll cycles.
	PollErrors uint64 `json:"poll_errors"`

	// CommandsTotal is the number of commands received.
	CommandsTotal uint64 `json:"commands_total"`

	// CommandErrors is the number of commands that failed.
	CommandErrors uint64 `json:"command_errors"`
}

// =============================================================================
// Address Helpers
// =============================================================================

// ThermostatAddress returns the topic address for a thermostat.
// Example: "thermostat-2059652"
func ThermostatAddress(id int64) string {
	return fmt.Sprintf("%s-%d", AddressKindThermostat, id)
}

// ZoneAddress returns the topic address for a zone.
// Example: "zone-83261002"
func ZoneAddress(id int64) string {
	return fmt.Sprintf("%s-%d", AddressKindZone, id)
}

// ParseAddress splits a topic address into its kind and cloud id.
//
// Returns:
//   - kind: AddressKindThermostat or AddressKindZone
//   - id: The cloud identifier
//   - error: If the address does not follow the kind-id form
func ParseAddress(address string) (kind string, id int64, err error) {
	kind, rawID, ok := strings.Cut(address, "-")
	if !ok {
		return "", 0, fmt.Errorf("malformed address %q", address)
	}
	if kind != AddressKindThermostat && kind != AddressKindZone {
		return "", 0, fmt.Errorf("unknown address kind %q", kind)
	}
	id, err = strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("invalid device id in address %q", address)
	}
	return kind, id, nil
}

// =============================================================================
// Message Constructors
// =============================================================================

// NewAckMessage creates an acknowledgment for a command.
func NewAckMessage(cmd CommandMessage, address string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Status:    status,
		Protocol:  ProtocolNexia,
		Address:   address,
	}
}

// NewAckError creates a failed acknowledgment with error details.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Status:    AckFailed,
		Protocol:  ProtocolNexia,
		Address:   address,
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// NewStateMessage creates a state message for a device address.
func NewStateMessage(address string, state map[string]any) StateMessage {
	return StateMessage{
		Timestamp: time.Now().UTC(),
		Protocol:  ProtocolNexia,
		Address:   address,
		State:     state,
	}
}
