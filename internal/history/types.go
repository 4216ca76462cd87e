package history

import (
	"context"
	"time"
)

// ZoneReading is one sampled observation of a zone.
type ZoneReading struct {
	// ID is the unique identifier for the reading row.
	ID string `json:"id"`

	// ZoneID is the cloud identifier of the zone.
	ZoneID int64 `json:"zone_id"`

	// ThermostatID is the cloud identifier of the owning thermostat.
	ThermostatID int64 `json:"thermostat_id"`

	// Temperature is the zone temperature in the thermostat's scale.
	Temperature float64 `json:"temperature"`

	// HeatingSetpoint and CoolingSetpoint are the setpoints at sample time.
	HeatingSetpoint float64 `json:"heating_setpoint"`
	CoolingSetpoint float64 `json:"cooling_setpoint"`

	// Mode is the zone operating mode (AUTO, COOL, HEAT, OFF).
	Mode string `json:"mode"`

	// Status is the zone status string as reported by the cloud.
	Status string `json:"status"`

	// RecordedAt is the sample timestamp (UTC).
	RecordedAt time.Time `json:"recorded_at"`
}

// Repository stores and retrieves zone readings.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// Record persists one reading. The ID is generated if empty.
	Record(ctx context.Context, reading *ZoneReading) error

	// ListByZone returns recent readings for a zone, newest first.
	// The limit may be clamped by the implementation.
	ListByZone(ctx context.Context, zoneID int64, limit int) ([]ZoneReading, error)

	// Prune deletes readings older than the retention window and returns
	// the number of rows removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
