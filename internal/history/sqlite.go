package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SQLiteRepository implements Repository using the zone_readings table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed reading repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record persists one zone reading. The ID is generated if empty and
// RecordedAt defaults to now.
func (r *SQLiteRepository) Record(ctx context.Context, reading *ZoneReading) error {
	if reading == nil {
		return fmt.Errorf("reading is required")
	}
	if reading.ZoneID == 0 {
		return fmt.Errorf("zone id is required")
	}
	if reading.ID == "" {
		reading.ID = "zr-" + uuid.NewString()[:16]
	}
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO zone_readings
		   (id, zone_id, thermostat_id, temperature, heating_setpoint, cooling_setpoint, mode, status, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reading.ID, reading.ZoneID, reading.ThermostatID,
		reading.Temperature, reading.HeatingSetpoint, reading.CoolingSetpoint,
		reading.Mode, reading.Status,
		reading.RecordedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting zone reading: %w", err)
	}
	return nil
}

// ListByZone returns recent readings for a zone, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - zoneID: Cloud identifier of the zone
//   - limit: Maximum entries to return (default 50, max 500)
func (r *SQLiteRepository) ListByZone(ctx context.Context, zoneID int64, limit int) ([]ZoneReading, error) {
	if zoneID == 0 {
		return nil, fmt.Errorf("zone id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, zone_id, thermostat_id, temperature, heating_setpoint, cooling_setpoint, mode, status, recorded_at
		 FROM zone_readings
		 WHERE zone_id = ?
		 ORDER BY recorded_at DESC
		 LIMIT ?`,
		zoneID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying zone readings: %w", err)
	}
	defer rows.Close()

	readings := make([]ZoneReading, 0, limit)
	for rows.Next() {
		var reading ZoneReading
		var recordedAt string

		if err := rows.Scan(&reading.ID, &reading.ZoneID, &reading.ThermostatID,
			&reading.Temperature, &reading.HeatingSetpoint, &reading.CoolingSetpoint,
			&reading.Mode, &reading.Status, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning zone reading: %w", err)
		}

		timestamp, err := time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		reading.RecordedAt = timestamp

		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zone readings: %w", err)
	}

	return readings, nil
}

// Prune deletes readings older than the given duration.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM zone_readings WHERE recorded_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting zone readings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}
