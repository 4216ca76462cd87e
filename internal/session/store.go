package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore persists the session token pair in the nexia_session table.
// The table holds at most one row.
type SQLiteStore struct {
	db *sql.DB
}

// NewStore creates a SQLite-backed session token store.
func NewStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load returns the stored token pair, or (0, "", nil) when none is stored.
func (s *SQLiteStore) Load(ctx context.Context) (int64, string, error) {
	var mobileID int64
	var apiKey string

	err := s.db.QueryRowContext(ctx,
		"SELECT mobile_id, api_key FROM nexia_session WHERE id = 1",
	).Scan(&mobileID, &apiKey)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, "", nil
		}
		return 0, "", fmt.Errorf("loading session token: %w", err)
	}

	return mobileID, apiKey, nil
}

// Save replaces the stored token pair.
func (s *SQLiteStore) Save(ctx context.Context, mobileID int64, apiKey string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nexia_session (id, mobile_id, api_key, updated_at)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET mobile_id = excluded.mobile_id,
		   api_key = excluded.api_key, updated_at = excluded.updated_at`,
		mobileID, apiKey, now,
	)
	if err != nil {
		return fmt.Errorf("saving session token: %w", err)
	}
	return nil
}

// Clear removes the stored token pair, forcing a fresh login next start.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM nexia_session WHERE id = 1"); err != nil {
		return fmt.Errorf("clearing session token: %w", err)
	}
	return nil
}
