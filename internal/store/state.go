package store

import (
	"database/sql"
	"time"
)

const stateLastSyncTime = "last_sync_time"

// SetState stores a key/value scalar in the sync_state table.
func (db *DB) SetState(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	return err
}

// GetState retrieves a key/value scalar. Returns ok=false when unset.
func (db *DB) GetState(key string) (value string, ok bool, err error) {
	err = db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// LastSyncTime returns the watermark of the last completed sync cycle, or
// nil when no cycle has ever completed.
func (db *DB) LastSyncTime() (*time.Time, error) {
	value, ok, err := db.GetState(stateLastSyncTime)
	if err != nil || !ok {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SetLastSyncTime advances the watermark. Called only when a cycle
// completes; failed cycles leave the previous watermark in place.
func (db *DB) SetLastSyncTime(t time.Time) error {
	return db.SetState(stateLastSyncTime, t.UTC().Format(time.RFC3339Nano))
}
