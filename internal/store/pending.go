package store

import (
	"fmt"
	"time"
)

// enqueuePending appends one entry to the pending-operation queue. It is
// called inside the same transaction as the entity write so a mutation and
// its queue entry are durable together.
func enqueuePending(x execer, table Table, op Op, entityID int64, payload []byte) error {
	if !table.Valid() {
		return fmt.Errorf("enqueue: unknown table %q", table)
	}
	_, err := x.Exec(`
		INSERT INTO pending_operations (table_name, op, entity_id, payload, created_at, retry_count)
		VALUES (?, ?, ?, ?, ?, 0)`,
		string(table), string(op), entityID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("enqueue pending op: %w", err)
	}
	return nil
}

// EnqueuePending appends a pending operation outside of an entity
// transaction. Entity mutation helpers enqueue transactionally; this is for
// callers that manage their own writes.
func (db *DB) EnqueuePending(table Table, op Op, entityID int64, payload []byte) error {
	return enqueuePending(db.DB, table, op, entityID, payload)
}

// ListPendingOperations returns all queued operations oldest first. The id
// tiebreak keeps enqueue order stable even for entries created within the
// same timestamp tick.
func (db *DB) ListPendingOperations() ([]PendingOperation, error) {
	rows, err := db.Query(`
		SELECT id, table_name, op, entity_id, payload, created_at, retry_count
		FROM pending_operations
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ops []PendingOperation
	for rows.Next() {
		var p PendingOperation
		var table, op, payload string
		if err := rows.Scan(&p.ID, &table, &op, &p.EntityID, &payload, &p.CreatedAt, &p.RetryCount); err != nil {
			return nil, err
		}
		p.Table = Table(table)
		p.Op = Op(op)
		p.Payload = []byte(payload)
		ops = append(ops, p)
	}
	return ops, rows.Err()
}

// RemovePendingOperation deletes one queue entry. Removing an id that is
// already gone is a no-op.
func (db *DB) RemovePendingOperation(id int64) error {
	_, err := db.Exec(`DELETE FROM pending_operations WHERE id = ?`, id)
	return err
}

// BumpRetry increments an entry's retry count. Once the count reaches max
// the entry is deleted instead and abandoned=true is returned; the mutation
// will not be attempted again.
func (db *DB) BumpRetry(id int64, max int) (abandoned bool, err error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRow(`SELECT retry_count FROM pending_operations WHERE id = ?`, id).Scan(&count); err != nil {
		return false, err
	}

	count++
	if count >= max {
		if _, err := tx.Exec(`DELETE FROM pending_operations WHERE id = ?`, id); err != nil {
			return false, err
		}
		return true, tx.Commit()
	}

	if _, err := tx.Exec(`UPDATE pending_operations SET retry_count = ? WHERE id = ?`, count, id); err != nil {
		return false, err
	}
	return false, tx.Commit()
}

// CountPendingOperations returns the queue depth.
func (db *DB) CountPendingOperations() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pending_operations`).Scan(&n)
	return n, err
}
