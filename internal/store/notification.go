package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// UpsertNotification inserts or overwrites a notification by primary key.
// Notifications originate server-side and arrive via the download merge.
func (db *DB) UpsertNotification(n *Notification) error {
	return upsertNotification(db.DB, n)
}

func upsertNotification(x execer, n *Notification) error {
	_, err := x.Exec(`
		INSERT INTO notifications (id, type, title, message, is_read, created_at, target_user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			title = excluded.title,
			message = excluded.message,
			is_read = excluded.is_read,
			created_at = excluded.created_at,
			target_user_id = excluded.target_user_id`,
		n.ID, n.Type, n.Title, n.Message, n.IsRead, n.CreatedAt, n.TargetUserID)
	return err
}

// MarkNotificationRead flips the read flag locally and queues the update
// so the portal learns about it on the next sync.
func (db *DB) MarkNotificationRead(id int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`UPDATE notifications SET is_read = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	var n Notification
	err = tx.QueryRow(`
		SELECT id, type, title, message, is_read, created_at, target_user_id
		FROM notifications WHERE id = ?`, id).
		Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt, &n.TargetUserID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("notification %d not found", id)
	}
	if err != nil {
		return err
	}

	payload, err := json.Marshal(&n)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	if err := enqueuePending(tx, TableNotifications, OpUpdate, id, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// ListNotifications returns notifications newest first. When unreadOnly is
// set, read notifications are filtered out.
func (db *DB) ListNotifications(unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, type, title, message, is_read, created_at, target_user_id
		FROM notifications`
	if unreadOnly {
		query += ` WHERE is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt, &n.TargetUserID); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// CreateNotification inserts a locally generated notice (e.g. an admin
// broadcast drafted offline) and queues it for upload.
func (db *DB) CreateNotification(n *Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		INSERT INTO notifications (type, title, message, is_read, created_at, target_user_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.Type, n.Title, n.Message, n.IsRead, n.CreatedAt, n.TargetUserID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	if err := enqueuePending(tx, TableNotifications, OpCreate, n.ID, payload); err != nil {
		return err
	}

	return tx.Commit()
}
