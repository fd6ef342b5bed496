package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreateDistributor inserts a distributor and queues the create for upload.
func (db *DB) CreateDistributor(d *Distributor) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.LastUpdated = now

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		INSERT INTO distributors (name, region, contact_person, phone, email, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.Name, d.Region, d.ContactPerson, d.Phone, d.Email, d.CreatedAt, d.LastUpdated)
	if err != nil {
		return fmt.Errorf("insert distributor: %w", err)
	}
	d.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal distributor payload: %w", err)
	}
	if err := enqueuePending(tx, TableDistributors, OpCreate, d.ID, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateDistributor rewrites a distributor and queues the update.
func (db *DB) UpdateDistributor(d *Distributor) error {
	d.LastUpdated = time.Now().UTC()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		UPDATE distributors SET name = ?, region = ?, contact_person = ?, phone = ?, email = ?, last_updated = ?
		WHERE id = ?`,
		d.Name, d.Region, d.ContactPerson, d.Phone, d.Email, d.LastUpdated, d.ID); err != nil {
		return fmt.Errorf("update distributor: %w", err)
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal distributor payload: %w", err)
	}
	if err := enqueuePending(tx, TableDistributors, OpUpdate, d.ID, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteDistributor removes a distributor locally and queues the delete.
func (db *DB) DeleteDistributor(id int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM distributors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete distributor: %w", err)
	}
	payload, _ := json.Marshal(map[string]int64{"id": id})
	if err := enqueuePending(tx, TableDistributors, OpDelete, id, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// UpsertDistributor inserts or overwrites a distributor by primary key.
func (db *DB) UpsertDistributor(d *Distributor) error {
	return upsertDistributor(db.DB, d)
}

func upsertDistributor(x execer, d *Distributor) error {
	_, err := x.Exec(`
		INSERT INTO distributors (id, name, region, contact_person, phone, email, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			region = excluded.region,
			contact_person = excluded.contact_person,
			phone = excluded.phone,
			email = excluded.email,
			created_at = excluded.created_at,
			last_updated = excluded.last_updated`,
		d.ID, d.Name, d.Region, d.ContactPerson, d.Phone, d.Email, d.CreatedAt, d.LastUpdated)
	return err
}

// GetDistributor returns a distributor by id, or nil when absent.
func (db *DB) GetDistributor(id int64) (*Distributor, error) {
	var d Distributor
	err := db.QueryRow(`
		SELECT id, name, region, contact_person, phone, email, created_at, last_updated
		FROM distributors WHERE id = ?`, id).
		Scan(&d.ID, &d.Name, &d.Region, &d.ContactPerson, &d.Phone, &d.Email, &d.CreatedAt, &d.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDistributors returns distributors filtered by region when region is
// non-empty, ordered by name.
func (db *DB) ListDistributors(region string, limit, offset int) ([]Distributor, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, name, region, contact_person, phone, email, created_at, last_updated
		FROM distributors`
	args := []any{}
	if region != "" {
		query += ` WHERE region = ?`
		args = append(args, region)
	}
	query += ` ORDER BY name ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var distributors []Distributor
	for rows.Next() {
		var d Distributor
		if err := rows.Scan(&d.ID, &d.Name, &d.Region, &d.ContactPerson, &d.Phone, &d.Email, &d.CreatedAt, &d.LastUpdated); err != nil {
			return nil, err
		}
		distributors = append(distributors, d)
	}
	return distributors, rows.Err()
}
