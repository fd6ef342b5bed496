package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreateCustomer inserts a customer and queues the create for upload in one
// transaction. The assigned local id is written back to c.
func (db *DB) CreateCustomer(c *Customer) error {
	now := time.Now().UTC()
	if c.RegistrationDate.IsZero() {
		c.RegistrationDate = now
	}
	c.LastUpdated = now

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		INSERT INTO customers (name, email, phone, address, registration_date, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Email, c.Phone, c.Address, c.RegistrationDate, c.LastUpdated)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal customer payload: %w", err)
	}
	if err := enqueuePending(tx, TableCustomers, OpCreate, c.ID, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateCustomer rewrites a customer and queues the update for upload.
func (db *DB) UpdateCustomer(c *Customer) error {
	c.LastUpdated = time.Now().UTC()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		UPDATE customers SET name = ?, email = ?, phone = ?, address = ?, last_updated = ?
		WHERE id = ?`,
		c.Name, c.Email, c.Phone, c.Address, c.LastUpdated, c.ID); err != nil {
		return fmt.Errorf("update customer: %w", err)
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal customer payload: %w", err)
	}
	if err := enqueuePending(tx, TableCustomers, OpUpdate, c.ID, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteCustomer removes a customer locally and queues the delete.
func (db *DB) DeleteCustomer(id int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM customers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	payload, _ := json.Marshal(map[string]int64{"id": id})
	if err := enqueuePending(tx, TableCustomers, OpDelete, id, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// UpsertCustomer inserts or overwrites a customer by primary key.
func (db *DB) UpsertCustomer(c *Customer) error {
	return upsertCustomer(db.DB, c)
}

func upsertCustomer(x execer, c *Customer) error {
	_, err := x.Exec(`
		INSERT INTO customers (id, name, email, phone, address, registration_date, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			address = excluded.address,
			registration_date = excluded.registration_date,
			last_updated = excluded.last_updated`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.RegistrationDate, c.LastUpdated)
	return err
}

// GetCustomer returns a customer by id, or nil when absent.
func (db *DB) GetCustomer(id int64) (*Customer, error) {
	row := db.QueryRow(`
		SELECT id, name, email, phone, address, registration_date, last_updated
		FROM customers WHERE id = ?`, id)
	return scanCustomer(row)
}

// GetCustomerByEmail looks a customer up by the unique email key.
func (db *DB) GetCustomerByEmail(email string) (*Customer, error) {
	row := db.QueryRow(`
		SELECT id, name, email, phone, address, registration_date, last_updated
		FROM customers WHERE email = ?`, email)
	return scanCustomer(row)
}

// ListCustomers returns customers ordered by name.
func (db *DB) ListCustomers(limit, offset int) ([]Customer, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, name, email, phone, address, registration_date, last_updated
		FROM customers
		ORDER BY name ASC, id ASC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.RegistrationDate, &c.LastUpdated); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func scanCustomer(row *sql.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.RegistrationDate, &c.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
