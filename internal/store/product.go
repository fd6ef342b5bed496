package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreateProduct inserts a product and queues the create for upload.
func (db *DB) CreateProduct(p *Product) error {
	p.LastUpdated = time.Now().UTC()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		INSERT INTO products (name, description, category, in_stock, last_updated)
		VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.Category, p.InStock, p.LastUpdated)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product payload: %w", err)
	}
	if err := enqueuePending(tx, TableProducts, OpCreate, p.ID, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateProduct rewrites a product and queues the update for upload.
func (db *DB) UpdateProduct(p *Product) error {
	p.LastUpdated = time.Now().UTC()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		UPDATE products SET name = ?, description = ?, category = ?, in_stock = ?, last_updated = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Category, p.InStock, p.LastUpdated, p.ID); err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product payload: %w", err)
	}
	if err := enqueuePending(tx, TableProducts, OpUpdate, p.ID, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteProduct removes a product locally and queues the delete.
func (db *DB) DeleteProduct(id int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	payload, _ := json.Marshal(map[string]int64{"id": id})
	if err := enqueuePending(tx, TableProducts, OpDelete, id, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// UpsertProduct inserts or overwrites a product by primary key.
func (db *DB) UpsertProduct(p *Product) error {
	return upsertProduct(db.DB, p)
}

func upsertProduct(x execer, p *Product) error {
	_, err := x.Exec(`
		INSERT INTO products (id, name, description, category, in_stock, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			in_stock = excluded.in_stock,
			last_updated = excluded.last_updated`,
		p.ID, p.Name, p.Description, p.Category, p.InStock, p.LastUpdated)
	return err
}

// GetProduct returns a product by id, or nil when absent.
func (db *DB) GetProduct(id int64) (*Product, error) {
	var p Product
	err := db.QueryRow(`
		SELECT id, name, description, category, in_stock, last_updated
		FROM products WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.InStock, &p.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProducts returns products filtered by category when category is
// non-empty, ordered by name.
func (db *DB) ListProducts(category string, limit, offset int) ([]Product, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, name, description, category, in_stock, last_updated
		FROM products`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY name ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.InStock, &p.LastUpdated); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
