package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

func marshalItems(items []OrderItem) (string, error) {
	if items == nil {
		items = []OrderItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal items: %w", err)
	}
	return string(data), nil
}

func unmarshalItems(data string, into *[]OrderItem) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), into)
}

// CreateOrder inserts a new order and appends the matching create operation
// to the pending queue in one transaction. The assigned local id is written
// back to o.
func (db *DB) CreateOrder(o *Order) error {
	now := time.Now().UTC()
	if o.OrderDate.IsZero() {
		o.OrderDate = now
	}
	if o.Status == "" {
		o.Status = OrderPending
	}
	o.SyncStatus = SyncPending
	o.LastUpdated = now

	items, err := marshalItems(o.Items)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		INSERT INTO orders (client_ref, customer_id, customer_name, customer_email, customer_phone, customer_address,
			items, delivery_method, order_date, status, sync_status, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ClientRef, o.CustomerID, o.CustomerName, o.CustomerEmail, o.CustomerPhone, o.CustomerAddress,
		items, o.DeliveryMethod, o.OrderDate, o.Status, o.SyncStatus, o.LastUpdated)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	o.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order payload: %w", err)
	}
	if err := enqueuePending(tx, TableOrders, OpCreate, o.ID, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateOrder rewrites an existing order and queues the update for upload
// in one transaction.
func (db *DB) UpdateOrder(o *Order) error {
	o.SyncStatus = SyncPending
	o.LastUpdated = time.Now().UTC()

	items, err := marshalItems(o.Items)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		UPDATE orders SET customer_id = ?, customer_name = ?, customer_email = ?, customer_phone = ?, customer_address = ?,
			items = ?, delivery_method = ?, status = ?, sync_status = ?, last_updated = ?
		WHERE id = ?`,
		o.CustomerID, o.CustomerName, o.CustomerEmail, o.CustomerPhone, o.CustomerAddress,
		items, o.DeliveryMethod, o.Status, o.SyncStatus, o.LastUpdated, o.ID); err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order payload: %w", err)
	}
	if err := enqueuePending(tx, TableOrders, OpUpdate, o.ID, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteOrder removes an order locally and queues the delete for upload.
func (db *DB) DeleteOrder(id int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM orders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	payload, _ := json.Marshal(map[string]int64{"id": id})
	if err := enqueuePending(tx, TableOrders, OpDelete, id, payload); err != nil {
		return err
	}

	return tx.Commit()
}

// UpsertOrder inserts or overwrites an order by primary key. Used by the
// download merge; does not touch the pending queue.
func (db *DB) UpsertOrder(o *Order) error {
	return upsertOrder(db.DB, o)
}

func upsertOrder(x execer, o *Order) error {
	items, err := marshalItems(o.Items)
	if err != nil {
		return err
	}
	if o.SyncStatus == "" {
		o.SyncStatus = SyncSynced
	}
	_, err = x.Exec(`
		INSERT INTO orders (id, client_ref, customer_id, customer_name, customer_email, customer_phone, customer_address,
			items, delivery_method, order_date, status, sync_status, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id = excluded.customer_id,
			customer_name = excluded.customer_name,
			customer_email = excluded.customer_email,
			customer_phone = excluded.customer_phone,
			customer_address = excluded.customer_address,
			items = excluded.items,
			delivery_method = excluded.delivery_method,
			order_date = excluded.order_date,
			status = excluded.status,
			sync_status = excluded.sync_status,
			last_updated = excluded.last_updated`,
		o.ID, o.ClientRef, o.CustomerID, o.CustomerName, o.CustomerEmail, o.CustomerPhone, o.CustomerAddress,
		items, o.DeliveryMethod, o.OrderDate, o.Status, o.SyncStatus, o.LastUpdated)
	return err
}

// MarkOrderSynced records a successful create upload: the server-assigned
// id replaces the local one and the order flips to synced. If the server
// id is already present locally (from an earlier download) the local
// speculative row is dropped in its favor.
func (db *DB) MarkOrderSynced(localID, serverID int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if serverID != localID && serverID != 0 {
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM orders WHERE id = ?)`, serverID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			if _, err := tx.Exec(`DELETE FROM orders WHERE id = ?`, localID); err != nil {
				return err
			}
			if _, err := tx.Exec(`UPDATE orders SET sync_status = ? WHERE id = ?`, SyncSynced, serverID); err != nil {
				return err
			}
			return tx.Commit()
		}
		if _, err := tx.Exec(`UPDATE orders SET id = ?, sync_status = ? WHERE id = ?`, serverID, SyncSynced, localID); err != nil {
			return err
		}
		return tx.Commit()
	}

	if _, err := tx.Exec(`UPDATE orders SET sync_status = ? WHERE id = ?`, SyncSynced, localID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetOrder returns a single order by id, or nil when absent.
func (db *DB) GetOrder(id int64) (*Order, error) {
	row := db.QueryRow(`
		SELECT id, client_ref, customer_id, customer_name, customer_email, customer_phone, customer_address,
			items, delivery_method, order_date, status, sync_status, last_updated
		FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// ListOrders returns orders newest first.
func (db *DB) ListOrders(limit, offset int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, client_ref, customer_id, customer_name, customer_email, customer_phone, customer_address,
			items, delivery_method, order_date, status, sync_status, last_updated
		FROM orders
		ORDER BY order_date DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (*Order, error) {
	var o Order
	var items string
	if err := r.Scan(&o.ID, &o.ClientRef, &o.CustomerID, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.CustomerAddress, &items, &o.DeliveryMethod, &o.OrderDate, &o.Status, &o.SyncStatus, &o.LastUpdated); err != nil {
		return nil, err
	}
	if err := unmarshalItems(items, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return &o, nil
}
