package store

import (
	"fmt"
)

// MergeChangeSet upserts downloaded server records into the local tables in
// one transaction. A record that still has a pending local operation
// outstanding is skipped rather than clobbered; the server copy arrives on
// a later cycle once the queued mutation has been uploaded. Server records
// always carry server-assigned ids, so merged orders land as synced.
func (db *DB) MergeChangeSet(cs *ChangeSet) (*MergeStats, error) {
	stats := &MergeStats{}
	if cs == nil || cs.Empty() {
		return stats, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	hasPending := func(table Table, id int64) (bool, error) {
		var exists bool
		err := tx.QueryRow(`
			SELECT EXISTS(SELECT 1 FROM pending_operations WHERE table_name = ? AND entity_id = ?)`,
			string(table), id).Scan(&exists)
		return exists, err
	}

	for i := range cs.Orders {
		o := cs.Orders[i]
		pending, err := hasPending(TableOrders, o.ID)
		if err != nil {
			return nil, err
		}
		if pending {
			stats.Skipped++
			continue
		}
		o.SyncStatus = SyncSynced
		if err := upsertOrder(tx, &o); err != nil {
			return nil, fmt.Errorf("merge order %d: %w", o.ID, err)
		}
		stats.Merged++
	}

	for i := range cs.Customers {
		c := cs.Customers[i]
		pending, err := hasPending(TableCustomers, c.ID)
		if err != nil {
			return nil, err
		}
		if pending {
			stats.Skipped++
			continue
		}
		if err := upsertCustomer(tx, &c); err != nil {
			return nil, fmt.Errorf("merge customer %d: %w", c.ID, err)
		}
		stats.Merged++
	}

	for i := range cs.Products {
		p := cs.Products[i]
		pending, err := hasPending(TableProducts, p.ID)
		if err != nil {
			return nil, err
		}
		if pending {
			stats.Skipped++
			continue
		}
		if err := upsertProduct(tx, &p); err != nil {
			return nil, fmt.Errorf("merge product %d: %w", p.ID, err)
		}
		stats.Merged++
	}

	for i := range cs.Notifications {
		n := cs.Notifications[i]
		pending, err := hasPending(TableNotifications, n.ID)
		if err != nil {
			return nil, err
		}
		if pending {
			stats.Skipped++
			continue
		}
		if err := upsertNotification(tx, &n); err != nil {
			return nil, fmt.Errorf("merge notification %d: %w", n.ID, err)
		}
		stats.Merged++
	}

	for i := range cs.Distributors {
		d := cs.Distributors[i]
		pending, err := hasPending(TableDistributors, d.ID)
		if err != nil {
			return nil, err
		}
		if pending {
			stats.Skipped++
			continue
		}
		if err := upsertDistributor(tx, &d); err != nil {
			return nil, fmt.Errorf("merge distributor %d: %w", d.ID, err)
		}
		stats.Merged++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}
	return stats, nil
}
