package store

import (
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateOrderQueuesPendingOp(t *testing.T) {
	db := testDB(t)

	o := &Order{
		CustomerID:     1,
		CustomerName:   "Jane Doe",
		CustomerEmail:  "jane@example.com",
		Items:          []OrderItem{{ProductID: 7, Name: "Gauze", Unit: "box", Quantity: 2}},
		DeliveryMethod: "courier",
	}
	if err := db.CreateOrder(o); err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if o.ID == 0 {
		t.Fatal("CreateOrder() did not assign a local id")
	}
	if o.SyncStatus != SyncPending {
		t.Errorf("SyncStatus = %q, want %q", o.SyncStatus, SyncPending)
	}

	// The invariant: an unacknowledged order has a matching queue entry.
	ops, err := db.ListPendingOperations()
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 {
		t.Fatalf("got %d pending ops, want 1", len(ops))
	}
	if ops[0].Table != TableOrders || ops[0].Op != OpCreate || ops[0].EntityID != o.ID {
		t.Errorf("pending op = %+v, want orders/create/%d", ops[0], o.ID)
	}

	decoded, err := ops[0].DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	po, ok := decoded.(*Order)
	if !ok {
		t.Fatalf("decoded payload is %T, want *Order", decoded)
	}
	if po.CustomerName != "Jane Doe" || len(po.Items) != 1 || po.Items[0].Quantity != 2 {
		t.Errorf("payload order = %+v, want Jane Doe with 2x gauze", po)
	}
}

func TestOrderRoundTrip(t *testing.T) {
	db := testDB(t)

	o := &Order{CustomerName: "Jane", Items: []OrderItem{{ProductID: 3, Name: "Masks", Unit: "pack", Quantity: 10}}}
	if err := db.CreateOrder(o); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetOrder(o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("GetOrder() returned nil for existing order")
	}
	if got.Status != OrderPending {
		t.Errorf("Status = %q, want %q", got.Status, OrderPending)
	}
	if len(got.Items) != 1 || got.Items[0].Name != "Masks" {
		t.Errorf("Items = %+v, want one Masks line", got.Items)
	}

	missing, err := db.GetOrder(9999)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("GetOrder(9999) = %+v, want nil", missing)
	}
}

func TestMarkOrderSyncedAdoptsServerID(t *testing.T) {
	db := testDB(t)

	o := &Order{CustomerName: "Jane"}
	if err := db.CreateOrder(o); err != nil {
		t.Fatal(err)
	}

	if err := db.MarkOrderSynced(o.ID, 4200); err != nil {
		t.Fatalf("MarkOrderSynced() error = %v", err)
	}

	old, err := db.GetOrder(o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old != nil {
		t.Error("local id row still present after server id adoption")
	}

	adopted, err := db.GetOrder(4200)
	if err != nil {
		t.Fatal(err)
	}
	if adopted == nil {
		t.Fatal("order not found under server id")
	}
	if adopted.SyncStatus != SyncSynced {
		t.Errorf("SyncStatus = %q, want %q", adopted.SyncStatus, SyncSynced)
	}
}

func TestUpsertOrderIdempotent(t *testing.T) {
	db := testDB(t)

	o := &Order{ID: 10, CustomerName: "v1", OrderDate: time.Now(), LastUpdated: time.Now()}
	if err := db.UpsertOrder(o); err != nil {
		t.Fatal(err)
	}
	o.CustomerName = "v2"
	if err := db.UpsertOrder(o); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertOrder(o); err != nil {
		t.Fatal(err)
	}

	orders, err := db.ListOrders(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 {
		t.Fatalf("got %d orders, want 1 (upsert by id)", len(orders))
	}
	if orders[0].CustomerName != "v2" {
		t.Errorf("CustomerName = %q, want v2", orders[0].CustomerName)
	}
}

func TestCustomerEmailLookup(t *testing.T) {
	db := testDB(t)

	c := &Customer{Name: "Clinic North", Email: "north@clinic.test"}
	if err := db.CreateCustomer(c); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetCustomerByEmail("north@clinic.test")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != c.ID {
		t.Fatalf("GetCustomerByEmail() = %+v, want id %d", got, c.ID)
	}

	missing, err := db.GetCustomerByEmail("nobody@clinic.test")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("GetCustomerByEmail(nobody) = %+v, want nil", missing)
	}
}

func TestMarkNotificationRead(t *testing.T) {
	db := testDB(t)

	n := &Notification{ID: 5, Type: "stock", Title: "Restocked", CreatedAt: time.Now()}
	if err := db.UpsertNotification(n); err != nil {
		t.Fatal(err)
	}

	if err := db.MarkNotificationRead(5); err != nil {
		t.Fatalf("MarkNotificationRead() error = %v", err)
	}

	unread, err := db.ListNotifications(true, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 0 {
		t.Errorf("got %d unread, want 0", len(unread))
	}

	// Mark-read is a local mutation, so it must be queued for upload.
	ops, err := db.ListPendingOperations()
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].Table != TableNotifications || ops[0].Op != OpUpdate {
		t.Errorf("pending ops = %+v, want one notifications/update", ops)
	}
}

func TestDistributorCRUD(t *testing.T) {
	db := testDB(t)

	d := &Distributor{Name: "MedWest", Region: "west", ContactPerson: "A. Silva"}
	if err := db.CreateDistributor(d); err != nil {
		t.Fatal(err)
	}
	d.Region = "southwest"
	if err := db.UpdateDistributor(d); err != nil {
		t.Fatal(err)
	}

	list, err := db.ListDistributors("southwest", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Region != "southwest" {
		t.Fatalf("ListDistributors = %+v, want one southwest entry", list)
	}

	if err := db.DeleteDistributor(d.ID); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetDistributor(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("distributor still present after delete")
	}

	// create + update + delete must each have queued an operation.
	ops, err := db.ListPendingOperations()
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 3 {
		t.Fatalf("got %d pending ops, want 3", len(ops))
	}
	wantOps := []Op{OpCreate, OpUpdate, OpDelete}
	for i, op := range ops {
		if op.Op != wantOps[i] {
			t.Errorf("op[%d] = %q, want %q", i, op.Op, wantOps[i])
		}
	}
}

func TestWatermarkPersistence(t *testing.T) {
	db := testDB(t)

	got, err := db.LastSyncTime()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("LastSyncTime() = %v before first sync, want nil", got)
	}

	mark := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := db.SetLastSyncTime(mark); err != nil {
		t.Fatal(err)
	}

	got, err = db.LastSyncTime()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Equal(mark) {
		t.Errorf("LastSyncTime() = %v, want %v", got, mark)
	}
}
