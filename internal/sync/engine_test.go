package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/curamed/medisync/internal/bus"
	"github.com/curamed/medisync/internal/remote"
	"github.com/curamed/medisync/internal/status"
	"github.com/curamed/medisync/internal/store"
	"go.uber.org/zap"
)

// fakePortal is an httptest stand-in for the supply portal API.
type fakePortal struct {
	mu stdsync.Mutex

	srv *httptest.Server

	healthDown   bool
	unauthorized bool
	failPrefixes map[string]int // "POST /orders" -> remaining 500s
	downloadErr  bool
	delay        time.Duration

	requests    []string
	lastSyncRaw []string
	changes     store.ChangeSet
	nextID      int64
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	p := &fakePortal{failPrefixes: map[string]int{}, nextID: 100}
	p.srv = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePortal) handle(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	delay := p.delay
	p.mu.Unlock()
	if delay > 0 && r.URL.Path != "/health" {
		time.Sleep(delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := r.Method + " " + r.URL.Path

	if r.URL.Path == "/health" {
		if p.healthDown {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	p.requests = append(p.requests, key)

	if p.unauthorized {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	for prefix, left := range p.failPrefixes {
		if strings.HasPrefix(key, prefix) && left != 0 {
			if left > 0 {
				p.failPrefixes[prefix] = left - 1
			}
			http.Error(w, "transient failure", http.StatusInternalServerError)
			return
		}
	}

	if r.URL.Path == "/sync/download" {
		if p.downloadErr {
			http.Error(w, "download broken", http.StatusInternalServerError)
			return
		}
		p.lastSyncRaw = append(p.lastSyncRaw, r.URL.Query().Get("lastSync"))
		_ = json.NewEncoder(w).Encode(&p.changes)
		return
	}

	switch r.Method {
	case http.MethodPost:
		// Echo the entity back with a server-assigned id.
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.nextID++
		body["id"] = p.nextID
		_ = json.NewEncoder(w).Encode(body)
	case http.MethodPut:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(body)
	case http.MethodDelete:
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
	default:
		http.NotFound(w, r)
	}
}

func (p *fakePortal) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *fakePortal) countPrefix(prefix string) int {
	n := 0
	for _, r := range p.recorded() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestEngine(t *testing.T, db *store.DB, portal *fakePortal, b *bus.Bus) *Engine {
	t.Helper()
	if b == nil {
		b = bus.New()
	}
	logger, _ := zap.NewDevelopment()
	client := remote.NewClient(portal.srv.URL, remote.StaticToken("test-token"), 2*time.Second)
	machine := status.NewMachine(b)
	return NewEngine(db, client, b, machine, logger, Options{
		Interval:     time.Hour, // periodic trigger irrelevant in tests
		OnlineSettle: 50 * time.Millisecond,
		MaxRetries:   3,
	})
}

func TestCycleUploadsQueuedOrder(t *testing.T) {
	db := testDB(t)
	portal := newFakePortal(t)
	e := newTestEngine(t, db, portal, nil)

	o := &store.Order{
		CustomerName: "Jane",
		Items:        []store.OrderItem{{ProductID: 7, Name: "Gauze", Unit: "box", Quantity: 2}},
	}
	if err := db.CreateOrder(o); err != nil {
		t.Fatal(err)
	}

	sum, err := e.ForceSync(context.Background())
	if err != nil {
		t.Fatalf("ForceSync() error = %v", err)
	}
	if sum.Uploaded != 1 {
		t.Errorf("Uploaded = %d, want 1", sum.Uploaded)
	}
	if got := portal.countPrefix("POST /orders"); got != 1 {
		t.Errorf("got %d POST /orders, want 1", got)
	}

	ops, _ := db.ListPendingOperations()
	if len(ops) != 0 {
		t.Errorf("got %d queued ops after sync, want 0", len(ops))
	}

	// Server id adopted, order marked synced.
	adopted, err := db.GetOrder(101)
	if err != nil {
		t.Fatal(err)
	}
	if adopted == nil || adopted.SyncStatus != store.SyncSynced {
		t.Errorf("order under server id = %+v, want synced", adopted)
	}

	st, err := e.Status()
	if err != nil {
		t.Fatal(err)
	}
	if !st.HasLastSync || st.LastSyncTime == nil {
		t.Error("watermark not advanced after completed cycle")
	}
}

func TestCreateUploadedBeforeUpdate(t *testing.T) {
	db := testDB(t)
	portal := newFakePortal(t)
	e := newTestEngine(t, db, portal, nil)

	o := &store.Order{CustomerName: "Jane"}
	if err := db.CreateOrder(o); err != nil {
		t.Fatal(err)
	}
	o.Status = store.OrderConfirmed
	if err := db.UpdateOrder(o); err != nil {
		t.Fatal(err)
	}

	if _, err := e.ForceSync(context.Background()); err != nil {
		t.Fatal(err)
	}

	var orderCalls []string
	for _, r := range portal.recorded() {
		if strings.Contains(r, "/orders") {
			orderCalls = append(orderCalls, r)
		}
	}
	if len(orderCalls) != 2 {
		t.Fatalf("got %d order calls %v, want 2", len(orderCalls), orderCalls)
	}
	if !strings.HasPrefix(orderCalls[0], "POST") || !strings.HasPrefix(orderCalls[1], "PUT") {
		t.Errorf("call order = %v, want POST then PUT", orderCalls)
	}
}

func TestRetryBookkeepingAndAbandonment(t *testing.T) {
	db := testDB(t)
	portal := newFakePortal(t)
	b := bus.New()
	e := newTestEngine(t, db, portal, b)

	ch, unsub := b.Subscribe(bus.KindSyncOpAbandoned, 10)
	defer unsub()

	portal.mu.Lock()
	portal.failPrefixes["POST /products"] = -1 // fail forever
	portal.mu.Unlock()

	if err := db.CreateProduct(&store.Product{Name: "Gloves"}); err != nil {
		t.Fatal(err)
	}

	// Cycle 1 and 2: retry count climbs, entry stays queued. The cycle
	// itself still completes (partial upload failure is tolerated).
	for i := 1; i <= 2; i++ {
		sum, err := e.ForceSync(context.Background())
		if err != nil {
			t.Fatalf("cycle %d error = %v", i, err)
		}
		if sum.Failed != 1 {
			t.Errorf("cycle %d Failed = %d, want 1", i, sum.Failed)
		}
		ops, _ := db.ListPendingOperations()
		if len(ops) != 1 || ops[0].RetryCount != i {
			t.Fatalf("after cycle %d: ops = %+v, want retry_count %d", i, ops, i)
		}
	}

	// Cycle 3: third strike, entry abandoned.
	sum, err := e.ForceSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Abandoned != 1 {
		t.Errorf("Abandoned = %d, want 1", sum.Abandoned)
	}
	ops, _ := db.ListPendingOperations()
	if len(ops) != 0 {
		t.Errorf("got %d ops after abandonment, want 0", len(ops))
	}

	select {
	case evt := <-ch:
		op, ok := evt.Payload.(store.PendingOperation)
		if !ok || op.Table != store.TableProducts {
			t.Errorf("abandoned event payload = %+v, want products op", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for op_abandoned event")
	}

	// Cycle 4: no fourth attempt.
	if _, err := e.ForceSync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := portal.countPrefix("POST /products"); got != 3 {
		t.Errorf("got %d POST /products attempts, want exactly 3", got)
	}
}

func TestTransientFailureRetriedOnceThenDelivered(t *testing.T) {
	db := testDB(t)
	portal := newFakePortal(t)
	e := newTestEngine(t, db, portal, nil)

	portal.mu.Lock()
	portal.failPrefixes["POST /products"] = 1 // one 500, then healthy
	portal.mu.Unlock()

	if err := db.CreateProduct(&store.Product{Name: "Gloves"}); err != nil {
		t.Fatal(err)
	}

	// Cycle 1: upload fails, entry survives with one strike.
	sum, err := e.ForceSync(context.Background())
	if err != nil {
		t.Fatalf("cycle 1 error = %v", err)
	}
	if sum.Failed != 1 || sum.Uploaded != 0 {
		t.Errorf("cycle 1 summary = %+v, want 1 failed, 0 uploaded", sum)
	}
	ops, _ := db.ListPendingOperations()
	if len(ops) != 1 || ops[0].RetryCount != 1 {
		t.Fatalf("after cycle 1: ops = %+v, want 1 entry at retry_count 1", ops)
	}

	// Cycle 2: portal recovered; the entry is removed only after the
	// acknowledged upload.
	sum, err = e.ForceSync(context.Background())
	if err != nil {
		t.Fatalf("cycle 2 error = %v", err)
	}
	if sum.Uploaded != 1 || sum.Failed != 0 {
		t.Errorf("cycle 2 summary = %+v, want 1 uploaded, 0 failed", sum)
	}
	ops, _ = db.ListPendingOperations()
	if len(ops) != 0 {
		t.Errorf("got %d queued ops after recovery, want 0", len(ops))
	}

	// Cycle 3: nothing left to re-send.
	if _, err := e.ForceSync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := portal.countPrefix("POST /products"); got != 2 {
		t.Errorf("got %d POST /products attempts, want exactly 2 (one failure, one success, no duplicate)", got)
	}
}

func TestOneFailureDoesNotAbortDrain(t *testing.T) {
	db := testDB(t)
	portal := newFakePortal(t)
	e := newTestEngine(t, db, portal, nil)

	portal.mu.Lock()
	portal.failPrefixes["POST /products"] = -1
	portal.mu.Unlock()

	if err := db.CreateProduct(&store.Product{Name: "Gloves"}); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateDistributor(&store.Distributor{Name: "MedWest"}); err != nil {
		t.Fatal(err)
	}

	sum, err := e.ForceSync(context.Background())
	if err != nil {
		t.Fatalf("ForceSync() error = %v", err)
	}
	if sum.Failed != 1 || sum.Uploaded != 1 {
		t.Errorf("summary = %+v, want 1 failed and 1 uploaded", sum)
	}
	if got := portal.countPrefix("POST /distributors"); got != 1 {
		t.Errorf("distributor create not attempted after product failure")
	}
}

func TestOfflineAbortsWithoutSideEffects(t *testing.T) {
	db := testDB(t)
	portal := newFakePortal(t)
	b := bus.New()
	e := newTestEngine(t, db, portal, b)

	failedCh, unsubFailed := b.Subscribe(bus.KindSyncFailed, 10)
	defer unsubFailed()
	skippedCh, unsubSkipped := b.Subscribe(bus.KindSyncSkippedOffline, 10)
	defer unsubSkipped()

	portal.mu.Lock()
	portal.healthDown = true
	portal.mu.Unlock()

	if err := db.CreateOrder(&store.Order{CustomerName: "Jane"}); err != nil {
		t.Fatal(err)
	}

	_, err := e.ForceSync(context.Background())
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("error = %v, want ErrOffline", err)
	}

	ops, _ := db.ListPendingOperations()
	if len(ops) != 1 {
		t.Errorf("got %d ops, want 1 (queue untouched)", len(ops))
	}
	st, err := e.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.IsSyncing {
		t.Error("IsSyncing = true after aborted cycle")
	}
	if st.HasLastSync {
		t.Error("watermark advanced on aborted cycle")
	}
	if len(portal.recorded()) != 0 {
		t.Errorf("portal saw %v, want no entity requests", portal.recorded())
	}

	// An unreachable portal is a skip, not a failed cycle.
	select {
	case <-skippedCh:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for skipped_offline event")
	}
	select {
	case <-failedCh:
		t.Error("sync.failed published for an offline skip")
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestNoOverlappingCycles(t *testing.T) {
	db := testDB(t)
	portal := newFakePortal(t)
	e := newTestEngine(t, db, portal, nil)

	portal.mu.Lock()
	portal.delay = 300 * time.Millisecond
	portal.mu.Unlock()

	if err := db.CreateOrder(&store.Order{CustomerName: "Jane"}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.ForceSync(context.Background())
		done <- err
	}()

	// Wait until the first cycle is observably running.
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := e.Status()
		if err != nil {
			t.Fatal(err)
		}
		if st.IsSyncing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first cycle never started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, err := e.ForceSync(context.Background())
	if !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("second ForceSync error = %v, want ErrSyncInProgress", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("first cycle error = %v", err)
	}
	if got := portal.countPrefix("POST /orders"); got != 1 {
		t.Errorf("got %d POST /orders, want 1 (no double upload)", got)
	}
}

func TestWatermarkOnlyAdvancesOnCompletion(t *testing.T) {
	db := testDB(t)
	portal := newFakePortal(t)
	e := newTestEngine(t, db, portal, nil)

	portal.mu.Lock()
	portal.downloadErr = true
	portal.mu.Unlock()

	if _, err := e.ForceSync(context.Background()); err == nil {
		t.Fatal("cycle with broken download should fail")
	}
	if last, _ := db.LastSyncTime(); last != nil {
		t.Errorf("watermark = %v after failed cycle, want nil", last)
	}

	portal.mu.Lock()
	portal.downloadErr = false
	portal.mu.Unlock()

	if _, err := e.ForceSync(context.Background()); err != nil {
		t.Fatal(err)
	}
	last, err := db.LastSyncTime()
	if err != nil {
		t.Fatal(err)
	}
	if last == nil {
		t.Fatal("watermark nil after completed cycle")
	}

	// First successful download must have requested the full history.
	portal.mu.Lock()
	raw := append([]string(nil), portal.lastSyncRaw...)
	portal.mu.Unlock()
	if len(raw) == 0 || raw[len(raw)-1] != "" {
		t.Errorf("lastSync params = %v, want empty param on first download", raw)
	}

	// Next cycle carries the watermark.
	if _, err := e.ForceSync(context.Background()); err != nil {
		t.Fatal(err)
	}
	portal.mu.Lock()
	raw = append([]string(nil), portal.lastSyncRaw...)
	portal.mu.Unlock()
	if raw[len(raw)-1] == "" {
		t.Error("second download missing lastSync watermark")
	}
}

func TestDownloadMergesIntoStore(t *testing.T) {
	db := testDB(t)
	portal := newFakePortal(t)
	e := newTestEngine(t, db, portal, nil)

	portal.mu.Lock()
	portal.changes = store.ChangeSet{
		Products: []store.Product{{ID: 7, Name: "Gauze", LastUpdated: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}},
	}
	portal.mu.Unlock()

	sum, err := e.ForceSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Merged != 1 {
		t.Errorf("Merged = %d, want 1", sum.Merged)
	}

	p, err := db.GetProduct(7)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.Name != "Gauze" {
		t.Errorf("product 7 = %+v, want merged Gauze", p)
	}
}

func TestUnauthorizedFailsCycleWithoutRetryBump(t *testing.T) {
	db := testDB(t)
	portal := newFakePortal(t)
	b := bus.New()
	e := newTestEngine(t, db, portal, b)

	ch, unsub := b.Subscribe(bus.KindAuthRequired, 10)
	defer unsub()

	portal.mu.Lock()
	portal.unauthorized = true
	portal.mu.Unlock()

	if err := db.CreateOrder(&store.Order{CustomerName: "Jane"}); err != nil {
		t.Fatal(err)
	}

	_, err := e.ForceSync(context.Background())
	if !errors.Is(err, remote.ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}

	// 401 aborts the cycle; the entry is kept for after re-login, without
	// burning one of its three attempts.
	ops, _ := db.ListPendingOperations()
	if len(ops) != 1 || ops[0].RetryCount != 0 {
		t.Errorf("ops = %+v, want 1 entry with retry_count 0", ops)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for auth.required event")
	}
}

func TestOnlineEdgeTriggersCycle(t *testing.T) {
	db := testDB(t)
	portal := newFakePortal(t)
	b := bus.New()
	e := newTestEngine(t, db, portal, b)

	e.Start(context.Background())
	defer e.Stop()

	ch, unsub := b.Subscribe(bus.KindSyncCompleted, 10)
	defer unsub()

	// Simulate the connectivity watcher seeing the portal come back.
	b.Publish(bus.Event{Kind: bus.KindNetOnline, Timestamp: time.Now()})

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for sync cycle after online edge")
	}
}

func TestSyncIsFireAndForget(t *testing.T) {
	db := testDB(t)
	portal := newFakePortal(t)
	b := bus.New()
	e := newTestEngine(t, db, portal, b)

	e.Start(context.Background())
	defer e.Stop()

	ch, unsub := b.Subscribe(bus.KindSyncCompleted, 10)
	defer unsub()

	// Redundant calls collapse into at most one queued trigger.
	e.Sync()
	e.Sync()
	e.Sync()

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for sync cycle")
	}
}
