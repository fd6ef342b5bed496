package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Table identifies a synced entity table. The set is closed so that
// dispatch by table name can be checked exhaustively.
type Table string

const (
	TableOrders        Table = "orders"
	TableCustomers     Table = "customers"
	TableProducts      Table = "products"
	TableNotifications Table = "notifications"
	TableDistributors  Table = "distributors"
)

// Valid reports whether t is one of the known entity tables.
func (t Table) Valid() bool {
	switch t {
	case TableOrders, TableCustomers, TableProducts, TableNotifications, TableDistributors:
		return true
	}
	return false
}

// Op is the kind of mutation recorded in a pending operation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Order statuses.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// Sync statuses for orders not yet acknowledged by the server.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
)

// OrderItem is one line item of an order.
type OrderItem struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	Quantity  int    `json:"quantity"`
}

// Order is a placed supply order. Customer contact fields are denormalized
// so the order stays displayable while offline.
type Order struct {
	ID              int64       `json:"id"`
	ClientRef       string      `json:"clientRef,omitempty"`
	CustomerID      int64       `json:"customerId"`
	CustomerName    string      `json:"customerName"`
	CustomerEmail   string      `json:"customerEmail"`
	CustomerPhone   string      `json:"customerPhone"`
	CustomerAddress string      `json:"customerAddress"`
	Items           []OrderItem `json:"items"`
	DeliveryMethod  string      `json:"deliveryMethod"`
	OrderDate       time.Time   `json:"orderDate"`
	Status          string      `json:"status"`
	SyncStatus      string      `json:"syncStatus,omitempty"`
	LastUpdated     time.Time   `json:"lastUpdated"`
}

// Customer is a registered buyer. Email is the unique lookup key.
type Customer struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	Address          string    `json:"address"`
	RegistrationDate time.Time `json:"registrationDate"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// Product is a catalog entry.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	InStock     bool      `json:"inStock"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Notification is a user-facing notice delivered by the portal.
type Notification struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	IsRead       bool      `json:"isRead"`
	CreatedAt    time.Time `json:"createdAt"`
	TargetUserID int64     `json:"targetUserId"`
}

// Distributor is a regional supply distributor.
type Distributor struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Region        string    `json:"region"`
	ContactPerson string    `json:"contactPerson"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// PendingOperation is one queued, not-yet-acknowledged local mutation.
// The payload is the JSON body that will be sent to the server; for
// deletes it is {"id": <entity id>}.
type PendingOperation struct {
	ID         int64
	Table      Table
	Op         Op
	EntityID   int64
	Payload    json.RawMessage
	CreatedAt  time.Time
	RetryCount int
}

// DecodePayload unmarshals the payload into the entity type matching the
// operation's table. Delete payloads carry only the entity id.
func (p *PendingOperation) DecodePayload() (any, error) {
	if p.Op == OpDelete {
		var body struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(p.Payload, &body); err != nil {
			return nil, fmt.Errorf("decode delete payload: %w", err)
		}
		return body.ID, nil
	}
	switch p.Table {
	case TableOrders:
		var o Order
		err := json.Unmarshal(p.Payload, &o)
		return &o, err
	case TableCustomers:
		var c Customer
		err := json.Unmarshal(p.Payload, &c)
		return &c, err
	case TableProducts:
		var pr Product
		err := json.Unmarshal(p.Payload, &pr)
		return &pr, err
	case TableNotifications:
		var n Notification
		err := json.Unmarshal(p.Payload, &n)
		return &n, err
	case TableDistributors:
		var d Distributor
		err := json.Unmarshal(p.Payload, &d)
		return &d, err
	default:
		return nil, fmt.Errorf("unknown table %q in pending operation %d", p.Table, p.ID)
	}
}

// ChangeSet is the per-table payload returned by the portal's download
// endpoint. Absent tables decode as empty slices.
type ChangeSet struct {
	Orders        []Order        `json:"orders,omitempty"`
	Customers     []Customer     `json:"customers,omitempty"`
	Products      []Product      `json:"products,omitempty"`
	Notifications []Notification `json:"notifications,omitempty"`
	Distributors  []Distributor  `json:"distributors,omitempty"`
}

// Empty reports whether the change set carries no records.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Orders) == 0 && len(cs.Customers) == 0 && len(cs.Products) == 0 &&
		len(cs.Notifications) == 0 && len(cs.Distributors) == 0
}

// MergeStats summarizes one change-set merge.
type MergeStats struct {
	Merged  int
	Skipped int
}
