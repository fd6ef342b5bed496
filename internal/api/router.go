// Package api is the daemon's local control surface, served over the
// profile's unix socket and consumed by medisyncctl and the desktop UI.
package api

import (
	"context"
	"net/http"

	"github.com/curamed/medisync/internal/store"
	"github.com/curamed/medisync/internal/sync"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Syncer is the slice of the sync engine the API needs.
type Syncer interface {
	Sync()
	ForceSync(ctx context.Context) (*sync.Summary, error)
	Status() (*sync.Status, error)
}

// Connectivity reports the last observed portal reachability.
type Connectivity interface {
	Online() bool
}

// Router wraps the mux router with the daemon's dependencies.
type Router struct {
	*mux.Router
	db      *store.DB
	engine  Syncer
	net     Connectivity
	logger  *zap.Logger
	profile string
}

// NewRouter creates the control API router with all routes registered.
func NewRouter(db *store.DB, engine Syncer, net Connectivity, logger *zap.Logger, profile string) *Router {
	r := &Router{
		Router:  mux.NewRouter(),
		db:      db,
		engine:  engine,
		net:     net,
		logger:  logger,
		profile: profile,
	}

	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	r.HandleFunc("/status", r.getStatus).Methods("GET")

	syncR := r.PathPrefix("/sync").Subrouter()
	syncR.HandleFunc("", r.requestSync).Methods("POST")
	syncR.HandleFunc("/force", r.forceSync).Methods("POST")
	syncR.HandleFunc("/status", r.syncStatus).Methods("GET")

	orders := r.PathPrefix("/orders").Subrouter()
	orders.HandleFunc("", r.listOrders).Methods("GET")
	orders.HandleFunc("", r.placeOrder).Methods("POST")
	orders.HandleFunc("/{id}", r.getOrder).Methods("GET")
	orders.HandleFunc("/{id}", r.updateOrder).Methods("PUT")
	orders.HandleFunc("/{id}", r.deleteOrder).Methods("DELETE")

	customers := r.PathPrefix("/customers").Subrouter()
	customers.HandleFunc("", r.listCustomers).Methods("GET")
	customers.HandleFunc("", r.createCustomer).Methods("POST")
	customers.HandleFunc("/{id}", r.getCustomer).Methods("GET")
	customers.HandleFunc("/{id}", r.updateCustomer).Methods("PUT")
	customers.HandleFunc("/{id}", r.deleteCustomer).Methods("DELETE")

	products := r.PathPrefix("/products").Subrouter()
	products.HandleFunc("", r.listProducts).Methods("GET")
	products.HandleFunc("", r.createProduct).Methods("POST")
	products.HandleFunc("/{id}", r.updateProduct).Methods("PUT")
	products.HandleFunc("/{id}", r.deleteProduct).Methods("DELETE")

	notifications := r.PathPrefix("/notifications").Subrouter()
	notifications.HandleFunc("", r.listNotifications).Methods("GET")
	notifications.HandleFunc("/{id}/read", r.markNotificationRead).Methods("POST")

	distributors := r.PathPrefix("/distributors").Subrouter()
	distributors.HandleFunc("", r.listDistributors).Methods("GET")
	distributors.HandleFunc("", r.createDistributor).Methods("POST")
	distributors.HandleFunc("/{id}", r.updateDistributor).Methods("PUT")
	distributors.HandleFunc("/{id}", r.deleteDistributor).Methods("DELETE")

	return r
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getStatus reports the daemon's overall condition: profile, connectivity,
// sync state and queue depth.
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	st, err := r.engine.Status()
	if err != nil {
		r.logger.Error("status query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to read sync status")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"profile": r.profile,
		"online":  r.net.Online(),
		"sync":    st,
	})
}
