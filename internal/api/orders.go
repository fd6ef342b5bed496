package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/curamed/medisync/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// placeOrder stores the order locally and queues it for upload. The client
// reference makes the create idempotent on the portal side, so a retried
// upload after a lost response cannot duplicate the order.
func (r *Router) placeOrder(w http.ResponseWriter, req *http.Request) {
	var o store.Order
	if err := json.NewDecoder(req.Body).Decode(&o); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if len(o.Items) == 0 {
		respondError(w, http.StatusBadRequest, "Order has no items")
		return
	}
	o.ClientRef = uuid.NewString()

	if err := r.db.CreateOrder(&o); err != nil {
		r.logger.Error("create order failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to create order")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusCreated, o)
}

func (r *Router) listOrders(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))

	orders, err := r.db.ListOrders(limit, offset)
	if err != nil {
		r.logger.Error("list orders failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}
	if orders == nil {
		orders = []store.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (r *Router) getOrder(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order id")
		return
	}
	o, err := r.db.GetOrder(id)
	if err != nil {
		r.logger.Error("get order failed", zap.Int64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch order")
		return
	}
	if o == nil {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (r *Router) updateOrder(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order id")
		return
	}
	existing, err := r.db.GetOrder(id)
	if err != nil {
		r.logger.Error("get order failed", zap.Int64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch order")
		return
	}
	if existing == nil {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}

	var o store.Order
	if err := json.NewDecoder(req.Body).Decode(&o); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	o.ID = id
	o.ClientRef = existing.ClientRef

	if err := r.db.UpdateOrder(&o); err != nil {
		r.logger.Error("update order failed", zap.Int64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to update order")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusOK, o)
}

func (r *Router) deleteOrder(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid order id")
		return
	}
	if err := r.db.DeleteOrder(id); err != nil {
		r.logger.Error("delete order failed", zap.Int64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to delete order")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
