package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/curamed/medisync/internal/store"
	"go.uber.org/zap"
)

func (r *Router) createCustomer(w http.ResponseWriter, req *http.Request) {
	var c store.Customer
	if err := json.NewDecoder(req.Body).Decode(&c); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if c.Email == "" {
		respondError(w, http.StatusBadRequest, "Customer email is required")
		return
	}

	// The email column is unique; surface a duplicate as a conflict rather
	// than a generic failure.
	existing, err := r.db.GetCustomerByEmail(c.Email)
	if err != nil {
		r.logger.Error("customer lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to create customer")
		return
	}
	if existing != nil {
		respondError(w, http.StatusConflict, "Customer with this email already exists")
		return
	}

	if err := r.db.CreateCustomer(&c); err != nil {
		r.logger.Error("create customer failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to create customer")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusCreated, c)
}

func (r *Router) listCustomers(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))

	customers, err := r.db.ListCustomers(limit, offset)
	if err != nil {
		r.logger.Error("list customers failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch customers")
		return
	}
	if customers == nil {
		customers = []store.Customer{}
	}
	respondJSON(w, http.StatusOK, customers)
}

func (r *Router) getCustomer(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid customer id")
		return
	}
	c, err := r.db.GetCustomer(id)
	if err != nil {
		r.logger.Error("get customer failed", zap.Int64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch customer")
		return
	}
	if c == nil {
		respondError(w, http.StatusNotFound, "Customer not found")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (r *Router) updateCustomer(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid customer id")
		return
	}
	var c store.Customer
	if err := json.NewDecoder(req.Body).Decode(&c); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	c.ID = id

	if err := r.db.UpdateCustomer(&c); err != nil {
		r.logger.Error("update customer failed", zap.Int64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to update customer")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusOK, c)
}

func (r *Router) deleteCustomer(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid customer id")
		return
	}
	if err := r.db.DeleteCustomer(id); err != nil {
		r.logger.Error("delete customer failed", zap.Int64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to delete customer")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
