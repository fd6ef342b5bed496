package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/curamed/medisync/internal/store"
	"go.uber.org/zap"
)

// Products and distributors are mostly server-owned reference data, but the
// portal allows local edits by back-office roles, so the full set of
// mutations is exposed and queued like any other offline write.

func (r *Router) listProducts(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	products, err := r.db.ListProducts(q.Get("category"), limit, offset)
	if err != nil {
		r.logger.Error("list products failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch products")
		return
	}
	if products == nil {
		products = []store.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

func (r *Router) createProduct(w http.ResponseWriter, req *http.Request) {
	var p store.Product
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := r.db.CreateProduct(&p); err != nil {
		r.logger.Error("create product failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to create product")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusCreated, p)
}

func (r *Router) updateProduct(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid product id")
		return
	}
	var p store.Product
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	p.ID = id

	if err := r.db.UpdateProduct(&p); err != nil {
		r.logger.Error("update product failed", zap.Int64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to update product")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusOK, p)
}

func (r *Router) deleteProduct(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid product id")
		return
	}
	if err := r.db.DeleteProduct(id); err != nil {
		r.logger.Error("delete product failed", zap.Int64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to delete product")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (r *Router) listDistributors(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	distributors, err := r.db.ListDistributors(q.Get("region"), limit, offset)
	if err != nil {
		r.logger.Error("list distributors failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch distributors")
		return
	}
	if distributors == nil {
		distributors = []store.Distributor{}
	}
	respondJSON(w, http.StatusOK, distributors)
}

func (r *Router) createDistributor(w http.ResponseWriter, req *http.Request) {
	var d store.Distributor
	if err := json.NewDecoder(req.Body).Decode(&d); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if d.Name == "" {
		respondError(w, http.StatusBadRequest, "Distributor name is required")
		return
	}
	if err := r.db.CreateDistributor(&d); err != nil {
		r.logger.Error("create distributor failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to create distributor")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusCreated, d)
}

func (r *Router) updateDistributor(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid distributor id")
		return
	}
	var d store.Distributor
	if err := json.NewDecoder(req.Body).Decode(&d); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	d.ID = id

	if err := r.db.UpdateDistributor(&d); err != nil {
		r.logger.Error("update distributor failed", zap.Int64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to update distributor")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusOK, d)
}

func (r *Router) deleteDistributor(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid distributor id")
		return
	}
	if err := r.db.DeleteDistributor(id); err != nil {
		r.logger.Error("delete distributor failed", zap.Int64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to delete distributor")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
