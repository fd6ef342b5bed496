package api

import (
	"errors"
	"net/http"

	"github.com/curamed/medisync/internal/remote"
	"github.com/curamed/medisync/internal/sync"
	"go.uber.org/zap"
)

// requestSync queues a cycle and returns immediately. Redundant requests
// while a cycle runs are silently dropped.
func (r *Router) requestSync(w http.ResponseWriter, req *http.Request) {
	r.engine.Sync()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// forceSync runs a cycle synchronously and reports what it did. The two
// expected refusals map to statuses the UI shows as notices, not errors.
func (r *Router) forceSync(w http.ResponseWriter, req *http.Request) {
	sum, err := r.engine.ForceSync(req.Context())
	if err != nil {
		switch {
		case errors.Is(err, sync.ErrSyncInProgress):
			respondError(w, http.StatusConflict, "Sync already in progress")
		case errors.Is(err, sync.ErrOffline):
			respondError(w, http.StatusServiceUnavailable, "Portal unreachable, cannot sync")
		case errors.Is(err, remote.ErrUnauthorized):
			respondError(w, http.StatusUnauthorized, "Portal session expired, log in again")
		default:
			r.logger.Error("forced sync failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Sync failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (r *Router) syncStatus(w http.ResponseWriter, req *http.Request) {
	st, err := r.engine.Status()
	if err != nil {
		r.logger.Error("sync status query failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to read sync status")
		return
	}
	respondJSON(w, http.StatusOK, st)
}
