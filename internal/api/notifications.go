package api

import (
	"net/http"
	"strconv"

	"github.com/curamed/medisync/internal/store"
	"go.uber.org/zap"
)

func (r *Router) listNotifications(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	unreadOnly := q.Get("unread") == "true"

	notifications, err := r.db.ListNotifications(unreadOnly, limit)
	if err != nil {
		r.logger.Error("list notifications failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}
	if notifications == nil {
		notifications = []store.Notification{}
	}
	respondJSON(w, http.StatusOK, notifications)
}

// markNotificationRead flips the flag locally right away; the portal learns
// about it on the next sync like any other queued write.
func (r *Router) markNotificationRead(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid notification id")
		return
	}
	if err := r.db.MarkNotificationRead(id); err != nil {
		r.logger.Error("mark notification read failed", zap.Int64("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to update notification")
		return
	}
	r.engine.Sync()
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
