package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/telemetry-core/internal/notification"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 500
)

func (s *Server) notificationsAvailable(w http.ResponseWriter) bool {
	if s.notifications == nil {
		writeServiceUnavailable(w, "notifications not available")
		return false
	}
	return true
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if !s.notificationsAvailable(w) {
		return
	}
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"), defaultNotificationLimit, maxNotificationLimit)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	status := strings.ToUpper(q.Get("status"))

	list, err := s.notifications.List(r.Context(), principalFrom(r.Context()).UserID, status, limit)
	if err != nil {
		if errors.Is(err, notification.ErrInvalidNotification) {
			writeBadRequest(w, "status must be UNREAD or READ")
			return
		}
		s.logger.Error("listing notifications failed", "error", err)
		writeInternalError(w, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": list,
		"count":         len(list),
	})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	if !s.notificationsAvailable(w) {
		return
	}
	n, err := s.notifications.CountUnread(r.Context(), principalFrom(r.Context()).UserID)
	if err != nil {
		s.logger.Error("counting notifications failed", "error", err)
		writeInternalError(w, "failed to count notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if !s.notificationsAvailable(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeBadRequest(w, "invalid notification ID")
		return
	}
	if err := s.notifications.MarkRead(r.Context(), principalFrom(r.Context()).UserID, id); err != nil {
		if errors.Is(err, notification.ErrNotificationNotFound) {
			writeNotFound(w, "notification not found")
			return
		}
		s.logger.Error("marking notification read failed", "notification_id", id, "error", err)
		writeInternalError(w, "failed to update notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if !s.notificationsAvailable(w) {
		return
	}
	n, err := s.notifications.MarkAllRead(r.Context(), principalFrom(r.Context()).UserID)
	if err != nil {
		s.logger.Error("marking notifications read failed", "error", err)
		writeInternalError(w, "failed to update notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
