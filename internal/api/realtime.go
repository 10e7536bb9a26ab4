package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nerrad567/telemetry-core/internal/subscription"
)

// siteRequest is the body of subscribe and unsubscribe calls.
type siteRequest struct {
	SiteID string `json:"siteId"`
}

func decodeSiteRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return "", false
	}
	siteID := strings.TrimSpace(req.SiteID)
	if siteID == "" || len(siteID) > maxQueryParamLen || strings.ContainsAny(siteID, "/+#") {
		writeValidationError(w, "siteId is required and may not contain '/', '+' or '#'")
		return "", false
	}
	return siteID, true
}

func (s *Server) handleRealtimeSubscribe(w http.ResponseWriter, r *http.Request) {
	siteID, ok := decodeSiteRequest(w, r)
	if !ok {
		return
	}
	p := principalFrom(r.Context())

	res, err := s.subscriptions.Subscribe(r.Context(), p.UserID, siteID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, subscription.ErrAccessDenied):
		writeForbidden(w, "project not found or access denied for this site")
	case errors.Is(err, subscription.ErrInvalidSite):
		writeValidationError(w, err.Error())
	case errors.Is(err, subscription.ErrBroker):
		s.logger.Error("realtime subscribe failed", "user_id", p.UserID, "site_id", siteID, "error", err)
		writeServiceUnavailable(w, "realtime broker unavailable")
	default:
		s.logger.Error("realtime subscribe failed", "user_id", p.UserID, "site_id", siteID, "error", err)
		writeInternalError(w, "failed to subscribe")
	}
}

func (s *Server) handleRealtimeUnsubscribe(w http.ResponseWriter, r *http.Request) {
	siteID, ok := decodeSiteRequest(w, r)
	if !ok {
		return
	}

	res, err := s.subscriptions.Unsubscribe(principalFrom(r.Context()).UserID, siteID)
	if err != nil {
		if errors.Is(err, subscription.ErrNotSubscribed) {
			writeNotFound(w, "not subscribed to this site")
			return
		}
		writeInternalError(w, "failed to unsubscribe")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRealtimeUnsubscribeAll(w http.ResponseWriter, r *http.Request) {
	sites := s.subscriptions.UnsubscribeAll(principalFrom(r.Context()).UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"unsubscribed": sites,
		"count":        len(sites),
	})
}

func (s *Server) handleRealtimeSubscriptions(w http.ResponseWriter, r *http.Request) {
	sites := s.subscriptions.UserSubscriptions(principalFrom(r.Context()).UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": sites,
		"count":         len(sites),
	})
}

func (s *Server) handleRealtimeActive(w http.ResponseWriter, _ *http.Request) {
	active := s.subscriptions.ActiveSubscriptions()
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": active,
		"count":         len(active),
	})
}
