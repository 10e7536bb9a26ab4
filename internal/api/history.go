package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/telemetry-core/internal/history"
	"github.com/nerrad567/telemetry-core/internal/topic"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// parseKind accepts the canonical kind name in any case, with '-' or '_'.
func parseKind(raw string) (topic.Kind, bool) {
	k := topic.Kind(strings.ToUpper(strings.ReplaceAll(raw, "-", "_")))
	for _, known := range topic.AllKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// handleHistory returns stored samples of one device, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeServiceUnavailable(w, "history not available")
		return
	}
	kind, ok := parseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeNotFound(w, "unknown device kind")
		return
	}
	deviceID := chi.URLParam(r, "deviceId")
	if !validID(deviceID) {
		writeBadRequest(w, "invalid device ID")
		return
	}

	q := r.URL.Query()
	var query history.Query
	var err error
	if query.From, err = parseTimeParam("from", q.Get("from")); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if query.To, err = parseTimeParam("to", q.Get("to")); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if !query.From.IsZero() && !query.To.IsZero() && query.To.Before(query.From) {
		writeBadRequest(w, "to must not be before from")
		return
	}
	if query.Limit, err = parseLimit(q.Get("limit"), defaultHistoryLimit, maxHistoryLimit); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if query.Offset, err = parseOffset(q.Get("offset")); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if _, ok := s.deviceAccess(w, r, deviceID); !ok {
		return
	}

	samples, err := s.history.Samples(r.Context(), kind, deviceID, query)
	if err != nil {
		if errors.Is(err, history.ErrUnsupportedKind) {
			writeNotFound(w, "unknown device kind")
			return
		}
		s.logger.Error("querying history failed", "kind", kind, "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}
	if samples == nil {
		samples = []history.Sample{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":     kind,
		"deviceId": deviceID,
		"samples":  samples,
		"count":    len(samples),
	})
}
