package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/telemetry-core/internal/device"
	"github.com/nerrad567/telemetry-core/internal/rules"
)

// ruleRequest is the body of POST /rules. PATCH uses the same shape and
// applies only the fields present.
type ruleRequest struct {
	DeviceID    *string         `json:"deviceId"`
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Type        *rules.Type     `json:"ruleType"`
	Field       *string         `json:"field"`
	Operator    *rules.Operator `json:"operator"`
	Value       *float64        `json:"value"`
	Expression  *string         `json:"expression"`
	IsActive    *bool           `json:"isActive"`
}

// apply copies the present fields onto rule. DeviceID is never changed
// after creation.
func (req ruleRequest) apply(rule *rules.Rule) {
	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = req.Description
	}
	if req.Type != nil {
		rule.Type = *req.Type
	}
	if req.Field != nil {
		rule.Field = *req.Field
	}
	if req.Operator != nil {
		rule.Operator = *req.Operator
	}
	if req.Value != nil {
		rule.Value = req.Value
	}
	if req.Expression != nil {
		rule.Expression = *req.Expression
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
}

// deviceAccess loads a device and checks the caller may see its project.
// It writes the error response and returns false on failure.
func (s *Server) deviceAccess(w http.ResponseWriter, r *http.Request, deviceID string) (*device.Device, bool) {
	if s.devices == nil {
		writeServiceUnavailable(w, "device registry not available")
		return nil, false
	}
	dev, err := s.devices.GetByID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		s.logger.Error("loading device failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to load device")
		return nil, false
	}

	p := principalFrom(r.Context())
	if p.IsAdmin() {
		return dev, true
	}
	ok, err := s.projects.IsUserAuthorized(r.Context(), p.UserID, dev.ProjectID)
	if err != nil {
		s.logger.Error("checking project access failed", "project_id", dev.ProjectID, "error", err)
		writeInternalError(w, "failed to check access")
		return nil, false
	}
	if !ok {
		writeForbidden(w, "access denied for this device")
		return nil, false
	}
	return dev, true
}

// loadRule resolves {id} and checks access through the rule's device.
func (s *Server) loadRule(w http.ResponseWriter, r *http.Request) (*rules.Rule, bool) {
	if s.rules == nil {
		writeServiceUnavailable(w, "rules not available")
		return nil, false
	}
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeBadRequest(w, "invalid rule ID")
		return nil, false
	}
	rule, err := s.rules.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return nil, false
		}
		s.logger.Error("loading rule failed", "rule_id", id, "error", err)
		writeInternalError(w, "failed to load rule")
		return nil, false
	}
	if _, ok := s.deviceAccess(w, r, rule.DeviceID); !ok {
		return nil, false
	}
	return rule, true
}

func (s *Server) clearRuleState(deviceID string) {
	if s.ruleCache != nil {
		s.ruleCache.ClearDevice(deviceID)
	}
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeServiceUnavailable(w, "rules not available")
		return
	}
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == nil || !validID(*req.DeviceID) {
		writeValidationError(w, "deviceId is required")
		return
	}
	if _, ok := s.deviceAccess(w, r, *req.DeviceID); !ok {
		return
	}

	rule := &rules.Rule{DeviceID: *req.DeviceID, IsActive: true}
	req.apply(rule)

	if err := s.rules.Create(r.Context(), rule); err != nil {
		if errors.Is(err, rules.ErrInvalidRule) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("creating rule failed", "device_id", rule.DeviceID, "error", err)
		writeInternalError(w, "failed to create rule")
		return
	}
	s.clearRuleState(rule.DeviceID)
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.loadRule(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleListDeviceRules(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeServiceUnavailable(w, "rules not available")
		return
	}
	deviceID := chi.URLParam(r, "deviceId")
	if !validID(deviceID) {
		writeBadRequest(w, "invalid device ID")
		return
	}
	if _, ok := s.deviceAccess(w, r, deviceID); !ok {
		return
	}

	list, err := s.rules.ListByDevice(r.Context(), deviceID)
	if err != nil {
		s.logger.Error("listing rules failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to list rules")
		return
	}
	if list == nil {
		list = []rules.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": list,
		"count": len(list),
	})
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.loadRule(w, r)
	if !ok {
		return
	}
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID != nil && *req.DeviceID != rule.DeviceID {
		writeValidationError(w, "a rule cannot move to another device")
		return
	}
	req.apply(rule)

	if err := s.rules.Update(r.Context(), rule); err != nil {
		switch {
		case errors.Is(err, rules.ErrInvalidRule):
			writeValidationError(w, err.Error())
		case errors.Is(err, rules.ErrRuleNotFound):
			writeNotFound(w, "rule not found")
		default:
			s.logger.Error("updating rule failed", "rule_id", rule.ID, "error", err)
			writeInternalError(w, "failed to update rule")
		}
		return
	}
	s.clearRuleState(rule.DeviceID)
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.loadRule(w, r)
	if !ok {
		return
	}
	if err := s.rules.Delete(r.Context(), rule.ID); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		s.logger.Error("deleting rule failed", "rule_id", rule.ID, "error", err)
		writeInternalError(w, "failed to delete rule")
		return
	}
	s.clearRuleState(rule.DeviceID)
	w.WriteHeader(http.StatusNoContent)
}
