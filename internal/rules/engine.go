package rules

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Logger is the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Source supplies the active rules of a device.
type Source interface {
	ActiveForDevice(ctx context.Context, deviceID string) ([]Rule, error)
}

// fieldKey identifies a remembered payload value.
type fieldKey struct {
	device string
	field  string
}

// cached is the last value seen for a device field or status.
type cached struct {
	value any
	at    time.Time
}

// Engine evaluates rules against realtime payloads.
//
// Change detection and device status rules compare against the previous
// observation, which the engine keeps in memory keyed by device. The
// cache is process-local and lost on restart: the first observation
// after a restart only seeds it.
//
// Engine is safe for concurrent use.
type Engine struct {
	source Source
	logger Logger

	mu     sync.Mutex
	values map[fieldKey]cached // change detection, per device field
	online map[string]cached   // device status, per device

	exprMu sync.RWMutex
	exprs  map[string]*Expression
}

// NewEngine creates an engine reading rules from source.
func NewEngine(source Source) *Engine {
	return &Engine{
		source: source,
		logger: noopLogger{},
		values: make(map[fieldKey]cached),
		online: make(map[string]cached),
		exprs:  make(map[string]*Expression),
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

// EvaluateDevice loads the device's active rules and evaluates each one.
// A rule that errors or panics is logged and treated as not triggered;
// it never stops the remaining rules.
func (e *Engine) EvaluateDevice(ctx context.Context, deviceID string, payload map[string]any, obs Observation) ([]Triggered, error) {
	active, err := e.ActiveRules(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return e.EvaluateAll(active, payload, obs), nil
}

// ActiveRules loads the device's active rules without evaluating them.
func (e *Engine) ActiveRules(ctx context.Context, deviceID string) ([]Rule, error) {
	active, err := e.source.ActiveForDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("loading rules for device %s: %w", deviceID, err)
	}
	return active, nil
}

// EvaluateAll evaluates rules in order and returns those that triggered.
func (e *Engine) EvaluateAll(rules []Rule, payload map[string]any, obs Observation) []Triggered {
	var out []Triggered
	for _, r := range rules {
		res, err := e.safeEvaluate(r, payload, obs)
		if err != nil {
			e.logger.Warn("rule evaluation failed", "rule_id", r.ID, "rule_type", r.Type, "error", err)
			continue
		}
		if res.Triggered {
			out = append(out, Triggered{Rule: r, Result: res})
		}
	}
	return out
}

func (e *Engine) safeEvaluate(r Rule, payload map[string]any, obs Observation) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{}
			err = fmt.Errorf("%w: panic: %v", ErrEvaluation, p)
		}
	}()
	return e.Evaluate(r, payload, obs)
}

// Evaluate evaluates a single rule. Inactive rules never trigger.
func (e *Engine) Evaluate(r Rule, payload map[string]any, obs Observation) (Result, error) {
	if !r.IsActive {
		return Result{}, nil
	}
	switch r.Type {
	case TypeThreshold:
		return evaluateThreshold(r, payload), nil
	case TypeChangeDetection:
		return e.evaluateChange(r, payload, obs), nil
	case TypeDeviceStatus:
		return e.evaluateStatus(r, obs), nil
	case TypeCustomExpression:
		return e.evaluateCustom(r, payload)
	default:
		return Result{}, fmt.Errorf("%w: unknown rule type %q", ErrEvaluation, r.Type)
	}
}

func evaluateThreshold(r Rule, payload map[string]any) Result {
	if r.Value == nil {
		return Result{}
	}
	raw, ok := lookupPath(payload, strings.Split(r.Field, "."))
	if !ok {
		return Result{}
	}
	actual, ok := toNumber(raw)
	if !ok {
		return Result{}
	}
	threshold := *r.Value

	var hit bool
	switch r.Operator {
	case OpGreater:
		hit = actual > threshold
	case OpLess:
		hit = actual < threshold
	case OpGreaterEqual:
		hit = actual >= threshold
	case OpLessEqual:
		hit = actual <= threshold
	case OpEqual:
		hit = actual == threshold
	case OpNotEqual:
		hit = actual != threshold
	}
	if !hit {
		return Result{}
	}
	return Result{
		Triggered:     true,
		Message:       fmt.Sprintf("%s is %s (threshold: %s %s)", r.Field, formatNumber(actual), r.Operator, formatNumber(threshold)),
		ActualValue:   actual,
		ExpectedValue: threshold,
	}
}

func (e *Engine) evaluateChange(r Rule, payload map[string]any, obs Observation) Result {
	current, ok := lookupPath(payload, strings.Split(r.Field, "."))
	if !ok || current == nil {
		return Result{}
	}

	key := fieldKey{device: r.DeviceID, field: r.Field}
	previous, known, fresh := swap(&e.mu, e.values, key, current, obs.At)
	if !fresh || !known {
		return Result{}
	}
	if reflect.DeepEqual(normalise(previous), normalise(current)) {
		return Result{}
	}
	return Result{
		Triggered:     true,
		Message:       fmt.Sprintf("%s changed from %s to %s", r.Field, formatValue(previous), formatValue(current)),
		ActualValue:   current,
		ExpectedValue: previous,
	}
}

func (e *Engine) evaluateStatus(r Rule, obs Observation) Result {
	if obs.Online == nil {
		return Result{}
	}
	online := *obs.Online

	previous, known, fresh := swap(&e.mu, e.online, r.DeviceID, online, obs.At)
	if !fresh || !known {
		return Result{}
	}
	was, _ := previous.(bool)
	switch {
	case was && !online:
		return Result{Triggered: true, Message: "Device went offline", ActualValue: "offline", ExpectedValue: "online"}
	case !was && online:
		return Result{Triggered: true, Message: "Device is back online", ActualValue: "online", ExpectedValue: "offline"}
	}
	return Result{}
}

func (e *Engine) evaluateCustom(r Rule, payload map[string]any) (Result, error) {
	expr, err := e.compile(r.Expression)
	if err != nil {
		return Result{}, err
	}
	ok, err := expr.Eval(payload)
	if err != nil {
		// Missing fields are common in partial payloads; not an alert.
		e.logger.Debug("custom expression not evaluable", "rule_id", r.ID, "error", err)
		return Result{}, nil
	}
	if !ok {
		return Result{}, nil
	}
	return Result{
		Triggered: true,
		Message:   "Custom condition met: " + r.Expression,
	}, nil
}

func (e *Engine) compile(src string) (*Expression, error) {
	e.exprMu.RLock()
	expr, ok := e.exprs[src]
	e.exprMu.RUnlock()
	if ok {
		return expr, nil
	}

	expr, err := ParseExpression(src)
	if err != nil {
		return nil, err
	}
	e.exprMu.Lock()
	e.exprs[src] = expr
	e.exprMu.Unlock()
	return expr, nil
}

// swap stores value under key and returns the previous entry.
// fresh is false when at is older than the stored observation, in
// which case the cache is left untouched.
func swap[K comparable](mu *sync.Mutex, m map[K]cached, key K, value any, at time.Time) (previous any, known, fresh bool) {
	mu.Lock()
	defer mu.Unlock()

	prev, known := m[key]
	if known && !at.IsZero() && at.Before(prev.at) {
		return nil, true, false
	}
	m[key] = cached{value: value, at: at}
	return prev.value, known, true
}

// ClearCache drops every remembered value.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	e.values = make(map[fieldKey]cached)
	e.online = make(map[string]cached)
	e.mu.Unlock()

	e.exprMu.Lock()
	e.exprs = make(map[string]*Expression)
	e.exprMu.Unlock()
}

// ClearDevice drops remembered values for one device.
func (e *Engine) ClearDevice(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.values {
		if k.device == deviceID {
			delete(e.values, k)
		}
	}
	delete(e.online, deviceID)
}

// CacheSize returns the number of remembered values.
func (e *Engine) CacheSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.values) + len(e.online)
}

// toNumber accepts JSON numbers and numeric strings. Booleans are not
// numbers here.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatValue(v any) string {
	switch t := normalise(v).(type) {
	case nil:
		return "null"
	case float64:
		return formatNumber(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
