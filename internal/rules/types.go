package rules

import "time"

// Type is the kind of check a rule performs.
type Type string

// Rule types.
const (
	TypeThreshold        Type = "THRESHOLD"
	TypeChangeDetection  Type = "CHANGE_DETECTION"
	TypeDeviceStatus     Type = "DEVICE_STATUS"
	TypeCustomExpression Type = "CUSTOM_EXPRESSION"
)

// AllTypes returns every rule type.
func AllTypes() []Type {
	return []Type{TypeThreshold, TypeChangeDetection, TypeDeviceStatus, TypeCustomExpression}
}

// Operator is a threshold comparison.
type Operator string

// Threshold operators.
const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Rule is an alert condition attached to one device.
type Rule struct {
	ID          string  `json:"id"`
	DeviceID    string  `json:"deviceId"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Type        Type    `json:"ruleType"`

	// Field is a dotted payload path, used by threshold and change rules.
	Field string `json:"field"`

	// Operator and Value define a threshold.
	Operator Operator `json:"operator,omitempty"`
	Value    *float64 `json:"value,omitempty"`

	// Expression is the condition of a custom rule.
	Expression string `json:"expression,omitempty"`

	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Result is the outcome of evaluating one rule.
type Result struct {
	Triggered     bool
	Message       string
	ActualValue   any
	ExpectedValue any
}

// Triggered pairs a rule with the result that fired it.
type Triggered struct {
	Rule   Rule
	Result Result
}

// Observation carries the context of one evaluation.
type Observation struct {
	// Online is the device's current online flag, nil when unknown.
	// Device status rules never trigger without it.
	Online *bool

	// At orders observations of the same device and field. Observations
	// older than the cached one are ignored.
	At time.Time
}
