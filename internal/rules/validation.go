package rules

import (
	"fmt"
	"strings"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 500
	maxExpressionLength  = 1000
	maxFieldLength       = 200
)

var validTypes = map[Type]struct{}{
	TypeThreshold:        {},
	TypeChangeDetection:  {},
	TypeDeviceStatus:     {},
	TypeCustomExpression: {},
}

var validOperators = map[Operator]struct{}{
	OpGreater: {}, OpLess: {}, OpGreaterEqual: {}, OpLessEqual: {}, OpEqual: {}, OpNotEqual: {},
}

// ValidateRule checks a rule before it is stored.
// Returns an error wrapping ErrInvalidRule describing the first problem.
func ValidateRule(r *Rule) error {
	if r == nil {
		return ErrInvalidRule
	}

	name := strings.TrimSpace(r.Name)
	if name == "" || len(name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidRule, maxNameLength)
	}
	if r.Description != nil && len(*r.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidRule, maxDescriptionLength)
	}
	if r.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidRule)
	}
	if _, ok := validTypes[r.Type]; !ok {
		return fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, r.Type)
	}
	if len(r.Field) > maxFieldLength {
		return fmt.Errorf("%w: field exceeds %d characters", ErrInvalidRule, maxFieldLength)
	}
	if r.Operator != "" {
		if _, ok := validOperators[r.Operator]; !ok {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, r.Operator)
		}
	}

	switch r.Type {
	case TypeThreshold:
		if r.Field == "" {
			return fmt.Errorf("%w: threshold rules require a field", ErrInvalidRule)
		}
		if r.Operator == "" || r.Value == nil {
			return fmt.Errorf("%w: threshold rules require an operator and a value", ErrInvalidRule)
		}
	case TypeChangeDetection:
		if r.Field == "" {
			return fmt.Errorf("%w: change detection rules require a field", ErrInvalidRule)
		}
	case TypeCustomExpression:
		if strings.TrimSpace(r.Expression) == "" {
			return fmt.Errorf("%w: custom rules require an expression", ErrInvalidRule)
		}
		if len(r.Expression) > maxExpressionLength {
			return fmt.Errorf("%w: expression exceeds %d characters", ErrInvalidRule, maxExpressionLength)
		}
		if _, err := ParseExpression(r.Expression); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
	}
	return nil
}
