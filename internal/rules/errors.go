package rules

import "errors"

// Domain errors for the rules package.
var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("rule: not found")

	// ErrInvalidRule is returned when rule validation fails.
	ErrInvalidRule = errors.New("rule: invalid")

	// ErrInvalidExpression is returned when a custom expression does not parse.
	ErrInvalidExpression = errors.New("rule: invalid expression")

	// ErrEvaluation is returned when a parsed expression cannot be
	// evaluated against a payload.
	ErrEvaluation = errors.New("rule: evaluation failed")
)
