package rules

import (
	"errors"
	"strings"
	"testing"
)

func TestExpressionEval(t *testing.T) {
	payload := map[string]any{
		"temperature": 72.5,
		"humidity":    "40",
		"status":      "RUN",
		"alarm":       false,
		"grid": map[string]any{
			"voltage": 231.0,
		},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"temperature > 70", true},
		{"temperature > 70 && humidity < 50", true},
		{"temperature > 80 || humidity < 30", false},
		{"status == 'RUN'", true},
		{`status === "RUN"`, true},
		{"status != 'RUN'", false},
		{"!alarm", true},
		{"alarm == false", true},
		{"grid.voltage >= 230 && grid.voltage <= 250", true},
		{"(temperature - 2.5) / 10 == 7", true},
		{"temperature % 10 > 2", true},
		{"-temperature < 0", true},
		{"humidity * 2 == 80", true},
		{"1e2 == 100", true},
		{"temperature", false}, // number, not boolean true
		{"null == null", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := ParseExpression(tt.expr)
			if err != nil {
				t.Fatalf("ParseExpression() error = %v", err)
			}
			got, err := expr.Eval(payload)
			if err != nil {
				t.Fatalf("Eval() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Eval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpressionEvalErrors(t *testing.T) {
	payload := map[string]any{"a": 1.0, "s": "text", "b": true}

	tests := []string{
		"missing > 1",
		"a / 0 > 1",
		"a % 0 > 1",
		"s > b",
		"-s < 0",
		"a.b == 1",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			expr, err := ParseExpression(src)
			if err != nil {
				t.Fatalf("ParseExpression() error = %v", err)
			}
			if _, err := expr.Eval(payload); !errors.Is(err, ErrEvaluation) {
				t.Errorf("Eval() error = %v, want ErrEvaluation", err)
			}
		})
	}
}

func TestExpressionShortCircuit(t *testing.T) {
	expr, err := ParseExpression("a > 5 && missing == 1")
	if err != nil {
		t.Fatalf("ParseExpression() error = %v", err)
	}
	got, err := expr.Eval(map[string]any{"a": 1.0})
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if got {
		t.Error("Eval() = true, want false")
	}
}

func TestParseExpressionRejects(t *testing.T) {
	tests := []string{
		"",
		"a >",
		"(a > 1",
		"a > 1)",
		"a = 1",
		"'unterminated",
		"a > 1; b",
		"process.exit()",
		"a > 1 ? 2 : 3",
		strings.Repeat("(", 100) + "1" + strings.Repeat(")", 100),
		strings.Repeat("!", 100) + "a",
	}
	for _, src := range tests {
		name := src
		if len(name) > 20 {
			name = name[:20]
		}
		t.Run(name, func(t *testing.T) {
			if _, err := ParseExpression(src); !errors.Is(err, ErrInvalidExpression) {
				t.Errorf("ParseExpression(%q) error = %v, want ErrInvalidExpression", src, err)
			}
		})
	}
}

func TestExpressionString(t *testing.T) {
	expr, err := ParseExpression("a > 1")
	if err != nil {
		t.Fatalf("ParseExpression() error = %v", err)
	}
	if expr.String() != "a > 1" {
		t.Errorf("String() = %q", expr.String())
	}
}
