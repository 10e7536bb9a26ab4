package rules

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Expression is a parsed custom rule condition.
//
// The grammar is deliberately small:
//
//	expr     = or
//	or       = and { "||" and }
//	and      = equality { "&&" equality }
//	equality = relation { ("==" | "!=" | "===" | "!==") relation }
//	relation = sum { ("<" | "<=" | ">" | ">=") sum }
//	sum      = product { ("+" | "-") product }
//	product  = unary { ("*" | "/" | "%") unary }
//	unary    = ("!" | "-") unary | primary
//	primary  = number | string | "true" | "false" | "null" | path | "(" expr ")"
//	path     = ident { "." ident }
//
// Paths resolve against the payload. Numeric strings in the payload are
// read as numbers, matching how gateways report registers.
type Expression struct {
	source string
	root   node
}

const maxExpressionDepth = 64

// ParseExpression parses src. Errors wrap ErrInvalidExpression.
func ParseExpression(src string) (*Expression, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpression, err)
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExpression, err)
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidExpression, tok.text, tok.pos)
	}
	return &Expression{source: src, root: root}, nil
}

// String returns the source text.
func (e *Expression) String() string {
	return e.source
}

// Eval evaluates the expression against payload. It reports true only
// when the result is the boolean true. Errors wrap ErrEvaluation.
func (e *Expression) Eval(payload map[string]any) (bool, error) {
	v, err := e.root.eval(payload)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrEvaluation, err)
	}
	b, ok := v.(bool)
	return ok && b, nil
}

// ---- lexer ----

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

var operators = []string{"===", "!==", "&&", "||", "==", "!=", "<=", ">=", "<", ">", "!", "+", "-", "*", "/", "%"}

func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(src[i+1:], src[i])
			if end < 0 {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			tokens = append(tokens, token{kind: tokString, text: src[i+1 : i+1+end], pos: i})
			i += end + 2
		case c >= '0' && c <= '9' || c == '.' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9':
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.' ||
				src[i] == 'e' || src[i] == 'E' ||
				(src[i] == '-' || src[i] == '+') && (src[i-1] == 'e' || src[i-1] == 'E')) {
				i++
			}
			n, err := strconv.ParseFloat(src[start:i], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q at offset %d", src[start:i], start)
			}
			tokens = append(tokens, token{kind: tokNumber, text: src[start:i], num: n, pos: start})
		case isIdentStart(c):
			start := i
			for i < len(src) && (isIdentPart(rune(src[i])) || src[i] == '.' && i+1 < len(src) && isIdentStart(rune(src[i+1]))) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: src[start:i], pos: start})
		default:
			op := matchOperator(src[i:])
			if op == "" {
				return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
			}
			tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(src)}), nil
}

func matchOperator(s string) string {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

func isIdentStart(c rune) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

// ---- parser ----

type parser struct {
	tokens []token
	pos    int
	depth  int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) binary(sub func() (node, error), ops ...string) (node, error) {
	left, err := sub()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp(ops...)
		if !ok {
			return left, nil
		}
		right, err := sub()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseOr() (node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxExpressionDepth {
		return nil, fmt.Errorf("expression nested deeper than %d", maxExpressionDepth)
	}
	return p.binary(p.parseAnd, "||")
}

func (p *parser) parseAnd() (node, error) {
	return p.binary(p.parseEquality, "&&")
}

func (p *parser) parseEquality() (node, error) {
	return p.binary(p.parseRelation, "===", "!==", "==", "!=")
}

func (p *parser) parseRelation() (node, error) {
	return p.binary(p.parseSum, "<=", ">=", "<", ">")
}

func (p *parser) parseSum() (node, error) {
	return p.binary(p.parseProduct, "+", "-")
}

func (p *parser) parseProduct() (node, error) {
	return p.binary(p.parseUnary, "*", "/", "%")
}

func (p *parser) parseUnary() (node, error) {
	if op, ok := p.acceptOp("!", "-"); ok {
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > maxExpressionDepth {
			return nil, fmt.Errorf("expression nested deeper than %d", maxExpressionDepth)
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return literal{value: t.num}, nil
	case tokString:
		return literal{value: t.text}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return literal{value: true}, nil
		case "false":
			return literal{value: false}, nil
		case "null":
			return literal{value: nil}, nil
		}
		return pathNode{path: strings.Split(t.text, ".")}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("expected ) at offset %d", closing.pos)
		}
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}
}

// ---- evaluation ----

type node interface {
	eval(payload map[string]any) (any, error)
}

type literal struct{ value any }

func (l literal) eval(map[string]any) (any, error) { return l.value, nil }

type pathNode struct{ path []string }

func (n pathNode) eval(payload map[string]any) (any, error) {
	v, ok := lookupPath(payload, n.path)
	if !ok || v == nil {
		return nil, fmt.Errorf("field %q has no value", strings.Join(n.path, "."))
	}
	if s, isStr := v.(string); isStr {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, nil
		}
	}
	return normalise(v), nil
}

type unaryNode struct {
	op      string
	operand node
}

func (n unaryNode) eval(payload map[string]any) (any, error) {
	v, err := n.operand.eval(payload)
	if err != nil {
		return nil, err
	}
	if n.op == "!" {
		return !truthy(v), nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("cannot negate %T", v)
	}
	return -f, nil
}

type binaryNode struct {
	op          string
	left, right node
}

func (n binaryNode) eval(payload map[string]any) (any, error) {
	left, err := n.left.eval(payload)
	if err != nil {
		return nil, err
	}

	// Short-circuit like the usual boolean connectives.
	switch n.op {
	case "&&":
		if !truthy(left) {
			return false, nil
		}
		right, err := n.right.eval(payload)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	case "||":
		if truthy(left) {
			return true, nil
		}
		right, err := n.right.eval(payload)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}

	right, err := n.right.eval(payload)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==", "===":
		return equal(left, right), nil
	case "!=", "!==":
		return !equal(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, left, right)
	default:
		return arithmetic(n.op, left, right)
	}
}

func lookupPath(payload map[string]any, path []string) (any, bool) {
	var cur any = payload
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// normalise maps integer types onto float64 so payloads built in code
// behave like decoded JSON.
func normalise(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	}
	return v
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		return true
	}
}

func equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	default:
		return false
	}
}

func compare(op string, a, b any) (bool, error) {
	if x, ok := a.(float64); ok {
		if y, ok := b.(float64); ok {
			return compareOrdered(op, x, y), nil
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return compareOrdered(op, x, y), nil
		}
	}
	return false, fmt.Errorf("cannot compare %T %s %T", a, op, b)
}

func compareOrdered[T float64 | string](op string, x, y T) bool {
	switch op {
	case "<":
		return x < y
	case "<=":
		return x <= y
	case ">":
		return x > y
	default:
		return x >= y
	}
}

func arithmetic(op string, a, b any) (any, error) {
	if op == "+" {
		if x, ok := a.(string); ok {
			return x + formatValue(b), nil
		}
		if y, ok := b.(string); ok {
			return formatValue(a) + y, nil
		}
	}
	x, okX := a.(float64)
	y, okY := b.(float64)
	if !okX || !okY {
		return nil, fmt.Errorf("cannot apply %s to %T and %T", op, a, b)
	}
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return x / y, nil
	default:
		if y == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return math.Mod(x, y), nil
	}
}
