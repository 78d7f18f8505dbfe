package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/goliatone/go-formengine/pkg/model"
	"github.com/goliatone/go-formengine/pkg/visibility"
)

// Evaluator is a small, dependency-free gating rule evaluator.
//
// Supported syntax:
//   - truthiness: `withEquipment`, `!withEquipment`
//   - comparisons: `venueType == "youthCenter"`, `count != 3`
//   - membership: `facilityType in ("court", "hall")`
//   - composition: `a == true && b != "x"`, `a || b`, parentheses
//
// Identifiers resolve against visibility.Context.Values, or Context.Extras via
// the `extras.` prefix. Compiled programs are cached per rule.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*Program
}

// New returns an Evaluator with an empty program cache.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]*Program)}
}

// Eval compiles (or reuses) the rule and evaluates it. Empty rules are
// always true.
func (e *Evaluator) Eval(fieldKey, rule string, ctx visibility.Context) (bool, error) {
	prog, err := e.program(rule)
	if err != nil {
		return false, fmt.Errorf("%w (field %s)", err, fieldKey)
	}
	return prog.Eval(ctx)
}

// Check reports whether the rule compiles.
func (e *Evaluator) Check(rule string) error {
	_, err := e.program(rule)
	return err
}

func (e *Evaluator) program(rule string) (*Program, error) {
	trimmed := strings.TrimSpace(rule)
	if e == nil {
		return Compile(trimmed)
	}
	e.mu.RLock()
	prog, ok := e.cache[trimmed]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := Compile(trimmed)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.cache == nil {
		e.cache = make(map[string]*Program)
	}
	e.cache[trimmed] = prog
	e.mu.Unlock()
	return prog, nil
}

// Program is a compiled rule.
type Program struct {
	root        node
	identifiers []string
}

// Compile parses rule into a Program.
func Compile(rule string) (*Program, error) {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return &Program{}, nil
	}
	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, seen: make(map[string]struct{})}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("visibility/expr: unexpected token %q", p.tokens[p.pos].raw)
	}
	return &Program{root: root, identifiers: p.identifiers}, nil
}

// Eval runs the program. A nil or empty program evaluates to true.
func (p *Program) Eval(ctx visibility.Context) (bool, error) {
	if p == nil || p.root == nil {
		return true, nil
	}
	return p.root.eval(ctx)
}

// Identifiers lists the field keys the rule references, excluding extras.
func (p *Program) Identifiers() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.identifiers...)
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokBool
	tokNull
	tokEq
	tokNeq
	tokAnd
	tokOr
	tokNot
	tokIn
	tokComma
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	raw  string
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	for i := 0; i < len(input); {
		ch := input[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(':
			tokens = append(tokens, token{kind: tokLParen, raw: "("})
			i++
		case ch == ')':
			tokens = append(tokens, token{kind: tokRParen, raw: ")"})
			i++
		case ch == ',':
			tokens = append(tokens, token{kind: tokComma, raw: ","})
			i++
		case ch == '!':
			if i+1 < len(input) && input[i+1] == '=' {
				tokens = append(tokens, token{kind: tokNeq, raw: "!="})
				i += 2
				continue
			}
			tokens = append(tokens, token{kind: tokNot, raw: "!"})
			i++
		case ch == '=' || ch == '&' || ch == '|':
			if i+1 >= len(input) || input[i+1] != ch {
				return nil, fmt.Errorf("visibility/expr: unexpected %q at offset %d", ch, i)
			}
			kind := map[byte]tokenKind{'=': tokEq, '&': tokAnd, '|': tokOr}[ch]
			tokens = append(tokens, token{kind: kind, raw: input[i : i+2]})
			i += 2
		case ch == '"' || ch == '\'':
			end := i + 1
			for end < len(input) && input[end] != ch {
				if input[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(input) {
				return nil, errors.New("visibility/expr: unterminated string literal")
			}
			body := input[i+1 : end]
			if ch == '\'' {
				body = strings.ReplaceAll(body, `"`, `\"`)
				body = strings.ReplaceAll(body, `\'`, `'`)
			}
			value, err := strconv.Unquote(`"` + body + `"`)
			if err != nil {
				return nil, fmt.Errorf("visibility/expr: invalid string literal: %w", err)
			}
			tokens = append(tokens, token{kind: tokString, raw: value})
			i = end + 1
		default:
			start := i
			for i < len(input) && !strings.ContainsRune(" \t\n\r()!=&|,\"'", rune(input[i])) {
				i++
			}
			raw := input[start:i]
			switch strings.ToLower(raw) {
			case "true", "false":
				tokens = append(tokens, token{kind: tokBool, raw: strings.ToLower(raw)})
			case "null", "nil":
				tokens = append(tokens, token{kind: tokNull, raw: "null"})
			case "in":
				tokens = append(tokens, token{kind: tokIn, raw: "in"})
			default:
				if raw[0] == '-' || raw[0] == '+' || (raw[0] >= '0' && raw[0] <= '9') {
					tokens = append(tokens, token{kind: tokNumber, raw: raw})
				} else {
					tokens = append(tokens, token{kind: tokIdent, raw: raw})
				}
			}
		}
	}
	return tokens, nil
}

type parser struct {
	tokens      []token
	pos         int
	identifiers []string
	seen        map[string]struct{}
}

func (p *parser) peek(kind tokenKind) bool {
	return p.pos < len(p.tokens) && p.tokens[p.pos].kind == kind
}

func (p *parser) match(kind tokenKind) bool {
	if p.peek(kind) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(tokOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.match(tokAnd) {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.match(tokNot) {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.match(tokLParen) {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.match(tokRParen) {
			return nil, errors.New("visibility/expr: missing closing ')'")
		}
		return inner, nil
	}
	if !p.peek(tokIdent) {
		if p.pos >= len(p.tokens) {
			return nil, errors.New("visibility/expr: unexpected end of rule")
		}
		return nil, fmt.Errorf("visibility/expr: expected identifier, got %q", p.tokens[p.pos].raw)
	}
	ident := p.tokens[p.pos].raw
	p.pos++
	p.track(ident)

	switch {
	case p.match(tokEq):
		lit, err := p.literal()
		if err != nil {
			return nil, err
		}
		return compareNode{ident: ident, lit: lit}, nil
	case p.match(tokNeq):
		lit, err := p.literal()
		if err != nil {
			return nil, err
		}
		return notNode{inner: compareNode{ident: ident, lit: lit}}, nil
	case p.match(tokIn):
		return p.parseIn(ident)
	default:
		return truthyNode{ident: ident}, nil
	}
}

func (p *parser) parseIn(ident string) (node, error) {
	if !p.match(tokLParen) {
		return nil, errors.New("visibility/expr: 'in' expects a parenthesised list")
	}
	var set []literal
	for !p.match(tokRParen) {
		if len(set) > 0 && !p.match(tokComma) {
			return nil, errors.New("visibility/expr: expected ',' between list items")
		}
		lit, err := p.literal()
		if err != nil {
			return nil, err
		}
		set = append(set, lit)
	}
	if len(set) == 0 {
		return nil, errors.New("visibility/expr: 'in' list is empty")
	}
	return inNode{ident: ident, set: set}, nil
}

func (p *parser) track(ident string) {
	if strings.HasPrefix(strings.ToLower(ident), "extras.") {
		return
	}
	root := strings.SplitN(ident, ".", 2)[0]
	if _, ok := p.seen[root]; ok {
		return
	}
	p.seen[root] = struct{}{}
	p.identifiers = append(p.identifiers, root)
}

type literalKind int

const (
	litString literalKind = iota
	litNumber
	litBool
	litNull
)

type literal struct {
	kind literalKind
	str  string
	num  float64
	b    bool
}

func (p *parser) literal() (literal, error) {
	if p.pos >= len(p.tokens) {
		return literal{}, errors.New("visibility/expr: missing literal")
	}
	tok := p.tokens[p.pos]
	p.pos++
	switch tok.kind {
	case tokString, tokIdent:
		// Bare identifiers on the right-hand side read as strings.
		return literal{kind: litString, str: tok.raw}, nil
	case tokNumber:
		num, err := strconv.ParseFloat(tok.raw, 64)
		if err != nil {
			return literal{}, fmt.Errorf("visibility/expr: invalid number literal %q", tok.raw)
		}
		return literal{kind: litNumber, num: num}, nil
	case tokBool:
		return literal{kind: litBool, b: tok.raw == "true"}, nil
	case tokNull:
		return literal{kind: litNull}, nil
	default:
		return literal{}, fmt.Errorf("visibility/expr: expected literal, got %q", tok.raw)
	}
}

func (l literal) matches(value any) bool {
	switch l.kind {
	case litNull:
		return model.IsEmpty(value) && !isBool(value)
	case litBool:
		got, _ := value.(bool)
		if s, ok := value.(string); ok {
			got, _ = strconv.ParseBool(strings.TrimSpace(s))
		}
		return got == l.b
	case litNumber:
		got, ok := toNumber(value)
		return ok && got == l.num
	default:
		return model.Text(value) == l.str
	}
}

type node interface {
	eval(ctx visibility.Context) (bool, error)
}

type orNode struct{ left, right node }

func (n orNode) eval(ctx visibility.Context) (bool, error) {
	ok, err := n.left.eval(ctx)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(ctx)
}

type andNode struct{ left, right node }

func (n andNode) eval(ctx visibility.Context) (bool, error) {
	ok, err := n.left.eval(ctx)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(ctx)
}

type notNode struct{ inner node }

func (n notNode) eval(ctx visibility.Context) (bool, error) {
	ok, err := n.inner.eval(ctx)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type compareNode struct {
	ident string
	lit   literal
}

func (n compareNode) eval(ctx visibility.Context) (bool, error) {
	value, _ := lookup(ctx, n.ident)
	return n.lit.matches(value), nil
}

type inNode struct {
	ident string
	set   []literal
}

func (n inNode) eval(ctx visibility.Context) (bool, error) {
	value, _ := lookup(ctx, n.ident)
	for _, lit := range n.set {
		if lit.matches(value) {
			return true, nil
		}
	}
	return false, nil
}

type truthyNode struct{ ident string }

func (n truthyNode) eval(ctx visibility.Context) (bool, error) {
	value, ok := lookup(ctx, n.ident)
	if !ok {
		return false, nil
	}
	return !model.IsEmpty(value), nil
}

func lookup(ctx visibility.Context, key string) (any, bool) {
	if strings.HasPrefix(strings.ToLower(key), "extras.") {
		return lookupPath(ctx.Extras, key[len("extras."):])
	}
	return lookupPath(ctx.Values, key)
}

func lookupPath(values map[string]any, path string) (any, bool) {
	if len(values) == 0 || path == "" {
		return nil, false
	}
	if v, ok := values[path]; ok {
		return v, true
	}

	// Date ranges and files expose their parts: `period.from`, `upload.mimeType`.
	root, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	switch typed := values[root].(type) {
	case model.DateRange:
		switch rest {
		case "from":
			return typed.From, true
		case "to":
			return typed.To, true
		}
	case *model.FileRef:
		if typed == nil {
			return nil, true
		}
		switch rest {
		case "name":
			return typed.Name, true
		case "size":
			return typed.Size, true
		case "mimeType":
			return typed.MIMEType, true
		}
	case map[string]any:
		return lookupPath(typed, rest)
	}
	return nil, false
}

func isBool(value any) bool {
	_, ok := value.(bool)
	return ok
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
