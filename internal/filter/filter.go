// Package filter implements the boolean predicate language that selects
// records during compilation.
//
// Grammar:
//
//	expr    := or
//	or      := and ( "or" and )*
//	and     := unary ( "and" unary )*
//	unary   := "not" unary | "(" expr ")" | cmp
//	cmp     := path op literal | path "in" list | path "contains" literal
//	op      := eq | neq | lt | lte | gt | gte
//	literal := 'string' | "string" | number | true | false | null
//	list    := "[" literal ( "," literal )* "]"
//
// A comparison against a missing field is false (true for neq). Numeric
// comparison applies when both sides are numbers or parse as numbers;
// otherwise strings compare lexicographically.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jlumbroso/slacktivate/internal/domain"
)

// Comparison operators.
const (
	OpEqual        = "eq"
	OpNotEqual     = "neq"
	OpLessThan     = "lt"
	OpLessEqual    = "lte"
	OpGreaterThan  = "gt"
	OpGreaterEqual = "gte"
	OpIn           = "in"
	OpContains     = "contains"
)

// Query is a parsed filter ready for evaluation.
type Query struct {
	text string
	root node
}

// Parse compiles a query, returning a FilterSyntaxError on invalid input.
// Construct-and-discard parsing is how configuration validation reports
// query mistakes before any data exists.
func Parse(text string) (*Query, error) {
	p := &parser{lexer: lexer{input: text}, text: text}
	p.next()
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.tok.kind != tokEOF {
		return nil, domain.ErrFilterSyntax(text, "unexpected %q", p.tok.value)
	}
	return &Query{text: text, root: root}, nil
}

// IsValid reports whether the query text parses.
func IsValid(text string) bool {
	_, err := Parse(text)
	return err == nil
}

// Text returns the original query text.
func (q *Query) Text() string { return q.text }

// Match evaluates the query against one record.
func (q *Query) Match(rec *domain.Record) bool {
	return q.root.eval(rec)
}

// Apply returns the matching subset of records, preserving input order.
func (q *Query) Apply(records []*domain.Record) []*domain.Record {
	out := make([]*domain.Record, 0, len(records))
	for _, rec := range records {
		if q.Match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// === AST ===

type node interface {
	eval(rec *domain.Record) bool
}

type andNode struct{ left, right node }
type orNode struct{ left, right node }
type notNode struct{ inner node }

type cmpNode struct {
	path []string
	op   string
	lit  any   // for scalar comparisons
	list []any // for "in"
}

func (n andNode) eval(rec *domain.Record) bool { return n.left.eval(rec) && n.right.eval(rec) }
func (n orNode) eval(rec *domain.Record) bool  { return n.left.eval(rec) || n.right.eval(rec) }
func (n notNode) eval(rec *domain.Record) bool { return !n.inner.eval(rec) }

func (n cmpNode) eval(rec *domain.Record) bool {
	val, ok := lookup(rec, n.path)
	if !ok {
		// Absent fields never satisfy a positive comparison; they do
		// differ from any literal.
		return n.op == OpNotEqual
	}
	switch n.op {
	case OpEqual:
		return literalEqual(val, n.lit)
	case OpNotEqual:
		return !literalEqual(val, n.lit)
	case OpLessThan:
		return literalCompare(val, n.lit) < 0
	case OpLessEqual:
		return literalCompare(val, n.lit) <= 0
	case OpGreaterThan:
		return literalCompare(val, n.lit) > 0
	case OpGreaterEqual:
		return literalCompare(val, n.lit) >= 0
	case OpIn:
		for _, item := range n.list {
			if literalEqual(val, item) {
				return true
			}
		}
		return false
	case OpContains:
		switch v := val.(type) {
		case []any:
			for _, item := range v {
				if literalEqual(item, n.lit) {
					return true
				}
			}
			return false
		case string:
			s, ok := n.lit.(string)
			return ok && strings.Contains(v, s)
		default:
			return false
		}
	}
	return false
}

func lookup(rec *domain.Record, path []string) (any, bool) {
	var cur any
	cur, ok := rec.Get(path[0])
	if !ok {
		return nil, false
	}
	for _, seg := range path[1:] {
		nested, isRec := cur.(*domain.Record)
		if !isRec {
			return nil, false
		}
		cur, ok = nested.Get(seg)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// literalEqual compares a field value with a literal, coercing numeric
// strings so CSV-sourced fields compare naturally against numbers.
func literalEqual(val, lit any) bool {
	if domain.ValueEqual(val, lit) {
		return true
	}
	a, aok := toNumber(val)
	b, bok := toNumber(lit)
	return aok && bok && a == b
}

// literalCompare orders a field value against a literal: numerically when
// both sides are numbers, lexicographically otherwise.
func literalCompare(val, lit any) int {
	a, aok := toNumber(val)
	b, bok := toNumber(lit)
	if aok && bok {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(toString(val), toString(lit))
}

func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// === Parser ===

type parser struct {
	lexer lexer
	text  string
	tok   token
	err   error
}

func (p *parser) next() {
	tok, err := p.lexer.scan()
	if err != nil && p.err == nil {
		p.err = err
	}
	p.tok = tok
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokIdent && p.tok.value == "or" {
		p.next()
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
	for p.tok.kind == tokIdent && p.tok.value == "and" {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.err != nil {
		return nil, p.err
	}
	switch {
	case p.tok.kind == tokIdent && p.tok.value == "not":
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	case p.tok.kind == tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, domain.ErrFilterSyntax(p.text, "expected ')'")
		}
		p.next()
		return inner, nil
	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (node, error) {
	if p.tok.kind != tokIdent {
		return nil, domain.ErrFilterSyntax(p.text, "expected field name, got %q", p.tok.value)
	}
	path := strings.Split(p.tok.value, ".")
	p.next()

	if p.tok.kind != tokIdent {
		return nil, domain.ErrFilterSyntax(p.text, "expected operator after %q", strings.Join(path, "."))
	}
	op := p.tok.value
	p.next()

	switch op {
	case OpEqual, OpNotEqual, OpLessThan, OpLessEqual, OpGreaterThan, OpGreaterEqual, OpContains:
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return cmpNode{path: path, op: op, lit: lit}, nil
	case OpIn:
		if p.tok.kind != tokLBracket {
			return nil, domain.ErrFilterSyntax(p.text, "expected '[' after 'in'")
		}
		p.next()
		var list []any
		for {
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			list = append(list, lit)
			if p.tok.kind == tokComma {
				p.next()
				continue
			}
			break
		}
		if p.tok.kind != tokRBracket {
			return nil, domain.ErrFilterSyntax(p.text, "expected ']'")
		}
		p.next()
		return cmpNode{path: path, op: OpIn, list: list}, nil
	default:
		return nil, domain.ErrFilterSyntax(p.text, "unknown operator %q", op)
	}
}

func (p *parser) parseLiteral() (any, error) {
	if p.err != nil {
		return nil, p.err
	}
	switch p.tok.kind {
	case tokString:
		v := p.tok.value
		p.next()
		return v, nil
	case tokNumber:
		f, err := strconv.ParseFloat(p.tok.value, 64)
		if err != nil {
			return nil, domain.ErrFilterSyntax(p.text, "bad number %q", p.tok.value)
		}
		p.next()
		return f, nil
	case tokIdent:
		switch p.tok.value {
		case "true":
			p.next()
			return true, nil
		case "false":
			p.next()
			return false, nil
		case "null":
			p.next()
			return nil, nil
		}
	}
	return nil, domain.ErrFilterSyntax(p.text, "expected literal, got %q", p.tok.value)
}

// === Lexer ===

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind  tokenKind
	value string
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) scan() (token, error) {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF}, nil
	}
	c := l.input[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, value: "("}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, value: ")"}, nil
	case c == '[':
		l.pos++
		return token{kind: tokLBracket, value: "["}, nil
	case c == ']':
		l.pos++
		return token{kind: tokRBracket, value: "]"}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, value: ","}, nil
	case c == '\'' || c == '"':
		return l.scanString(c)
	case c >= '0' && c <= '9' || c == '-':
		return l.scanNumber()
	case isIdentStart(c):
		return l.scanIdent()
	default:
		return token{}, domain.ErrFilterSyntax(l.input, "unexpected character %q", string(c))
	}
}

func (l *lexer) scanString(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == quote {
			l.pos++
			return token{kind: tokString, value: b.String()}, nil
		}
		if c == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			c = l.input[l.pos]
		}
		b.WriteByte(c)
		l.pos++
	}
	return token{}, domain.ErrFilterSyntax(l.input, "unterminated string starting at offset %d", start)
}

func (l *lexer) scanNumber() (token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) && (l.input[l.pos] >= '0' && l.input[l.pos] <= '9' || l.input[l.pos] == '.') {
		l.pos++
	}
	if l.pos == start || (l.pos == start+1 && l.input[start] == '-') {
		return token{}, domain.ErrFilterSyntax(l.input, "bad number at offset %d", start)
	}
	return token{kind: tokNumber, value: l.input[start:l.pos]}, nil
}

func (l *lexer) scanIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	return token{kind: tokIdent, value: l.input[start:l.pos]}, nil
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '.' || c == '-'
}
