package engine

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/rbright/boltd/internal/failure"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokParam
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type exprKind int

const (
	exprLiteral exprKind = iota
	exprParam
	exprVariable
)

type expr struct {
	kind  exprKind
	value any
	name  string
}

type unwindRange struct {
	variable       string
	from, to, step int64
}

// plan is a compiled statement.
type plan struct {
	fields []string
	items  []expr
	unwind *unwindRange
}

func syntaxError(src string, pos int) error {
	snippet := src[pos:]
	if len(snippet) > 20 {
		snippet = snippet[:20]
	}
	return failure.WithStatus(
		errors.Newf("Invalid input '%s': expected RETURN or UNWIND (offset: %d)", snippet, pos),
		failure.StatusSyntaxError,
	)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

func lex(src string) ([]token, error) {
	var toks []token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '$':
			j := i + 1
			for j < len(src) && isIdentChar(src[j]) {
				j++
			}
			if j == i+1 {
				return nil, syntaxError(src, i)
			}
			toks = append(toks, token{kind: tokParam, text: src[i+1 : j], pos: i})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentChar(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j], pos: i})
			i = j
		case isDigit(c) || (c == '-' && i+1 < len(src) && isDigit(src[i+1])):
			j := i + 1
			for j < len(src) && (isDigit(src[j]) || src[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j], pos: i})
			i = j
		case c == '\'' || c == '"':
			var b strings.Builder
			j := i + 1
			for ; j < len(src) && src[j] != c; j++ {
				if src[j] == '\\' && j+1 < len(src) {
					j++
				}
				b.WriteByte(src[j])
			}
			if j >= len(src) {
				return nil, syntaxError(src, i)
			}
			toks = append(toks, token{kind: tokString, text: b.String(), pos: i})
			i = j + 1
		case c == '(' || c == ')' || c == ',':
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++
		default:
			return nil, syntaxError(src, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) punct(s string) bool {
	t := p.peek()
	if t.kind == tokPunct && t.text == s {
		p.pos++
		return true
	}
	return false
}

func (p *parser) fail() error { return syntaxError(p.src, p.peek().pos) }

func (p *parser) integer() (int64, error) {
	t := p.peek()
	if t.kind != tokNumber {
		return 0, p.fail()
	}
	v, err := strconv.ParseInt(t.text, 10, 64)
	if err != nil {
		return 0, p.fail()
	}
	p.pos++
	return v, nil
}

func (p *parser) identifier() (string, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return "", p.fail()
	}
	p.pos++
	return t.text, nil
}

// compile parses the supported statement forms:
//
//	[UNWIND range(from, to[, step]) AS name] RETURN expr [AS alias], ...
func compile(src string) (*plan, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	pl := &plan{}

	if p.keyword("UNWIND") {
		u, err := p.unwind()
		if err != nil {
			return nil, err
		}
		pl.unwind = u
	}
	if !p.keyword("RETURN") {
		return nil, p.fail()
	}

	for {
		start := p.peek().pos
		e, err := p.expr(pl)
		if err != nil {
			return nil, err
		}
		field := strings.TrimSpace(src[start:p.peek().pos])
		if p.keyword("AS") {
			if field, err = p.identifier(); err != nil {
				return nil, err
			}
		}
		pl.items = append(pl.items, e)
		pl.fields = append(pl.fields, field)
		if !p.punct(",") {
			break
		}
	}
	if p.peek().kind != tokEOF {
		return nil, p.fail()
	}
	return pl, nil
}

func (p *parser) unwind() (*unwindRange, error) {
	if !p.keyword("range") || !p.punct("(") {
		return nil, p.fail()
	}
	u := &unwindRange{step: 1}
	var err error
	if u.from, err = p.integer(); err != nil {
		return nil, err
	}
	if !p.punct(",") {
		return nil, p.fail()
	}
	if u.to, err = p.integer(); err != nil {
		return nil, err
	}
	if p.punct(",") {
		if u.step, err = p.integer(); err != nil {
			return nil, err
		}
		if u.step == 0 {
			return nil, failure.WithStatus(errors.New("Step argument to range() cannot be zero"), failure.StatusSyntaxError)
		}
	}
	if !p.punct(")") || !p.keyword("AS") {
		return nil, p.fail()
	}
	if u.variable, err = p.identifier(); err != nil {
		return nil, err
	}
	return u, nil
}

func (p *parser) expr(pl *plan) (expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.pos++
		if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return expr{kind: exprLiteral, value: i}, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return expr{}, syntaxError(p.src, t.pos)
		}
		return expr{kind: exprLiteral, value: f}, nil
	case tokString:
		p.pos++
		return expr{kind: exprLiteral, value: t.text}, nil
	case tokParam:
		p.pos++
		return expr{kind: exprParam, name: t.text}, nil
	case tokIdent:
		p.pos++
		switch strings.ToLower(t.text) {
		case "true":
			return expr{kind: exprLiteral, value: true}, nil
		case "false":
			return expr{kind: exprLiteral, value: false}, nil
		case "null":
			return expr{kind: exprLiteral, value: nil}, nil
		}
		if pl.unwind != nil && pl.unwind.variable == t.text {
			return expr{kind: exprVariable, name: t.text}, nil
		}
		return expr{}, failure.WithStatus(errors.Newf("Variable `%s` not defined", t.text), failure.StatusSyntaxError)
	default:
		return expr{}, p.fail()
	}
}

// checkParams reports the parameters the plan needs but params lacks.
func (pl *plan) checkParams(params map[string]any) error {
	var missing []string
	for _, e := range pl.items {
		if e.kind != exprParam {
			continue
		}
		if _, ok := params[e.name]; !ok {
			missing = append(missing, e.name)
		}
	}
	if len(missing) > 0 {
		return failure.WithStatus(
			errors.Newf("Expected parameter(s): %s", strings.Join(missing, ", ")),
			failure.StatusParameterMissing,
		)
	}
	return nil
}

// cursor produces the rows of one plan lazily.
type cursor struct {
	plan   *plan
	params map[string]any
	next   int64
	done   bool
}

func newCursor(pl *plan, params map[string]any) *cursor {
	c := &cursor{plan: pl, params: params}
	if pl.unwind != nil {
		c.next = pl.unwind.from
	}
	return c
}

// exhausted reports whether advance has no row left.
func (c *cursor) exhausted() bool {
	if c.done {
		return true
	}
	if u := c.plan.unwind; u != nil {
		return (u.step > 0 && c.next > u.to) || (u.step < 0 && c.next < u.to)
	}
	return false
}

// advance returns the next row, or false once exhausted.
func (c *cursor) advance() ([]any, bool) {
	if c.exhausted() {
		c.done = true
		return nil, false
	}

	var row any
	if u := c.plan.unwind; u != nil {
		row = c.next
		c.next += u.step
	} else {
		c.done = true
	}

	values := make([]any, len(c.plan.items))
	for i, e := range c.plan.items {
		switch e.kind {
		case exprLiteral:
			values[i] = e.value
		case exprParam:
			values[i] = c.params[e.name]
		case exprVariable:
			values[i] = row
		}
	}
	return values, true
}
