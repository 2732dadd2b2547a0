// Package expr evaluates the integer arithmetic accepted by the msg_len
// grammar key: decimal literals, + - * /, unary minus and parentheses.
package expr

import (
	"fmt"
	"math"
	"strconv"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOp
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	op   byte
	val  int64
	pos  int
}

// Eval evaluates s. Division truncates toward zero.
func Eval(s string) (int64, error) {
	toks, err := tokenize(s)
	if err != nil {
		return 0, err
	}
	p := &parser{toks: toks}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return 0, fmt.Errorf("unexpected token at offset %d in %q", t.pos, s)
	}
	return v, nil
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9':
			start := i
			for i < len(s) && s[i] >= '0' && s[i] <= '9' {
				i++
			}
			v, err := strconv.ParseInt(s[start:i], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid literal %q: %w", s[start:i], err)
			}
			toks = append(toks, token{kind: tokNumber, val: v, pos: start})
		case c == '+' || c == '-' || c == '*' || c == '/':
			toks = append(toks, token{kind: tokOp, op: c, pos: i})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return append(toks, token{kind: tokEOF, pos: len(s)}), nil
}

type parser struct {
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

// expr := term (('+'|'-') term)*
func (p *parser) expr() (int64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.op != '+' && t.op != '-') {
			return left, nil
		}
		p.next()
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if t.op == '+' {
			left, err = add(left, right)
		} else {
			left, err = add(left, -right)
		}
		if err != nil {
			return 0, err
		}
	}
}

// term := unary (('*'|'/') unary)*
func (p *parser) term() (int64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.op != '*' && t.op != '/') {
			return left, nil
		}
		p.next()
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		if t.op == '*' {
			if left, err = mul(left, right); err != nil {
				return 0, err
			}
			continue
		}
		if right == 0 {
			return 0, fmt.Errorf("division by zero at offset %d", t.pos)
		}
		left /= right
	}
}

// unary := '-' unary | primary
func (p *parser) unary() (int64, error) {
	if t := p.peek(); t.kind == tokOp && t.op == '-' {
		p.next()
		v, err := p.unary()
		return -v, err
	}
	return p.primary()
}

// primary := number | '(' expr ')'
func (p *parser) primary() (int64, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return t.val, nil
	case tokLParen:
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return 0, fmt.Errorf("missing ')' at offset %d", closing.pos)
		}
		return v, nil
	case tokEOF:
		return 0, fmt.Errorf("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected token at offset %d", t.pos)
	}
}

func add(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("integer overflow")
	}
	return a + b, nil
}

func mul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	r := a * b
	if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, fmt.Errorf("integer overflow")
	}
	return r, nil
}
