package behavior

import (
	"fmt"
	"strings"
	"unicode"
)

// guardExpr is a parsed guard expression over named guards.
//
// Grammar:
//
//	expr   := term ('|' term)*
//	term   := factor ('&' factor)*
//	factor := '!' factor | '(' expr ')' | name
type guardExpr interface {
	eval(lookup func(name string) (bool, error)) (bool, error)
	names(acc []string) []string
}

type guardName string

func (g guardName) eval(lookup func(string) (bool, error)) (bool, error) {
	return lookup(string(g))
}

func (g guardName) names(acc []string) []string {
	for _, n := range acc {
		if n == string(g) {
			return acc
		}
	}
	return append(acc, string(g))
}

type guardNot struct{ x guardExpr }

func (g guardNot) eval(lookup func(string) (bool, error)) (bool, error) {
	v, err := g.x.eval(lookup)
	return !v, err
}

func (g guardNot) names(acc []string) []string { return g.x.names(acc) }

type guardAnd struct{ l, r guardExpr }

func (g guardAnd) eval(lookup func(string) (bool, error)) (bool, error) {
	l, err := g.l.eval(lookup)
	if err != nil || !l {
		return false, err
	}
	return g.r.eval(lookup)
}

func (g guardAnd) names(acc []string) []string { return g.r.names(g.l.names(acc)) }

type guardOr struct{ l, r guardExpr }

func (g guardOr) eval(lookup func(string) (bool, error)) (bool, error) {
	l, err := g.l.eval(lookup)
	if err != nil {
		return false, err
	}
	if l {
		return true, nil
	}
	return g.r.eval(lookup)
}

func (g guardOr) names(acc []string) []string { return g.r.names(g.l.names(acc)) }

// parseGuard parses a guard expression. An empty expression yields nil,
// meaning the transition is unguarded.
func parseGuard(src string) (guardExpr, error) {
	p := &guardParser{src: src}
	p.skipSpace()
	if p.done() {
		return nil, nil
	}
	expr, err := p.expr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.done() {
		return nil, fmt.Errorf("guard %q: unexpected %q at offset %d", src, p.src[p.pos:], p.pos)
	}
	return expr, nil
}

type guardParser struct {
	src string
	pos int
}

func (p *guardParser) done() bool { return p.pos >= len(p.src) }

func (p *guardParser) skipSpace() {
	for !p.done() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *guardParser) accept(c byte) bool {
	p.skipSpace()
	if !p.done() && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *guardParser) expr() (guardExpr, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.accept('|') {
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = guardOr{left, right}
	}
	return left, nil
}

func (p *guardParser) term() (guardExpr, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for p.accept('&') {
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = guardAnd{left, right}
	}
	return left, nil
}

func (p *guardParser) factor() (guardExpr, error) {
	if p.accept('!') {
		x, err := p.factor()
		if err != nil {
			return nil, err
		}
		return guardNot{x}, nil
	}
	if p.accept('(') {
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		if !p.accept(')') {
			return nil, fmt.Errorf("guard %q: missing ')' at offset %d", p.src, p.pos)
		}
		return x, nil
	}
	p.skipSpace()
	start := p.pos
	for !p.done() && isGuardNameChar(rune(p.src[p.pos])) {
		p.pos++
	}
	if start == p.pos {
		return nil, fmt.Errorf("guard %q: expected guard name at offset %d", p.src, p.pos)
	}
	return guardName(strings.TrimSpace(p.src[start:p.pos])), nil
}

func isGuardNameChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}
