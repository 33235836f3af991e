package models

import (
	"fmt"
	"strings"
)

// RichOp is the operator of a boolean (rich) dependency.
type RichOp int

const (
	RichAnd RichOp = iota
	RichOr
	RichIf
	RichUnless
	RichWith
	RichWithout
)

func (o RichOp) String() string {
	switch o {
	case RichAnd:
		return "and"
	case RichOr:
		return "or"
	case RichIf:
		return "if"
	case RichUnless:
		return "unless"
	case RichWith:
		return "with"
	case RichWithout:
		return "without"
	default:
		return "?"
	}
}

var richOps = map[string]RichOp{
	"and":     RichAnd,
	"or":      RichOr,
	"if":      RichIf,
	"unless":  RichUnless,
	"with":    RichWith,
	"without": RichWithout,
}

// RichDep is a parsed boolean dependency.
//
// For and/or/with the expression holds two or more operands. For
// if/unless/without it holds exactly two, and if/unless may carry an Else
// branch.
type RichDep struct {
	Op       RichOp
	Operands []Capability
	Else     *Capability
}

// Conditional reports whether the expression depends on what else is
// installed (if, unless, with, without).
func (r *RichDep) Conditional() bool {
	return r.Op != RichAnd && r.Op != RichOr
}

func (r *RichDep) String() string {
	parts := make([]string, 0, len(r.Operands))
	for _, op := range r.Operands {
		parts = append(parts, op.String())
	}
	s := "(" + strings.Join(parts, " "+r.Op.String()+" ")
	if r.Else != nil {
		s += " else " + r.Else.String()
	}
	return s + ")"
}

func parseRich(text string) (Capability, error) {
	p := &richParser{tokens: tokenizeRich(text)}
	c, err := p.expr()
	if err != nil {
		return Capability{}, fmt.Errorf("invalid rich dependency %q: %w", text, err)
	}
	if !p.done() {
		return Capability{}, fmt.Errorf("invalid rich dependency %q: trailing %q", text, p.peek())
	}
	return c, nil
}

// tokenizeRich splits on whitespace and on group parentheses, keeping
// parentheses that are part of a name such as "perl(Foo)".
func tokenizeRich(s string) []string {
	var tokens []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(' || c == ')':
			tokens = append(tokens, string(c))
			i++
		default:
			start, depth := i, 0
		word:
			for i < len(s) {
				switch s[i] {
				case ' ', '\t', '\n':
					break word
				case '(':
					depth++
				case ')':
					if depth == 0 {
						break word
					}
					depth--
				}
				i++
			}
			tokens = append(tokens, s[start:i])
		}
	}
	return tokens
}

type richParser struct {
	tokens []string
	pos    int
}

func (p *richParser) done() bool { return p.pos >= len(p.tokens) }

func (p *richParser) peek() string {
	if p.done() {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *richParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *richParser) expr() (Capability, error) {
	if p.next() != "(" {
		return Capability{}, fmt.Errorf("expected '('")
	}
	first, err := p.operand()
	if err != nil {
		return Capability{}, err
	}

	opWord := p.next()
	op, ok := richOps[opWord]
	if !ok {
		return Capability{}, fmt.Errorf("expected boolean operator, got %q", opWord)
	}
	second, err := p.operand()
	if err != nil {
		return Capability{}, err
	}
	dep := &RichDep{Op: op, Operands: []Capability{first, second}}

	for {
		switch tok := p.peek(); {
		case tok == ")":
			p.next()
			return Capability{Name: dep.String(), Rich: dep}, nil
		case tok == "else" && (op == RichIf || op == RichUnless) && dep.Else == nil:
			p.next()
			e, err := p.operand()
			if err != nil {
				return Capability{}, err
			}
			dep.Else = &e
		case tok == opWord && (op == RichAnd || op == RichOr || op == RichWith) && dep.Else == nil:
			p.next()
			more, err := p.operand()
			if err != nil {
				return Capability{}, err
			}
			dep.Operands = append(dep.Operands, more)
		case tok == "":
			return Capability{}, fmt.Errorf("unterminated expression")
		default:
			return Capability{}, fmt.Errorf("unexpected %q", tok)
		}
	}
}

func (p *richParser) operand() (Capability, error) {
	if p.peek() == "(" {
		return p.expr()
	}
	name := p.next()
	if name == "" || name == ")" {
		return Capability{}, fmt.Errorf("expected dependency name")
	}
	if _, isOp := richOps[name]; isOp {
		return Capability{}, fmt.Errorf("unexpected operator %q", name)
	}
	if op, ok := symbolOperator(p.peek()); ok {
		p.next()
		evr := p.next()
		if evr == "" || evr == ")" {
			return Capability{}, fmt.Errorf("missing version after %s %s", name, op)
		}
		return simpleCapability(name, op, evr)
	}
	return simpleCapability(name, OpNone, "")
}

// Leaves returns the simple capabilities a capability refers to: itself
// for a simple capability, every operand for a rich one.
func (c Capability) Leaves() []Capability {
	if c.Rich == nil {
		return []Capability{c}
	}
	var leaves []Capability
	for _, op := range c.Rich.Operands {
		leaves = append(leaves, op.Leaves()...)
	}
	if c.Rich.Else != nil {
		leaves = append(leaves, c.Rich.Else.Leaves()...)
	}
	return leaves
}
