package solver

import (
	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/universe"
)

type ruleKind int

const (
	ruleGoal ruleKind = iota
	ruleRequires
	ruleConflict
	ruleObsolete
	ruleSameName
)

// rule is one clause of the formula together with what it means.
type rule struct {
	kind      ruleKind
	pkg       *models.Package
	other     *models.Package
	cap       models.Capability
	providers []*models.Package
	// when and unless make a requirement conditional: it only applies
	// while every package of when is installed and none of unless is.
	when   []*models.Package
	unless []*models.Package
	clause []int
}

func (r rule) onlyWith(b *models.Package) rule {
	r.when = append(append([]*models.Package(nil), r.when...), b)
	return r
}

func (r rule) unlessAny(pkgs []*models.Package) rule {
	r.unless = append(append([]*models.Package(nil), r.unless...), pkgs...)
	return r
}

// applies reports whether the conditions of r hold for the selection.
func (r rule) applies(selected map[*models.Package]bool) bool {
	for _, w := range r.when {
		if !selected[w] {
			return false
		}
	}
	return !anySelected(r.unless, selected)
}

// formula is a goal encoded over the packages reachable from it.
type formula struct {
	pkgs  []*models.Package
	vars  map[*models.Package]int
	goals []rule
	rules []rule

	goalSet    map[*models.Package]bool
	requiresOf map[*models.Package][]int
}

func (f *formula) variable(p *models.Package) int {
	if v, ok := f.vars[p]; ok {
		return v
	}
	f.pkgs = append(f.pkgs, p)
	v := len(f.pkgs)
	f.vars[p] = v
	return v
}

func (f *formula) clauses(sets ...[]rule) [][]int {
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	out := make([][]int, 0, n)
	for _, s := range sets {
		for _, r := range s {
			out = append(out, r.clause)
		}
	}
	return out
}

// encode builds the formula for g: the closure of packages reachable
// through requirements, one clause per requirement, one per conflicting or
// obsoleting pair inside the closure, and at most one package per name and
// arch.
func encode(u *universe.Universe, g Goal) *formula {
	f := &formula{
		vars:       make(map[*models.Package]int),
		goalSet:    make(map[*models.Package]bool, len(g.Install)),
		requiresOf: make(map[*models.Package][]int),
	}

	for _, p := range g.Install {
		if f.goalSet[p] {
			continue
		}
		f.goalSet[p] = true
		f.goals = append(f.goals, rule{kind: ruleGoal, pkg: p, clause: []int{f.variable(p)}})
	}

	for i := 0; i < len(f.pkgs); i++ {
		p := f.pkgs[i]
		for _, req := range p.Requires {
			if relaxed(g, p, req) {
				continue
			}
			for _, r := range requirementRules(u, p, req) {
				// Self-satisfied requirements are tautologies.
				if containsPackage(r.providers, p) || containsPackage(r.unless, p) || overlaps(r.when, r.providers) {
					continue
				}
				r.clause = append(r.clause, -f.variable(p))
				for _, w := range r.when {
					if w != p {
						r.clause = append(r.clause, -f.variable(w))
					}
				}
				for _, q := range r.unless {
					r.clause = append(r.clause, f.variable(q))
				}
				for _, prov := range r.providers {
					r.clause = append(r.clause, f.variable(prov))
				}
				f.requiresOf[p] = append(f.requiresOf[p], len(f.rules))
				f.rules = append(f.rules, r)
			}
		}
	}

	f.encodeConflicts(u)
	f.encodeSameName()
	return f
}

func relaxed(g Goal, p *models.Package, req models.Capability) bool {
	if models.IsRPMLibDependency(req.Name) {
		return true
	}
	for _, c := range g.Relax[p] {
		if c.String() == req.String() {
			return true
		}
	}
	return false
}

// requirementRules expands one requirement. A rich "and" becomes one rule
// per operand, an "or" a single rule over the providers of every operand.
// "with" and "without" narrow the providers down to the packages that
// satisfy the whole expression. "if" and "unless" yield rules that only
// apply while their condition holds, plus the rules of the else branch
// for when it does not.
func requirementRules(u *universe.Universe, p *models.Package, req models.Capability) []rule {
	if req.Rich == nil {
		return []rule{{kind: ruleRequires, pkg: p, cap: req, providers: u.WhatProvides(req)}}
	}
	var rules []rule
	switch req.Rich.Op {
	case models.RichAnd:
		for _, op := range req.Rich.Operands {
			rules = append(rules, requirementRules(u, p, op)...)
		}
	case models.RichOr, models.RichWith, models.RichWithout:
		rules = append(rules, rule{kind: ruleRequires, pkg: p, cap: req, providers: satisfiers(u, req)})
	case models.RichIf:
		triggers := satisfiers(u, req.Rich.Operands[1])
		for _, b := range triggers {
			for _, r := range requirementRules(u, p, req.Rich.Operands[0]) {
				rules = append(rules, r.onlyWith(b))
			}
		}
		if req.Rich.Else != nil {
			for _, r := range requirementRules(u, p, *req.Rich.Else) {
				rules = append(rules, r.unlessAny(triggers))
			}
		}
	case models.RichUnless:
		triggers := satisfiers(u, req.Rich.Operands[1])
		for _, r := range requirementRules(u, p, req.Rich.Operands[0]) {
			rules = append(rules, r.unlessAny(triggers))
		}
		if req.Rich.Else != nil {
			for _, b := range triggers {
				for _, r := range requirementRules(u, p, *req.Rich.Else) {
					rules = append(rules, r.onlyWith(b))
				}
			}
		}
	}
	return rules
}

// satisfiers returns the packages that satisfy c on their own: the
// providers common to every "with" operand, or those of the first
// "without" operand that do not provide the second.
func satisfiers(u *universe.Universe, c models.Capability) []*models.Package {
	if c.Rich == nil {
		return u.WhatProvides(c)
	}
	ops := c.Rich.Operands
	switch c.Rich.Op {
	case models.RichWith:
		out := satisfiers(u, ops[0])
		for _, op := range ops[1:] {
			out = intersect(out, satisfiers(u, op))
		}
		return out
	case models.RichWithout:
		return subtract(satisfiers(u, ops[0]), satisfiers(u, ops[1]))
	default:
		return u.WhatProvides(c)
	}
}

func intersect(a, b []*models.Package) []*models.Package {
	var out []*models.Package
	for _, p := range a {
		if containsPackage(b, p) {
			out = append(out, p)
		}
	}
	return out
}

func subtract(a, b []*models.Package) []*models.Package {
	var out []*models.Package
	for _, p := range a {
		if !containsPackage(b, p) {
			out = append(out, p)
		}
	}
	return out
}

func (f *formula) encodeConflicts(u *universe.Universe) {
	seen := make(map[[2]int]bool)
	add := func(kind ruleKind, p, q *models.Package, c models.Capability) {
		a, b := f.vars[p], f.vars[q]
		pair := [2]int{min(a, b), max(a, b)}
		if seen[pair] {
			return
		}
		seen[pair] = true
		f.rules = append(f.rules, rule{kind: kind, pkg: p, other: q, cap: c, clause: []int{-a, -b}})
	}

	for _, p := range f.pkgs {
		for _, c := range p.Conflicts {
			for _, q := range u.WhatProvides(c) {
				if q != p && f.in(q) {
					add(ruleConflict, p, q, c)
				}
			}
		}
		for _, o := range p.Obsoletes {
			for _, q := range u.ByName(o.Name) {
				if q == p || q.Name == p.Name || !f.in(q) {
					continue
				}
				if o.Matches(q.SelfProvide()) {
					add(ruleObsolete, p, q, o)
				}
			}
		}
	}
}

func (f *formula) encodeSameName() {
	groups := make(map[string][]*models.Package)
	var order []string
	for _, p := range f.pkgs {
		k := p.Name + "." + p.Arch
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}
	for _, k := range order {
		g := groups[k]
		for i := 0; i < len(g); i++ {
			for j := i + 1; j < len(g); j++ {
				f.rules = append(f.rules, rule{
					kind: ruleSameName, pkg: g[i], other: g[j],
					clause: []int{-f.vars[g[i]], -f.vars[g[j]]},
				})
			}
		}
	}
}

func (f *formula) in(p *models.Package) bool {
	_, ok := f.vars[p]
	return ok
}

func containsPackage(pkgs []*models.Package, p *models.Package) bool {
	for _, q := range pkgs {
		if q == p {
			return true
		}
	}
	return false
}

func overlaps(a, b []*models.Package) bool {
	for _, p := range a {
		if containsPackage(b, p) {
			return true
		}
	}
	return false
}

// satisfied reports whether the selection satisfies clause.
func satisfied(clause []int, selected func(v int) bool) bool {
	for _, lit := range clause {
		if lit > 0 && selected(lit) {
			return true
		}
		if lit < 0 && !selected(-lit) {
			return true
		}
	}
	return false
}
