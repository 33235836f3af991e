package solver

import (
	"context"
	"sort"

	"github.com/ralt/depcheck/internal/models"
)

// selection picks the packages to install for a satisfiable formula.
//
// The preferred answer is built greedily: every unmet requirement takes its
// best provider (same architecture family first, then highest version). If
// that answer breaks a rule, variables are decided one by one with the
// engine, least preferred packages first.
func (s *solver) selection(ctx context.Context, f *formula) ([]*models.Package, error) {
	if sel, ok := f.greedy(); ok {
		return sel, nil
	}
	return s.decide(ctx, f)
}

func (f *formula) greedy() ([]*models.Package, bool) {
	selected := make(map[*models.Package]bool)
	var order []*models.Package
	for _, g := range f.goals {
		selected[g.pkg] = true
		order = append(order, g.pkg)
	}

	for i := 0; i < len(order); i++ {
		p := order[i]
		for _, ri := range f.requiresOf[p] {
			r := f.rules[ri]
			if len(r.providers) == 0 || anySelected(r.providers, selected) || !r.applies(selected) {
				continue
			}
			best := preferred(p, r.providers)[0]
			selected[best] = true
			order = append(order, best)
		}
	}

	isSelected := func(v int) bool { return selected[f.pkgs[v-1]] }
	for _, r := range f.rules {
		if !satisfied(r.clause, isSelected) {
			return nil, false
		}
	}
	return order, true
}

// decide fixes every non-goal variable in turn, least preferred first: to
// false when the formula stays satisfiable, to true otherwise. The result
// depends only on the formula.
func (s *solver) decide(ctx context.Context, f *formula) ([]*models.Package, error) {
	var rest []*models.Package
	for _, p := range f.pkgs {
		if !f.goalSet[p] {
			rest = append(rest, p)
		}
	}
	goalArch := ""
	if len(f.goals) > 0 {
		goalArch = f.goals[0].pkg.Arch
	}
	rest = preferred(&models.Package{Arch: goalArch}, rest)

	base := f.clauses(f.goals, f.rules)
	fixed := make([][]int, 0, len(rest))
	var selected []*models.Package
	for _, g := range f.goals {
		selected = append(selected, g.pkg)
	}
	var chosen []*models.Package
	for i := len(rest) - 1; i >= 0; i-- {
		p := rest[i]
		v := f.vars[p]
		try := append(append(append([][]int{}, base...), fixed...), []int{-v})
		_, ok, err := s.engine.solve(ctx, len(f.pkgs), try)
		if err != nil {
			return nil, err
		}
		if ok {
			fixed = append(fixed, []int{-v})
			continue
		}
		fixed = append(fixed, []int{v})
		chosen = append(chosen, p)
	}

	// report in formula order
	sort.SliceStable(chosen, func(i, j int) bool { return f.vars[chosen[i]] < f.vars[chosen[j]] })
	return append(selected, chosen...), nil
}

func anySelected(pkgs []*models.Package, selected map[*models.Package]bool) bool {
	for _, p := range pkgs {
		if selected[p] {
			return true
		}
	}
	return false
}

// preferred orders providers for the requirer: packages of the requirer's
// architecture family first, then by name in order of first appearance,
// highest version first within a name.
func preferred(requirer *models.Package, providers []*models.Package) []*models.Package {
	firstSeen := make(map[string]int)
	for i, p := range providers {
		if _, ok := firstSeen[p.Name]; !ok {
			firstSeen[p.Name] = i
		}
	}
	archRank := func(p *models.Package) int {
		if models.SameArchFamily(requirer.Arch, p.Arch) {
			return 0
		}
		return 1
	}

	out := append([]*models.Package(nil), providers...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := archRank(a), archRank(b); ra != rb {
			return ra < rb
		}
		if a.Name != b.Name {
			return firstSeen[a.Name] < firstSeen[b.Name]
		}
		return a.Version.Compare(b.Version) > 0
	})
	return out
}
