package checker

import (
	"context"
	"fmt"
	"strings"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/solver"
	"github.com/ralt/depcheck/internal/universe"
)

func (c *Checker) checkDependencies(ctx context.Context, u *universe.Universe) ([]models.Problem, error) {
	return c.forEachCandidate(ctx, c.binaryCandidates(u), func(ctx context.Context, p *models.Package) ([]models.Problem, error) {
		problems, _, err := c.analyze(ctx, u, p, false)
		return problems, err
	})
}

// analyze checks that p can be installed. Requirements nothing in the
// universe provides by name are reported directly and left out of the
// solver question; the solver is not consulted at all when nothing is left
// to ask, unless the selection is wanted.
func (c *Checker) analyze(ctx context.Context, u *universe.Universe, p *models.Package, wantSelection bool) ([]models.Problem, []*models.Package, error) {
	problems, relax := c.shortCircuit(u, p)
	problems = append(problems, ambiguousProviders(u, p)...)

	delegated := 0
	for _, req := range p.Requires {
		if !models.IsRPMLibDependency(req.Name) {
			delegated++
		}
	}
	delegated -= len(relax)
	if delegated == 0 && !wantSelection {
		return problems, nil, nil
	}

	res, err := c.solve(ctx, u, solver.Goal{
		Install: []*models.Package{p},
		Mode:    solver.Individual,
		Relax:   map[*models.Package][]models.Capability{p: relax},
	})
	if err != nil {
		return problems, nil, withPackage(err, p)
	}
	for _, r := range res.Reasons {
		problems = append(problems, reasonProblem(p, r))
	}
	return problems, res.Selection, nil
}

// shortCircuit reports the requirements of p whose name nothing provides.
func (c *Checker) shortCircuit(u *universe.Universe, p *models.Package) ([]models.Problem, []models.Capability) {
	var problems []models.Problem
	var relax []models.Capability
	for _, req := range p.Requires {
		if req.Rich != nil || models.IsRPMLibDependency(req.Name) {
			continue
		}
		if len(u.ProvidersByName(req.Name)) > 0 {
			continue
		}
		c.metrics.shortCircuit()
		relax = append(relax, req)

		id := p.Identity()
		pr := models.NewProblem(models.ProblemUnsatisfiedDependency, id,
			fmt.Sprintf("nothing provides %s needed by %s", req, p))
		pr.Subject = &id
		pr.Capability = req.String()
		problems = append(problems, pr)
	}
	return problems, relax
}

// reasonProblem turns a solver reason into a problem reported under
// candidate.
func reasonProblem(candidate *models.Package, r solver.Reason) models.Problem {
	subject := r.Package.Identity()
	switch r.Kind {
	case solver.Unsatisfied:
		pr := models.NewProblem(models.ProblemUnsatisfiedDependency, candidate.Identity(), unsatisfiedDetail(r))
		pr.Subject = &subject
		pr.Capability = r.Capability.String()
		pr.Repo = r.Package.Repo
		for _, prov := range r.Providers {
			pr.Related = append(pr.Related, prov.Identity())
		}
		return pr
	default:
		pr := models.NewProblem(models.ProblemConflictingPackages, candidate.Identity(), r.String())
		pr.Subject = &subject
		pr.Capability = r.Capability.String()
		pr.Repo = r.Other.Repo
		pr.Related = []models.Identity{r.Other.Identity()}
		return pr
	}
}

func unsatisfiedDetail(r solver.Reason) string {
	if len(r.NearMisses) == 0 {
		return r.String()
	}
	misses := make([]string, 0, len(r.NearMisses))
	for _, m := range r.NearMisses {
		misses = append(misses, fmt.Sprintf("%s provides %s (%s)", m.Package, m.Provide, m.Why))
	}
	return r.String() + "; " + strings.Join(misses, ", ")
}

// ambiguousProviders warns when a requirement of p could be met by a newer
// package of an incompatible architecture while an older package of p's own
// architecture family also provides it. The solver prefers the latter.
func ambiguousProviders(u *universe.Universe, p *models.Package) []models.Problem {
	if p.Arch == models.NoArch {
		return nil
	}
	var problems []models.Problem
	for _, req := range p.Requires {
		if req.Rich != nil || models.IsRPMLibDependency(req.Name) {
			continue
		}
		providers := u.WhatProvides(req)
		var foreign, native *models.Package
		for _, q := range providers {
			if models.SameArchFamily(p.Arch, q.Arch) {
				continue
			}
			best := newestNative(p, q.Name, providers)
			if best != nil && q.Version.Compare(best.Version) > 0 {
				foreign, native = q, best
				break
			}
		}
		if foreign == nil {
			continue
		}

		id := p.Identity()
		pr := models.NewProblem(models.ProblemAmbiguousProvider, id, fmt.Sprintf(
			"%s needed by %s is provided by %s and by older %s of a compatible architecture; preferring %s",
			req, p, foreign, native, native))
		pr.Subject = &id
		pr.Capability = req.String()
		pr.Related = []models.Identity{foreign.Identity(), native.Identity()}
		problems = append(problems, pr)
	}
	return problems
}

func newestNative(p *models.Package, name string, providers []*models.Package) *models.Package {
	var best *models.Package
	for _, o := range providers {
		if o.Name != name || !models.SameArchFamily(p.Arch, o.Arch) {
			continue
		}
		if best == nil || o.Version.Compare(best.Version) > 0 {
			best = o
		}
	}
	return best
}

// checkCombined asks for every candidate at once. Reasons are reported
// under the first candidate they involve.
func (c *Checker) checkCombined(ctx context.Context, u *universe.Universe) ([]models.Problem, error) {
	cands := c.binaryCandidates(u)
	if len(cands) == 0 {
		return nil, nil
	}

	var problems []models.Problem
	relax := make(map[*models.Package][]models.Capability)
	for _, p := range cands {
		short, r := c.shortCircuit(u, p)
		problems = append(problems, short...)
		relax[p] = r
	}

	res, err := c.solve(ctx, u, solver.Goal{Install: cands, Mode: solver.Combined, Relax: relax})
	if err != nil {
		return problems, err
	}
	for _, r := range res.Reasons {
		owner := cands[0]
		switch {
		case u.IsCandidate(r.Package):
			owner = r.Package
		case r.Other != nil && u.IsCandidate(r.Other):
			owner = r.Other
		}
		problems = append(problems, reasonProblem(owner, r))
	}
	return problems, nil
}
