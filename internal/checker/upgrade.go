package checker

import (
	"fmt"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/universe"
)

type requirer struct {
	pkg *models.Package
	req models.Capability
}

// checkUpgrades compares each candidate with its incumbent, the newest
// background package of the same name and arch.
func (c *Checker) checkUpgrades(u *universe.Universe) []models.Problem {
	cands := c.binaryCandidates(u)
	requirers := requirersByName(u)
	obsoleters := obsoletersByName(u)

	var problems []models.Problem
	for _, cand := range cands {
		problems = append(problems, obsoletedByRepository(cand, obsoleters)...)

		inc := u.Newest(cand.Name, cand.Arch, true)
		if inc == nil {
			continue
		}
		if cand.Version.Compare(inc.Version) <= 0 {
			pr := models.NewProblem(models.ProblemDowngradeOrEqual, cand.Identity(),
				fmt.Sprintf("%s would be upgraded by %s from repo %s", cand, inc, inc.Repo))
			pr.Related = []models.Identity{inc.Identity()}
			pr.Repo = inc.Repo
			problems = append(problems, pr)
			continue
		}
		problems = append(problems, stranded(u, cand, inc, requirers)...)
	}
	return problems
}

// stranded reports the background packages that need something inc
// provides which cand no longer does, and that nothing else provides.
func stranded(u *universe.Universe, cand, inc *models.Package, requirers map[string][]requirer) []models.Problem {
	names := []string{inc.Name}
	for _, prov := range inc.Provides {
		names = append(names, prov.Name)
	}
	for path := range inc.Files {
		if _, ok := requirers[path]; ok {
			names = append(names, path)
		}
	}

	var problems []models.Problem
	seen := make(map[string]bool)
	for _, name := range names {
		for _, r := range requirers[name] {
			d := r.pkg
			if d.Name == cand.Name && d.Arch == cand.Arch {
				continue
			}
			// Only the newest version of a dependent matters; older ones,
			// and those a newer candidate replaces, are not installed.
			if u.Newest(d.Name, d.Arch, false) != d {
				continue
			}
			key := d.Identity().Key() + "|" + r.req.String()
			if seen[key] {
				continue
			}
			seen[key] = true

			if !inc.ProvidesCapability(r.req) || cand.ProvidesCapability(r.req) {
				continue
			}
			if hasAlternative(u, cand, inc, r.req) {
				continue
			}

			dep := d.Identity()
			pr := models.NewProblem(models.ProblemWouldBreakUpgrade, cand.Identity(), fmt.Sprintf(
				"%s from repo %s requires %s, provided by %s but not by %s (%s -> %s)",
				d, d.Repo, r.req, inc, cand, inc.Version, cand.Version))
			pr.Subject = &dep
			pr.Related = []models.Identity{inc.Identity()}
			pr.Capability = r.req.String()
			pr.Repo = d.Repo
			problems = append(problems, pr)
		}
	}
	return problems
}

// hasAlternative reports whether something other than the packages the
// upgrade replaces still provides req.
func hasAlternative(u *universe.Universe, cand, inc *models.Package, req models.Capability) bool {
	for _, p := range u.WhatProvides(req) {
		if p == inc || p == cand {
			continue
		}
		if p.Name == cand.Name && p.Arch == cand.Arch {
			continue
		}
		return true
	}
	return false
}

// requirersByName indexes the simple requirements of background packages by
// capability name. Operands of rich "and" requirements count; alternatives
// of "or" do not, since another operand may still be met.
func requirersByName(u *universe.Universe) map[string][]requirer {
	out := make(map[string][]requirer)
	var add func(p *models.Package, req models.Capability)
	add = func(p *models.Package, req models.Capability) {
		if req.Rich == nil {
			if !models.IsRPMLibDependency(req.Name) {
				out[req.Name] = append(out[req.Name], requirer{pkg: p, req: req})
			}
			return
		}
		if req.Rich.Op == models.RichAnd {
			for _, op := range req.Rich.Operands {
				add(p, op)
			}
		}
	}
	for _, p := range u.Background() {
		if p.Source {
			continue
		}
		for _, req := range p.Requires {
			add(p, req)
		}
	}
	return out
}

func obsoletersByName(u *universe.Universe) map[string][]*models.Package {
	out := make(map[string][]*models.Package)
	for _, p := range u.Background() {
		for _, o := range p.Obsoletes {
			out[o.Name] = append(out[o.Name], p)
		}
	}
	return out
}

// obsoletedByRepository reports background packages that would replace
// cand on upgrade because they obsolete it.
func obsoletedByRepository(cand *models.Package, obsoleters map[string][]*models.Package) []models.Problem {
	var problems []models.Problem
	for _, p := range obsoleters[cand.Name] {
		if p.Name == cand.Name || !p.ObsoletesPackage(cand) {
			continue
		}
		pr := models.NewProblem(models.ProblemObsoletedByRepository, cand.Identity(),
			fmt.Sprintf("%s would be obsoleted by %s from repo %s", cand, p, p.Repo))
		pr.Related = []models.Identity{p.Identity()}
		pr.Repo = p.Repo
		problems = append(problems, pr)
	}
	return problems
}
