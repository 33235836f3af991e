package universe

import "github.com/ralt/depcheck/internal/models"

// Packages returns every package in the universe, candidates first, then
// background packages in repository order.
func (u *Universe) Packages() []*models.Package { return u.packages }

// Candidates returns the packages under test in input order.
func (u *Universe) Candidates() []*models.Package { return u.candidates }

// Background returns the published packages that were not shadowed.
func (u *Universe) Background() []*models.Package { return u.background }

// IsCandidate reports whether p is one of the packages under test.
func (u *Universe) IsCandidate(p *models.Package) bool {
	_, ok := u.candidateIndex[p]
	return ok
}

// CandidateIndex returns the input position of a candidate.
func (u *Universe) CandidateIndex(p *models.Package) (int, bool) {
	i, ok := u.candidateIndex[p]
	return i, ok
}

// Lookup returns the package with the given identity, if any.
func (u *Universe) Lookup(id models.Identity) (*models.Package, bool) {
	p, ok := u.byIdentity[id.Key()]
	return p, ok
}

// ByName returns all packages called name, whatever their arch.
func (u *Universe) ByName(name string) []*models.Package { return u.byName[name] }

// Versions returns the packages with the given name and arch, highest
// version first.
func (u *Universe) Versions(name, arch string) []*models.Package {
	return u.byNameArch[nameArchKey(name, arch)]
}

// Newest returns the highest version of name.arch. With backgroundOnly set
// candidates are ignored, which gives the incumbent of a candidate.
func (u *Universe) Newest(name, arch string, backgroundOnly bool) *models.Package {
	for _, p := range u.Versions(name, arch) {
		if backgroundOnly && u.IsCandidate(p) {
			continue
		}
		return p
	}
	return nil
}

// ProvidersByName returns every package that provides something called
// name, whatever the version, including owners of the path when name is a
// file path.
func (u *Universe) ProvidersByName(name string) []*models.Package {
	pkgs := u.providers[name]
	if len(name) == 0 || name[0] != '/' {
		return pkgs
	}
	return union(pkgs, u.owners(name))
}

// WhatProvides returns the packages that satisfy c in a stable order. For a
// rich dependency it returns the providers of any of its operands.
func (u *Universe) WhatProvides(c models.Capability) []*models.Package {
	if c.Rich != nil {
		var all []*models.Package
		for _, leaf := range c.Leaves() {
			all = union(all, u.WhatProvides(leaf))
		}
		return all
	}

	var out []*models.Package
	for _, p := range u.ProvidersByName(c.Name) {
		if p.ProvidesCapability(c) {
			out = append(out, p)
		}
	}
	return out
}

// owners returns the packages shipping path. Paths that no package
// requires are not indexed and fall back to a scan.
func (u *Universe) owners(path string) []*models.Package {
	if u.requiredPaths[path] {
		return u.fileOwners[path]
	}
	var out []*models.Package
	for _, p := range u.packages {
		if p.Source {
			continue
		}
		if _, ok := p.Files[path]; ok {
			out = append(out, p)
		}
	}
	return out
}

// union merges two package lists without duplicates, keeping the order of
// a followed by the new entries of b.
func union(a, b []*models.Package) []*models.Package {
	if len(b) == 0 {
		return a
	}
	seen := make(map[*models.Package]bool, len(a)+len(b))
	out := make([]*models.Package, 0, len(a)+len(b))
	for _, p := range a {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range b {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
