package universe

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ralt/depcheck/internal/models"
)

// Options configures Build.
type Options struct {
	// Arch restricts background packages to those installable on this
	// architecture. Empty keeps everything.
	Arch string

	Logger logrus.FieldLogger
}

// Universe is the read-only pool of candidates and background packages a
// check reasons over. It is built once by Build and never modified, so it
// may be shared by concurrent checkers without locking.
type Universe struct {
	packages   []*models.Package
	candidates []*models.Package
	background []*models.Package

	candidateIndex map[*models.Package]int
	byIdentity     map[string]*models.Package

	// capability name to packages providing it, self-provides included
	providers map[string][]*models.Package
	// required file path to packages shipping it
	fileOwners    map[string][]*models.Package
	requiredPaths map[string]bool
	byName        map[string][]*models.Package
	// name and arch to packages, highest version first
	byNameArch map[string][]*models.Package
}

// Build merges candidates with background package sets into a universe.
//
// backgrounds is one slice per repository in precedence order: when two
// repositories carry the same identity the first one wins. A background
// package with the identity of a candidate is shadowed by the candidate.
// Two candidates with the same identity are a fatal error.
func Build(candidates []*models.Package, backgrounds [][]*models.Package, opts Options) (*Universe, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	u := &Universe{
		candidateIndex: make(map[*models.Package]int, len(candidates)),
		byIdentity:     make(map[string]*models.Package),
		providers:      make(map[string][]*models.Package),
		fileOwners:     make(map[string][]*models.Package),
		byName:         make(map[string][]*models.Package),
		byNameArch:     make(map[string][]*models.Package),
	}

	for _, p := range candidates {
		key := p.Identity().Key()
		if prev, ok := u.byIdentity[key]; ok {
			return nil, models.NewCheckError(models.ErrDuplicateCandidate, p.NEVRA(),
				fmt.Errorf("candidates %s and %s have the same identity", describe(prev), describe(p)))
		}
		u.byIdentity[key] = p
		u.candidateIndex[p] = len(u.candidates)
		u.candidates = append(u.candidates, p)
	}

	var skippedArch int
	for _, repo := range backgrounds {
		for _, p := range repo {
			if !p.Source && !models.ArchCompatible(opts.Arch, p.Arch) {
				skippedArch++
				continue
			}
			key := p.Identity().Key()
			if prev, ok := u.byIdentity[key]; ok {
				if _, isCandidate := u.candidateIndex[prev]; isCandidate {
					log.WithField("package", p.NEVRA()).Debugf("Candidate shadows package from repo %s", p.Repo)
				} else {
					log.WithField("package", p.NEVRA()).Debugf("Ignoring duplicate from repo %s, already loaded from %s", p.Repo, prev.Repo)
				}
				continue
			}
			u.byIdentity[key] = p
			u.background = append(u.background, p)
		}
	}
	if skippedArch > 0 {
		log.Debugf("Skipped %d background packages not installable on %s", skippedArch, opts.Arch)
	}

	u.packages = make([]*models.Package, 0, len(u.candidates)+len(u.background))
	u.packages = append(u.packages, u.candidates...)
	u.packages = append(u.packages, u.background...)
	u.index()

	log.Debugf("Universe ready: %d candidates, %d background packages, %d capability names",
		len(u.candidates), len(u.background), len(u.providers))
	return u, nil
}

func describe(p *models.Package) string {
	if p.Location != "" {
		return p.Location
	}
	return p.NEVRA()
}

func nameArchKey(name, arch string) string { return name + "." + arch }

// index fills every lookup table. It runs once, before the universe is
// returned to callers.
func (u *Universe) index() {
	requiredPaths := make(map[string]bool)
	u.requiredPaths = requiredPaths
	for _, p := range u.packages {
		for _, r := range p.Requires {
			for _, leaf := range r.Leaves() {
				if leaf.IsFile() {
					requiredPaths[leaf.Name] = true
				}
			}
		}
	}

	for _, p := range u.packages {
		u.byName[p.Name] = append(u.byName[p.Name], p)
		na := nameArchKey(p.Name, p.Arch)
		u.byNameArch[na] = append(u.byNameArch[na], p)

		if p.Source {
			continue
		}
		seen := map[string]bool{p.Name: true}
		u.providers[p.Name] = append(u.providers[p.Name], p)
		for _, prov := range p.Provides {
			if seen[prov.Name] {
				continue
			}
			seen[prov.Name] = true
			u.providers[prov.Name] = append(u.providers[prov.Name], p)
		}
		for path := range p.Files {
			if requiredPaths[path] {
				u.fileOwners[path] = append(u.fileOwners[path], p)
			}
		}
	}

	for _, pkgs := range u.byNameArch {
		sort.SliceStable(pkgs, func(i, j int) bool {
			return pkgs[i].Version.Compare(pkgs[j].Version) > 0
		})
	}
}
