package checker

import (
	"context"
	"sort"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/universe"
)

// Dependencies is the set of packages installing one candidate pulls in,
// the candidate included.
type Dependencies struct {
	Package  models.Identity   `json:"package" yaml:"package"`
	Packages []models.Identity `json:"dependencies" yaml:"dependencies"`
}

// ListDependencies solves each candidate on its own and returns what it
// would install. Candidates that cannot be installed produce problems
// instead of a dependency set.
func (c *Checker) ListDependencies(ctx context.Context, u *universe.Universe) ([]Dependencies, []models.Problem, error) {
	cands := c.binaryCandidates(u)
	sets := make([]*Dependencies, len(cands))
	index := make(map[*models.Package]int, len(cands))
	for i, p := range cands {
		index[p] = i
	}

	problems, err := c.forEachCandidate(ctx, cands, func(ctx context.Context, p *models.Package) ([]models.Problem, error) {
		problems, selection, err := c.analyze(ctx, u, p, true)
		if err != nil || hasErrors(problems) {
			return problems, err
		}
		deps := &Dependencies{Package: p.Identity()}
		for _, s := range selection {
			deps.Packages = append(deps.Packages, s.Identity())
		}
		sort.Slice(deps.Packages, func(i, j int) bool {
			return deps.Packages[i].NEVRA() < deps.Packages[j].NEVRA()
		})
		sets[index[p]] = deps
		return problems, nil
	})

	var out []Dependencies
	for _, s := range sets {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, orderProblems(u, problems), err
}

func hasErrors(problems []models.Problem) bool {
	for _, p := range problems {
		if p.Severity == models.SeverityError {
			return true
		}
	}
	return false
}
