package checker

import (
	"sort"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/universe"
)

// orderProblems drops duplicates, keeping the first occurrence with the
// dependents of the others merged in, and orders
// the rest by candidate input order, then kind. Problems of equal rank stay
// in discovery order.
func orderProblems(u *universe.Universe, problems []models.Problem) []models.Problem {
	seen := make(map[string]int, len(problems))
	out := make([]models.Problem, 0, len(problems))
	for _, p := range problems {
		k := p.Key()
		if i, ok := seen[k]; ok {
			out[i].Merge(p)
			continue
		}
		seen[k] = len(out)
		out = append(out, p)
	}

	rank := func(p models.Problem) int {
		if pkg, ok := u.Lookup(p.Package); ok {
			if i, ok := u.CandidateIndex(pkg); ok {
				return i
			}
		}
		return len(u.Candidates())
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
