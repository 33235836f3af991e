package solver

import (
	"context"
	"fmt"
)

// DefaultBruteForceLimit is the largest closure NewBruteForce accepts when
// no limit is given.
const DefaultBruteForceLimit = 20

// NewBruteForce returns a reference solver that enumerates every
// assignment. It is meant for small test universes; closures with more than
// limit packages fail with a solver error.
func NewBruteForce(limit int, opts ...Option) Solver {
	if limit <= 0 {
		limit = DefaultBruteForceLimit
	}
	return newSolver(bruteForce{limit: limit}, opts...)
}

type bruteForce struct {
	limit int
}

func (bruteForce) name() string { return "brute-force" }

func (b bruteForce) solve(ctx context.Context, nvars int, clauses [][]int) ([]bool, bool, error) {
	if nvars > b.limit {
		return nil, false, fmt.Errorf("closure of %d packages exceeds the brute-force limit of %d", nvars, b.limit)
	}

	model := make([]bool, nvars+1)
	isSet := func(v int) bool { return model[v] }
	for mask := uint64(0); mask < uint64(1)<<nvars; mask++ {
		if mask&0x3ff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
		}
		for v := 1; v <= nvars; v++ {
			model[v] = mask&(1<<(v-1)) != 0
		}
		ok := true
		for _, c := range clauses {
			if !satisfied(c, isSet) {
				ok = false
				break
			}
		}
		if ok {
			return model, true, nil
		}
	}
	return nil, false, nil
}
