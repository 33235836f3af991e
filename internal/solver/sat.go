package solver

import (
	"context"
	"strconv"

	"github.com/crillab/gophersat/bf"
)

// NewSAT returns the production solver, backed by gophersat.
func NewSAT(opts ...Option) Solver {
	return newSolver(satEngine{}, opts...)
}

type satEngine struct{}

func (satEngine) name() string { return "gophersat" }

func varName(v int) string { return "p" + strconv.Itoa(v) }

// solve runs gophersat on its own goroutine. A cancelled context abandons
// the computation; the goroutine finishes in the background and its answer
// is dropped.
func (satEngine) solve(ctx context.Context, nvars int, clauses [][]int) ([]bool, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	f := toFormula(clauses)
	type answer struct {
		model map[string]bool
	}
	done := make(chan answer, 1)
	go func() {
		done <- answer{model: bf.Solve(f)}
	}()

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case a := <-done:
		if a.model == nil {
			return nil, false, nil
		}
		model := make([]bool, nvars+1)
		for v := 1; v <= nvars; v++ {
			model[v] = a.model[varName(v)]
		}
		return model, true, nil
	}
}

func toFormula(clauses [][]int) bf.Formula {
	if len(clauses) == 0 {
		return bf.True
	}
	ands := make([]bf.Formula, 0, len(clauses))
	for _, c := range clauses {
		ors := make([]bf.Formula, 0, len(c))
		for _, lit := range c {
			if lit < 0 {
				ors = append(ors, bf.Not(bf.Var(varName(-lit))))
			} else {
				ors = append(ors, bf.Var(varName(lit)))
			}
		}
		switch len(ors) {
		case 0:
			return bf.False
		case 1:
			ands = append(ands, ors[0])
		default:
			ands = append(ands, bf.Or(ors...))
		}
	}
	if len(ands) == 1 {
		return ands[0]
	}
	return bf.And(ands...)
}
