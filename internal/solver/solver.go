// Package solver answers "can these packages be installed together" over a
// universe. The search itself is delegated to an engine: gophersat in
// production, an exhaustive enumerator in tests.
package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/universe"
)

// DefaultMaxCores bounds the number of independent explanations collected
// for one unsatisfiable goal.
const DefaultMaxCores = 8

// Mode distinguishes per-candidate goals from the all-candidates goal.
type Mode int

const (
	Individual Mode = iota
	Combined
)

func (m Mode) String() string {
	if m == Combined {
		return "combined"
	}
	return "individual"
}

// Goal is one install question.
type Goal struct {
	Install []*models.Package
	Mode    Mode

	// Relax lists requirements to leave out of the question, typically
	// because the caller already reported them.
	Relax map[*models.Package][]models.Capability
}

// ReasonKind classifies why a goal cannot be met.
type ReasonKind int

const (
	// Unsatisfied: Package requires Capability and no provider can be
	// installed. Providers lists the ones that exist.
	Unsatisfied ReasonKind = iota
	// Conflict: Package declares a conflict matched by Other.
	Conflict
	// Obsolete: Package obsoletes Other.
	Obsolete
	// SameName: Package and Other are two versions of the same name and
	// arch and cannot both be installed.
	SameName
)

func (k ReasonKind) String() string {
	switch k {
	case Unsatisfied:
		return "unsatisfied"
	case Conflict:
		return "conflict"
	case Obsolete:
		return "obsolete"
	case SameName:
		return "same-name"
	default:
		return "unknown"
	}
}

// NearMiss is a package providing the right name with the wrong version.
type NearMiss struct {
	Package *models.Package
	Provide models.Capability
	Why     string
}

// Reason is one element of an explanation.
type Reason struct {
	Kind       ReasonKind
	Package    *models.Package
	Capability models.Capability
	Other      *models.Package
	Providers  []*models.Package
	NearMisses []NearMiss
}

func (r Reason) String() string {
	switch r.Kind {
	case Unsatisfied:
		if len(r.Providers) == 0 {
			return fmt.Sprintf("nothing provides %s needed by %s", r.Capability, r.Package)
		}
		return fmt.Sprintf("%s requires %s, but none of the providers can be installed", r.Package, r.Capability)
	case Conflict:
		return fmt.Sprintf("package %s conflicts with %s provided by %s", r.Package, r.Capability, r.Other)
	case Obsolete:
		return fmt.Sprintf("package %s obsoletes %s provided by %s", r.Package, r.Capability, r.Other)
	case SameName:
		return fmt.Sprintf("cannot install both %s and %s", r.Package, r.Other)
	default:
		return "unknown reason"
	}
}

func (r Reason) key() string {
	k := fmt.Sprintf("%d|%s|%s", r.Kind, r.Package.Identity().Key(), r.Capability)
	if r.Other != nil {
		k += "|" + r.Other.Identity().Key()
	}
	return k
}

// Result is the answer to a goal: a selection when it can be met, reasons
// otherwise.
type Result struct {
	Selection []*models.Package
	Reasons   []Reason
}

// Satisfiable reports whether the goal can be met.
func (r *Result) Satisfiable() bool { return len(r.Reasons) == 0 }

// Solver answers install questions. Implementations are deterministic: the
// same universe and goal give the same result. Structural failures are
// returned as errors, never as reasons.
type Solver interface {
	Solve(ctx context.Context, u *universe.Universe, g Goal) (*Result, error)
}

// engine decides satisfiability of a CNF formula over variables 1..nvars.
// A literal is a variable number, negated for negative literals. The model
// is indexed by variable number.
type engine interface {
	name() string
	solve(ctx context.Context, nvars int, clauses [][]int) (model []bool, ok bool, err error)
}

type solver struct {
	engine   engine
	maxCores int
	log      logrus.FieldLogger
}

// Option configures a solver.
type Option func(*solver)

// WithMaxCores sets how many independent explanations are collected.
func WithMaxCores(n int) Option {
	return func(s *solver) {
		if n > 0 {
			s.maxCores = n
		}
	}
}

// WithLogger sets the logger used for debug traces.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *solver) { s.log = log }
}

func newSolver(e engine, opts ...Option) *solver {
	s := &solver{engine: e, maxCores: DefaultMaxCores, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Solve implements Solver.
func (s *solver) Solve(ctx context.Context, u *universe.Universe, g Goal) (*Result, error) {
	if err := validate(u, g); err != nil {
		return nil, models.NewCheckError(models.ErrSolver, "", err)
	}

	f := encode(u, g)
	s.log.WithFields(logrus.Fields{
		"engine":   s.engine.name(),
		"mode":     g.Mode,
		"goal":     len(g.Install),
		"packages": len(f.pkgs),
		"rules":    len(f.rules),
	}).Debug("Solving")

	_, ok, err := s.engine.solve(ctx, len(f.pkgs), f.clauses(f.goals, f.rules))
	if err != nil {
		return nil, wrapEngineError(err)
	}
	if ok {
		sel, err := s.selection(ctx, f)
		if err != nil {
			return nil, wrapEngineError(err)
		}
		return &Result{Selection: sel}, nil
	}

	reasons, err := s.explain(ctx, u, f)
	if err != nil {
		return nil, wrapEngineError(err)
	}
	return &Result{Reasons: reasons}, nil
}

func validate(u *universe.Universe, g Goal) error {
	if len(g.Install) == 0 {
		return fmt.Errorf("empty goal")
	}
	for _, p := range g.Install {
		if p == nil {
			return fmt.Errorf("nil package in goal")
		}
		got, ok := u.Lookup(p.Identity())
		if !ok || got != p {
			return fmt.Errorf("goal package %s is not part of the universe", p)
		}
	}
	return nil
}

func wrapEngineError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return models.NewCheckError(models.ErrSolver, "", err)
}
