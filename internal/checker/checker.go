package checker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/solver"
	"github.com/ralt/depcheck/internal/source"
	"github.com/ralt/depcheck/internal/universe"
)

// Name identifies a check.
type Name string

const (
	Dependency    Name = "dependency"
	Conflicts     Name = "conflicts"
	FileConflicts Name = "file-conflicts"
	Upgrade       Name = "upgrade"
)

// AllChecks lists every check in reporting order.
var AllChecks = []Name{Dependency, Conflicts, FileConflicts, Upgrade}

// ParseNames validates check names given on the command line or in the
// config file.
func ParseNames(names []string) ([]Name, error) {
	out := make([]Name, 0, len(names))
	for _, n := range names {
		found := false
		for _, c := range AllChecks {
			if string(c) == n {
				out = append(out, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown check %q (valid: dependency, conflicts, file-conflicts, upgrade)", n)
		}
	}
	return out, nil
}

// FileScope selects which packages candidates' files are compared against.
type FileScope int

const (
	// ScopeUniverse compares candidates with each other and with every
	// background package.
	ScopeUniverse FileScope = iota
	// ScopeCandidates only compares candidates with each other.
	ScopeCandidates
)

// ManifestResolver fetches a package's complete file manifest, with
// digests, when the loaded metadata only lists paths.
type ManifestResolver interface {
	ResolveManifest(ctx context.Context, p *models.Package) (map[string]models.FileEntry, error)
}

// Options configures a Checker.
type Options struct {
	// Checks run when none are given explicitly. Empty means all.
	Checks []Name
	// Jobs bounds per-candidate concurrency. Zero means one per CPU.
	Jobs int
	// Arch is the target architecture used when Check builds a universe.
	Arch string

	Manifests ManifestResolver
	FileScope FileScope
	Metrics   *Metrics
	Logger    logrus.FieldLogger
}

// Checker runs checks over a universe. It holds no per-run state and may be
// reused.
type Checker struct {
	solver  solver.Solver
	opts    Options
	log     logrus.FieldLogger
	metrics *Metrics
}

// New returns a Checker driving s.
func New(s solver.Solver, opts Options) *Checker {
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Checker{solver: s, opts: opts, log: opts.Logger, metrics: opts.Metrics}
}

// Check loads the repositories, builds the universe and runs checks over
// candidates. Loading and building failures are fatal. Problems found
// before a fatal check error are still returned alongside it.
func (c *Checker) Check(ctx context.Context, candidates []*models.Package, repos []source.Source, checks []Name) ([]models.Problem, error) {
	backgrounds, err := LoadSources(ctx, repos, c.opts.Jobs)
	if err != nil {
		return nil, err
	}
	u, err := universe.Build(candidates, backgrounds, universe.Options{Arch: c.opts.Arch, Logger: c.log})
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, u, checks...)
}

// LoadSources drains every source concurrently, keeping their order.
func LoadSources(ctx context.Context, repos []source.Source, jobs int) ([][]*models.Package, error) {
	backgrounds := make([][]*models.Package, len(repos))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, repo := range repos {
		g.Go(func() error {
			pkgs, err := source.Collect(gctx, repo)
			if err != nil {
				return fmt.Errorf("loading %s: %w", repo.Name(), err)
			}
			backgrounds[i] = pkgs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return backgrounds, nil
}

// Run executes the checks concurrently over a built universe and returns
// the de-duplicated, ordered problems. Fatal errors of individual
// candidates or checks are joined into the returned error; the problems of
// everything that completed are returned with it.
func (c *Checker) Run(ctx context.Context, u *universe.Universe, checks ...Name) ([]models.Problem, error) {
	checks = c.selected(checks)
	results := make([][]models.Problem, len(checks))
	fatal := make([]error, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range checks {
		g.Go(func() error {
			start := time.Now()
			problems, err := c.runCheck(gctx, u, name)
			c.metrics.observeCheck(name, time.Since(start))
			c.log.WithFields(logrus.Fields{
				"check":    name,
				"problems": len(problems),
				"elapsed":  time.Since(start).Round(time.Millisecond),
			}).Debug("Check finished")

			results[i] = problems
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				fatal[i] = fmt.Errorf("%s check: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.Problem
	for _, r := range results {
		all = append(all, r...)
	}
	problems := orderProblems(u, all)
	c.metrics.countProblems(problems)
	return problems, errors.Join(fatal...)
}

func (c *Checker) selected(checks []Name) []Name {
	if len(checks) == 0 {
		checks = c.opts.Checks
	}
	if len(checks) == 0 {
		return AllChecks
	}
	want := make(map[Name]bool, len(checks))
	for _, n := range checks {
		want[n] = true
	}
	var out []Name
	for _, n := range AllChecks {
		if want[n] {
			out = append(out, n)
		}
	}
	return out
}

func (c *Checker) runCheck(ctx context.Context, u *universe.Universe, name Name) ([]models.Problem, error) {
	switch name {
	case Dependency:
		return c.checkDependencies(ctx, u)
	case Conflicts:
		return c.checkCombined(ctx, u)
	case FileConflicts:
		return c.checkFileConflicts(ctx, u)
	case Upgrade:
		return c.checkUpgrades(u), nil
	default:
		return nil, models.NewCheckError(models.ErrInvalidConfig, "", fmt.Errorf("unknown check %q", name))
	}
}

// binaryCandidates returns the candidates checks apply to. Source packages
// are never installed and are left out.
func (c *Checker) binaryCandidates(u *universe.Universe) []*models.Package {
	var out []*models.Package
	for _, p := range u.Candidates() {
		if p.Source {
			c.log.WithField("package", p.NEVRA()).Debug("Skipping source package")
			continue
		}
		out = append(out, p)
	}
	return out
}

// forEachCandidate runs fn for every candidate with at most Jobs running at
// once. Failures are isolated to their candidate; they are joined and
// returned once every candidate has been processed.
func (c *Checker) forEachCandidate(ctx context.Context, cands []*models.Package, fn func(ctx context.Context, p *models.Package) ([]models.Problem, error)) ([]models.Problem, error) {
	results := make([][]models.Problem, len(cands))
	fatal := make([]error, len(cands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Jobs)
	for i, p := range cands {
		g.Go(func() error {
			problems, err := fn(gctx, p)
			results[i] = problems
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				c.log.WithField("package", p.NEVRA()).WithError(err).Error("Check failed")
				fatal[i] = err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.Problem
	for _, r := range results {
		all = append(all, r...)
	}
	return all, errors.Join(fatal...)
}

func (c *Checker) solve(ctx context.Context, u *universe.Universe, g solver.Goal) (*solver.Result, error) {
	c.metrics.solverCall(g.Mode.String())
	return c.solver.Solve(ctx, u, g)
}

// withPackage attributes a solver error to a package.
func withPackage(err error, p *models.Package) error {
	var cerr *models.CheckError
	if errors.As(err, &cerr) && cerr.Package == "" {
		return models.NewCheckError(cerr.Type, p.NEVRA(), cerr.Err)
	}
	return err
}
