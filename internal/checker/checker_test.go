package checker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/solver"
	"github.com/ralt/depcheck/internal/source"
	"github.com/ralt/depcheck/internal/universe"
)

// countingSolver records how often the wrapped solver is asked.
type countingSolver struct {
	inner solver.Solver
	calls atomic.Int32
}

func (s *countingSolver) Solve(ctx context.Context, u *universe.Universe, g solver.Goal) (*solver.Result, error) {
	s.calls.Add(1)
	return s.inner.Solve(ctx, u, g)
}

// failingSolver fails for one package and defers to the SAT solver
// otherwise.
type failingSolver struct {
	name string
}

func (s failingSolver) Solve(ctx context.Context, u *universe.Universe, g solver.Goal) (*solver.Result, error) {
	for _, p := range g.Install {
		if p.Name == s.name {
			return nil, models.NewCheckError(models.ErrSolver, "", errors.New("malformed goal"))
		}
	}
	return solver.NewSAT().Solve(ctx, u, g)
}

type pkgSpec struct {
	name, arch, evr string
	provides        []string
	requires        []string
	conflicts       []string
	obsoletes       []string
	files           map[string]string
}

func mk(s pkgSpec) *models.Package {
	p := &models.Package{Name: s.name, Arch: s.arch, Version: models.MustParseVersion(s.evr)}
	if p.Arch == "" {
		p.Arch = "x86_64"
	}
	for _, c := range s.provides {
		p.Provides = append(p.Provides, models.MustParseCapability(c))
	}
	for _, c := range s.requires {
		p.Requires = append(p.Requires, models.MustParseCapability(c))
	}
	for _, c := range s.conflicts {
		p.Conflicts = append(p.Conflicts, models.MustParseCapability(c))
	}
	for _, c := range s.obsoletes {
		p.Obsoletes = append(p.Obsoletes, models.MustParseCapability(c))
	}
	if s.files != nil {
		p.Files = make(map[string]models.FileEntry, len(s.files))
		for path, digest := range s.files {
			switch digest {
			case "dir":
				p.Files[path] = models.FileEntry{Kind: models.FileDir}
			case "ghost":
				p.Files[path] = models.FileEntry{Kind: models.FileGhost}
			default:
				p.Files[path] = models.FileEntry{Digest: digest}
			}
		}
	}
	return p
}

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func build(t *testing.T, candidates []*models.Package, background ...*models.Package) *universe.Universe {
	t.Helper()
	for _, p := range background {
		if p.Repo == "" {
			p.Repo = "base"
		}
	}
	u, err := universe.Build(candidates, [][]*models.Package{background}, universe.Options{Logger: quietLogger()})
	require.NoError(t, err)
	return u
}

func newChecker(s solver.Solver) *Checker {
	return New(s, Options{Jobs: 4, Logger: quietLogger()})
}

func kinds(problems []models.Problem) []models.ProblemKind {
	out := make([]models.ProblemKind, 0, len(problems))
	for _, p := range problems {
		out = append(out, p.Kind)
	}
	return out
}

func TestShortCircuitSkipsSolver(t *testing.T) {
	cand := mk(pkgSpec{name: "widget", evr: "1.0-1", requires: []string{"missing-thing"}})
	u := build(t, []*models.Package{cand})

	s := &countingSolver{inner: solver.NewSAT()}
	reg := prometheus.NewRegistry()
	c := New(s, Options{Metrics: NewMetrics(reg), Logger: quietLogger()})

	problems, err := c.Run(context.Background(), u, Dependency)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, models.ProblemUnsatisfiedDependency, problems[0].Kind)
	assert.Equal(t, "missing-thing", problems[0].Capability)
	assert.Equal(t, "nothing provides missing-thing needed by widget-1.0-1.x86_64", problems[0].Detail)
	assert.Equal(t, int32(0), s.calls.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.ShortCircuits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.Problems.WithLabelValues("unsatisfied-dependency")))
}

func TestDependencyDelegatesToSolver(t *testing.T) {
	cand := mk(pkgSpec{name: "app", evr: "1-1", requires: []string{"libbar >= 2.0", "gone"}})
	bar := mk(pkgSpec{name: "libbar", evr: "1.5-1"})
	u := build(t, []*models.Package{cand}, bar)

	s := &countingSolver{inner: solver.NewSAT()}
	problems, err := newChecker(s).Run(context.Background(), u, Dependency)
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.calls.Load())
	require.Len(t, problems, 2)

	assert.Equal(t, "gone", problems[0].Capability)
	assert.Equal(t, "libbar >= 2.0", problems[1].Capability)
	assert.Contains(t, problems[1].Detail, "libbar-1.5-1.x86_64 provides libbar = 1.5-1 (version too low)")
}

func TestDependencyDeduplicatesRootCause(t *testing.T) {
	a := mk(pkgSpec{name: "a", evr: "1-1", requires: []string{"common"}})
	b := mk(pkgSpec{name: "b", evr: "1-1", requires: []string{"common"}})
	common := mk(pkgSpec{name: "common", evr: "1-1", requires: []string{"libmissing >= 2"}})
	old := mk(pkgSpec{name: "libmissing", evr: "1-1"})
	u := build(t, []*models.Package{a, b}, common, old)

	problems, err := newChecker(solver.NewSAT()).Run(context.Background(), u, Dependency)
	require.NoError(t, err)
	require.Len(t, problems, 2)
	for i, name := range []string{"a-1-1.x86_64", "b-1-1.x86_64"} {
		assert.Equal(t, name, problems[i].Package.NEVRA())
		assert.Equal(t, "common-1-1.x86_64", problems[i].Subject.NEVRA())
		assert.Equal(t, "libmissing >= 2", problems[i].Capability)
	}
}

func TestDependencyMergesDependentsOfOneCause(t *testing.T) {
	a := mk(pkgSpec{name: "a", evr: "1-1", requires: []string{"c1", "c2"}})
	c1 := mk(pkgSpec{name: "c1", evr: "1-1", requires: []string{"libx >= 2"}})
	c2 := mk(pkgSpec{name: "c2", evr: "1-1", requires: []string{"libx >= 2"}})
	libx := mk(pkgSpec{name: "libx", evr: "1-1"})
	u := build(t, []*models.Package{a}, c1, c2, libx)

	problems, err := newChecker(solver.NewSAT()).Run(context.Background(), u, Dependency)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "a-1-1.x86_64", problems[0].Package.NEVRA())
	assert.Equal(t, "libx >= 2", problems[0].Capability)
	assert.Equal(t, []models.Identity{c1.Identity(), c2.Identity()}, problems[0].Dependents)
}

func TestDependencyConditionalRichRequirement(t *testing.T) {
	bounded := "(crate(serde) >= 1.0 with crate(serde) < 2.0)"
	tests := []struct {
		name       string
		requires   []string
		background []*models.Package
		missing    string
	}{
		{
			name:     "with and nothing provides",
			requires: []string{bounded},
			missing:  models.MustParseCapability(bounded).String(),
		},
		{
			name:       "with and provider out of range",
			requires:   []string{bounded},
			background: []*models.Package{mk(pkgSpec{name: "rust-serde", evr: "2.1-1", provides: []string{"crate(serde) = 2.1"}})},
			missing:    models.MustParseCapability(bounded).String(),
		},
		{
			name:       "with and provider in range",
			requires:   []string{bounded},
			background: []*models.Package{mk(pkgSpec{name: "rust-serde", evr: "1.0.200-1", provides: []string{"crate(serde) = 1.0.200"}})},
		},
		{
			name:       "if with its condition required",
			requires:   []string{"gui", "(docs if gui)"},
			background: []*models.Package{mk(pkgSpec{name: "gui", evr: "1-1"})},
			missing:    "docs",
		},
		{
			name:       "if with its condition optional",
			requires:   []string{"(docs if gui)"},
			background: []*models.Package{mk(pkgSpec{name: "gui", evr: "1-1"})},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := mk(pkgSpec{name: "app", evr: "1-1", requires: tt.requires})
			u := build(t, []*models.Package{cand}, tt.background...)
			problems, err := newChecker(solver.NewSAT()).Run(context.Background(), u, Dependency)
			require.NoError(t, err)
			if tt.missing == "" {
				assert.Empty(t, problems)
				return
			}
			require.Len(t, problems, 1)
			assert.Equal(t, models.ProblemUnsatisfiedDependency, problems[0].Kind)
			assert.Equal(t, tt.missing, problems[0].Capability)
		})
	}
}

func TestCombinedCandidateConflict(t *testing.T) {
	a := mk(pkgSpec{name: "a", evr: "1-1", conflicts: []string{"b"}})
	b := mk(pkgSpec{name: "b", evr: "1-1"})
	u := build(t, []*models.Package{a, b})
	c := newChecker(solver.NewSAT())

	problems, err := c.Run(context.Background(), u, Dependency)
	require.NoError(t, err)
	assert.Empty(t, problems)

	problems, err = c.Run(context.Background(), u, Conflicts)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, models.ProblemConflictingPackages, problems[0].Kind)
	assert.Equal(t, "a-1-1.x86_64", problems[0].Package.NEVRA())
	assert.Equal(t, []models.Identity{b.Identity()}, problems[0].Related)
}

func TestFileConflictIdenticalContent(t *testing.T) {
	a := mk(pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/usr/share/doc/LICENSE": "abc"}})
	b := mk(pkgSpec{name: "b", evr: "1-1", files: map[string]string{"/usr/share/doc/LICENSE": "abc"}})
	u := build(t, []*models.Package{a}, b)

	problems, err := newChecker(solver.NewSAT()).Run(context.Background(), u, FileConflicts)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestFileConflictDifferentContent(t *testing.T) {
	a := mk(pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/usr/share/doc/LICENSE": "abc"}})
	b := mk(pkgSpec{name: "b", evr: "1-1", files: map[string]string{"/usr/share/doc/LICENSE": "def"}})
	u := build(t, []*models.Package{a}, b)

	problems, err := newChecker(solver.NewSAT()).Run(context.Background(), u, FileConflicts)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "/usr/share/doc/LICENSE", problems[0].Path)
	assert.Equal(t, "a-1-1.x86_64 provides /usr/share/doc/LICENSE which is also provided by b-1-1.x86_64", problems[0].Detail)
}

func TestFileConflictBetweenCandidatesReportedOnce(t *testing.T) {
	a := mk(pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/etc/x.conf": "1"}})
	b := mk(pkgSpec{name: "b", evr: "1-1", files: map[string]string{"/etc/x.conf": "2"}})
	u := build(t, []*models.Package{a, b})

	c := New(solver.NewSAT(), Options{FileScope: ScopeCandidates, Logger: quietLogger()})
	problems, err := c.Run(context.Background(), u, FileConflicts)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "a", problems[0].Package.Name)
}

func TestFileConflictMovedToSubpackage(t *testing.T) {
	foo := mk(pkgSpec{name: "foo", evr: "2-1", requires: []string{"foo-tools"}})
	tools := mk(pkgSpec{name: "foo-tools", evr: "2-1", files: map[string]string{"/usr/bin/x": "B"}})
	incumbent := mk(pkgSpec{name: "foo", evr: "1-1", files: map[string]string{"/usr/bin/x": "A"}})
	other := mk(pkgSpec{name: "bar", evr: "1-1", files: map[string]string{"/usr/bin/x": "C"}})

	u := build(t, []*models.Package{foo, tools}, incumbent)
	problems, err := newChecker(solver.NewSAT()).Run(context.Background(), u, FileConflicts)
	require.NoError(t, err)
	assert.Empty(t, problems)

	u = build(t, []*models.Package{foo, tools}, incumbent, other)
	problems, err = newChecker(solver.NewSAT()).Run(context.Background(), u, FileConflicts)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, []models.Identity{other.Identity()}, problems[0].Related)
}

func TestFileConflictExemptions(t *testing.T) {
	tests := []struct {
		name  string
		cand  pkgSpec
		other pkgSpec
	}{
		{
			name:  "directories",
			cand:  pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/usr/share/foo": "dir"}},
			other: pkgSpec{name: "b", evr: "1-1", files: map[string]string{"/usr/share/foo": "dir"}},
		},
		{
			name:  "multilib pair",
			cand:  pkgSpec{name: "libx", arch: "x86_64", evr: "1-1", files: map[string]string{"/usr/share/libx/data": "1"}},
			other: pkgSpec{name: "libx", arch: "i686", evr: "1-1", files: map[string]string{"/usr/share/libx/data": "2"}},
		},
		{
			name:  "upgrade of the same package",
			cand:  pkgSpec{name: "a", evr: "2-1", files: map[string]string{"/usr/bin/a": "new"}},
			other: pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/usr/bin/a": "old"}},
		},
		{
			name:  "obsoletes",
			cand:  pkgSpec{name: "b", evr: "1-1", obsoletes: []string{"a < 2"}, files: map[string]string{"/usr/bin/a": "new"}},
			other: pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/usr/bin/a": "old"}},
		},
		{
			name:  "declared conflict",
			cand:  pkgSpec{name: "b", evr: "1-1", conflicts: []string{"a"}, files: map[string]string{"/usr/bin/a": "new"}},
			other: pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/usr/bin/a": "old"}},
		},
		{
			name:  "ghost",
			cand:  pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/var/log/a.log": "ghost"}},
			other: pkgSpec{name: "b", evr: "1-1", files: map[string]string{"/var/log/a.log": "x"}},
		},
		{
			name:  "build-id directory",
			cand:  pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/usr/lib/.build-id/0a": "1"}},
			other: pkgSpec{name: "b", evr: "1-1", files: map[string]string{"/usr/lib/.build-id/0a": "2"}},
		},
		{
			name:  "unknown content",
			cand:  pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/usr/bin/x": "1"}},
			other: pkgSpec{name: "b", evr: "1-1", files: map[string]string{"/usr/bin/x": ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := build(t, []*models.Package{mk(tt.cand)}, mk(tt.other))
			problems, err := newChecker(solver.NewSAT()).Run(context.Background(), u, FileConflicts)
			require.NoError(t, err)
			assert.Empty(t, problems)
		})
	}
}

func TestOwnedByMany(t *testing.T) {
	for _, p := range []string{
		"/usr/lib/.build-id", "/usr/lib/.build-id/df", "/usr/lib/.build-id/0a",
		"/usr/lib/debug/.build-id/ab", "/usr/lib/debug", "/usr/lib/debug/bin",
		"/usr/lib/debug/sbin", "/usr/lib/debug/lib", "/usr/lib/debug/lib64",
		"/usr/lib/debug/.dwz", "/usr/lib/debug/usr", "/usr/lib/debug/usr/bin",
		"/usr/lib/debug/usr/sbin", "/usr/lib/debug/usr/lib", "/usr/lib/debug/usr/lib64",
	} {
		assert.True(t, ownedByMany(p), p)
	}
	for _, p := range []string{
		"/usr/lib/.build-id/0A", "/usr/lib/.build-id/0g",
		"/usr/lib/.build-id/0a/583dc4e283975c4e72c30104aba0541133e4e6",
		"/usr/lib/not-build-id/34", "/usr/lib",
	} {
		assert.False(t, ownedByMany(p), p)
	}
}

type staticManifests map[string]map[string]models.FileEntry

func (m staticManifests) ResolveManifest(_ context.Context, p *models.Package) (map[string]models.FileEntry, error) {
	files, ok := m[p.Name]
	if !ok {
		return nil, errors.New("404 Not Found")
	}
	return files, nil
}

func TestFileConflictResolvesManifests(t *testing.T) {
	cand := mk(pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/usr/bin/tool": "aaa", "/usr/bin/same": "s"}})
	other := mk(pkgSpec{name: "b", evr: "1-1", files: map[string]string{"/usr/bin/tool": "", "/usr/bin/same": ""}})
	u := build(t, []*models.Package{cand}, other)

	reg := prometheus.NewRegistry()
	c := New(solver.NewSAT(), Options{
		Logger:  quietLogger(),
		Metrics: NewMetrics(reg),
		Manifests: staticManifests{"b": {
			"/usr/bin/tool": {Digest: "bbb"},
			"/usr/bin/same": {Digest: "s"},
		}},
	})
	problems, err := c.Run(context.Background(), u, FileConflicts)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "/usr/bin/tool", problems[0].Path)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.ManifestFetches))
}

func TestFileConflictDigestAlgorithms(t *testing.T) {
	md5 := "d41d8cd98f00b204e9800998ecf8427e"
	sha256 := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	other256 := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

	tests := []struct {
		name      string
		manifests staticManifests
		conflicts int
	}{
		{
			name: "same content once read from the headers",
			manifests: staticManifests{
				"a": {"/usr/bin/tool": {Digest: sha256}},
				"b": {"/usr/bin/tool": {Digest: sha256}},
			},
		},
		{
			name: "different content once read from the headers",
			manifests: staticManifests{
				"a": {"/usr/bin/tool": {Digest: sha256}},
				"b": {"/usr/bin/tool": {Digest: other256}},
			},
			conflicts: 1,
		},
		{
			name: "headers still disagree on the algorithm",
			manifests: staticManifests{
				"a": {"/usr/bin/tool": {Digest: sha256}},
				"b": {"/usr/bin/tool": {Digest: md5}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := mk(pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/usr/bin/tool": sha256}})
			other := mk(pkgSpec{name: "b", evr: "1-1", files: map[string]string{"/usr/bin/tool": md5}})
			u := build(t, []*models.Package{cand}, other)

			c := New(solver.NewSAT(), Options{Logger: quietLogger(), Manifests: tt.manifests})
			problems, err := c.Run(context.Background(), u, FileConflicts)
			require.NoError(t, err)
			assert.Len(t, problems, tt.conflicts)
		})
	}
}

func TestFileConflictManifestFetchFailureIsFatal(t *testing.T) {
	cand := mk(pkgSpec{name: "a", evr: "1-1", files: map[string]string{"/usr/bin/tool": "aaa"}})
	other := mk(pkgSpec{name: "zzz", evr: "1-1", files: map[string]string{"/usr/bin/tool": ""}})
	u := build(t, []*models.Package{cand}, other)

	c := New(solver.NewSAT(), Options{Logger: quietLogger(), Manifests: staticManifests{}})
	_, err := c.Run(context.Background(), u, FileConflicts)
	var cerr *models.CheckError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, models.ErrRepoFetch, cerr.Type)
}

func TestUpgradeRegression(t *testing.T) {
	incumbent := mk(pkgSpec{name: "libfoo", evr: "2.0-1", provides: []string{"libfoo(x86-64) = 2.0"}})
	bar := mk(pkgSpec{name: "bar", evr: "1.0-1", requires: []string{"libfoo(x86-64) >= 2.0"}})
	cand := mk(pkgSpec{name: "libfoo", evr: "3.0-1"})
	u := build(t, []*models.Package{cand}, incumbent, bar)

	problems, err := newChecker(solver.NewSAT()).Run(context.Background(), u, Upgrade)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	p := problems[0]
	assert.Equal(t, models.ProblemWouldBreakUpgrade, p.Kind)
	assert.Equal(t, "bar-1.0-1.x86_64", p.Subject.NEVRA())
	assert.Equal(t, "libfoo(x86-64) >= 2.0", p.Capability)
	assert.Contains(t, p.Detail, "2.0-1 -> 3.0-1")
}

func TestUpgradeWithAlternativeProviderIsFine(t *testing.T) {
	incumbent := mk(pkgSpec{name: "libfoo", evr: "2.0-1", provides: []string{"libfoo(x86-64) = 2.0"}})
	compat := mk(pkgSpec{name: "libfoo-compat", evr: "2.0-1", provides: []string{"libfoo(x86-64) = 2.0"}})
	bar := mk(pkgSpec{name: "bar", evr: "1.0-1", requires: []string{"libfoo(x86-64) >= 2.0"}})
	cand := mk(pkgSpec{name: "libfoo", evr: "3.0-1"})
	u := build(t, []*models.Package{cand}, incumbent, compat, bar)

	problems, err := newChecker(solver.NewSAT()).Run(context.Background(), u, Upgrade)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestUpgradeDowngradeAndObsoleted(t *testing.T) {
	a := mk(pkgSpec{name: "a", arch: "i386", evr: "0.1-1"})
	shadowed := mk(pkgSpec{name: "a", arch: "i386", evr: "0.1-1"})
	b := mk(pkgSpec{name: "b", arch: "i386", evr: "0.1-2", obsoletes: []string{"a < 0.2"}})
	newer := mk(pkgSpec{name: "c", arch: "i386", evr: "2-1"})
	cand := mk(pkgSpec{name: "c", arch: "i386", evr: "1-1"})
	u := build(t, []*models.Package{a, cand}, shadowed, b, newer)

	problems, err := newChecker(solver.NewSAT()).Run(context.Background(), u, Upgrade)
	require.NoError(t, err)
	require.Len(t, problems, 2)
	assert.Equal(t, "a-0.1-1.i386 would be obsoleted by b-0.1-2.i386 from repo base", problems[0].Detail)
	assert.Equal(t, "c-1-1.i386 would be upgraded by c-2-1.i386 from repo base", problems[1].Detail)
	assert.Equal(t, models.SeverityWarning, problems[1].Severity)
}

func TestAmbiguousProvider(t *testing.T) {
	cand := mk(pkgSpec{name: "app", arch: "x86_64", evr: "1-1", requires: []string{"libz"}})
	native := mk(pkgSpec{name: "libz", arch: "x86_64", evr: "1.2-1"})
	foreign := mk(pkgSpec{name: "libz", arch: "aarch64", evr: "1.3-1"})
	u := build(t, []*models.Package{cand}, native, foreign)

	problems, err := newChecker(solver.NewSAT()).Run(context.Background(), u, Dependency)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, models.ProblemAmbiguousProvider, problems[0].Kind)
	assert.Equal(t, models.SeverityWarning, problems[0].Severity)
}

func TestSolverFailureIsolatedToCandidate(t *testing.T) {
	good := mk(pkgSpec{name: "good", evr: "1-1", requires: []string{"gone"}})
	bad := mk(pkgSpec{name: "bad", evr: "1-1", requires: []string{"dep"}})
	dep := mk(pkgSpec{name: "dep", evr: "1-1"})
	u := build(t, []*models.Package{good, bad}, dep)

	problems, err := newChecker(failingSolver{name: "bad"}).Run(context.Background(), u, Dependency)
	require.Error(t, err)
	var cerr *models.CheckError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "bad-1-1.x86_64", cerr.Package)
	require.Len(t, problems, 1)
	assert.Equal(t, "good", problems[0].Package.Name)
}

func TestOrderingAndIdempotence(t *testing.T) {
	candidates := func() []*models.Package {
		return []*models.Package{
			mk(pkgSpec{name: "z-first", evr: "1-1", requires: []string{"nope"}, files: map[string]string{"/etc/shared": "1"}}),
			mk(pkgSpec{name: "a-second", evr: "1-1", conflicts: []string{"z-first"}}),
			mk(pkgSpec{name: "m-third", evr: "1-1", files: map[string]string{"/etc/shared": "2"}}),
		}
	}

	run := func() []models.Problem {
		c := New(solver.NewSAT(), Options{Logger: quietLogger(), FileScope: ScopeCandidates})
		problems, err := c.Check(context.Background(), candidates(), nil, nil)
		require.NoError(t, err)
		return problems
	}

	first := run()
	second := run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("problems differ between runs (-first +second):\n%s", diff)
	}

	assert.Equal(t, []models.ProblemKind{
		models.ProblemUnsatisfiedDependency,
		models.ProblemFileConflict,
		models.ProblemConflictingPackages,
	}, kinds(first))
	assert.Equal(t, "z-first", first[0].Package.Name)
	assert.Equal(t, "z-first", first[1].Package.Name)
	assert.Equal(t, "a-second", first[2].Package.Name)
}

func TestCheckLoadsSources(t *testing.T) {
	cand := mk(pkgSpec{name: "app", evr: "1-1", requires: []string{"lib"}})
	lib := mk(pkgSpec{name: "lib", evr: "1-1"})

	c := newChecker(solver.NewSAT())
	problems, err := c.Check(context.Background(), []*models.Package{cand},
		[]source.Source{source.NewStatic("base", lib)}, []Name{Dependency})
	require.NoError(t, err)
	assert.Empty(t, problems)

	_, err = c.Check(context.Background(), []*models.Package{cand, mk(pkgSpec{name: "app", evr: "1-1"})}, nil, nil)
	var cerr *models.CheckError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, models.ErrDuplicateCandidate, cerr.Type)
}

func TestListDependencies(t *testing.T) {
	a := mk(pkgSpec{name: "a", arch: "i386", evr: "0.1-1", requires: []string{"b"}})
	b := mk(pkgSpec{name: "b", arch: "i386", evr: "0.1-1"})
	broken := mk(pkgSpec{name: "c", arch: "i386", evr: "1-1", requires: []string{"nope"}})
	u := build(t, []*models.Package{a, broken}, b)

	deps, problems, err := newChecker(solver.NewSAT()).ListDependencies(context.Background(), u)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "a-0.1-1.i386", deps[0].Package.NEVRA())
	assert.Equal(t, []models.Identity{a.Identity(), b.Identity()}, deps[0].Packages)
	require.Len(t, problems, 1)
	assert.Equal(t, "c", problems[0].Package.Name)
}

func TestParseNames(t *testing.T) {
	names, err := ParseNames([]string{"upgrade", "dependency"})
	require.NoError(t, err)
	assert.Equal(t, []Name{Upgrade, Dependency}, names)

	_, err = ParseNames([]string{"sat"})
	assert.Error(t, err)
}
