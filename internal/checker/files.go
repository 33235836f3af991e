package checker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/universe"
)

// Directories every debuginfo or build-id carrying package owns.
var sharedDirs = map[string]bool{
	"/usr/lib/.build-id":       true,
	"/usr/lib/debug":           true,
	"/usr/lib/debug/.build-id": true,
	"/usr/lib/debug/bin":       true,
	"/usr/lib/debug/sbin":      true,
	"/usr/lib/debug/lib":       true,
	"/usr/lib/debug/lib64":     true,
	"/usr/lib/debug/.dwz":      true,
	"/usr/lib/debug/usr":       true,
	"/usr/lib/debug/usr/bin":   true,
	"/usr/lib/debug/usr/sbin":  true,
	"/usr/lib/debug/usr/lib":   true,
	"/usr/lib/debug/usr/lib64": true,
}

var buildIDBucket = regexp.MustCompile(`^/usr/lib(/debug)?/\.build-id/[0-9a-f]{2}$`)

// ownedByMany reports whether path is a directory known to be shared by
// many unrelated packages.
func ownedByMany(path string) bool {
	return sharedDirs[path] || buildIDBucket.MatchString(path)
}

type owner struct {
	pkg   *models.Package
	entry models.FileEntry
}

// checkFileConflicts looks for paths shipped by two packages that could be
// installed side by side with different content. It does not consult the
// solver.
func (c *Checker) checkFileConflicts(ctx context.Context, u *universe.Universe) ([]models.Problem, error) {
	cands := c.binaryCandidates(u)
	owners := make(map[string][]owner)
	for _, p := range cands {
		for path, e := range p.Files {
			owners[path] = append(owners[path], owner{pkg: p, entry: e})
		}
	}
	if c.opts.FileScope == ScopeUniverse {
		// A background package sharing a candidate's name and arch is
		// the version the candidate replaces.
		replaced := make(map[string]bool, len(cands))
		for _, p := range cands {
			replaced[p.Name+"."+p.Arch] = true
		}
		for _, p := range u.Background() {
			if p.Source || replaced[p.Name+"."+p.Arch] {
				continue
			}
			for path, e := range p.Files {
				if _, ok := owners[path]; ok {
					owners[path] = append(owners[path], owner{pkg: p, entry: e})
				}
			}
		}
	}

	r := &fingerprints{checker: c, resolved: make(map[*models.Package]map[string]models.FileEntry)}
	var problems []models.Problem
	for _, cand := range cands {
		for _, path := range sortedPaths(cand.Files) {
			if err := ctx.Err(); err != nil {
				return problems, err
			}
			if ownedByMany(path) {
				continue
			}
			mine := cand.Files[path]
			for _, o := range owners[path] {
				if o.pkg == cand || reportedFromOtherSide(u, cand, o.pkg) {
					continue
				}
				conflict, err := c.collides(ctx, r, path, owner{pkg: cand, entry: mine}, o)
				if err != nil {
					return problems, err
				}
				if !conflict {
					continue
				}
				pr := models.NewProblem(models.ProblemFileConflict, cand.Identity(),
					fmt.Sprintf("%s provides %s which is also provided by %s", cand, path, o.pkg))
				pr.Path = path
				pr.Repo = o.pkg.Repo
				pr.Related = []models.Identity{o.pkg.Identity()}
				problems = append(problems, pr)
			}
		}
	}
	return problems, errors.Join(r.errs...)
}

// reportedFromOtherSide skips the second visit of a pair of candidates.
func reportedFromOtherSide(u *universe.Universe, cand, other *models.Package) bool {
	oi, ok := u.CandidateIndex(other)
	if !ok {
		return false
	}
	ci, _ := u.CandidateIndex(cand)
	return oi < ci
}

// collides decides whether a and b really conflict on path.
func (c *Checker) collides(ctx context.Context, r *fingerprints, path string, a, b owner) (bool, error) {
	if a.entry.Kind == models.FileGhost || b.entry.Kind == models.FileGhost {
		return false, nil
	}
	if a.entry.Kind == models.FileDir && b.entry.Kind == models.FileDir {
		return false, nil
	}
	// Multilib pairs and other versions of the same package.
	if a.pkg.Name == b.pkg.Name {
		return false, nil
	}
	if a.pkg.ObsoletesPackage(b.pkg) || b.pkg.ObsoletesPackage(a.pkg) {
		return false, nil
	}
	if a.pkg.ConflictsWithPackage(b.pkg) || b.pkg.ConflictsWithPackage(a.pkg) {
		return false, nil
	}

	ea, eb, err := r.pair(ctx, path, a, b, false)
	if err != nil {
		return false, err
	}
	// Digests made with different algorithms say nothing about each
	// other, so both sides are read again from their headers.
	if ea.Fingerprint() != "" && eb.Fingerprint() != "" && !ea.Comparable(eb) {
		if ea, eb, err = r.pair(ctx, path, a, b, true); err != nil {
			return false, err
		}
	}
	if ea.Fingerprint() == "" || eb.Fingerprint() == "" || !ea.Comparable(eb) {
		c.log.WithFields(logrus.Fields{
			"path":  path,
			"first": a.pkg.NEVRA(),
			"other": b.pkg.NEVRA(),
		}).Warn("Cannot compare file contents, skipping")
		return false, nil
	}
	return ea.Fingerprint() != eb.Fingerprint(), nil
}

// fingerprints resolves unknown file digests through the checker's
// ManifestResolver, once per package.
type fingerprints struct {
	checker  *Checker
	resolved map[*models.Package]map[string]models.FileEntry
	errs     []error
}

func (r *fingerprints) pair(ctx context.Context, path string, a, b owner, fromHeader bool) (models.FileEntry, models.FileEntry, error) {
	ea, err := r.entry(ctx, a, path, fromHeader)
	if err != nil {
		return ea, ea, err
	}
	eb, err := r.entry(ctx, b, path, fromHeader)
	return ea, eb, err
}

// entry returns the manifest entry of path in o's package. Entries whose
// content is unknown, or all of them when fromHeader is set, come from the
// package header.
func (r *fingerprints) entry(ctx context.Context, o owner, path string, fromHeader bool) (models.FileEntry, error) {
	if !fromHeader && o.entry.Fingerprint() != "" {
		return o.entry, nil
	}
	if r.checker.opts.Manifests == nil {
		return models.FileEntry{}, nil
	}
	files, ok := r.resolved[o.pkg]
	if !ok {
		r.checker.metrics.manifestFetch()
		var err error
		files, err = r.checker.opts.Manifests.ResolveManifest(ctx, o.pkg)
		if err != nil {
			if ctx.Err() != nil {
				return models.FileEntry{}, ctx.Err()
			}
			r.errs = append(r.errs, models.NewCheckError(models.ErrRepoFetch, o.pkg.NEVRA(), err))
			files = nil
		}
		r.resolved[o.pkg] = files
	}
	return files[path], nil
}

func sortedPaths(files map[string]models.FileEntry) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
