package repodata

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/rpmfile"
	"github.com/ralt/depcheck/internal/source"
)

// headerRanges are the prefixes tried, in bytes, when downloading a package
// header. Zero means the whole file.
var headerRanges = []int64{100000, 1000000, 5000000, 0}

// Set is the list of repositories of a run, in precedence order.
type Set struct {
	repos  []*Repo
	byName map[string]*Repo
	cache  Cache
	fetch  *Fetcher
	log    logrus.FieldLogger
}

// NewSet groups repos. Repository names must be unique.
func NewSet(opts Options, repos ...*Repo) (*Set, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewFetcher(opts.Logger)
	}
	s := &Set{
		repos:  repos,
		byName: make(map[string]*Repo, len(repos)),
		cache:  opts.Cache,
		fetch:  opts.Fetcher,
		log:    opts.Logger,
	}
	for _, r := range repos {
		if _, ok := s.byName[r.Name()]; ok {
			return nil, models.NewCheckError(models.ErrInvalidConfig, "", fmt.Errorf("duplicate repository name %q", r.Name()))
		}
		s.byName[r.Name()] = r
	}
	return s, nil
}

// Sources returns the repositories as package sources.
func (s *Set) Sources() []source.Source {
	out := make([]source.Source, 0, len(s.repos))
	for _, r := range s.repos {
		out = append(out, r)
	}
	return out
}

// ResolveManifest returns the file manifest of p with digests, read from the
// package header. Repository packages have their header downloaded with
// growing byte ranges until it parses; local candidates are read from disk.
func (s *Set) ResolveManifest(ctx context.Context, p *models.Package) (map[string]models.FileEntry, error) {
	if p.Repo == "" {
		pkg, err := rpmfile.ParsePackage(p.Location)
		if err != nil {
			return nil, err
		}
		return pkg.Files, nil
	}

	r, ok := s.byName[p.Repo]
	if !ok {
		return nil, fmt.Errorf("%s: unknown repository %q", p, p.Repo)
	}
	key := "header:" + p.Checksum
	if s.cache != nil && p.Checksum != "" {
		if data, ok, err := s.cache.Get(key); err == nil && ok {
			if pkg, err := rpmfile.Read(bytes.NewReader(data)); err == nil {
				return pkg.Files, nil
			}
		}
	}

	base, err := r.resolvedBase(ctx)
	if err != nil {
		return nil, err
	}
	location := join(base, p.Location)

	var lastErr error
	for _, end := range headerRanges {
		data, err := s.fetch.GetRange(ctx, location, end)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", location, err)
		}
		pkg, err := rpmfile.Read(bytes.NewReader(data))
		if err != nil {
			lastErr = err
			if end > 0 && int64(len(data)) == end {
				s.log.WithFields(logrus.Fields{"package": p.NEVRA(), "bytes": end}).Debug("Header incomplete, downloading more")
				continue
			}
			break
		}
		if s.cache != nil && p.Checksum != "" {
			if err := s.cache.Put(key, data); err != nil {
				s.log.WithError(err).Warn("Cache write failed")
			}
		}
		return pkg.Files, nil
	}
	return nil, fmt.Errorf("%s: reading header: %w", location, lastErr)
}
