// Package repodata loads background packages from yum/dnf ("repomd")
// repositories.
package repodata

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/signer"
	"github.com/ralt/depcheck/internal/utils"
)

// Cache stores downloaded metadata by checksum.
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, data []byte) error
}

// Options configures a Repo.
type Options struct {
	// Cache may be nil, in which case everything is downloaded each time.
	Cache   Cache
	Fetcher *Fetcher
	Logger  logrus.FieldLogger
}

// Repo is one repository. It implements source.Source.
type Repo struct {
	spec  models.RepoSpec
	cache Cache
	fetch *Fetcher
	log   logrus.FieldLogger

	mu   sync.Mutex
	base string // base URL repomd.xml was last loaded from
}

// New validates spec and returns a Repo for it.
func New(spec models.RepoSpec, opts Options) (*Repo, error) {
	set := 0
	for _, s := range []string{spec.BaseURL, spec.Metalink, spec.Mirrorlist} {
		if s != "" {
			set++
		}
	}
	if spec.Name == "" || set != 1 {
		return nil, models.NewCheckError(models.ErrInvalidConfig, "",
			fmt.Errorf("repo %q: exactly one of baseurl, metalink or mirrorlist is required", spec.Name))
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewFetcher(opts.Logger)
	}
	return &Repo{
		spec:  spec,
		cache: opts.Cache,
		fetch: opts.Fetcher,
		log:   opts.Logger.WithField("repo", spec.Name),
	}, nil
}

// Name returns the repository name.
func (r *Repo) Name() string { return r.spec.Name }

// Spec returns the repository definition.
func (r *Repo) Spec() models.RepoSpec { return r.spec }

// Packages downloads the repository metadata and yields its packages in
// primary.xml order. An unavailable repository marked skip_if_unavailable
// yields nothing.
func (r *Repo) Packages(ctx context.Context) iter.Seq2[*models.Package, error] {
	return func(yield func(*models.Package, error) bool) {
		primary, files, err := r.download(ctx)
		if err != nil {
			var cerr *models.CheckError
			if r.spec.SkipIfUnavailable && errors.As(err, &cerr) && cerr.Type == models.ErrRepoFetch {
				r.log.WithError(err).Warn("Repository unavailable, skipping")
				return
			}
			yield(nil, err)
			return
		}

		dec := xml.NewDecoder(bytes.NewReader(primary))
		n := 0
		for {
			tok, err := dec.Token()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(nil, r.parseError(err))
				return
			}
			se, ok := tok.(xml.StartElement)
			if !ok || se.Name.Local != "package" {
				continue
			}
			var p primaryPackage
			if err := dec.DecodeElement(&p, &se); err != nil {
				yield(nil, r.parseError(err))
				return
			}
			if p.Type != "" && p.Type != "rpm" {
				continue
			}
			pkg, err := p.toPackage(r.spec.Name, files[p.Checksum.Value])
			if err != nil {
				yield(nil, r.parseError(err))
				return
			}
			n++
			if !yield(pkg, nil) {
				return
			}
		}
		r.log.WithField("packages", n).Debug("Loaded repository")
	}
}

func (r *Repo) download(ctx context.Context) ([]byte, map[string][]xmlFile, error) {
	base, md, err := r.repomd(ctx)
	if err != nil {
		return nil, nil, err
	}

	rec, ok := md.record("primary")
	if !ok {
		return nil, nil, r.parseError(errors.New("repomd.xml has no primary record"))
	}
	primary, err := r.record(ctx, base, rec)
	if err != nil {
		return nil, nil, err
	}

	// filelists_ext carries file digests and saves header downloads later
	rec, ok = md.record("filelists_ext")
	if !ok {
		rec, ok = md.record("filelists")
	}
	if !ok {
		r.log.Warn("repomd.xml has no filelists record, using the files listed in primary")
		return primary, nil, nil
	}
	data, err := r.record(ctx, base, rec)
	if err != nil {
		return nil, nil, err
	}
	files, err := parseFilelists(data)
	if err != nil {
		return nil, nil, r.parseError(err)
	}
	return primary, files, nil
}

// repomd loads repomd.xml from the first base URL that serves it.
func (r *Repo) repomd(ctx context.Context) (string, *repomd, error) {
	bases, err := r.bases(ctx)
	if err != nil {
		return "", nil, err
	}

	var lastErr error
	for _, base := range bases {
		data, err := r.fetch.Get(ctx, join(base, "repodata/repomd.xml"))
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			r.log.WithError(err).WithField("base", base).Debug("Mirror failed")
			lastErr = err
			continue
		}
		if r.spec.GPGCheck {
			if err := r.verify(ctx, base, data); err != nil {
				return "", nil, err
			}
		}
		var md repomd
		if err := xml.Unmarshal(data, &md); err != nil {
			return "", nil, r.parseError(fmt.Errorf("repomd.xml: %w", err))
		}

		r.mu.Lock()
		r.base = base
		r.mu.Unlock()
		r.log.WithFields(logrus.Fields{"base": base, "revision": md.Revision}).Debug("Loading repodata")
		return base, &md, nil
	}
	return "", nil, r.fetchError(lastErr)
}

// bases returns the base URLs to try, in order.
func (r *Repo) bases(ctx context.Context) ([]string, error) {
	if r.spec.BaseURL != "" {
		return []string{r.spec.BaseURL}, nil
	}
	list := r.spec.Metalink
	if list == "" {
		list = r.spec.Mirrorlist
	}
	doc, err := r.fetch.Get(ctx, list)
	if err != nil {
		return nil, r.fetchError(err)
	}
	out := mirrors(doc)
	if len(out) == 0 {
		return nil, r.fetchError(fmt.Errorf("no usable mirrors in %s", list))
	}
	return out, nil
}

func (r *Repo) verify(ctx context.Context, base string, data []byte) error {
	if r.spec.GPGKey == "" {
		return models.NewCheckError(models.ErrSignature, "", fmt.Errorf("repo %s: gpgcheck is set but no key is configured", r.spec.Name))
	}
	key, err := r.fetch.Get(ctx, r.spec.GPGKey)
	if err != nil {
		return r.fetchError(fmt.Errorf("key %s: %w", r.spec.GPGKey, err))
	}
	v, err := signer.NewGPGVerifier(key)
	if err != nil {
		return models.NewCheckError(models.ErrSignature, "", fmt.Errorf("repo %s: %w", r.spec.Name, err))
	}
	sig, err := r.fetch.Get(ctx, join(base, "repodata/repomd.xml.asc"))
	if err != nil {
		return r.fetchError(fmt.Errorf("repomd.xml.asc: %w", err))
	}
	if err := v.VerifyDetached(data, sig); err != nil {
		return models.NewCheckError(models.ErrSignature, "", fmt.Errorf("repo %s: repomd.xml: %w", r.spec.Name, err))
	}
	r.log.Debug("repomd.xml signature verified")
	return nil
}

// record returns the decompressed content of a repomd data record, from
// the cache when possible.
func (r *Repo) record(ctx context.Context, base string, rec repomdData) ([]byte, error) {
	sum := rec.Checksum
	key := sum.Type + ":" + sum.Value

	var data []byte
	if r.cache != nil {
		cached, ok, err := r.cache.Get(key)
		if err != nil {
			r.log.WithError(err).Warn("Cache read failed")
		} else if ok {
			r.log.WithField("type", rec.Type).Debug("Using cached metadata")
			data = cached
		}
	}

	if data == nil {
		if rec.Location.Base != "" {
			base = rec.Location.Base
		}
		fetched, err := r.fetch.Get(ctx, join(base, rec.Location.Href))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, r.fetchError(fmt.Errorf("%s: %w", rec.Location.Href, err))
		}
		if err := utils.VerifyChecksum(fetched, sum.Type, sum.Value); err != nil {
			return nil, r.fetchError(fmt.Errorf("%s: %w", rec.Location.Href, err))
		}
		if r.cache != nil {
			if err := r.cache.Put(key, fetched); err != nil {
				r.log.WithError(err).Warn("Cache write failed")
			}
		}
		data = fetched
	}

	out, err := utils.Decompress(rec.Location.Href, data)
	if err != nil {
		return nil, r.parseError(fmt.Errorf("%s: %w", rec.Location.Href, err))
	}
	return out, nil
}

func parseFilelists(data []byte) (map[string][]xmlFile, error) {
	files := make(map[string][]xmlFile)
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "package" {
			continue
		}
		var p filelistsPackage
		if err := dec.DecodeElement(&p, &se); err != nil {
			return nil, err
		}
		if p.Files == nil {
			p.Files = []xmlFile{}
		}
		files[p.PkgID] = p.Files
	}
}

// resolvedBase returns the base URL metadata was loaded from, resolving
// mirrors if the repository was never loaded.
func (r *Repo) resolvedBase(ctx context.Context) (string, error) {
	r.mu.Lock()
	base := r.base
	r.mu.Unlock()
	if base != "" {
		return base, nil
	}
	bases, err := r.bases(ctx)
	if err != nil {
		return "", err
	}
	return bases[0], nil
}

func (r *Repo) fetchError(err error) error {
	return models.NewCheckError(models.ErrRepoFetch, "", fmt.Errorf("repo %s: %w", r.spec.Name, err))
}

func (r *Repo) parseError(err error) error {
	return models.NewCheckError(models.ErrPackageParse, "", fmt.Errorf("repo %s: %w", r.spec.Name, err))
}
