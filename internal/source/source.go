package source

import (
	"context"
	"iter"

	"github.com/ralt/depcheck/internal/models"
)

// Source produces package metadata. A source is read once; the sequence is
// finite, and an error ends it.
type Source interface {
	// Name identifies the source in logs and problems, for example the
	// repository name.
	Name() string

	// Packages yields the packages of the source. Parse and fetch failures
	// are yielded as errors and are fatal to the caller.
	Packages(ctx context.Context) iter.Seq2[*models.Package, error]
}

// Collect drains a source into a slice. The first error aborts.
func Collect(ctx context.Context, src Source) ([]*models.Package, error) {
	var pkgs []*models.Package
	for p, err := range src.Packages(ctx) {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, nil
}

// Static is a Source serving a fixed list of packages.
type Static struct {
	ID    string
	Items []*models.Package
}

// NewStatic returns a source named name yielding pkgs. Packages without a
// repository name are tagged with it.
func NewStatic(name string, pkgs ...*models.Package) *Static {
	for _, p := range pkgs {
		if p.Repo == "" {
			p.Repo = name
		}
	}
	return &Static{ID: name, Items: pkgs}
}

func (s *Static) Name() string { return s.ID }

func (s *Static) Packages(ctx context.Context) iter.Seq2[*models.Package, error] {
	return func(yield func(*models.Package, error) bool) {
		for _, p := range s.Items {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}
