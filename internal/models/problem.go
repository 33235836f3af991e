package models

import (
	"fmt"
	"strings"
)

// ProblemKind classifies a finding. The order of the constants is the order
// problems are reported in for each candidate.
type ProblemKind int

const (
	ProblemUnsatisfiedDependency ProblemKind = iota
	ProblemConflictingPackages
	ProblemFileConflict
	ProblemWouldBreakUpgrade
	ProblemDowngradeOrEqual
	ProblemObsoletedByRepository
	ProblemAmbiguousProvider
)

// String returns the kind's report name.
func (k ProblemKind) String() string {
	switch k {
	case ProblemUnsatisfiedDependency:
		return "unsatisfied-dependency"
	case ProblemConflictingPackages:
		return "conflicting-packages"
	case ProblemFileConflict:
		return "file-conflict"
	case ProblemWouldBreakUpgrade:
		return "would-break-upgrade"
	case ProblemDowngradeOrEqual:
		return "downgrade-or-equal"
	case ProblemObsoletedByRepository:
		return "obsoleted-by-repository"
	case ProblemAmbiguousProvider:
		return "ambiguous-provider"
	default:
		return "unknown"
	}
}

// MarshalText lets reports encode the kind by name.
func (k ProblemKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Severity of a problem. Warnings are informational.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// MarshalText lets reports encode the severity by name.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Severity returns the default severity of the kind.
func (k ProblemKind) Severity() Severity {
	switch k {
	case ProblemDowngradeOrEqual, ProblemAmbiguousProvider:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// Problem is one finding. It only copies identity fields from the packages
// involved and never references the universe.
type Problem struct {
	Kind     ProblemKind `json:"kind" yaml:"kind"`
	Severity Severity    `json:"severity" yaml:"severity"`

	// Package is the candidate the problem is reported under.
	Package Identity `json:"package" yaml:"package"`
	// Related lists the other packages involved: providers, conflicting
	// packages, stranded dependents or incumbents.
	Related []Identity `json:"related,omitempty" yaml:"related,omitempty"`

	// Subject is the package the explanation is about when it is not the
	// candidate itself, for example a transitive dependency.
	Subject *Identity `json:"subject,omitempty" yaml:"subject,omitempty"`
	// Dependents lists every package whose requirement an unsatisfied
	// dependency leaves unmet, when more than one does.
	Dependents []Identity `json:"dependents,omitempty" yaml:"dependents,omitempty"`

	Capability string `json:"capability,omitempty" yaml:"capability,omitempty"`
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	Repo       string `json:"repo,omitempty" yaml:"repo,omitempty"`
	Detail     string `json:"detail" yaml:"detail"`
}

// NewProblem returns a problem of the given kind with its default severity.
func NewProblem(kind ProblemKind, pkg Identity, detail string) Problem {
	return Problem{Kind: kind, Severity: kind.Severity(), Package: pkg, Detail: detail}
}

// Key identifies the root cause of the problem for de-duplication. An
// unsatisfied dependency is keyed by candidate and capability only, so one
// missing provider is reported once per candidate however many of its
// dependencies reach it.
func (p Problem) Key() string {
	if p.Kind == ProblemUnsatisfiedDependency {
		return fmt.Sprintf("%s|%s|%s", p.Kind, p.Package.Key(), p.Capability)
	}
	subject := p.Package
	if p.Subject != nil {
		subject = *p.Subject
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s", p.Kind, subject.Key(), p.Capability, p.Path)
	for _, r := range p.Related {
		b.WriteString("|" + r.Key())
	}
	return b.String()
}

// Dependent returns the package whose requirement the problem is about.
func (p Problem) Dependent() Identity {
	if p.Subject != nil {
		return *p.Subject
	}
	return p.Package
}

// Merge records the dependent of dup, a problem with the same key, on p.
func (p *Problem) Merge(dup Problem) {
	if p.Kind != ProblemUnsatisfiedDependency {
		return
	}
	if len(p.Dependents) == 0 {
		p.Dependents = []Identity{p.Dependent()}
	}
	d := dup.Dependent()
	for _, have := range p.Dependents {
		if have.Key() == d.Key() {
			return
		}
	}
	p.Dependents = append(p.Dependents, d)
}

func (p Problem) String() string {
	return p.Detail
}
