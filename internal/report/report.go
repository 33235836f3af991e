package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ralt/depcheck/internal/checker"
	"github.com/ralt/depcheck/internal/models"
)

// Format selects how a report is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (valid: text, json, yaml)", s)
}

// Report is the outcome of one run.
type Report struct {
	RunID        string                 `json:"run_id" yaml:"run_id"`
	Command      string                 `json:"command" yaml:"command"`
	Problems     []models.Problem       `json:"problems" yaml:"problems"`
	Dependencies []checker.Dependencies `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	FatalErrors  []string               `json:"fatal_errors,omitempty" yaml:"fatal_errors,omitempty"`
}

// New returns an empty report with a fresh run id.
func New(command string) *Report {
	return &Report{RunID: uuid.NewString(), Command: command, Problems: []models.Problem{}}
}

// AddError records a fatal error. Joined errors are split into one entry
// each.
func (r *Report) AddError(err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			r.AddError(e)
		}
		return
	}
	r.FatalErrors = append(r.FatalErrors, err.Error())
}

// Fatal reports whether the run hit a fatal error.
func (r *Report) Fatal() bool { return len(r.FatalErrors) > 0 }

// Failed reports whether any problem should fail the run. Ambiguous
// providers are only informational.
func (r *Report) Failed() bool {
	for _, p := range r.Problems {
		if p.Kind != models.ProblemAmbiguousProvider {
			return true
		}
	}
	return false
}

// Write renders the report. Structured formats go to w whole. As text,
// dependency sets go to w and problems and fatal errors to errw.
func (r *Report) Write(w, errw io.Writer, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		return r.writeText(w, errw)
	default:
		return errors.New("unknown output format " + string(f))
	}
}

type section struct {
	heading string
	kinds   []models.ProblemKind
}

var sections = []section{
	{"Problems with candidate packages:", []models.ProblemKind{
		models.ProblemUnsatisfiedDependency,
		models.ProblemConflictingPackages,
		models.ProblemFileConflict,
	}},
	{"Upgrade problems:", []models.ProblemKind{
		models.ProblemWouldBreakUpgrade,
		models.ProblemDowngradeOrEqual,
		models.ProblemObsoletedByRepository,
	}},
	{"Warnings:", []models.ProblemKind{
		models.ProblemAmbiguousProvider,
	}},
}

// writeText prints dependency sets to w, then problems grouped by section
// in candidate order and fatal errors to errw.
func (r *Report) writeText(w, errw io.Writer) error {
	var deps strings.Builder
	for _, d := range r.Dependencies {
		fmt.Fprintf(&deps, "%s has %d dependencies:\n", d.Package, len(d.Packages))
		for _, p := range d.Packages {
			fmt.Fprintf(&deps, "\t%s\n", p)
		}
		deps.WriteString("\n")
	}
	if _, err := io.WriteString(w, deps.String()); err != nil {
		return err
	}

	var b strings.Builder

	first := true
	block := func(heading string, lines []string) {
		if len(lines) == 0 {
			return
		}
		if !first {
			b.WriteString("\n")
		}
		first = false
		b.WriteString(heading + "\n")
		for _, l := range lines {
			b.WriteString(l + "\n")
		}
	}
	for _, s := range sections {
		var lines []string
		for _, p := range r.Problems {
			if containsKind(s.kinds, p.Kind) {
				lines = append(lines, p.Detail)
			}
		}
		block(s.heading, lines)
	}
	block("Fatal errors:", r.FatalErrors)

	_, err := io.WriteString(errw, b.String())
	return err
}

func containsKind(kinds []models.ProblemKind, k models.ProblemKind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}
