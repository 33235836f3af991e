package cli

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ralt/depcheck/internal/cache"
	"github.com/ralt/depcheck/internal/checker"
	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/repodata"
	"github.com/ralt/depcheck/internal/report"
	"github.com/ralt/depcheck/internal/scanner"
	"github.com/ralt/depcheck/internal/solver"
)

// goArches maps Go architecture names to RPM ones.
var goArches = map[string]string{
	"amd64":   "x86_64",
	"386":     "i686",
	"arm64":   "aarch64",
	"arm":     "armv7hl",
	"ppc64le": "ppc64le",
	"ppc64":   "ppc64",
	"s390x":   "s390x",
	"riscv64": "riscv64",
}

// hostArch returns the RPM architecture of this machine.
func hostArch() string {
	if a, ok := goArches[goruntime.GOARCH]; ok {
		return a
	}
	return goruntime.GOARCH
}

// session holds everything one command run needs.
type session struct {
	log      *logrus.Entry
	arch     string
	format   report.Format
	report   *report.Report
	cache    *cache.Cache
	repos    *repodata.Set
	checker  *checker.Checker
	registry *prometheus.Registry
	metrics  string
}

// open validates the configuration and wires the cache, repositories,
// solver and checker together.
func (a *app) open(command string) (*session, error) {
	cfg := a.cfg
	format, err := report.ParseFormat(cfg.Output)
	if err != nil {
		return nil, usage(err)
	}
	if cfg.Arch == "" {
		cfg.Arch = hostArch()
	}

	rep := report.New(command)
	log := logrus.WithField("run_id", rep.RunID)
	s := &session{log: log, arch: cfg.Arch, format: format, report: rep, metrics: cfg.MetricsFile}

	specs, err := a.repoSpecs(cfg.Arch)
	if err != nil {
		return nil, err
	}

	opts := repodata.Options{Fetcher: repodata.NewFetcher(log), Logger: log}
	if !cfg.Cache.Disabled {
		c, err := cache.Open(cache.Config{Dir: cfg.Cache.Dir, TTL: cfg.Cache.TTL, Logger: log})
		if err != nil {
			return nil, fatal(err)
		}
		s.cache = c
		opts.Cache = c
	}

	var repos []*repodata.Repo
	for _, spec := range specs {
		r, err := repodata.New(spec, opts)
		if err != nil {
			s.close()
			return nil, usage(err)
		}
		repos = append(repos, r)
	}
	if s.repos, err = repodata.NewSet(opts, repos...); err != nil {
		s.close()
		return nil, usage(err)
	}

	var sv solver.Solver
	switch cfg.Solver {
	case "brute-force":
		sv = solver.NewBruteForce(cfg.SolverLimit, solver.WithLogger(log))
	default:
		sv = solver.NewSAT(solver.WithLogger(log))
	}

	s.registry = prometheus.NewRegistry()
	s.checker = checker.New(sv, checker.Options{
		Jobs:      cfg.Jobs,
		Arch:      cfg.Arch,
		Manifests: s.repos,
		Metrics:   checker.NewMetrics(s.registry),
		Logger:    log,
	})

	log.WithFields(logrus.Fields{
		"command": command,
		"arch":    cfg.Arch,
		"repos":   len(repos),
	}).Debug("Session ready")
	return s, nil
}

// repoSpecs collects repositories from --repo and, if asked, from the
// system yum configuration.
func (a *app) repoSpecs(arch string) ([]models.RepoSpec, error) {
	var specs []models.RepoSpec
	for _, r := range a.cfg.Repos {
		spec, err := repodata.ParseRepoFlag(r)
		if err != nil {
			return nil, usage(err)
		}
		specs = append(specs, spec)
	}
	if a.cfg.ReposFromSystem {
		vars := repodata.YumVars(arch, repodata.OSReleaseFile, repodata.DNFVarsDir)
		system, err := repodata.FromYumConfig(repodata.YumMainConfig, repodata.YumReposGlob, vars)
		if err != nil {
			return nil, fatal(err)
		}
		specs = append(specs, system...)
	}
	return specs, nil
}

// candidates parses the packages named on the command line.
func (s *session) candidates(ctx context.Context, paths []string) ([]*models.Package, error) {
	pkgs, err := scanner.LoadCandidates(ctx, scanner.NewFileSystemScanner(), paths, 0)
	if err != nil {
		return nil, err
	}
	if len(pkgs) == 0 {
		return nil, usage(errors.New("no candidate packages found"))
	}
	s.log.Debugf("Checking %d candidate packages", len(pkgs))
	return pkgs, nil
}

// finish writes the report and metrics and turns the outcome into an exit
// code.
func (s *session) finish(cmd *cobra.Command, runErr error) error {
	defer s.close()

	var exit *ExitError
	if errors.As(runErr, &exit) && exit.Code == ExitUsage {
		return runErr
	}
	s.report.AddError(runErr)

	if err := s.report.Write(cmd.OutOrStdout(), cmd.ErrOrStderr(), s.format); err != nil {
		return fatal(fmt.Errorf("writing report: %w", err))
	}
	if s.metrics != "" {
		if err := prometheus.WriteToTextfile(s.metrics, s.registry); err != nil {
			s.log.WithError(err).Warn("Failed to write metrics")
		}
	}

	s.log.WithFields(logrus.Fields{
		"problems": len(s.report.Problems),
		"fatal":    len(s.report.FatalErrors),
	}).Debug("Run finished")

	switch {
	case s.report.Fatal():
		return &ExitError{Code: ExitFatal}
	case s.report.Failed():
		return &ExitError{Code: ExitProblems}
	}
	return nil
}

func (s *session) close() {
	if s.cache == nil {
		return
	}
	if err := s.cache.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close cache")
	}
	s.cache = nil
}
