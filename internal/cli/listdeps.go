package cli

import (
	"github.com/spf13/cobra"

	"github.com/ralt/depcheck/internal/checker"
	"github.com/ralt/depcheck/internal/universe"
)

// newListDepsCmd creates the list-deps command
func newListDepsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-deps [flags] RPMPATH...",
		Short: "List the packages each candidate would pull in",
		Long: `Solves each candidate on its own against the repositories and prints
the packages installing it would bring in, the candidate included.`,
		Args: candidateArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Name())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cands, err := s.candidates(ctx, args)
			if err != nil {
				return s.finish(cmd, err)
			}
			backgrounds, err := checker.LoadSources(ctx, s.repos.Sources(), a.cfg.Jobs)
			if err != nil {
				return s.finish(cmd, err)
			}
			u, err := universe.Build(cands, backgrounds, universe.Options{Arch: s.arch, Logger: s.log})
			if err != nil {
				return s.finish(cmd, err)
			}

			deps, problems, err := s.checker.ListDependencies(ctx, u)
			s.report.Dependencies = deps
			s.report.Problems = append(s.report.Problems, problems...)
			return s.finish(cmd, err)
		},
	}
}
