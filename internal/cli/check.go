package cli

import (
	"github.com/spf13/cobra"

	"github.com/ralt/depcheck/internal/checker"
)

// candidateArgs requires at least one candidate path.
func candidateArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.MinimumNArgs(1)(cmd, args); err != nil {
		return usage(err)
	}
	return nil
}

// newCheckCmd creates a command running the given checks over candidate
// packages.
func newCheckCmd(a *app, use, short string, checks []checker.Name) *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   use + " [flags] RPMPATH...",
		Short: short,
		Long: short + `.

Each RPMPATH is a package file or a directory searched recursively for
packages. Repositories are given with --repo or --repos-from-system.`,
		Args: candidateArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := checks
			if len(only) > 0 {
				names, err := checker.ParseNames(only)
				if err != nil {
					return usage(err)
				}
				selected = names
			}

			s, err := a.open(cmd.Name())
			if err != nil {
				return err
			}
			s.log.Debugf("Running checks: %v", selected)

			ctx := cmd.Context()
			cands, err := s.candidates(ctx, args)
			if err != nil {
				return s.finish(cmd, err)
			}
			problems, err := s.checker.Check(ctx, cands, s.repos.Sources(), selected)
			s.report.Problems = append(s.report.Problems, problems...)
			return s.finish(cmd, err)
		},
	}

	if use == "check" {
		cmd.Flags().StringSliceVar(&only, "checks", nil, "Run only these checks (dependency, conflicts, file-conflicts, upgrade)")
	}
	return cmd
}
