package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ralt/depcheck/internal/checker"
	"github.com/ralt/depcheck/internal/config"
)

// flagKeys maps persistent flags to their config keys.
var flagKeys = map[string]string{
	"repo":              "repos",
	"repos-from-system": "repos_from_system",
	"arch":              "arch",
	"output":            "output",
	"jobs":              "jobs",
	"metrics-file":      "metrics_file",
	"solver":            "solver",
	"verbose":           "verbose",
	"cache-dir":         "cache.dir",
	"cache-ttl":         "cache.ttl",
	"no-cache":          "cache.disabled",
}

// bindFlags makes flags override config file and environment values.
func bindFlags(flags *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

// app carries the configuration loaded before any subcommand runs.
type app struct {
	cfg config.Config
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "depcheck",
		Short: "Check RPM packages for dependency problems before they are published",
		Long: `Depcheck tests whether candidate RPM packages can be installed and upgraded
against a set of yum repositories, without installing anything.

Checks:
  - dependency      every requirement of a candidate can be satisfied
  - conflicts       all candidates can be installed together
  - file-conflicts  no two packages ship the same path with different content
  - upgrade         candidates do not break or get shadowed by repository packages

Exit status: 0 no problems, 1 fatal error, 2 usage error, 3 problems found.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, _ := cmd.Flags().GetString("config")
			if err := config.Init(cfgFile); err != nil {
				return fatal(err)
			}
			if err := bindFlags(cmd.Flags()); err != nil {
				return fatal(err)
			}
			cfg, err := config.Load()
			if err != nil {
				return usage(err)
			}
			a.cfg = cfg

			// Setup logging
			if cfg.Verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
			return nil
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usage(err)
	})

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default .depcheck.yaml)")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.StringArray("repo", nil, "Repository as NAME,URL; may be repeated")
	flags.Bool("repos-from-system", false, "Use the repositories enabled in the system yum configuration")
	flags.String("arch", "", "Target architecture (default: this machine's)")
	flags.StringP("output", "o", "text", "Report format: text, json or yaml")
	flags.IntP("jobs", "j", 0, "Candidates checked in parallel (default: one per CPU)")
	flags.String("metrics-file", "", "Write Prometheus metrics in text format to this file")
	flags.String("solver", "sat", "Solver backend: sat or brute-force")
	flags.String("cache-dir", config.DefaultCacheDir(), "Repodata cache directory")
	flags.Duration("cache-ttl", 0, "Drop cached repodata unused for this long (default 168h)")
	flags.Bool("no-cache", false, "Do not read or write the repodata cache")

	// The upgrade check is what verifies the closure of the repositories
	// once candidates replace their incumbents.
	upgrade := newCheckCmd(a, "check-upgrade", "Check that candidates upgrade cleanly over the repositories", []checker.Name{checker.Upgrade})
	upgrade.Aliases = []string{"check-repoclosure"}

	// Add subcommands
	rootCmd.AddCommand(
		newCheckCmd(a, "check", "Run every check", checker.AllChecks),
		newCheckCmd(a, "check-sat", "Check that candidates' dependencies are satisfiable and that they install together",
			[]checker.Name{checker.Dependency, checker.Conflicts}),
		newCheckCmd(a, "check-conflicts", "Check candidates for file conflicts", []checker.Name{checker.FileConflicts}),
		upgrade,
		newListDepsCmd(a),
		newSnapshotCmd(a),
		newCacheCmd(a),
	)

	return rootCmd
}
