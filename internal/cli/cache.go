package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ralt/depcheck/internal/cache"
)

// newCacheCmd creates the cache command and its subcommands
func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the repodata cache",
	}

	var all bool
	clean := &cobra.Command{
		Use:   "clean",
		Short: "Reclaim space from expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Cache.Disabled {
				return usage(errors.New("the cache is disabled"))
			}
			c, err := cache.Open(cache.Config{Dir: a.cfg.Cache.Dir, TTL: a.cfg.Cache.TTL})
			if err != nil {
				return fatal(err)
			}
			defer c.Close()

			if all {
				err = c.Purge()
			} else {
				err = c.Clean()
			}
			if err != nil {
				return fatal(err)
			}

			n, err := c.Len()
			if err != nil {
				return fatal(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries left in %s\n", n, a.cfg.Cache.Dir)
			return nil
		},
	}
	clean.Flags().BoolVar(&all, "all", false, "Drop every entry, not only expired ones")

	cmd.AddCommand(clean)
	return cmd
}
