package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ralt/depcheck/internal/checker"
	"github.com/ralt/depcheck/internal/models"
	"github.com/ralt/depcheck/internal/repodata"
	"github.com/ralt/depcheck/internal/signer"
)

// newSnapshotCmd creates the snapshot command
func newSnapshotCmd(a *app) *cobra.Command {
	var (
		outputDir     string
		compression   string
		gpgKeyPath    string
		gpgPassphrase string
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write the configured repositories' metadata as one local repository",
		Long: `Loads every configured repository and writes their merged metadata to a
local directory, so later checks can run offline against a fixed package set.
When two repositories carry the same package the first one wins.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputDir == "" {
				return usage(errors.New("--output-dir is required"))
			}
			if compression != "gz" && compression != "zst" {
				return usage(fmt.Errorf("unknown compression %q (valid: gz, zst)", compression))
			}

			var sign signer.Signer
			if gpgKeyPath != "" {
				s, err := signer.NewGPGSigner(gpgKeyPath, gpgPassphrase)
				if err != nil {
					return fatal(err)
				}
				sign = s
			}

			s, err := a.open(cmd.Name())
			if err != nil {
				return err
			}
			defer s.close()

			backgrounds, err := checker.LoadSources(cmd.Context(), s.repos.Sources(), a.cfg.Jobs)
			if err != nil {
				return fatal(err)
			}
			pkgs := merge(backgrounds)

			err = repodata.WriteRepository(outputDir, pkgs, repodata.WriteOptions{
				Signer:       sign,
				Compression:  compression,
				FilelistsExt: true,
			})
			if err != nil {
				return fatal(err)
			}
			s.log.Infof("Wrote %d packages to %s", len(pkgs), outputDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "d", "", "Directory to write the repository to")
	cmd.Flags().StringVar(&compression, "compression", "gz", "Metadata compression: gz or zst")
	cmd.Flags().StringVarP(&gpgKeyPath, "gpg-key", "k", "", "Path to GPG private key used to sign repomd.xml")
	cmd.Flags().StringVarP(&gpgPassphrase, "gpg-passphrase", "p", "", "GPG key passphrase")
	return cmd
}

// merge flattens repositories in precedence order, keeping the first
// package of each identity.
func merge(backgrounds [][]*models.Package) []*models.Package {
	seen := make(map[string]bool)
	var out []*models.Package
	for _, pkgs := range backgrounds {
		for _, p := range pkgs {
			k := p.Identity().Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, p)
		}
	}
	return out
}
