package main

import (
	"partner-registry/internal/config"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	cfgFile      string
	registryPath string
	cfg          *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "partnerctl",
		Short:         "Consolidate, geocode, validate and curate the partner registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.Load(opts.cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("registry") {
				c.RegistryPath = opts.registryPath
			}
			opts.cfg = c
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default ./partners.yaml)")
	cmd.PersistentFlags().StringVar(&opts.registryPath, "registry", "", "registry table path (overrides config)")

	cmd.AddCommand(
		newIngestCmd(opts),
		newEnrichCmd(opts),
		newValidateCmd(opts),
		newPatchCmd(opts),
		newHistoryCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}
