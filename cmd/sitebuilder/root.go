package main

import (
	"github.com/spf13/cobra"

	"sitebuilder/pkg/logx"
)

// envPassword unlocks the secrets file and the stored target credentials without a prompt.
const envPassword = "SITEBUILDER_PASSWORD"

type rootOptions struct {
	projectDir  string
	metricsAddr string
	logLevel    string
	debug       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "sitebuilder",
		Short:         "Generate business websites with AI agents and deploy them to WordPress",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.logLevel != "" {
				level, err := logx.ParseLevel(opts.logLevel)
				if err != nil {
					return err
				}
				logx.SetLevel(level)
			}
			if opts.debug {
				logx.SetDebug(true)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.projectDir, "projectdir", ".", "Project directory holding .sitebuilder/")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /healthz and /metrics on this address (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Minimum log level: debug, info, warn or error")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newGenerateCmd(opts),
		newDeployCmd(opts),
		newStatusCmd(opts),
		newSecretsCmd(opts),
		newVersionCmd(),
	)
	return root
}
