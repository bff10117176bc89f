package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mediasrv/internal/config"
	"mediasrv/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		yamlOutput bool
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:           "mediasrv",
		Short:         "mediasrv stores media files and serves them with byte-range support",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, logFormat, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			if jsonOutput && yamlOutput {
				return fmt.Errorf("--json and --yaml are mutually exclusive")
			}
			if yamlOutput {
				outputFormatter = format.YAMLFormatter{}
				jsonOutput = true
			}
			return nil
		},
	}

	cmd.Version = buildVersion()
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&yamlOutput, "yaml", false, "output YAML")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMediaCmd(cfg, &jsonOutput),
		newGCCmd(cfg, &jsonOutput),
		newInfoCmd(cfg, &jsonOutput),
		newMigrateCmd(cfg, &jsonOutput),
		newConfigCmd(cfg, &jsonOutput),
	)

	return cmd
}
