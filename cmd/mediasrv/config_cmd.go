package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediasrv/internal/config"
)

const maskedSecret = "********"

func newConfigCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change configuration",
	}

	var showSecret bool
	cmd.PersistentFlags().BoolVar(&showSecret, "show-secret", false, "print credential values instead of masking them")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one effective config value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, err := lookupConfigValue(cfg, args[0], showSecret)
				if err != nil {
					return err
				}
				return writePlain("%s\n", value)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print every effective config value",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				values := make(map[string]string, len(config.AllowedKeys()))
				var lines []string
				for _, key := range config.AllowedKeys() {
					value, err := lookupConfigValue(cfg, key, showSecret)
					if err != nil {
						return err
					}
					values[key] = value
					lines = append(lines, key+" = "+value)
				}
				if *jsonOutput {
					return writeJSON(values)
				}
				return writePlain("%s\n", strings.Join(lines, "\n"))
			},
		},
		newConfigSetCmd(),
	)
	return cmd
}

func newConfigSetCmd() *cobra.Command {
	var global bool
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a config value to the project or global file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pathFn := config.ProjectPath
			if global {
				pathFn = config.GlobalPath
			}
			path, err := pathFn()
			if err != nil {
				return err
			}
			if err := config.SetKey(path, args[0], args[1]); err != nil {
				return err
			}
			return writePlain("%s written to %s\n", args[0], path)
		},
	}
	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/.mediasrv.toml)")
	return cmd
}

func lookupConfigValue(cfg *config.Config, key string, showSecret bool) (string, error) {
	if !config.IsAllowedKey(key) {
		return "", fmt.Errorf("unknown key: %s (allowed: %s)", key, strings.Join(config.AllowedKeys(), ", "))
	}
	value, err := cfg.Get(key)
	if err != nil {
		return "", err
	}
	return displayConfigValue(key, value, showSecret), nil
}

func displayConfigValue(key, value string, showSecret bool) string {
	if showSecret || value == "" || !config.IsSecretKey(key) {
		return value
	}
	return maskedSecret
}
