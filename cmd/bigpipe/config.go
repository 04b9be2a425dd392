package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/bigpipe/internal/config"
	"github.com/vango-dev/bigpipe/internal/errors"
)

func configCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the bigpipe configuration",
	}
	cmd.AddCommand(
		configInitCmd(),
		configShowCmd(opts),
		configValidateCmd(opts),
	)
	return cmd
}

func configInitCmd() *cobra.Command {
	var (
		format string
		dir    string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the defaults",
		Long: `Write bigpipe.json (or .yaml/.toml with --format) with every
setting at its default value.

Examples:
  bigpipe config init
  bigpipe config init --format=yaml --dir=deploy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ext := format
			if ext == "yml" {
				ext = "yaml"
			}
			switch ext {
			case "json", "yaml", "toml":
			default:
				return errors.New("E123").Wrap(fmt.Errorf("unknown format %q", format))
			}

			path := filepath.Join(dir, "bigpipe."+ext)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := config.New().SaveTo(path); err != nil {
				return err
			}
			success(cmd, "Created %s", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "File format: json, yaml or toml")
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory to write to")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func configShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

func configValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			source := cfg.Path()
			if source == "" {
				source = "defaults"
			}
			success(cmd, "Configuration is valid (%s)", source)
			return nil
		},
	}
}
