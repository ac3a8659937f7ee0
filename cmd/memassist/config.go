package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/4thel00z/memassist/internal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration",
	}

	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default memassist.yaml into the data directory",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}

	cmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return cmd
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	path := configPath(cmd)

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("already initialized at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := internal.SaveConfig(path, internal.DefaultConfig()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig(configPath(cmd))
			if err != nil {
				return err
			}

			if wantJSON(cmd) {
				return writeJSON(cmd, cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// configPath honours --config, then --data-dir, then the data directory
// lookup from the working directory.
func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return filepath.Join(internal.ResolveDataDir(dataDir), internal.ConfigFilename)
}
