package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hnswdb/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user and project configuration",
		Long: `Manage the layered YAML configuration described in SPEC_FULL.md A.3.

Precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/hnswdb/config.yaml, or $XDG_CONFIG_HOME)
  3. Project config (.hnswdb.yaml in --config-dir)
  4. Environment variables (HNSWDB_*)`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigBackupCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file from defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath := config.GetUserConfigPath()
			configDir := config.GetUserConfigDir()
			w := cmd.OutOrStdout()

			if config.UserConfigExists() {
				if !force {
					fmt.Fprintf(w, "user configuration already exists at %s (use --force to overwrite)\n", configPath)
					return nil
				}
				backupPath, err := config.BackupUserConfig()
				if err != nil {
					return fmt.Errorf("backup existing config before overwrite: %w", err)
				}
				fmt.Fprintf(w, "backed up existing configuration to %s\n", backupPath)
			}

			if err := os.MkdirAll(configDir, 0o755); err != nil {
				return fmt.Errorf("create config directory %s: %w", configDir, err)
			}
			if err := config.NewConfig().WriteYAML(configPath); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}

			fmt.Fprintf(w, "created user configuration at %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite and back up an existing user configuration")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool
	var source string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()

			var cfg *config.Config
			switch source {
			case "merged":
				loaded, err := loadConfig()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			case "user":
				if !config.UserConfigExists() {
					fmt.Fprintf(w, "no user configuration found at %s (run 'vectordb config init')\n", config.GetUserConfigPath())
					return nil
				}
				loaded, err := config.LoadUserConfig()
				if err != nil {
					return fmt.Errorf("load user config: %w", err)
				}
				cfg = loaded
			case "defaults":
				cfg = config.NewConfig()
			default:
				return fmt.Errorf("invalid --source %q (use: merged, user, defaults)", source)
			}

			if jsonOutput {
				data, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal config: %w", err)
				}
				fmt.Fprintln(w, string(data))
				return nil
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Fprintf(w, "# source: %s\n%s", source, string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "config source: merged, user, defaults")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user configuration file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}

func newConfigBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Create a timestamped backup of the user configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backupPath, err := config.BackupUserConfig()
			if err != nil {
				return fmt.Errorf("backup user config: %w", err)
			}
			if backupPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "no user configuration to back up")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backed up user configuration to %s\n", backupPath)
			return nil
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "restore [backup-path]",
		Short: "Restore the user configuration from a backup",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			if list || len(args) == 0 {
				backups, err := config.ListUserConfigBackups()
				if err != nil {
					return fmt.Errorf("list backups: %w", err)
				}
				if len(backups) == 0 {
					fmt.Fprintln(w, "(no backups)")
					return nil
				}
				for _, b := range backups {
					fmt.Fprintln(w, b)
				}
				return nil
			}

			if err := config.RestoreUserConfig(args[0]); err != nil {
				return fmt.Errorf("restore config: %w", err)
			}
			fmt.Fprintf(w, "restored user configuration from %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list available backups instead of restoring")
	return cmd
}
