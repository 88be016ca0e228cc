package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/grovekit/grove/internal/config"
)

// starterConfig is written by `grove config init`.
const starterConfig = `# Grove configuration.
log_level: info

# Where clones, worktrees, and agent outputs live.
# scratch_root: ~/.grove

agent:
  binary: claude
  # model: claude-sonnet-4-5
  timeout: 30m

git:
  base_branch: main

jobs:
  retention: 20
  log_buffer_lines: 500

# Optional system-prompt rules, per command kind. "general" is prepended
# to every kind-specific rule. A rules file can be used instead:
# rules:
#   file: ~/.grove/rules.yaml
#   general: |
#     Keep changes minimal.

projects: []
#  - name: myapp
#    repo_url: git@example.com:team/myapp.git
#    work_dir: ~/code/myapp
#    up_command: npm run dev
`

// AddConfigCommand registers config subcommands on the root command.
func AddConfigCommand(root *cobra.Command, flags *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and scaffold grove configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig(c.Context(), flags)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			_, err = c.OutOrStdout().Write(out)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			path := flags.ConfigPath
			if path == "" {
				global, err := config.GlobalConfigPath()
				if err != nil {
					return err
				}
				path = global
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the global config and log file paths",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			global, err := config.GlobalConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "config: %s\nlog:    %s\n", global, LogFilePath())
			return nil
		},
	})

	root.AddCommand(cmd)
}
