// Package config loads and validates grove configuration: the project
// table, per-command rule texts, agent settings, and runtime paths.
//
// Configuration is layered, highest precedence first:
//  1. Environment variables (GROVE_* prefix)
//  2. Explicit config file (--config flag)
//  3. Global config (~/.grove/config.yaml)
//  4. Built-in defaults
package config

import (
	"strings"
	"time"

	"github.com/grovekit/grove/internal/constants"
	"github.com/grovekit/grove/internal/domain"
)

// Config is the root configuration.
type Config struct {
	// LogLevel is the zerolog level name (trace, debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// LogFile is an optional rotating log file path. Empty logs to the
	// default location under the grove home directory.
	LogFile string `mapstructure:"log_file" yaml:"log_file"`

	// ScratchRoot is where workspaces, output files, and the neutral
	// directory live. Everything under it is ephemeral.
	ScratchRoot string `mapstructure:"scratch_root" yaml:"scratch_root"`

	Agent    AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Git      GitConfig        `mapstructure:"git" yaml:"git"`
	Jobs     JobsConfig       `mapstructure:"jobs" yaml:"jobs"`
	Rules    RulesConfig      `mapstructure:"rules" yaml:"rules"`
	Projects []domain.Project `mapstructure:"projects" yaml:"projects"`
}

// AgentConfig configures the development agent invocation.
type AgentConfig struct {
	// Binary is the agent CLI binary name.
	Binary string `mapstructure:"binary" yaml:"binary"`

	// Model passed to the CLI. Empty uses the CLI's own default.
	Model string `mapstructure:"model" yaml:"model"`

	// Timeout is the per-job wall-clock limit.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// GitConfig configures repository handling.
type GitConfig struct {
	// BaseBranch is the default branch workspaces are cut from when a
	// project does not override it.
	BaseBranch string `mapstructure:"base_branch" yaml:"base_branch"`
}

// JobsConfig configures the job registry and supervisor buffers.
type JobsConfig struct {
	// Retention is how many terminal jobs per project stay queryable.
	Retention int `mapstructure:"retention" yaml:"retention"`

	// LogBufferLines bounds the auxiliary process log ring.
	LogBufferLines int `mapstructure:"log_buffer_lines" yaml:"log_buffer_lines"`
}

// RulesConfig holds per-command system prompt texts. General applies to
// every command and is prepended to the command-specific text.
type RulesConfig struct {
	// File optionally points at a separate YAML file with the same
	// keys; its non-empty values override the inline ones.
	File string `mapstructure:"file" yaml:"file"`

	General  string `mapstructure:"general" yaml:"general"`
	Ask      string `mapstructure:"ask" yaml:"ask"`
	Feat     string `mapstructure:"feat" yaml:"feat"`
	Fix      string `mapstructure:"fix" yaml:"fix"`
	Plan     string `mapstructure:"plan" yaml:"plan"`
	Feedback string `mapstructure:"feedback" yaml:"feedback"`
	Init     string `mapstructure:"init" yaml:"init"`
}

// For returns the composed system prompt for the command kind: the
// general rules followed by the command-specific text.
func (r *RulesConfig) For(kind domain.CommandKind) string {
	specific := ""
	switch kind {
	case domain.CommandAsk:
		specific = r.Ask
	case domain.CommandFeat:
		specific = r.Feat
	case domain.CommandFix:
		specific = r.Fix
	case domain.CommandPlan:
		specific = r.Plan
	case domain.CommandFeedback:
		specific = r.Feedback
	case domain.CommandInit:
		specific = r.Init
	}

	parts := make([]string, 0, 2)
	if r.General != "" {
		parts = append(parts, r.General)
	}
	if specific != "" {
		parts = append(parts, specific)
	}
	return strings.Join(parts, "\n\n")
}

// Project returns the configured project by name.
func (c *Config) Project(name string) (*domain.Project, bool) {
	for i := range c.Projects {
		if c.Projects[i].Name == name {
			return &c.Projects[i], true
		}
	}
	return nil, false
}

// ProjectNames returns the configured project names in order.
func (c *Config) ProjectNames() []string {
	names := make([]string, 0, len(c.Projects))
	for i := range c.Projects {
		names = append(names, c.Projects[i].Name)
	}
	return names
}

// DefaultConfig returns a Config with built-in defaults. These are the
// base layer under config files and environment variables.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Agent: AgentConfig{
			Binary:  "claude",
			Timeout: constants.DefaultAgentTimeout,
		},
		Git: GitConfig{
			BaseBranch: "main",
		},
		Jobs: JobsConfig{
			Retention:      constants.DefaultJobRetention,
			LogBufferLines: constants.DefaultLogBufferLines,
		},
	}
}
