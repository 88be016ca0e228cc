package config

import (
	"fmt"

	groveerrors "github.com/grovekit/grove/internal/errors"
)

// Validate checks the configuration for problems that would surface as
// confusing failures later.
func Validate(cfg *Config) error {
	if cfg.ScratchRoot == "" {
		return fmt.Errorf("%w: scratch_root %w", groveerrors.ErrConfigInvalid, groveerrors.ErrEmptyValue)
	}
	if cfg.Agent.Binary == "" {
		return fmt.Errorf("%w: agent.binary %w", groveerrors.ErrConfigInvalid, groveerrors.ErrEmptyValue)
	}
	if cfg.Agent.Timeout <= 0 {
		return fmt.Errorf("%w: agent.timeout must be positive", groveerrors.ErrConfigInvalid)
	}
	if cfg.Jobs.Retention < 0 {
		return fmt.Errorf("%w: jobs.retention cannot be negative", groveerrors.ErrConfigInvalid)
	}
	if cfg.Jobs.LogBufferLines < 0 {
		return fmt.Errorf("%w: jobs.log_buffer_lines cannot be negative", groveerrors.ErrConfigInvalid)
	}

	seen := make(map[string]bool, len(cfg.Projects))
	for i := range cfg.Projects {
		p := &cfg.Projects[i]
		if p.Name == "" {
			return fmt.Errorf("%w: projects[%d].name %w", groveerrors.ErrConfigInvalid, i, groveerrors.ErrEmptyValue)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate project name %q", groveerrors.ErrConfigInvalid, p.Name)
		}
		seen[p.Name] = true
		if p.RepoURL == "" {
			return fmt.Errorf("%w: project %s: repo_url %w", groveerrors.ErrConfigInvalid, p.Name, groveerrors.ErrEmptyValue)
		}
		if p.WorkDir == "" {
			return fmt.Errorf("%w: project %s: work_dir %w", groveerrors.ErrConfigInvalid, p.Name, groveerrors.ErrEmptyValue)
		}
	}
	return nil
}
