package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	groveerrors "github.com/grovekit/grove/internal/errors"
)

// loadRulesFile merges an external rules file over the inline rules.
// Non-empty values in the file win. Rule texts tend to be long; keeping
// them in their own file keeps the main config readable.
func loadRulesFile(cfg *Config) error {
	path := cfg.Rules.File
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // Path comes from operator configuration
	if err != nil {
		return fmt.Errorf("rules file %s: %w: %w", path, groveerrors.ErrConfigNotFound, err)
	}

	var fileRules RulesConfig
	if err := yaml.Unmarshal(data, &fileRules); err != nil {
		return fmt.Errorf("rules file %s: %w: %w", path, groveerrors.ErrConfigInvalid, err)
	}

	mergeRules(&cfg.Rules, &fileRules)
	return nil
}

func mergeRules(dst, src *RulesConfig) {
	for _, pair := range []struct {
		dst *string
		src string
	}{
		{&dst.General, src.General},
		{&dst.Ask, src.Ask},
		{&dst.Feat, src.Feat},
		{&dst.Fix, src.Fix},
		{&dst.Plan, src.Plan},
		{&dst.Feedback, src.Feedback},
		{&dst.Init, src.Init},
	} {
		if pair.src != "" {
			*pair.dst = pair.src
		}
	}
}
