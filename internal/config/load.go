package config

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	groveerrors "github.com/grovekit/grove/internal/errors"
)

// newViperInstance creates a Viper instance with the standard grove
// setup: defaults, GROVE_ environment prefix, and key replacer.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GROVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults configures all default values on the Viper instance.
// Keys must match the YAML tag names exactly for proper mapping.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("scratch_root", DefaultScratchRoot())
	v.SetDefault("agent.binary", d.Agent.Binary)
	v.SetDefault("agent.model", d.Agent.Model)
	v.SetDefault("agent.timeout", d.Agent.Timeout.String())
	v.SetDefault("git.base_branch", d.Git.BaseBranch)
	v.SetDefault("jobs.retention", d.Jobs.Retention)
	v.SetDefault("jobs.log_buffer_lines", d.Jobs.LogBufferLines)
}

// viperDecoderOption configures mapstructure to convert duration strings.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}

func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var notFound viper.ConfigFileNotFoundError
	return stderrors.As(err, &notFound)
}

// Load reads configuration. path points at an explicit config file; when
// empty the global config (~/.grove/config.yaml) is used if present.
// Missing config files are not an error, a bad one is.
func Load(ctx context.Context, path string) (*Config, error) {
	v := newViperInstance()

	explicit := path != ""
	if !explicit {
		if global, err := GlobalConfigPath(); err == nil {
			path = global
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if readErr := v.ReadInConfig(); readErr != nil && !isConfigNotFoundError(readErr) {
				return nil, fmt.Errorf("reading config %s: %w: %w", path, groveerrors.ErrConfigInvalid, readErr)
			}
		} else if explicit {
			return nil, fmt.Errorf("%w: %s", groveerrors.ErrConfigNotFound, path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, fmt.Errorf("%w: %w", groveerrors.ErrConfigInvalid, err)
	}

	if err := loadRulesFile(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "config").Logger()
	logger.Debug().
		Int("projects", len(cfg.Projects)).
		Str("scratch_root", cfg.ScratchRoot).
		Dur("agent.timeout", cfg.Agent.Timeout).
		Msg("configuration loaded")

	return &cfg, nil
}
