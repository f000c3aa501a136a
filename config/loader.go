package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "AGENTFORGE_"

// Load reads the YAML file at path (skipped when path is empty or the
// file does not exist), overrides it with AGENTFORGE_ environment
// variables and returns the validated configuration.
//
// Environment variables map to config keys by splitting on the first
// underscore after the prefix:
//
//	AGENTFORGE_LOGGING_LEVEL        -> logging.level
//	AGENTFORGE_CLIENT_MAX_ATTEMPTS  -> client.max_attempts
//	AGENTFORGE_GUARD_SOFT_PASS_MAX  -> guard.soft_pass_max
func Load(path string) (*Config, error) {
	var content []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else {
			content = data
		}
	}
	return LoadBytes(content)
}

// LoadBytes parses YAML content plus environment overrides. Nil content
// yields the defaults.
func LoadBytes(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// AGENTFORGE_CLIENT_MAX_ATTEMPTS -> client.max_attempts: the
		// first underscore separates the section, the rest stay.
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
