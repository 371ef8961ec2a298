package config

import (
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	kenv "github.com/knadh/koanf/providers/env"
	kfile "github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// AdapterConfig is one provider entry in the config file.
type AdapterConfig struct {
	Provider       string `koanf:"provider"`
	APIKey         string `koanf:"api_key"`
	BaseURL        string `koanf:"base_url"`
	DefaultModel   string `koanf:"default_model"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	MaxRetries     int    `koanf:"max_retries"`
}

// Config is the root structure under the "llm" key.
type Config struct {
	Providers map[string]AdapterConfig `koanf:"providers"`
}

var (
	loadOnce sync.Once
	loaded   *Config
	loadErr  error
)

// Load reads configuration from LLM_CONFIG_PATH or ./config.yaml, applies
// LLM__ environment overrides (double underscore splits levels), and
// resolves ${VAR} references in string fields. Safe for repeated calls.
func Load() (*Config, error) {
	loadOnce.Do(func() {
		k := koanf.New(".")

		path := os.Getenv("LLM_CONFIG_PATH")
		if path == "" {
			path = "config.yaml"
		}

		if err := k.Load(kfile.Provider(path), yaml.Parser()); err != nil {
			loadErr = err
			return
		}

		// Environment overrides: LLM__providers__claude__api_key=...
		// The LLM__ prefix maps onto the llm root key, so overrides land
		// in the same tree the file populates.
		if err := k.Load(kenv.Provider("LLM__", "__", strings.ToLower), nil); err != nil {
			loadErr = err
			return
		}

		var cfg Config
		if err := k.Unmarshal("llm", &cfg); err != nil {
			loadErr = err
			return
		}

		resolveEnvVars(&cfg)
		loaded = &cfg
	})
	return loaded, loadErr
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func resolveEnvVars(cfg *Config) {
	for key, entry := range cfg.Providers {
		entry.APIKey = resolveEnvString(entry.APIKey)
		entry.BaseURL = resolveEnvString(entry.BaseURL)
		entry.Provider = resolveEnvString(entry.Provider)
		cfg.Providers[key] = entry
	}
}

// resolveEnvString replaces ${VAR} with the environment value, leaving
// the reference in place when the variable is unset.
func resolveEnvString(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if value := os.Getenv(name); value != "" {
			return value
		}
		return match
	})
}
