// Package config loads service configuration from YAML with environment
// overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root service configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	LLM       LLM       `yaml:"llm"`
	Retrieval Retrieval `yaml:"retrieval"`
	Engine    Engine    `yaml:"engine"`
	Archive   Archive   `yaml:"archive"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr string `yaml:"addr"`

	// CheckAPIKey toggles the API-key middleware. The key itself comes
	// from CLINICO_AI_API_KEY, never the config file.
	CheckAPIKey bool `yaml:"check_api_key"`
}

// LLM selects the completion provider.
type LLM struct {
	// Provider is one of "openai", "anthropic" or "google".
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model when set.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the provider key.
	APIKeyEnv string `yaml:"api_key_env"`
}

// Retrieval configures the similarity-search client.
type Retrieval struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
	Retries   int    `yaml:"retries"`
}

// Engine configures the workflow engine guards.
type Engine struct {
	MaxSteps      int `yaml:"max_steps"`
	NodeTimeoutMS int `yaml:"node_timeout_ms"`
}

// Archive configures the generated-document store.
type Archive struct {
	// Driver is one of "none", "memory", "sqlite" or "mysql".
	Driver string `yaml:"driver"`

	// DSN is the sqlite file path or MySQL connection string.
	DSN string `yaml:"dsn"`
}

// Telemetry configures logging and tracing.
type Telemetry struct {
	LogJSON     bool `yaml:"log_json"`
	OTelEnabled bool `yaml:"otel_enabled"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Server:    Server{Addr: ":8000", CheckAPIKey: true},
		LLM:       LLM{Provider: "openai", APIKeyEnv: "OPENAI_API_KEY"},
		Retrieval: Retrieval{BaseURL: "http://localhost:9000", TimeoutMS: 30000, Retries: 2},
		Engine:    Engine{MaxSteps: 32, NodeTimeoutMS: 120000},
		Archive:   Archive{Driver: "memory"},
		Telemetry: Telemetry{LogJSON: true},
	}
}

// Load reads a YAML file over the defaults and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration, joining all problems into one error.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "google":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not one of openai, anthropic, google", c.LLM.Provider))
	}
	if c.Retrieval.BaseURL == "" {
		errs = append(errs, errors.New("retrieval.base_url must not be empty"))
	}
	if c.Retrieval.TimeoutMS <= 0 {
		errs = append(errs, errors.New("retrieval.timeout_ms must be positive"))
	}
	if c.Retrieval.Retries < 0 {
		errs = append(errs, errors.New("retrieval.retries must not be negative"))
	}
	if c.Engine.MaxSteps <= 0 {
		errs = append(errs, errors.New("engine.max_steps must be positive"))
	}
	if c.Engine.NodeTimeoutMS < 0 {
		errs = append(errs, errors.New("engine.node_timeout_ms must not be negative"))
	}
	switch c.Archive.Driver {
	case "none", "memory":
	case "sqlite", "mysql":
		if c.Archive.DSN == "" {
			errs = append(errs, fmt.Errorf("archive.dsn required for driver %q", c.Archive.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.driver %q is not one of none, memory, sqlite, mysql", c.Archive.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// APIKey resolves the provider API key from the configured environment
// variable.
func (c Config) APIKey() string {
	if c.LLM.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.LLM.APIKeyEnv)
}

// RetrievalTimeout returns the retrieval timeout as a duration.
func (c Config) RetrievalTimeout() time.Duration {
	return time.Duration(c.Retrieval.TimeoutMS) * time.Millisecond
}

// NodeTimeout returns the per-node timeout as a duration; zero disables it.
func (c Config) NodeTimeout() time.Duration {
	return time.Duration(c.Engine.NodeTimeoutMS) * time.Millisecond
}
