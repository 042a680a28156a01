// Package config provides configuration management for the PostgreSQL
// agent. The core consumes the resulting Settings object; nothing in the
// core reads the environment directly.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

// Default values for agent behavior.
const (
	DefaultMaxIterations    = 10
	DefaultMaxHistory       = 50
	DefaultMaxTokens        = 8000
	DefaultMaxQueryLength   = 10_000
	DefaultOperationTimeout = 60 * time.Second
	DefaultToolTimeout      = 30 * time.Second
	DefaultModel            = "gpt-4o"
	DefaultMaxResponse      = 4096
)

// Duration wraps time.Duration so YAML values like "90s" parse. Plain
// integers are taken as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LLMSettings configures the provider binding.
type LLMSettings struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// DatabaseSettings configures the queried database.
type DatabaseSettings struct {
	DSN      string `yaml:"dsn"`
	Name     string `yaml:"name"`
	MaxConns int32  `yaml:"max_conns"`
	// ReadOnly denies any mutation for this connection regardless of
	// safety level.
	ReadOnly bool `yaml:"read_only"`
}

// SafetySettings configures validation and confirmation.
type SafetySettings struct {
	Level               string `yaml:"level"`
	RequireConfirmation bool   `yaml:"require_confirmation"`
	MaxQueryLength      int    `yaml:"max_query_length"`
}

// AuditSettings configures the audit sinks.
type AuditSettings struct {
	// DSN enables the persistent audit store when set.
	DSN string `yaml:"dsn"`
}

// AgentSettings configures the reasoning loop and context caps.
type AgentSettings struct {
	MaxIterations    int      `yaml:"max_iterations"`
	MaxHistory       int      `yaml:"max_history"`
	MaxTokens        int      `yaml:"max_tokens"`
	OperationTimeout Duration `yaml:"operation_timeout"`
	ToolTimeout      Duration `yaml:"tool_timeout"`
}

// Settings is the full configuration consumed by the agent.
type Settings struct {
	LLM      LLMSettings      `yaml:"llm"`
	Database DatabaseSettings `yaml:"database"`
	Safety   SafetySettings   `yaml:"safety"`
	Audit    AuditSettings    `yaml:"audit"`
	Agent    AgentSettings    `yaml:"agent"`
}

// Default returns the default settings.
func Default() *Settings {
	return &Settings{
		LLM: LLMSettings{
			Provider:    "openai",
			Model:       DefaultModel,
			Temperature: 0,
			MaxTokens:   DefaultMaxResponse,
		},
		Database: DatabaseSettings{
			MaxConns: 4,
		},
		Safety: SafetySettings{
			Level:               string(models.LevelReadOnly),
			RequireConfirmation: true,
			MaxQueryLength:      DefaultMaxQueryLength,
		},
		Agent: AgentSettings{
			MaxIterations:    DefaultMaxIterations,
			MaxHistory:       DefaultMaxHistory,
			MaxTokens:        DefaultMaxTokens,
			OperationTimeout: Duration(DefaultOperationTimeout),
			ToolTimeout:      Duration(DefaultToolTimeout),
		},
	}
}

// Load reads settings from a YAML file, filling unset fields from the
// defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	if s.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be >= 1, got %d", s.Agent.MaxIterations)
	}
	if s.Agent.MaxHistory < 1 {
		return fmt.Errorf("agent.max_history must be >= 1, got %d", s.Agent.MaxHistory)
	}
	if s.Agent.MaxTokens < 1 {
		return fmt.Errorf("agent.max_tokens must be >= 1, got %d", s.Agent.MaxTokens)
	}
	if _, ok := models.ParseSafetyLevel(s.Safety.Level); !ok {
		return fmt.Errorf("safety.level must be read-only, balanced or permissive, got %q", s.Safety.Level)
	}
	if s.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	return nil
}

// SafetyLevel returns the parsed safety level.
func (s *Settings) SafetyLevel() models.SafetyLevel {
	level, _ := models.ParseSafetyLevel(s.Safety.Level)
	return level
}
