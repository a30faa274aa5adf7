// Package config loads agentchat configuration from a YAML file with
// environment variable overrides. Precedence: defaults, then the file,
// then AGENTCHAT_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all agentchat configuration.
type Config struct {
	// Model settings
	Model ModelConfig `yaml:"model"`

	// Agent loop settings
	Agent AgentConfig `yaml:"agent"`

	// Workspace settings
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig selects the provider and model for the session.
type ModelConfig struct {
	Provider    string   `yaml:"provider" env:"AGENTCHAT_PROVIDER"` // anthropic, openai
	Model       string   `yaml:"model" env:"AGENTCHAT_MODEL"`
	APIKey      string   `yaml:"api_key" env:"AGENTCHAT_API_KEY"`
	MaxTokens   int      `yaml:"max_tokens" env:"AGENTCHAT_MAX_TOKENS"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// AgentConfig bounds the loop and tool execution.
type AgentConfig struct {
	MaxTurns                int    `yaml:"max_turns" env:"AGENTCHAT_MAX_TURNS"` // tool rounds per conversation
	DefaultCommandTimeoutMs int    `yaml:"default_command_timeout_ms" env:"AGENTCHAT_DEFAULT_COMMAND_TIMEOUT_MS"`
	MaxCommandTimeoutMs     int    `yaml:"max_command_timeout_ms" env:"AGENTCHAT_MAX_COMMAND_TIMEOUT_MS"`
	SystemPromptFile        string `yaml:"system_prompt_file" env:"AGENTCHAT_SYSTEM_PROMPT_FILE"`
	InstructionsFile        string `yaml:"instructions_file" env:"AGENTCHAT_INSTRUCTIONS_FILE"`
	EnableLoopDetection     bool   `yaml:"enable_loop_detection"`
}

// WorkspaceConfig sets the directory root tool operations are scoped to.
type WorkspaceConfig struct {
	Root string `yaml:"root" env:"AGENTCHAT_WORKSPACE"` // empty binds the current directory
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level" env:"AGENTCHAT_LOG_LEVEL"` // debug, info, warn, error
	File  string `yaml:"file" env:"AGENTCHAT_LOG_FILE"`   // empty logs to stderr
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider: "anthropic",
		},
		Agent: AgentConfig{
			MaxTurns:                10,
			DefaultCommandTimeoutMs: 10000,
			MaxCommandTimeoutMs:     600000,
			EnableLoopDetection:     true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file is not an
// error: defaults plus environment overrides still apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent.max_turns must be positive, got %d", c.Agent.MaxTurns)
	}
	if c.Agent.DefaultCommandTimeoutMs <= 0 {
		return fmt.Errorf("agent.default_command_timeout_ms must be positive, got %d", c.Agent.DefaultCommandTimeoutMs)
	}
	if c.Agent.MaxCommandTimeoutMs < c.Agent.DefaultCommandTimeoutMs {
		return fmt.Errorf("agent.max_command_timeout_ms (%d) must be at least the default timeout (%d)",
			c.Agent.MaxCommandTimeoutMs, c.Agent.DefaultCommandTimeoutMs)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

// DefaultConfigPath returns the conventional config file location,
// honoring XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "agentchat", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "agentchat.yaml"
	}
	return filepath.Join(home, ".config", "agentchat", "config.yaml")
}
