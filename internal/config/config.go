// Package config provides configuration loading for the weight engine.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/dpd-weights/internal/events"
	"github.com/danielpatrickdp/dpd-weights/internal/interpret"
	"github.com/danielpatrickdp/dpd-weights/internal/stage"
	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// DefaultDBPath is used when neither the file nor DPD_DB names a database.
const DefaultDBPath = "dpd_weights.db"

// Config contains all engine settings.
type Config struct {
	// DBPath is the SQLite file holding versions, scores and narratives.
	DBPath string `json:"db_path" yaml:"db_path"`

	// Weights holds the update rule parameters.
	Weights weights.Params `json:"weights" yaml:"weights"`

	// Stage configures history, convergence and interpretation bounds.
	Stage StageConfig `json:"stage" yaml:"stage"`

	// Interpreter selects the narrative backend.
	Interpreter InterpreterConfig `json:"interpreter" yaml:"interpreter"`

	// Events configures external event publication.
	Events EventsConfig `json:"events" yaml:"events"`

	// Logging configures operational logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// StageConfig mirrors stage.Config in file form.
type StageConfig struct {
	HistoryCapacity      int           `json:"history_capacity" yaml:"history_capacity"`
	ConvergenceThreshold float64       `json:"convergence_threshold" yaml:"convergence_threshold"`
	InterpretTimeout     time.Duration `json:"interpret_timeout" yaml:"interpret_timeout"`
}

// InterpreterConfig configures interpretation of weight updates.
type InterpreterConfig struct {
	// Provider is "", "template", "openai", "ollama" or "grpc".
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the OpenAI key. Supports ${VAR} syntax for env vars.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Model is the chat model name.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Addr is the gRPC interpreter target.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// Fallback answers from the offline template when the backend fails.
	Fallback bool `json:"fallback" yaml:"fallback"`
}

// RedactedAPIKey returns the API key with most characters masked.
func (c InterpreterConfig) RedactedAPIKey() string {
	if c.APIKey == "" {
		return ""
	}
	if len(c.APIKey) < 12 {
		return "(set)"
	}
	return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
}

// String implements fmt.Stringer so the API key never reaches a log line.
func (c InterpreterConfig) String() string {
	return fmt.Sprintf("InterpreterConfig{Provider:%s, APIKey:%s, BaseURL:%s, Model:%s, Addr:%s, Fallback:%t}",
		c.Provider, c.RedactedAPIKey(), c.BaseURL, c.Model, c.Addr, c.Fallback)
}

// EventsConfig configures NATS publication. An empty URL disables it.
type EventsConfig struct {
	NATSURL       string `json:"nats_url,omitempty" yaml:"nats_url,omitempty"`
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is "trace", "debug", "info" (default), "warn" or "error".
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with production defaults.
func Default() *Config {
	sc := stage.DefaultConfig()
	return &Config{
		DBPath:  DefaultDBPath,
		Weights: weights.DefaultParams(),
		Stage: StageConfig{
			HistoryCapacity:      sc.HistoryCapacity,
			ConvergenceThreshold: sc.ConvergenceThreshold,
			InterpretTimeout:     sc.InterpretTimeout,
		},
		Interpreter: InterpreterConfig{
			Provider: "template",
			Fallback: true,
		},
		Events: EventsConfig{
			SubjectPrefix: events.DefaultSubjectPrefix,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load resolves configuration in the order defaults -> file -> environment.
// An empty path falls back to $DPD_CONFIG, then ~/.dpd/config.yaml if present.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("DPD_CONFIG")
	}
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".dpd", "config.yaml")
			if _, statErr := os.Stat(candidate); statErr == nil {
				path = candidate
			}
		}
	}

	config := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
// Keys absent from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Interpreter.APIKey = expandEnvVars(config.Interpreter.APIKey)
	return config, nil
}

// Validate checks that the configuration can build a working engine.
// Weight parameter problems are reported as *weights.ConfigError.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.StageConfig().Validate(); err != nil {
		return err
	}

	validProviders := map[string]bool{"": true, "template": true, "openai": true, "ollama": true, "grpc": true}
	if !validProviders[c.Interpreter.Provider] {
		return fmt.Errorf("invalid interpreter provider: %s (valid: template, openai, ollama, grpc, or empty)", c.Interpreter.Provider)
	}
	if c.Interpreter.Provider == "grpc" && c.Interpreter.Addr == "" {
		return fmt.Errorf("interpreter.addr is required for the grpc provider")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error, or empty for default)", c.Logging.Level)
	}
	return nil
}

// Params returns the update rule parameters.
func (c *Config) Params() weights.Params {
	return c.Weights
}

// StageConfig converts the stage section for stage.New.
func (c *Config) StageConfig() stage.Config {
	return stage.Config{
		HistoryCapacity:      c.Stage.HistoryCapacity,
		ConvergenceThreshold: c.Stage.ConvergenceThreshold,
		InterpretTimeout:     c.Stage.InterpretTimeout,
	}
}

// InterpretConfig converts the interpreter section for interpret.New.
func (c *Config) InterpretConfig() interpret.Config {
	return interpret.Config{
		Provider: c.Interpreter.Provider,
		APIKey:   c.Interpreter.APIKey,
		BaseURL:  c.Interpreter.BaseURL,
		Model:    c.Interpreter.Model,
		Addr:     c.Interpreter.Addr,
		Timeout:  c.Stage.InterpretTimeout,
		Fallback: c.Interpreter.Fallback,
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("DPD_DB"); v != "" {
		config.DBPath = v
	}

	if v := os.Getenv("DPD_LOG_LEVEL"); v != "" {
		config.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv("DPD_INTERPRETER"); v != "" {
		config.Interpreter.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("DPD_INTERPRETER_ADDR"); v != "" {
		config.Interpreter.Addr = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" && config.Interpreter.Provider == "openai" && config.Interpreter.APIKey == "" {
		config.Interpreter.APIKey = v
	}

	if v := os.Getenv("DPD_NATS_URL"); v != "" {
		config.Events.NATSURL = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
