package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()

	if c.DBPath != DefaultDBPath {
		t.Errorf("expected DBPath %q, got %q", DefaultDBPath, c.DBPath)
	}
	if c.Weights != weights.DefaultParams() {
		t.Errorf("expected default params, got %+v", c.Weights)
	}
	if c.Stage.HistoryCapacity != 50 || c.Stage.ConvergenceThreshold != 0.1 || c.Stage.InterpretTimeout != 30*time.Second {
		t.Errorf("unexpected stage defaults: %+v", c.Stage)
	}
	if c.Interpreter.Provider != "template" || !c.Interpreter.Fallback {
		t.Errorf("unexpected interpreter defaults: %s", c.Interpreter)
	}
	if c.Events.SubjectPrefix != "dpd" || c.Events.NATSURL != "" {
		t.Errorf("unexpected events defaults: %+v", c.Events)
	}
	if c.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", c.Logging.Level)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
db_path: /tmp/dpd.db
weights:
  learning_rate: 0.1
  max_weight: 0.7
stage:
  history_capacity: 10
  interpret_timeout: 5s
interpreter:
  provider: ollama
  model: llama3.2
events:
  nats_url: nats://127.0.0.1:4222
logging:
  level: debug
`)

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.DBPath != "/tmp/dpd.db" {
		t.Errorf("unexpected db path %q", c.DBPath)
	}
	if c.Weights.LearningRate != 0.1 || c.Weights.MaxWeight != 0.7 {
		t.Errorf("unexpected weights: %+v", c.Weights)
	}
	// keys absent from the file keep defaults
	if c.Weights.DecayFactor != 0.99 || c.Weights.MinWeight != 0.05 {
		t.Errorf("expected default decay and floor, got %+v", c.Weights)
	}
	if c.Stage.HistoryCapacity != 10 || c.Stage.InterpretTimeout != 5*time.Second || c.Stage.ConvergenceThreshold != 0.1 {
		t.Errorf("unexpected stage: %+v", c.Stage)
	}
	if c.Interpreter.Provider != "ollama" || c.Interpreter.Model != "llama3.2" {
		t.Errorf("unexpected interpreter: %s", c.Interpreter)
	}
	if c.Events.NATSURL != "nats://127.0.0.1:4222" || c.Events.SubjectPrefix != "dpd" {
		t.Errorf("unexpected events: %+v", c.Events)
	}
	if c.Logging.Level != "debug" {
		t.Errorf("unexpected level %q", c.Logging.Level)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_DPD_KEY", "sk-expanded-key-1234")
	path := writeConfig(t, "interpreter:\n  provider: openai\n  api_key: ${TEST_DPD_KEY}\n")

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.Interpreter.APIKey != "sk-expanded-key-1234" {
		t.Errorf("expected expanded key, got %q", c.Interpreter.APIKey)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "weights: [unclosed")
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "interpreter:\n  provider: openai\n")
	t.Setenv("DPD_DB", "/var/lib/dpd.db")
	t.Setenv("DPD_LOG_LEVEL", "TRACE")
	t.Setenv("DPD_NATS_URL", "nats://broker:4222")
	t.Setenv("OPENAI_API_KEY", "sk-from-env-000000")
	t.Setenv("DPD_INTERPRETER", "")
	t.Setenv("DPD_INTERPRETER_ADDR", "")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.DBPath != "/var/lib/dpd.db" {
		t.Errorf("DPD_DB not applied: %q", c.DBPath)
	}
	if c.Logging.Level != "trace" {
		t.Errorf("DPD_LOG_LEVEL not applied: %q", c.Logging.Level)
	}
	if c.Events.NATSURL != "nats://broker:4222" {
		t.Errorf("DPD_NATS_URL not applied: %q", c.Events.NATSURL)
	}
	if c.Interpreter.APIKey != "sk-from-env-000000" {
		t.Errorf("OPENAI_API_KEY not applied: %q", c.Interpreter.APIKey)
	}
}

func TestLoad_InterpreterEnv(t *testing.T) {
	t.Setenv("DPD_CONFIG", "")
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DPD_INTERPRETER", "GRPC")
	t.Setenv("DPD_INTERPRETER_ADDR", "localhost:50051")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Interpreter.Provider != "grpc" || c.Interpreter.Addr != "localhost:50051" {
		t.Errorf("unexpected interpreter: %s", c.Interpreter)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate_WeightParams(t *testing.T) {
	c := Default()
	c.Weights.MinWeight = 0.4

	err := c.Validate()
	if !errors.Is(err, weights.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	var ce *weights.ConfigError
	if !errors.As(err, &ce) || ce.Field != "min_weight" {
		t.Fatalf("expected min_weight ConfigError, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty db", func(c *Config) { c.DBPath = "" }, "db_path"},
		{"zero history", func(c *Config) { c.Stage.HistoryCapacity = 0 }, "history capacity"},
		{"negative threshold", func(c *Config) { c.Stage.ConvergenceThreshold = -1 }, "convergence threshold"},
		{"bad provider", func(c *Config) { c.Interpreter.Provider = "anthropic" }, "invalid interpreter provider"},
		{"grpc without addr", func(c *Config) { c.Interpreter.Provider = "grpc" }, "interpreter.addr"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestInterpreterConfigString(t *testing.T) {
	c := InterpreterConfig{Provider: "openai", APIKey: "sk-abcdefghijklmnop"}
	s := c.String()
	if strings.Contains(s, "abcdefghijklmnop") {
		t.Fatalf("API key leaked: %s", s)
	}
	if !strings.Contains(s, "sk-a...mnop") {
		t.Fatalf("expected redacted key, got %s", s)
	}
	if (InterpreterConfig{APIKey: "short"}).RedactedAPIKey() != "(set)" {
		t.Fatal("expected short keys to be fully hidden")
	}
}

func TestConversions(t *testing.T) {
	c := Default()
	c.Interpreter.Provider = "ollama"
	c.Interpreter.Model = "m"

	sc := c.StageConfig()
	if sc.HistoryCapacity != 50 || sc.InterpretTimeout != 30*time.Second {
		t.Errorf("unexpected stage config: %+v", sc)
	}
	ic := c.InterpretConfig()
	if ic.Provider != "ollama" || ic.Model != "m" || !ic.Fallback || ic.Timeout != 30*time.Second {
		t.Errorf("unexpected interpret config: %+v", ic)
	}
	if c.Params() != weights.DefaultParams() {
		t.Errorf("unexpected params: %+v", c.Params())
	}
}
