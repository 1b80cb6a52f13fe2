package interpret

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #endregion

// #region interface

// Interpreter turns a weight update into a short natural-language narrative.
type Interpreter interface {
	Interpret(ctx context.Context, result weights.UpdateResult) (string, error)
}

// ErrEmptyResponse is returned when a backend answers with no text.
var ErrEmptyResponse = errors.New("interpreter returned empty text")

// #endregion

// #region prompt

const systemPrompt = "You describe how an agent's priorities between empathy, coherence and " +
	"dissonance are shifting. Answer in two or three plain sentences."

// Prompt renders an update as the request text sent to a language model.
func Prompt(result weights.UpdateResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weight update to version %d.\n", result.New.Version)
	fmt.Fprintf(&b, "Scores this cycle: empathy=%.3f coherence=%.3f dissonance=%.3f.\n",
		result.Scores.Empathy, result.Scores.Coherence, result.Scores.Dissonance)
	fmt.Fprintf(&b, "Previous weights: empathy=%.3f coherence=%.3f dissonance=%.3f.\n",
		result.Previous.Empathy, result.Previous.Coherence, result.Previous.Dissonance)
	fmt.Fprintf(&b, "New weights: empathy=%.3f coherence=%.3f dissonance=%.3f.\n",
		result.New.Empathy, result.New.Coherence, result.New.Dissonance)
	fmt.Fprintf(&b, "Change: empathy=%+.4f coherence=%+.4f dissonance=%+.4f.\n",
		result.Delta.Empathy, result.Delta.Coherence, result.Delta.Dissonance)
	fmt.Fprintf(&b, "Update magnitude %.4f, convergence metric %.4f.\n",
		result.UpdateMagnitude, result.ConvergenceMetric)
	b.WriteString("What does this shift say about how the agent is developing?")
	return b.String()
}

// #endregion

// #region config

// Config selects and configures an interpreter backend.
type Config struct {
	Provider string        // "", "template", "openai", "ollama", "grpc"
	APIKey   string        // openai only
	BaseURL  string        // OpenAI-compatible endpoint; defaults per provider
	Model    string        // chat model name
	Addr     string        // grpc target
	Timeout  time.Duration // per-call bound applied by the stage
	Fallback bool          // answer from the template when the backend fails
}

const (
	defaultOpenAIModel = "gpt-4o-mini"
	defaultOllamaModel = "llama3.2"
	defaultOllamaURL   = "http://localhost:11434/v1"
)

// New builds the interpreter named by cfg.Provider.
func New(cfg Config, logger *slog.Logger) (Interpreter, error) {
	var primary Interpreter
	switch strings.ToLower(cfg.Provider) {
	case "", "template":
		return NewTemplateInterpreter(), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai interpreter: api key not set")
		}
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		primary = NewOpenAIInterpreter(cfg.APIKey, cfg.BaseURL, model)
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
		model := cfg.Model
		if model == "" {
			model = defaultOllamaModel
		}
		primary = NewOpenAIInterpreter("ollama", baseURL, model)
	case "grpc":
		if cfg.Addr == "" {
			return nil, fmt.Errorf("grpc interpreter: addr not set")
		}
		g, err := DialGRPC(cfg.Addr)
		if err != nil {
			return nil, err
		}
		primary = g
	default:
		return nil, fmt.Errorf("unknown interpreter provider %q", cfg.Provider)
	}

	if cfg.Fallback {
		return WithFallback(primary, NewTemplateInterpreter(), logger), nil
	}
	return primary, nil
}

// Close releases resources held by i, if any.
func Close(i Interpreter) error {
	if c, ok := i.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// #endregion

// #region fallback

// fallbackBudget bounds the secondary when the caller's context has already
// expired, typically because the primary used up the whole deadline.
const fallbackBudget = 5 * time.Second

// Fallback answers from Secondary whenever Primary fails.
type Fallback struct {
	Primary   Interpreter
	Secondary Interpreter
	logger    *slog.Logger
}

// WithFallback wraps primary so that its failures are answered by secondary.
func WithFallback(primary, secondary Interpreter, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{Primary: primary, Secondary: secondary, logger: logger}
}

func (f *Fallback) Interpret(ctx context.Context, result weights.UpdateResult) (string, error) {
	text, err := f.Primary.Interpret(ctx, result)
	if err == nil {
		return text, nil
	}
	f.logger.Warn("primary interpreter failed, using fallback",
		"component", "interpret", "version", result.New.Version, "error", err)

	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), fallbackBudget)
		defer cancel()
	}
	text, err2 := f.Secondary.Interpret(ctx, result)
	if err2 != nil {
		return "", errors.Join(err, err2)
	}
	return text, nil
}

func (f *Fallback) Close() error {
	return errors.Join(Close(f.Primary), Close(f.Secondary))
}

// #endregion
