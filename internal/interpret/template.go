package interpret

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// DefaultConvergenceThreshold matches the stage's default.
const DefaultConvergenceThreshold = 0.1

// TemplateInterpreter produces a deterministic narrative without any
// network call.
type TemplateInterpreter struct {
	Threshold float64
}

// NewTemplateInterpreter returns a template interpreter using the default
// convergence threshold.
func NewTemplateInterpreter() *TemplateInterpreter {
	return &TemplateInterpreter{Threshold: DefaultConvergenceThreshold}
}

type component struct {
	name  string
	value float64
	delta float64
}

func (t *TemplateInterpreter) Interpret(ctx context.Context, result weights.UpdateResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	comps := []component{
		{"empathy", result.New.Empathy, result.Delta.Empathy},
		{"coherence", result.New.Coherence, result.Delta.Coherence},
		{"dissonance", result.New.Dissonance, result.Delta.Dissonance},
	}

	lead := comps[0]
	mover := comps[0]
	for _, c := range comps[1:] {
		if c.value > lead.value {
			lead = c
		}
		if math.Abs(c.delta) > math.Abs(mover.delta) {
			mover = c
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Version %d: %s leads at %.3f.", result.New.Version, lead.name, lead.value)

	switch {
	case math.Abs(mover.delta) < 1e-6:
		b.WriteString(" The balance held steady this cycle.")
	case mover.delta > 0:
		fmt.Fprintf(&b, " %s gained the most ground (%+.4f).", capitalize(mover.name), mover.delta)
	default:
		fmt.Fprintf(&b, " %s gave up the most ground (%+.4f).", capitalize(mover.name), mover.delta)
	}

	if result.ConvergenceMetric < t.Threshold {
		fmt.Fprintf(&b, " The weights are settling (convergence %.3f).", result.ConvergenceMetric)
	} else {
		fmt.Fprintf(&b, " The weights are still adapting (convergence %.3f).", result.ConvergenceMetric)
	}
	return b.String(), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
