package events

// #region imports
import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

// #endregion

// #region kinds

// Kind names what happened to the weight stream.
type Kind string

const (
	KindUpdated        Kind = "weights.updated"
	KindInterpretation Kind = "weights.interpretation"
)

// #endregion

// #region event

// Event is one notification emitted by the update stage.
type Event struct {
	ID        string               `json:"id"`
	Kind      Kind                 `json:"kind"`
	Version   int64                `json:"version"`
	Result    weights.UpdateResult `json:"result"`
	Text      string               `json:"text,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// Updated builds the event published after every weight update.
func Updated(result weights.UpdateResult) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      KindUpdated,
		Version:   result.New.Version,
		Result:    result,
		CreatedAt: time.Now().UTC(),
	}
}

// Interpretation builds the event published once a narrative is available.
func Interpretation(result weights.UpdateResult, text string) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      KindInterpretation,
		Version:   result.New.Version,
		Result:    result,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// #endregion

// #region publisher

// Publisher receives stage events. Implementations must be safe for
// concurrent use: interpretation events arrive from background goroutines.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Multi fans an event out to every publisher. All publishers are attempted;
// their errors are joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// #endregion
