package events

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// #endregion

// DefaultSubjectPrefix is prepended to the event kind to form the subject.
const DefaultSubjectPrefix = "dpd"

// #region nats-publisher

// NATSPublisher publishes JSON-encoded events on <prefix>.<kind>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	owned  bool
}

// ConnectNATS dials url and returns a publisher that owns the connection.
func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("dpd-weights"),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	p := NewNATSPublisher(nc, prefix)
	p.owned = true
	return p, nil
}

// NewNATSPublisher wraps an existing connection. Close leaves it open.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: nc, prefix: prefix}
}

// Subject returns the subject an event of kind k is published on.
func (p *NATSPublisher) Subject(k Kind) string {
	return p.prefix + "." + string(k)
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev.Kind), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection if the publisher
// dialed it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return p.conn.Flush()
	}
	return p.conn.Drain()
}

// #endregion

// Decode parses a message payload produced by NATSPublisher.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
