package narrative

// #region imports
import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/dpd-weights/internal/events"
)

// #endregion imports

// #region types

// Narrative is one interpretation of a weight update.
type Narrative struct {
	EventID   string
	Version   int64
	Text      string
	CreatedAt time.Time
}

// #endregion types

// #region store

// Store persists interpretation texts in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates the narratives table if needed and returns a store.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.init(); err != nil {
		return nil, fmt.Errorf("init narratives: %w", err)
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS narratives (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`)
	return err
}

// Save stores the narrative produced for a weight version.
func (s *Store) Save(eventID string, version int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("save narrative: empty text")
	}
	_, err := s.db.Exec(
		`INSERT INTO narratives (event_id, version, text, created_at) VALUES (?, ?, ?, ?)`,
		eventID, version, text, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save narrative: %w", err)
	}
	return nil
}

// Latest returns the most recent narrative, or nil if none exists.
func (s *Store) Latest() (*Narrative, error) {
	row := s.db.QueryRow(
		`SELECT event_id, version, text, created_at FROM narratives ORDER BY id DESC LIMIT 1`,
	)
	var n Narrative
	var createdAt string
	if err := row.Scan(&n.EventID, &n.Version, &n.Text, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &n, nil
}

// List returns up to limit narratives, newest first.
func (s *Store) List(limit int) ([]Narrative, error) {
	rows, err := s.db.Query(
		`SELECT event_id, version, text, created_at FROM narratives ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list narratives: %w", err)
	}
	defer rows.Close()

	var out []Narrative
	for rows.Next() {
		var n Narrative
		var createdAt string
		if err := rows.Scan(&n.EventID, &n.Version, &n.Text, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Publish saves interpretation events and ignores every other kind.
func (s *Store) Publish(ctx context.Context, ev events.Event) error {
	if ev.Kind != events.KindInterpretation {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Save(ev.ID, ev.Version, ev.Text)
}

// #endregion store
