package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bus-tracker/internal/db"
	"bus-tracker/internal/fleet"
)

var ErrNoSession = errors.New("no session")

// Store persists the single session blob of this device.
type Store interface {
	Load(ctx context.Context) (fleet.Session, error)
	Save(ctx context.Context, s fleet.Session) error
	Clear(ctx context.Context) error
}

// SQLStore keeps the blob in a key/value table on sqlite or postgres.
type SQLStore struct {
	db      *sql.DB
	dialect db.Dialect
	key     string
	now     func() time.Time
}

func NewSQLStore(conn *sql.DB, dialect db.Dialect, key string) *SQLStore {
	return &SQLStore{db: conn, dialect: dialect, key: key, now: time.Now}
}

// Migrate creates the sessions table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS sessions (
	key        TEXT PRIMARY KEY,
	blob       TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) (fleet.Session, error) {
	q := `SELECT blob FROM sessions WHERE key = ` + s.dialect.Placeholder(1)
	var blob string
	if err := s.db.QueryRowContext(ctx, q, s.key).Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return fleet.DecodeSession([]byte(blob))
}

func (s *SQLStore) Save(ctx context.Context, sess fleet.Session) error {
	blob, err := fleet.EncodeSession(sess)
	if err != nil {
		return err
	}
	p := s.dialect.Placeholder
	q := fmt.Sprintf(`INSERT INTO sessions (key, blob, updated_at) VALUES (%s, %s, %s)
ON CONFLICT (key) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`, p(1), p(2), p(3))
	if _, err := s.db.ExecContext(ctx, q, s.key, string(blob), s.now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the blob. Clearing an absent session is not an error.
func (s *SQLStore) Clear(ctx context.Context) error {
	q := `DELETE FROM sessions WHERE key = ` + s.dialect.Placeholder(1)
	if _, err := s.db.ExecContext(ctx, q, s.key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
