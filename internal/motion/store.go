package motion

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type migration struct {
	Version int
	UpSQL   string
}

var migrations = []migration{
	{
		Version: 1,
		UpSQL: `
CREATE TABLE IF NOT EXISTS moves (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	keyframes_json TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS moves_created_at ON moves(created_at);
`,
	},
}

// Store is a Library backed by a sqlite file.
type Store struct {
	db *sql.DB
}

var _ Library = (*Store)(nil)

// OpenStore opens or creates the library at path and applies migrations.
// Use ":memory:" for a throwaway database.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create library dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, ?)`,
			m.Version, ts(time.Now())); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save validates and upserts m.
func (s *Store) Save(ctx context.Context, m Move) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	keyframes, err := json.Marshal(m.Keyframes)
	if err != nil {
		return fmt.Errorf("encode keyframes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO moves(id, name, keyframes_json, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name=excluded.name,
	keyframes_json=excluded.keyframes_json
`, m.ID.String(), m.Name, string(keyframes), ts(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("save move: %w", err)
	}
	return nil
}

// Get returns the move with id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Move, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, keyframes_json, created_at FROM moves WHERE id = ?`, id.String())
	m, err := scanMove(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Move{}, ErrMoveNotFound
	}
	if err != nil {
		return Move{}, fmt.Errorf("get move: %w", err)
	}
	return m, nil
}

// List returns all moves, oldest first.
func (s *Store) List(ctx context.Context) ([]Move, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, keyframes_json, created_at FROM moves ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list moves: %w", err)
	}
	defer rows.Close()

	var out []Move
	for rows.Next() {
		m, err := scanMove(rows)
		if err != nil {
			return nil, fmt.Errorf("list moves: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list moves: %w", err)
	}
	return out, nil
}

// Delete removes the move with id.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM moves WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete move: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete move: %w", err)
	}
	if n == 0 {
		return ErrMoveNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMove(row scanner) (Move, error) {
	var (
		id, name, keyframes, created string
	)
	if err := row.Scan(&id, &name, &keyframes, &created); err != nil {
		return Move{}, err
	}

	m := Move{Name: name}
	var err error
	if m.ID, err = uuid.Parse(id); err != nil {
		return Move{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(keyframes), &m.Keyframes); err != nil {
		return Move{}, fmt.Errorf("decode keyframes: %w", err)
	}
	if m.CreatedAt, err = time.Parse(tsLayout, created); err != nil {
		return Move{}, fmt.Errorf("parse created_at: %w", err)
	}
	return m, nil
}

// tsLayout is fixed width so created_at sorts lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}
