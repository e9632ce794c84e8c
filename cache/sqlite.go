package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite cache database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS enhancements (
		unit_id     TEXT NOT NULL,
		phase       TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		payload     BLOB NOT NULL,
		created_at  TEXT NOT NULL,
		PRIMARY KEY (unit_id, phase)
	);
	CREATE INDEX IF NOT EXISTS idx_enhancements_fingerprint ON enhancements(fingerprint);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the stored payload when the fingerprint matches.
func (s *SQLiteStore) Get(ctx context.Context, unitID string, phase Phase, fingerprint string) ([]byte, bool, error) {
	var storedFP string
	var payload []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, payload FROM enhancements WHERE unit_id = ? AND phase = ?`,
		unitID, string(phase))
	if err := row.Scan(&storedFP, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	if storedFP != fingerprint {
		return nil, false, nil
	}
	return payload, true, nil
}

// Put upserts the record for (unitID, phase).
func (s *SQLiteStore) Put(ctx context.Context, unitID string, phase Phase, fingerprint string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enhancements (unit_id, phase, fingerprint, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(unit_id, phase) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			payload = excluded.payload,
			created_at = excluded.created_at`,
		unitID, string(phase), fingerprint, payload, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Stats reports the number of stored records.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enhancements`).Scan(&n); err != nil {
		return Stats{}, fmt.Errorf("count cache entries: %w", err)
	}
	return Stats{Entries: n}, nil
}

// Clear removes all records.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM enhancements`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
