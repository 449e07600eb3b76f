package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It archives documents in a single-file database. Designed for:
//   - Development and testing with zero setup
//   - Single-process deployments needing durable results
//
// SQLiteStore uses WAL mode for concurrent reads.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a SQLite-backed archive.
//
// The path specifies the database file location; ":memory:" gives an
// in-memory database whose data is lost on close. The store creates the
// file and schema on first use and enables WAL mode.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT NOT NULL PRIMARY KEY,
			session_id TEXT NOT NULL,
			document_type TEXT NOT NULL,
			fields TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_documents_session ON documents(session_id, created_at)"); err != nil {
		return fmt.Errorf("failed to create idx_documents_session: %w", err)
	}
	return nil
}

// Save archives one record (implements Store). An existing record with
// the same ID is replaced.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	if err := s.guard(); err != nil {
		return err
	}

	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	query := `
		INSERT INTO documents (id, session_id, document_type, fields, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			document_type = excluded.document_type,
			fields = excluded.fields,
			created_at = excluded.created_at
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.DocumentType, string(fieldsJSON),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// Get retrieves a record by ID (implements Store).
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	if err := s.guard(); err != nil {
		return Record{}, err
	}

	query := `
		SELECT id, session_id, document_type, fields, created_at
		FROM documents
		WHERE id = ?
	`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load record: %w", err)
	}
	return rec, nil
}

// BySession lists a session's records oldest first (implements Store).
func (s *SQLiteStore) BySession(ctx context.Context, sessionID string) ([]Record, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, session_id, document_type, fields, created_at
		FROM documents
		WHERE session_id = ?
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return out, nil
}

// Ping verifies the database connection is alive. Useful for health checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection. Calling Close multiple times is
// safe.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

func (s *SQLiteStore) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec        Record
		fieldsJSON string
		createdAt  string
	)
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.DocumentType, &fieldsJSON, &createdAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	rec.CreatedAt = ts
	return rec, nil
}
