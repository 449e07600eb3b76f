package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL implementation of Store.
//
// Designed for multi-instance deployments sharing one archive. The DSN
// must enable parseTime, e.g.:
//
//	user:password@tcp(127.0.0.1:3306)/clinico?parseTime=true
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a MySQL-backed archive and migrates the schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS documents (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			session_id VARCHAR(128) NOT NULL,
			document_type VARCHAR(64) NOT NULL,
			fields JSON NOT NULL,
			created_at TIMESTAMP(6) NOT NULL,
			INDEX idx_documents_session (session_id, created_at)
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

// Save archives one record (implements Store).
func (s *MySQLStore) Save(ctx context.Context, rec Record) error {
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
		ON DUPLICATE KEY UPDATE
			session_id = VALUES(session_id),
			document_type = VALUES(document_type),
			fields = VALUES(fields),
			created_at = VALUES(created_at)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.DocumentType, string(fieldsJSON), rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// Get retrieves a record by ID (implements Store).
func (s *MySQLStore) Get(ctx context.Context, id string) (Record, error) {
	if err := s.guard(); err != nil {
		return Record{}, err
	}

	query := `
		SELECT id, session_id, document_type, fields, created_at
		FROM documents
		WHERE id = ?
	`
	rec, err := scanMySQLRecord(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load record: %w", err)
	}
	return rec, nil
}

// BySession lists a session's records oldest first (implements Store).
func (s *MySQLStore) BySession(ctx context.Context, sessionID string) ([]Record, error) {
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
		rec, err := scanMySQLRecord(rows)
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

// Ping verifies the database connection is alive.
func (s *MySQLStore) Ping(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection. Calling Close multiple times is
// safe.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *MySQLStore) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// scanMySQLRecord scans a row whose created_at arrives as time.Time via
// the parseTime DSN option.
func scanMySQLRecord(row rowScanner) (Record, error) {
	var (
		rec        Record
		fieldsJSON string
	)
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.DocumentType, &fieldsJSON, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	return rec, nil
}
