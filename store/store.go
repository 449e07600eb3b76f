// Package store archives generated documents per consultation session.
//
// Workflow state is never persisted; the archive holds finished results so
// the surrounding product can list what a session produced.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record ID does not exist.
var ErrNotFound = errors.New("not found")

// Record is one archived generated document.
type Record struct {
	// ID is the unique record identifier, assigned by the caller.
	ID string

	// SessionID ties the record to a consultation session.
	SessionID string

	// DocumentType is the schema label the document was generated under.
	DocumentType string

	// Fields holds the generated field contents, keyed by field name.
	Fields map[string]string

	// CreatedAt is when the record was archived (UTC).
	CreatedAt time.Time
}

// Store persists generated documents.
//
// Implementations:
//   - In-memory (for testing and single-process development, see memory.go)
//   - SQLite (single-file local persistence, see sqlite.go)
//   - MySQL (shared multi-instance persistence, see mysql.go)
type Store interface {
	// Save archives one record. An existing record with the same ID is
	// replaced.
	Save(ctx context.Context, rec Record) error

	// Get retrieves a record by ID. Returns ErrNotFound if it does not
	// exist.
	Get(ctx context.Context, id string) (Record, error)

	// BySession lists all records for a session, oldest first.
	BySession(ctx context.Context, sessionID string) ([]Record, error)

	// Close releases any underlying resources.
	Close() error
}
