// Package store is the append-only audit log of link snapshots.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hazyhaar/linkaudit/dbopen"
)

var (
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("store: record not found")
	// ErrInvalidRecord is returned by Append before touching the database.
	ErrInvalidRecord = errors.New("store: invalid record")
)

// AuditStore is the only write path to the audit log. There is no update
// and no delete.
type AuditStore interface {
	Append(ctx context.Context, r NewRecord) (Record, error)
	Get(ctx context.Context, id int64) (Record, error)
}

// Store is the SQLite/libSQL implementation of AuditStore, plus read-only
// reporting queries.
type Store struct {
	DB *sql.DB

	mu     sync.Mutex
	lastMS int64
	now    func() time.Time
}

var _ AuditStore = (*Store)(nil)

// Open opens (or creates) the audit database at dsn and applies the schema.
// dsn is a file path or a libsql:// URL.
func Open(dsn string, opts ...dbopen.Option) (*Store, error) {
	all := []dbopen.Option{dbopen.WithMkdirAll()}
	for _, s := range Schema {
		all = append(all, dbopen.WithSchema(s))
	}
	db, err := dbopen.Open(dsn, append(all, opts...)...)
	if err != nil {
		return nil, err
	}
	return New(db)
}

// New wraps an already-open database whose schema is applied.
func New(db *sql.DB) (*Store, error) {
	s := &Store{DB: db, now: time.Now}
	var last sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(created_at) FROM external_link_snapshot`).Scan(&last); err != nil {
		return nil, fmt.Errorf("store: read last created_at: %w", err)
	}
	s.lastMS = last.Int64
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
