// Package docstore keeps collections of JSON documents in PostgreSQL and
// addresses them by "collection/id" paths.
//
// Every document lives in one table keyed by (collection, id). Reads return a
// Snapshot that reports whether the document exists; a missing document is not
// an error. Writes are single statements and rely on Postgres for atomicity.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Schema creates the backing table.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_collection_created_idx ON documents (collection, created_at);
`

var (
	ErrInvalidPath = errors.New("invalid document path")
	ErrNotFound    = errors.New("document not found")
)

// Store is a document store over a *sql.DB.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the handle for callers that need collection-specific queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

// Snapshot is the state of one document at read time.
type Snapshot struct {
	Collection string
	ID         string
	Exists     bool
	Data       map[string]interface{}
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Get returns the value at a dotted field path, e.g. "delivery.state".
func (s *Snapshot) Get(field string) (interface{}, bool) {
	if s == nil || !s.Exists {
		return nil, false
	}
	var cur interface{} = s.Data
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// SplitPath splits "collection/id". Nested paths are not supported.
func SplitPath(path string) (string, string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return parts[0], parts[1], nil
}

// Get reads one document. A missing document yields Exists == false.
func (s *Store) Get(ctx context.Context, path string) (*Snapshot, error) {
	collection, id, err := SplitPath(path)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Collection: collection, ID: id}
	var raw []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw, &snap.CreatedAt, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}

	if snap.Data, err = DecodeData(raw); err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	snap.Exists = true
	return snap, nil
}

// Add appends a document under a generated id and returns the id.
func (s *Store) Add(ctx context.Context, collection string, data interface{}) (string, error) {
	id := uuid.New().String()
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode %s document: %w", collection, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)`,
		collection, id, raw,
	); err != nil {
		return "", fmt.Errorf("add to %s: %w", collection, err)
	}
	return id, nil
}

// Create inserts a document under a caller-chosen id unless one already
// exists. It reports whether this call created it.
func (s *Store) Create(ctx context.Context, collection, id string, data interface{}) (bool, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("encode %s document: %w", collection, err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3) ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, raw,
	)
	if err != nil {
		return false, fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return n == 1, nil
}

// Merge shallow-merges fields into an existing document.
func (s *Store) Merge(ctx context.Context, path string, fields map[string]interface{}) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode merge for %s: %w", path, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`,
		collection, id, raw,
	)
	if err != nil {
		return fmt.Errorf("merge %s: %w", path, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("merge %s: %w", path, ErrNotFound)
	}
	return nil
}

// DecodeData decodes a JSONB column value. NULL decodes to an empty map.
func DecodeData(raw []byte) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	return data, nil
}
