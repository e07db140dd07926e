//go:build !js

// SQLite backend, through the database/sql interface of ncruces/go-sqlite3.
// Browser builds use FSStore over IndexedDB instead.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/kittclouds/nodegraph/pkg/graph"
)

// SQLiteStore is the SQLite-backed node store.
// Safe for concurrent use.
type SQLiteStore struct {
	mu  sync.RWMutex
	db  *sql.DB
	now func() time.Time
}

// schema keeps every revision of a node (temporal table pattern).
const schema = `
-- Composite primary key (id, version) enables full version history.
-- ordinal records first-insertion order and survives updates.
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    type TEXT NOT NULL,
    payload TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    valid_from INTEGER NOT NULL,
    valid_to INTEGER,
    is_current INTEGER DEFAULT 1,
    PRIMARY KEY (id, version)
);

-- Partial indexes for current versions (fast queries)
CREATE INDEX IF NOT EXISTS idx_nodes_current ON nodes(id) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_nodes_ordinal ON nodes(ordinal) WHERE is_current = 1;
`

// NewSQLiteStore creates a new in-memory SQLite store.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection, so ":memory:" is a single database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// =============================================================================
// Node CRUD
// =============================================================================

// UpsertNode writes node as the new current version of its id.
// The previous version, if any, is closed rather than overwritten.
func (s *SQLiteStore) UpsertNode(ctx context.Context, node *graph.Node) error {
	payload, err := ToJSON(node)
	if err != nil {
		return fmt.Errorf("failed to encode node %s: %w", node.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()

	var currentVersion int
	var ordinal, createdAt int64
	err = tx.QueryRowContext(ctx, `
		SELECT version, ordinal, created_at FROM nodes
		WHERE id = ? AND is_current = 1
	`, node.ID).Scan(&currentVersion, &ordinal, &createdAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(ordinal), 0) + 1 FROM nodes`,
		).Scan(&ordinal); err != nil {
			return fmt.Errorf("failed to allocate ordinal: %w", err)
		}
		createdAt = now

	case err != nil:
		return fmt.Errorf("failed to read current version of %s: %w", node.ID, err)

	default:
		// Close old current version
		if _, err := tx.ExecContext(ctx, `
			UPDATE nodes SET valid_to = ?, is_current = 0
			WHERE id = ? AND is_current = 1
		`, now, node.ID); err != nil {
			return fmt.Errorf("failed to close version %d of %s: %w", currentVersion, node.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO nodes (id, version, type, payload, ordinal, created_at, valid_from, valid_to, is_current)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, 1)
	`, node.ID, currentVersion+1, node.Type, string(payload), ordinal, createdAt, now); err != nil {
		return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
	}

	return tx.Commit()
}

// GetNode retrieves the current version of a node by id.
func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM nodes WHERE id = ? AND is_current = 1
	`, id).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return FromJSON([]byte(payload))
}

// ListNodes returns the current version of every node in first-insertion order.
func (s *SQLiteStore) ListNodes(ctx context.Context) ([]*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryNodes(ctx, `
		SELECT payload FROM nodes WHERE is_current = 1 ORDER BY ordinal
	`)
}

// ListNodesByType returns the current nodes of one type through the type index.
func (s *SQLiteStore) ListNodesByType(ctx context.Context, typ string) ([]*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryNodes(ctx, `
		SELECT payload FROM nodes WHERE type = ? AND is_current = 1 ORDER BY ordinal
	`, typ)
}

func (s *SQLiteStore) queryNodes(ctx context.Context, query string, args ...any) ([]*graph.Node, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*graph.Node
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		node, err := FromJSON([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to decode node: %w", err)
		}
		nodes = append(nodes, node)
	}

	return nodes, rows.Err()
}

// CountNodes returns the number of current nodes.
func (s *SQLiteStore) CountNodes(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE is_current = 1`).Scan(&count)
	return count, err
}

// ListNodeVersions returns all versions of a node, newest first.
func (s *SQLiteStore) ListNodeVersions(ctx context.Context, id string) ([]*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT version, payload, valid_from, valid_to, is_current
		FROM nodes WHERE id = ? ORDER BY version DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		var v Version
		var payload string
		var validTo sql.NullInt64
		var isCurrent int

		if err := rows.Scan(&v.Version, &payload, &v.ValidFrom, &validTo, &isCurrent); err != nil {
			return nil, err
		}
		if v.Node, err = FromJSON([]byte(payload)); err != nil {
			return nil, fmt.Errorf("failed to decode version %d of %s: %w", v.Version, id, err)
		}
		v.IsCurrent = isCurrent != 0
		if validTo.Valid {
			v.ValidTo = &validTo.Int64
		}
		versions = append(versions, &v)
	}

	return versions, rows.Err()
}

// Compile-time interface check
var _ VersionedStorer = (*SQLiteStore)(nil)
