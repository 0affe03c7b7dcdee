package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/voltlab/netir/internal/cache"
)

// Get returns the artifact stored under fingerprint, or ok=false if no
// entry exists.
func (s *Store) Get(ctx context.Context, fingerprint string) (*cache.Artifact, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT kind, data, session_id, created_at
		FROM artifacts
		WHERE fingerprint = ?
	`, fingerprint)

	art := cache.Artifact{Fingerprint: fingerprint}
	var createdAt string
	err := row.Scan(&art.Kind, &art.Data, &art.SessionID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get artifact: %w", err)
	}
	art.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, false, fmt.Errorf("get artifact: parse created_at: %w", err)
	}
	return &art, true, nil
}

// Put inserts an artifact. Uses ON CONFLICT(fingerprint) DO NOTHING for
// idempotency: the fingerprint is a content hash, so an existing entry
// already holds identical bytes and is never overwritten.
func (s *Store) Put(ctx context.Context, art *cache.Artifact) error {
	createdAt := art.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (fingerprint, kind, data, session_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`,
		art.Fingerprint,
		art.Kind,
		art.Data,
		art.SessionID,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put artifact: %w", err)
	}
	return nil
}

// Count returns the number of stored artifacts, optionally filtered by
// kind ("" counts all).
func (s *Store) Count(ctx context.Context, kind string) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts WHERE kind = ?`, kind).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count artifacts: %w", err)
	}
	return n, nil
}
