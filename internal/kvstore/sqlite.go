package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/wtap-core/internal/infrastructure/database"
)

// SQLiteStore keeps entries in the kv_entries table.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore returns a Store backed by db. The kv_entries migration
// must have been applied.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, ns, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv_entries WHERE namespace = ? AND key = ?", ns, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", ns, key, err)
	}
	return value, nil
}

// Apply implements Store.
func (s *SQLiteStore) Apply(ctx context.Context, ns string, sets map[string][]byte, deletes []string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for key, value := range sets {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO kv_entries (namespace, key, value, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(namespace, key) DO UPDATE SET
					value = excluded.value,
					updated_at = excluded.updated_at`,
				ns, key, value, now,
			); err != nil {
				return fmt.Errorf("writing %s/%s: %w", ns, key, err)
			}
		}
		for _, key := range deletes {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM kv_entries WHERE namespace = ? AND key = ?", ns, key,
			); err != nil {
				return fmt.Errorf("deleting %s/%s: %w", ns, key, err)
			}
		}
		return nil
	})
}
