package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/draftkeeper/internal/client/storage"
)

// Get retrieves the value stored under key
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `SELECT value FROM kv_entries WHERE namespace = ? AND key = ?`

	var value []byte
	err = db.QueryRowContext(ctx, query, s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value: %w", err)
	}

	return value, nil
}

// Set stores or overwrites the value under key
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	query := `
		INSERT INTO kv_entries (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at
	`

	if value == nil {
		value = []byte{}
	}

	if _, err := db.ExecContext(ctx, query, s.namespace, key, value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to save value: %w", err)
	}

	return nil
}

// Delete removes key from the namespace
func (s *Storage) Delete(ctx context.Context, key string) error {
	db, release, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	query := `DELETE FROM kv_entries WHERE namespace = ? AND key = ?`

	if _, err := db.ExecContext(ctx, query, s.namespace, key); err != nil {
		return fmt.Errorf("failed to delete value: %w", err)
	}

	return nil
}

// Keys returns keys with the given prefix in byte order
func (s *Storage) Keys(ctx context.Context, prefix string) ([]string, error) {
	db, release, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	// substr вместо LIKE: префикс может содержать '%' и '_'
	query := `
		SELECT key FROM kv_entries
		WHERE namespace = ? AND substr(key, 1, length(?)) = ?
		ORDER BY key
	`

	rows, err := db.QueryContext(ctx, query, s.namespace, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}

	return keys, nil
}
