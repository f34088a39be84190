package boltdb

import (
	"bytes"
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/draftkeeper/internal/client/storage"
)

// Get retrieves the value stored under key
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.view(ctx, func(b *bbolt.Bucket) error {
		data := b.Get([]byte(key))
		if data == nil {
			return storage.ErrKeyNotFound
		}

		// Значение валидно только внутри транзакции - копируем
		value = make([]byte, len(data))
		copy(value, data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Set stores or overwrites the value under key
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	err := s.update(ctx, func(b *bbolt.Bucket) error {
		if err := b.Put([]byte(key), value); err != nil {
			return fmt.Errorf("failed to save value: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// Delete removes key from the bucket
func (s *Storage) Delete(ctx context.Context, key string) error {
	err := s.update(ctx, func(b *bbolt.Bucket) error {
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete transaction failed: %w", err)
	}

	return nil
}

// Keys returns keys with the given prefix in byte order
func (s *Storage) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	p := []byte(prefix)

	err := s.view(ctx, func(b *bbolt.Bucket) error {
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	return keys, nil
}
