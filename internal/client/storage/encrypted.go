package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/draftkeeper/internal/crypto"
)

// Encrypted seals every value of the wrapped adapter with AES-256-GCM.
// Keys stay in clear so prefix scans keep working; each value is bound to
// its key, so a value copied under another key fails to open.
type Encrypted struct {
	inner Adapter
	key   []byte
}

// NewEncrypted wraps inner with at-rest encryption using a 32-byte key
func NewEncrypted(inner Adapter, key []byte) (*Encrypted, error) {
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", crypto.KeySize, len(key))
	}

	k := make([]byte, len(key))
	copy(k, key)

	return &Encrypted{inner: inner, key: k}, nil
}

// IsAvailable delegates to the wrapped adapter
func (e *Encrypted) IsAvailable() bool {
	return e.inner.IsAvailable()
}

// Get opens the value stored under key.
// A value that fails authentication is reported as ErrCorruptedValue
func (e *Encrypted) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := e.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	plaintext, err := crypto.Open(sealed, e.key, []byte(key))
	if err != nil {
		if errors.Is(err, crypto.ErrOpenFailed) {
			return nil, fmt.Errorf("%w: %v", ErrCorruptedValue, err)
		}
		return nil, fmt.Errorf("failed to open value: %w", err)
	}

	return plaintext, nil
}

// Set seals value and stores it under key
func (e *Encrypted) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := crypto.Seal(value, e.key, []byte(key))
	if err != nil {
		return fmt.Errorf("failed to seal value: %w", err)
	}
	return e.inner.Set(ctx, key, sealed)
}

// Delete delegates to the wrapped adapter
func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

// Keys delegates to the wrapped adapter
func (e *Encrypted) Keys(ctx context.Context, prefix string) ([]string, error) {
	return e.inner.Keys(ctx, prefix)
}

// Close closes the wrapped adapter
func (e *Encrypted) Close() error {
	return e.inner.Close()
}
