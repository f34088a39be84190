package storage

import (
	"context"
	"fmt"
	"strings"
)

//go:generate moq -out adapter_mock.go . Adapter

// Adapter defines the key-value capability the draft store needs from a
// local persistent backend. This is the lowest storage layer: it moves opaque
// bytes and knows nothing about snapshots.
type Adapter interface {
	// IsAvailable reports whether persistent storage can be used at all.
	// It never blocks.
	IsAvailable() bool

	// Get returns the value stored under key
	// Returns ErrKeyNotFound if nothing is stored
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error
	Delete(ctx context.Context, key string) error

	// Keys returns all keys starting with prefix in ascending order.
	// An empty prefix lists the whole namespace
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the underlying store
	Close() error
}

// Config namespaces a physical store and fixes the identity stamped on
// locally authored writes.
type Config struct {
	DBName    string // DBName файл или имя базы
	StoreName string // StoreName bucket/раздел внутри базы
	ClientID  string // ClientID идентификатор этого клиента
}

// Namespace returns "dbName/storeName".
func (c Config) Namespace() string {
	return c.DBName + "/" + c.StoreName
}

// Validate проверяет, что конфигурация пригодна для открытия хранилища.
// ClientID здесь не нужен: адаптер работает только с пространством имен
func (c Config) Validate() error {
	if strings.TrimSpace(c.DBName) == "" {
		return fmt.Errorf("db name cannot be empty")
	}
	if strings.TrimSpace(c.StoreName) == "" {
		return fmt.Errorf("store name cannot be empty")
	}
	return nil
}
