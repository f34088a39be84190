package boltdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/draftkeeper/internal/client/storage"
)

// Storage represents BoltDB implementation of storage.Adapter.
// The database file is Config.DBName, values live in the bucket Config.StoreName.
type Storage struct {
	db     *bbolt.DB
	bucket []byte
	mu     sync.RWMutex // защищает db от гонки с Close
}

var _ storage.Adapter = (*Storage)(nil)

// New creates a new BoltDB storage instance
func New(ctx context.Context, cfg storage.Config) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	// Открываем BoltDB; таймаут не дает зависнуть на файле, занятом другим процессом
	db, err := bbolt.Open(cfg.DBName, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db, bucket: []byte(cfg.StoreName)}

	// Инициализируем bucket
	if err := s.initBucket(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize bucket: %w", err)
	}

	return s, nil
}

// Close closes the database connection. Subsequent calls are no-ops
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}

// IsAvailable reports whether the database is open
func (s *Storage) IsAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db != nil
}

// initBucket создает bucket хранилища если он не существует
func (s *Storage) initBucket() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.bucket); err != nil {
			return fmt.Errorf("failed to create %s bucket: %w", s.bucket, err)
		}
		return nil
	})
}

// view и update выполняют транзакцию под read-локом, чтобы Close
// не закрыл базу посреди операции
func (s *Storage) view(ctx context.Context, fn func(b *bbolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", s.bucket)
		}
		return fn(bucket)
	})
}

func (s *Storage) update(ctx context.Context, fn func(b *bbolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return fn(bucket)
	})
}
