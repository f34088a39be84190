package storage

import "errors"

// Common client storage errors
var (
	// ErrKeyNotFound indicates that no value is stored under the key
	ErrKeyNotFound = errors.New("key not found")

	// ErrStorageUnavailable indicates that the environment has no usable persistent storage
	ErrStorageUnavailable = errors.New("storage is not available")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrCorruptedValue indicates that a stored value cannot be decoded
	ErrCorruptedValue = errors.New("stored value is corrupted")
)
