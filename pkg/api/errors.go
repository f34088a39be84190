package api

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionConflict indicates that the server holds a newer copy than the pushed snapshot
	ErrVersionConflict = errors.New("version conflict")

	// ErrSnapshotNotFound indicates that the server has no copy of the entity
	ErrSnapshotNotFound = errors.New("snapshot not found on server")
)

// ConflictError carries the server copy that rejected a push.
// It matches ErrVersionConflict with errors.Is.
type ConflictError[T any] struct {
	Remote SyncSnapshot[T]
}

func (e *ConflictError[T]) Error() string {
	return fmt.Sprintf("%s: %s:%s at version %d by %s",
		ErrVersionConflict, e.Remote.EntityType, e.Remote.EntityID, e.Remote.Metadata.Version, e.Remote.Metadata.ClientID)
}

func (e *ConflictError[T]) Unwrap() error {
	return ErrVersionConflict
}
