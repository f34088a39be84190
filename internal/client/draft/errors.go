package draft

import "errors"

var (
	// ErrSnapshotNotFound indicates that no snapshot exists for the entity
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrForeignClient indicates an attempt to store a dirty snapshot authored by another client
	ErrForeignClient = errors.New("dirty snapshot must be authored by the local client")
)
