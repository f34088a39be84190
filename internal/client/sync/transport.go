package sync

import (
	"context"

	"github.com/iudanet/draftkeeper/pkg/api"
)

//go:generate moq -out transport_mock.go . Transport

// Transport moves snapshots between this client and the server.
type Transport[T any] interface {
	// Push offers a locally authored snapshot to the server and returns the
	// accepted copy. A stale push fails with *api.ConflictError carrying the
	// server copy.
	Push(ctx context.Context, snapshot api.SyncSnapshot[T]) (*api.SyncSnapshot[T], error)

	// Pull fetches the server copy of an entity.
	// Returns api.ErrSnapshotNotFound if the server has none
	Pull(ctx context.Context, entityType, entityID string) (*api.SyncSnapshot[T], error)
}
