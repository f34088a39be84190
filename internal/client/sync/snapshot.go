package sync

import (
	"github.com/iudanet/draftkeeper/internal/models"
	"github.com/iudanet/draftkeeper/pkg/api"
)

// ToSyncSnapshot builds the outbound transport payload of a stored snapshot.
// The dirty flag is local state and does not travel.
func ToSyncSnapshot[T any](draft models.DraftSnapshot[T]) api.SyncSnapshot[T] {
	return api.SyncSnapshot[T]{
		Data:       draft.Data,
		EntityType: draft.EntityType,
		EntityID:   draft.EntityID,
		Metadata: api.Metadata{
			ClientID:  draft.Metadata.ClientID,
			UpdatedAt: draft.Metadata.UpdatedAt,
			Version:   draft.Metadata.Version,
		},
	}
}

// FromSyncSnapshot converts a server snapshot into a clean local baseline.
func FromSyncSnapshot[T any](remote api.SyncSnapshot[T]) models.DraftSnapshot[T] {
	return models.DraftSnapshot[T]{
		Data:       remote.Data,
		EntityType: remote.EntityType,
		EntityID:   remote.EntityID,
		Metadata: models.DraftMetadata{
			ClientID:  remote.Metadata.ClientID,
			UpdatedAt: remote.Metadata.UpdatedAt,
			Version:   remote.Metadata.Version,
		},
		Dirty: false,
	}
}
