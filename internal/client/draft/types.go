package draft

import "github.com/iudanet/draftkeeper/internal/models"

// MetadataPatch carries caller-supplied metadata. Zero fields are filled
// by the store: ClientID with the store's identity, UpdatedAt with the
// current time and Version with the previous version plus one.
type MetadataPatch struct {
	ClientID  string
	UpdatedAt int64
	Version   int64
}

// SaveInput описывает локальную правку, сделанную, например, в офлайне
type SaveInput struct {
	Data       map[string]any // Data частичные данные, накладываются поверх текущего черновика
	EntityType string
	EntityID   string
	Metadata   MetadataPatch
}

// WriteInput describes an authoritative snapshot. Data replaces the
// stored data wholesale and Dirty is taken as given.
type WriteInput[T any] struct {
	Data       T
	EntityType string
	EntityID   string
	Metadata   MetadataPatch
	Dirty      bool
}

// ListOptions filters ListSnapshots.
type ListOptions struct {
	EntityType string // пусто - все типы
	DirtyOnly  bool   // только снапшоты, ожидающие синхронизации
}

// Predicate selects snapshots for Purge.
type Predicate[T any] func(snapshot *models.DraftSnapshot[T]) bool

// UpdateFunc computes the next state of a snapshot from the current one
// (nil when absent). Returning nil removes the snapshot.
type UpdateFunc[T any] func(current *models.DraftSnapshot[T]) (*models.DraftSnapshot[T], error)
