package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/draftkeeper/internal/client/storage"
	"github.com/iudanet/draftkeeper/internal/models"
	"github.com/iudanet/draftkeeper/internal/validation"
)

// Store owns the lifecycle of draft snapshots in one namespaced local store.
//
// Mutations of the same entity are serialized by a per-key lock, so
// concurrent SaveDraft calls compose instead of dropping each other's
// changes. Operations on different entities never contend.
//
// When the adapter reports that storage is unavailable, reads return empty
// results and mutations fail with storage.ErrStorageUnavailable.
type Store[T any] struct {
	adapter  storage.Adapter
	locks    *keyLocks
	logger   *slog.Logger
	now      func() time.Time
	clientID string
}

// New creates a draft store over adapter. cfg.ClientID stamps every locally
// authored write.
func New[T any](adapter storage.Adapter, cfg storage.Config, opts ...Option) (*Store[T], error) {
	if adapter == nil {
		return nil, fmt.Errorf("storage adapter cannot be nil")
	}
	if err := validation.ValidateClientID(cfg.ClientID); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Store[T]{
		adapter:  adapter,
		locks:    newKeyLocks(),
		logger:   o.logger.With("namespace", cfg.Namespace()),
		now:      o.now,
		clientID: cfg.ClientID,
	}, nil
}

// ClientID returns the identity stamped on local writes
func (s *Store[T]) ClientID() string {
	return s.clientID
}

// Available reports whether the underlying storage can be used
func (s *Store[T]) Available() bool {
	return s.adapter.IsAvailable()
}

// SaveDraft shallow-merges in.Data onto the current draft (or an empty
// object) and persists the result as dirty.
func (s *Store[T]) SaveDraft(ctx context.Context, in SaveInput) (*models.DraftSnapshot[T], error) {
	return s.Update(ctx, in.EntityType, in.EntityID, func(current *models.DraftSnapshot[T]) (*models.DraftSnapshot[T], error) {
		fields := models.Fields{}
		if current != nil {
			var err error
			if fields, err = models.ToFields(current.Data); err != nil {
				return nil, fmt.Errorf("failed to read current draft: %w", err)
			}
		}

		patched, err := fields.Patch(in.Data)
		if err != nil {
			return nil, err
		}

		data, err := models.FromFields[T](patched)
		if err != nil {
			return nil, fmt.Errorf("failed to apply draft update: %w", err)
		}

		return &models.DraftSnapshot[T]{
			Data:       data,
			EntityType: in.EntityType,
			EntityID:   in.EntityID,
			Metadata:   s.stamp(current, in.Metadata),
			Dirty:      true,
		}, nil
	})
}

// WriteSnapshot persists authoritative data, replacing whatever is stored.
// It seeds clean baselines and commits reconciled drafts.
func (s *Store[T]) WriteSnapshot(ctx context.Context, in WriteInput[T]) (*models.DraftSnapshot[T], error) {
	return s.Update(ctx, in.EntityType, in.EntityID, func(current *models.DraftSnapshot[T]) (*models.DraftSnapshot[T], error) {
		return &models.DraftSnapshot[T]{
			Data:       in.Data,
			EntityType: in.EntityType,
			EntityID:   in.EntityID,
			Metadata:   s.stamp(current, in.Metadata),
			Dirty:      in.Dirty,
		}, nil
	})
}

// GetSnapshot returns the stored snapshot, or nil when there is none or
// storage is unavailable.
func (s *Store[T]) GetSnapshot(ctx context.Context, entityType, entityID string) (*models.DraftSnapshot[T], error) {
	if err := validation.ValidateEntity(entityType, entityID); err != nil {
		return nil, err
	}

	if !s.adapter.IsAvailable() {
		s.logger.Debug("Storage unavailable, snapshot treated as absent", "entity_type", entityType, "entity_id", entityID)
		return nil, nil
	}

	key := models.EntityKey(entityType, entityID)
	snapshot, err := s.load(ctx, key)
	if errors.Is(err, storage.ErrCorruptedValue) {
		s.dropCorrupted(ctx, key)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// ListSnapshots returns snapshots ordered by key. DirtyOnly restricts the
// result to snapshots pending sync.
func (s *Store[T]) ListSnapshots(ctx context.Context, opts ListOptions) ([]*models.DraftSnapshot[T], error) {
	result := []*models.DraftSnapshot[T]{}

	prefix := ""
	if opts.EntityType != "" {
		if err := validation.ValidateEntityType(opts.EntityType); err != nil {
			return nil, err
		}
		prefix = models.TypePrefix(opts.EntityType)
	}

	if !s.adapter.IsAvailable() {
		s.logger.Debug("Storage unavailable, listing nothing")
		return result, nil
	}

	keys, err := s.adapter.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	for _, key := range keys {
		if _, _, ok := models.SplitEntityKey(key); !ok {
			// Служебные ключи (например, идентификатор клиента) снапшотами не являются
			continue
		}

		snapshot, err := s.load(ctx, key)
		if errors.Is(err, storage.ErrCorruptedValue) {
			s.dropCorrupted(ctx, key)
			continue
		}
		if err != nil {
			return nil, err
		}
		if snapshot == nil {
			// Удален между Keys и Get
			continue
		}

		if opts.DirtyOnly && !snapshot.Dirty {
			continue
		}
		result = append(result, snapshot)
	}

	return result, nil
}

// MarkClean flags the snapshot as confirmed by the server. Non-zero fields
// of patch overwrite the stored metadata; data is left untouched.
func (s *Store[T]) MarkClean(ctx context.Context, entityType, entityID string, patch MetadataPatch) (*models.DraftSnapshot[T], error) {
	return s.setDirty(ctx, entityType, entityID, false, patch)
}

// MarkDirty flags the snapshot as pending sync. A dirty snapshot is always
// authored locally, so the client id is restamped with the store's identity.
func (s *Store[T]) MarkDirty(ctx context.Context, entityType, entityID string, patch MetadataPatch) (*models.DraftSnapshot[T], error) {
	if patch.ClientID == "" {
		patch.ClientID = s.clientID
	}
	return s.setDirty(ctx, entityType, entityID, true, patch)
}

func (s *Store[T]) setDirty(ctx context.Context, entityType, entityID string, dirty bool, patch MetadataPatch) (*models.DraftSnapshot[T], error) {
	return s.Update(ctx, entityType, entityID, func(current *models.DraftSnapshot[T]) (*models.DraftSnapshot[T], error) {
		if current == nil {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, models.EntityKey(entityType, entityID))
		}

		next := *current
		next.Dirty = dirty
		if patch.ClientID != "" {
			next.Metadata.ClientID = patch.ClientID
		}
		if patch.UpdatedAt != 0 {
			next.Metadata.UpdatedAt = patch.UpdatedAt
		}
		if patch.Version != 0 {
			next.Metadata.Version = patch.Version
		}

		return &next, nil
	})
}

// RemoveSnapshot deletes the snapshot of one entity
func (s *Store[T]) RemoveSnapshot(ctx context.Context, entityType, entityID string) error {
	_, err := s.Update(ctx, entityType, entityID, func(*models.DraftSnapshot[T]) (*models.DraftSnapshot[T], error) {
		return nil, nil
	})
	return err
}

// Clear removes every snapshot of the namespace
func (s *Store[T]) Clear(ctx context.Context) error {
	_, err := s.purge(ctx, func(*models.DraftSnapshot[T]) bool { return true }, true)
	return err
}

// Purge deletes every clean snapshot matching predicate and returns how
// many were removed. Dirty snapshots are never purged, whatever the
// predicate says: they hold work that has not reached the server yet.
func (s *Store[T]) Purge(ctx context.Context, predicate Predicate[T]) (int, error) {
	return s.purge(ctx, predicate, false)
}

func (s *Store[T]) purge(ctx context.Context, predicate Predicate[T], includeDirty bool) (int, error) {
	if predicate == nil {
		return 0, fmt.Errorf("purge predicate cannot be nil")
	}

	if !s.adapter.IsAvailable() {
		return 0, fmt.Errorf("purge: %w", storage.ErrStorageUnavailable)
	}

	keys, err := s.adapter.Keys(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to list keys: %w", err)
	}

	removed := 0
	for _, key := range keys {
		if _, _, ok := models.SplitEntityKey(key); !ok {
			continue
		}

		deleted, err := s.purgeKey(ctx, key, predicate, includeDirty)
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}

	s.logger.Debug("Purged snapshots", "removed", removed)

	return removed, nil
}

func (s *Store[T]) purgeKey(ctx context.Context, key string, predicate Predicate[T], includeDirty bool) (bool, error) {
	unlock := s.locks.lock(key)
	defer unlock()

	snapshot, err := s.load(ctx, key)
	if errors.Is(err, storage.ErrCorruptedValue) {
		s.logger.Warn("Dropping corrupted snapshot", "key", key, "error", err)
		return true, s.delete(ctx, key)
	}
	if err != nil {
		return false, err
	}
	if snapshot == nil {
		return false, nil
	}

	if snapshot.Dirty && !includeDirty {
		return false, nil
	}
	if !predicate(snapshot) {
		return false, nil
	}

	return true, s.delete(ctx, key)
}

// Update runs fn under the entity's lock: the snapshot fn receives cannot
// change until the value fn returns is persisted. Returning nil deletes the
// snapshot. A corrupted stored value is passed to fn as absent.
func (s *Store[T]) Update(ctx context.Context, entityType, entityID string, fn UpdateFunc[T]) (*models.DraftSnapshot[T], error) {
	if err := validation.ValidateEntity(entityType, entityID); err != nil {
		return nil, err
	}

	if !s.adapter.IsAvailable() {
		return nil, fmt.Errorf("write %s: %w", models.EntityKey(entityType, entityID), storage.ErrStorageUnavailable)
	}

	key := models.EntityKey(entityType, entityID)

	unlock := s.locks.lock(key)
	defer unlock()

	current, err := s.load(ctx, key)
	if errors.Is(err, storage.ErrCorruptedValue) {
		s.logger.Warn("Corrupted snapshot treated as absent", "key", key, "error", err)
		current = nil
	} else if err != nil {
		return nil, err
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	if next == nil {
		if err := s.delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if next.EntityType != entityType || next.EntityID != entityID {
		return nil, fmt.Errorf("update of %s produced snapshot for %s", key, next.Key())
	}
	if next.Dirty && next.Metadata.ClientID != s.clientID {
		return nil, fmt.Errorf("%w: %s is authored by %q", ErrForeignClient, key, next.Metadata.ClientID)
	}

	if err := s.persist(ctx, next); err != nil {
		return nil, err
	}

	s.logger.Debug("Snapshot saved",
		"key", key,
		"dirty", next.Dirty,
		"version", next.Metadata.Version,
		"client_id", next.Metadata.ClientID)

	return next, nil
}

// stamp заполняет пропущенные поля метаданных
func (s *Store[T]) stamp(current *models.DraftSnapshot[T], patch MetadataPatch) models.DraftMetadata {
	meta := models.DraftMetadata{
		ClientID:  patch.ClientID,
		UpdatedAt: patch.UpdatedAt,
		Version:   patch.Version,
	}

	if meta.ClientID == "" {
		meta.ClientID = s.clientID
	}
	if meta.UpdatedAt == 0 {
		meta.UpdatedAt = s.now().UnixMilli()
	}
	if meta.Version == 0 {
		meta.Version = 1
		if current != nil {
			meta.Version = current.Metadata.Version + 1
		}
	}

	return meta
}

// load читает и декодирует снапшот; отсутствие - nil без ошибки.
// Нечитаемое значение возвращается как storage.ErrCorruptedValue.
func (s *Store[T]) load(ctx context.Context, key string) (*models.DraftSnapshot[T], error) {
	raw, err := s.adapter.Get(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		if errors.Is(err, storage.ErrCorruptedValue) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	var snapshot models.DraftSnapshot[T]
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrCorruptedValue, key, err)
	}
	if snapshot.Key() != key {
		return nil, fmt.Errorf("%w: %s holds snapshot for %s", storage.ErrCorruptedValue, key, snapshot.Key())
	}

	return &snapshot, nil
}

func (s *Store[T]) persist(ctx context.Context, snapshot *models.DraftSnapshot[T]) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := s.adapter.Set(ctx, snapshot.Key(), raw); err != nil {
		return fmt.Errorf("failed to save %s: %w", snapshot.Key(), err)
	}

	return nil
}

func (s *Store[T]) delete(ctx context.Context, key string) error {
	if err := s.adapter.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// dropCorrupted удаляет испорченную запись, найденную при чтении без блокировки.
// Значение перечитывается под блокировкой: его могли успеть перезаписать.
func (s *Store[T]) dropCorrupted(ctx context.Context, key string) {
	unlock := s.locks.lock(key)
	defer unlock()

	if _, err := s.load(ctx, key); !errors.Is(err, storage.ErrCorruptedValue) {
		return
	}

	s.logger.Warn("Dropping corrupted snapshot", "key", key)
	if err := s.delete(ctx, key); err != nil {
		s.logger.Warn("Failed to drop corrupted snapshot", "key", key, "error", err)
	}
}
