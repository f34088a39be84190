package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/draftkeeper/internal/client/draft"
	"github.com/iudanet/draftkeeper/internal/merge"
	"github.com/iudanet/draftkeeper/internal/models"
	"github.com/iudanet/draftkeeper/pkg/api"
)

var (
	// ErrNoTransport is returned by network operations of a service built without a transport
	ErrNoTransport = errors.New("sync transport is not configured")

	// ErrPendingDraft is returned when a server snapshot would overwrite unsynced local changes
	ErrPendingDraft = errors.New("local draft has unsynced changes")
)

// Service ties the draft store, the merge engine and the transport together.
// It is the entry point for application code: local edits are queued while
// offline and flushed, pulled and reconciled once the server is reachable.
type Service[T any] struct {
	store     *draft.Store[T]
	transport Transport[T]
	logger    *slog.Logger
}

// NewService creates a new sync service. transport may be nil for purely
// offline use; Flush and Pull then fail with ErrNoTransport.
func NewService[T any](store *draft.Store[T], transport Transport[T], logger *slog.Logger) *Service[T] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service[T]{
		store:     store,
		transport: transport,
		logger:    logger,
	}
}

// ReconcileOutcome describes what ReconcileDraft persisted.
type ReconcileOutcome[T any] struct {
	Snapshot *models.DraftSnapshot[T] `json:"snapshot"`         // сохраненное состояние
	Result   *merge.Result[T]         `json:"result,omitempty"` // nil, если локальных правок не было и удаленный снапшот принят как есть
	Winner   merge.Winner             `json:"winner"`
}

// FlushResult contains flush operation results
type FlushResult[T any] struct {
	Pushed    int                   // количество принятых сервером снапшотов
	Failed    int                   // количество снапшотов, которые не удалось отправить
	Conflicts []api.SyncSnapshot[T] // серверные копии, отклонившие push; требуют ReconcileDraft
}

// PullResult contains the outcome of Pull
type PullResult[T any] struct {
	Remote    api.SyncSnapshot[T]
	Local     *models.DraftSnapshot[T] // локальное состояние после Pull
	Installed bool                     // false, если локальный черновик грязный и оставлен без изменений
}

// QueueDraftUpdate records a local edit as a dirty draft
func (s *Service[T]) QueueDraftUpdate(ctx context.Context, entityType, entityID string, patch map[string]any) (*models.DraftSnapshot[T], error) {
	snapshot, err := s.store.SaveDraft(ctx, draft.SaveInput{
		EntityType: entityType,
		EntityID:   entityID,
		Data:       patch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to queue draft update: %w", err)
	}

	s.logger.Debug("Draft update queued",
		"entity_type", entityType,
		"entity_id", entityID,
		"version", snapshot.Metadata.Version)

	return snapshot, nil
}

// GetDraft returns the local state of an entity, nil if there is none
func (s *Service[T]) GetDraft(ctx context.Context, entityType, entityID string) (*models.DraftSnapshot[T], error) {
	return s.store.GetSnapshot(ctx, entityType, entityID)
}

// ApplyRemoteSnapshot installs a server snapshot as the clean baseline.
// The remote metadata is stored as is. A dirty local draft is never
// overwritten: the call fails with ErrPendingDraft and the draft should be
// passed to ReconcileDraft instead.
func (s *Service[T]) ApplyRemoteSnapshot(ctx context.Context, remote api.SyncSnapshot[T]) (*models.DraftSnapshot[T], error) {
	local, installed, err := s.installBaseline(ctx, remote)
	if err != nil {
		return nil, fmt.Errorf("failed to apply remote snapshot: %w", err)
	}
	if !installed {
		return local, fmt.Errorf("%w: %s", ErrPendingDraft, local.Key())
	}

	return local, nil
}

// installBaseline пишет серверную копию как чистую базу, если локальный
// черновик отсутствует или уже синхронизирован
func (s *Service[T]) installBaseline(ctx context.Context, remote api.SyncSnapshot[T]) (*models.DraftSnapshot[T], bool, error) {
	installed := false
	local, err := s.store.Update(ctx, remote.EntityType, remote.EntityID, func(current *models.DraftSnapshot[T]) (*models.DraftSnapshot[T], error) {
		if current != nil && current.Dirty {
			return current, nil
		}

		installed = true
		baseline := FromSyncSnapshot(remote)
		return &baseline, nil
	})
	if err != nil {
		return nil, false, err
	}

	return local, installed, nil
}

// ReconcileDraft folds a server snapshot into the local state of the same
// entity. base is the last version both sides agreed on and may be nil.
//
// Without local edits the remote snapshot simply becomes the clean
// baseline. A dirty draft is merged field by field and stays dirty: the
// merge has not been accepted by the server yet. Read, merge and write
// happen under the entity's lock.
func (s *Service[T]) ReconcileDraft(ctx context.Context, remote api.SyncSnapshot[T], base *api.SyncSnapshot[T]) (*ReconcileOutcome[T], error) {
	outcome := &ReconcileOutcome[T]{}

	snapshot, err := s.store.Update(ctx, remote.EntityType, remote.EntityID, func(current *models.DraftSnapshot[T]) (*models.DraftSnapshot[T], error) {
		if current == nil || !current.Dirty {
			baseline := FromSyncSnapshot(remote)
			outcome.Winner = merge.WinnerRemote
			return &baseline, nil
		}

		result, err := merge.Reconcile(remote, base, *current)
		if err != nil {
			return nil, err
		}
		outcome.Result = result
		outcome.Winner = result.Winner

		return &models.DraftSnapshot[T]{
			Data:       result.Merged.Data,
			EntityType: current.EntityType,
			EntityID:   current.EntityID,
			Metadata: models.DraftMetadata{
				ClientID:  s.store.ClientID(),
				UpdatedAt: result.Merged.Metadata.UpdatedAt,
				Version:   result.Merged.Metadata.Version,
			},
			Dirty: true,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile %s: %w", models.EntityKey(remote.EntityType, remote.EntityID), err)
	}
	outcome.Snapshot = snapshot

	conflicts := 0
	if outcome.Result != nil {
		conflicts = len(outcome.Result.Conflicts)
	}
	s.logger.Info("Draft reconciled",
		"entity_type", remote.EntityType,
		"entity_id", remote.EntityID,
		"winner", outcome.Winner,
		"conflicts", conflicts,
		"dirty", snapshot.Dirty)

	return outcome, nil
}

// PurgeStaleDrafts removes clean snapshots last written before cutoff
func (s *Service[T]) PurgeStaleDrafts(ctx context.Context, cutoff time.Time) (int, error) {
	limit := cutoff.UnixMilli()

	removed, err := s.store.Purge(ctx, func(snapshot *models.DraftSnapshot[T]) bool {
		return !snapshot.Dirty && snapshot.Metadata.UpdatedAt < limit
	})
	if err != nil {
		return removed, fmt.Errorf("failed to purge stale drafts: %w", err)
	}

	s.logger.Info("Stale drafts purged", "removed", removed, "cutoff", cutoff.UTC().Format(time.RFC3339))

	return removed, nil
}

// Flush pushes every dirty snapshot to the server.
// 1. A snapshot accepted by the server becomes the clean baseline
// 2. A stale snapshot is reported in Conflicts together with the server copy
// 3. Any other failure is counted and logged; flushing goes on
func (s *Service[T]) Flush(ctx context.Context) (*FlushResult[T], error) {
	if s.transport == nil {
		return nil, ErrNoTransport
	}

	pending, err := s.store.ListSnapshots(ctx, draft.ListOptions{DirtyOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending drafts: %w", err)
	}

	s.logger.Info("Flushing pending drafts", "count", len(pending))

	result := &FlushResult[T]{Conflicts: []api.SyncSnapshot[T]{}}
	for _, snapshot := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pushed := ToSyncSnapshot(*snapshot)
		accepted, err := s.transport.Push(ctx, pushed)

		var conflict *api.ConflictError[T]
		switch {
		case errors.As(err, &conflict):
			s.logger.Info("Push rejected, server copy is newer",
				"key", snapshot.Key(),
				"local_version", pushed.Metadata.Version,
				"remote_version", conflict.Remote.Metadata.Version)
			result.Conflicts = append(result.Conflicts, conflict.Remote)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Warn("Failed to push draft", "key", snapshot.Key(), "error", err)
			result.Failed++
			continue
		}

		if accepted == nil {
			accepted = &pushed
		}
		if err := s.commitPushed(ctx, pushed, *accepted); err != nil {
			s.logger.Warn("Failed to commit pushed draft", "key", snapshot.Key(), "error", err)
			result.Failed++
			continue
		}
		result.Pushed++
	}

	s.logger.Info("Flush completed",
		"pushed", result.Pushed,
		"conflicts", len(result.Conflicts),
		"failed", result.Failed)

	return result, nil
}

// commitPushed installs the accepted copy as the clean baseline, unless the
// draft was edited again while the push was in flight.
func (s *Service[T]) commitPushed(ctx context.Context, pushed, accepted api.SyncSnapshot[T]) error {
	if accepted.EntityType != pushed.EntityType || accepted.EntityID != pushed.EntityID {
		return fmt.Errorf("server accepted %s instead of %s",
			models.EntityKey(accepted.EntityType, accepted.EntityID),
			models.EntityKey(pushed.EntityType, pushed.EntityID))
	}

	_, err := s.store.Update(ctx, pushed.EntityType, pushed.EntityID, func(current *models.DraftSnapshot[T]) (*models.DraftSnapshot[T], error) {
		if current == nil {
			// Удален локально во время отправки
			return nil, nil
		}
		if current.Dirty && ToSyncSnapshot(*current).Metadata != pushed.Metadata {
			s.logger.Debug("Draft changed during push, keeping it dirty", "key", current.Key())
			return current, nil
		}

		baseline := FromSyncSnapshot(accepted)
		return &baseline, nil
	})

	return err
}

// Pull fetches the server copy of an entity. It becomes the clean baseline
// unless a dirty local draft exists; such a draft is left untouched and
// should be passed to ReconcileDraft.
func (s *Service[T]) Pull(ctx context.Context, entityType, entityID string) (*PullResult[T], error) {
	if s.transport == nil {
		return nil, ErrNoTransport
	}

	remote, err := s.transport.Pull(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to pull %s: %w", models.EntityKey(entityType, entityID), err)
	}
	if remote.EntityType != entityType || remote.EntityID != entityID {
		return nil, fmt.Errorf("server returned %s for %s",
			models.EntityKey(remote.EntityType, remote.EntityID), models.EntityKey(entityType, entityID))
	}

	local, installed, err := s.installBaseline(ctx, *remote)
	if err != nil {
		return nil, fmt.Errorf("failed to store pulled snapshot: %w", err)
	}
	result := &PullResult[T]{
		Remote:    *remote,
		Local:     local,
		Installed: installed,
	}

	s.logger.Debug("Snapshot pulled",
		"entity_type", entityType,
		"entity_id", entityID,
		"installed", result.Installed)

	return result, nil
}
