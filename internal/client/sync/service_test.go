package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/draftkeeper/internal/client/draft"
	"github.com/iudanet/draftkeeper/internal/client/storage"
	"github.com/iudanet/draftkeeper/internal/client/storage/boltdb"
	"github.com/iudanet/draftkeeper/internal/merge"
	"github.com/iudanet/draftkeeper/internal/models"
	"github.com/iudanet/draftkeeper/pkg/api"
)

const localClient = "admin-web"

func newTestStore(t *testing.T) *draft.Store[models.Record] {
	t.Helper()

	adapter, err := boltdb.New(context.Background(), storage.Config{
		DBName:    filepath.Join(t.TempDir(), "drafts.db"),
		StoreName: "drafts",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	store, err := draft.New[models.Record](adapter, storage.Config{
		DBName:    "drafts.db",
		StoreName: "drafts",
		ClientID:  localClient,
	}, draft.WithClock(func() time.Time { return time.UnixMilli(5000) }))
	require.NoError(t, err)

	return store
}

func remoteSnapshot(id string, data models.Record, updatedAt, version int64) api.SyncSnapshot[models.Record] {
	return api.SyncSnapshot[models.Record]{
		Data:       data,
		EntityType: "activity",
		EntityID:   id,
		Metadata:   api.Metadata{ClientID: "server", UpdatedAt: updatedAt, Version: version},
	}
}

func TestSnapshotConversion(t *testing.T) {
	local := models.DraftSnapshot[models.Record]{
		Data:       models.Record{"a": "b"},
		EntityType: "activity",
		EntityID:   "1",
		Metadata:   models.DraftMetadata{ClientID: localClient, UpdatedAt: 10, Version: 2},
		Dirty:      true,
	}

	wire := ToSyncSnapshot(local)
	assert.Equal(t, api.Metadata{ClientID: localClient, UpdatedAt: 10, Version: 2}, wire.Metadata)
	assert.Equal(t, local.Data, wire.Data)

	back := FromSyncSnapshot(wire)
	assert.False(t, back.Dirty)
	back.Dirty = true
	assert.Equal(t, local, back)
}

func TestQueueDraftUpdate(t *testing.T) {
	service := NewService[models.Record](newTestStore(t), nil, nil)
	ctx := context.Background()

	_, err := service.QueueDraftUpdate(ctx, "activity", "1", map[string]any{"a": "1", "b": "2"})
	require.NoError(t, err)
	snapshot, err := service.QueueDraftUpdate(ctx, "activity", "1", map[string]any{"c": "3"})
	require.NoError(t, err)

	assert.Equal(t, models.Record{"a": "1", "b": "2", "c": "3"}, snapshot.Data)
	assert.True(t, snapshot.Dirty)

	got, err := service.GetDraft(ctx, "activity", "1")
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)
}

func TestApplyRemoteSnapshot_IsIdempotent(t *testing.T) {
	service := NewService[models.Record](newTestStore(t), nil, nil)
	ctx := context.Background()

	remote := remoteSnapshot("1", models.Record{"name": "Control activity"}, 1000, 3)

	first, err := service.ApplyRemoteSnapshot(ctx, remote)
	require.NoError(t, err)
	second, err := service.ApplyRemoteSnapshot(ctx, remote)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.False(t, second.Dirty)
	assert.Equal(t, FromSyncSnapshot(remote), *second)
}

func TestApplyRemoteSnapshot_KeepsRemoteMetadata(t *testing.T) {
	service := NewService[models.Record](newTestStore(t), nil, nil)
	ctx := context.Background()

	_, err := service.ApplyRemoteSnapshot(ctx, remoteSnapshot("1", models.Record{"a": "old"}, 1000, 7))
	require.NoError(t, err)

	// нулевые поля сервера не заменяются локальными значениями по умолчанию
	remote := remoteSnapshot("1", models.Record{"a": "new"}, 0, 0)
	applied, err := service.ApplyRemoteSnapshot(ctx, remote)
	require.NoError(t, err)

	assert.Equal(t, models.DraftMetadata{ClientID: "server", UpdatedAt: 0, Version: 0}, applied.Metadata)
	assert.Equal(t, FromSyncSnapshot(remote), *applied)
}

func TestApplyRemoteSnapshot_KeepsDirtyDraft(t *testing.T) {
	service := NewService[models.Record](newTestStore(t), nil, nil)
	ctx := context.Background()

	queued, err := service.QueueDraftUpdate(ctx, "activity", "1", map[string]any{"a": "local"})
	require.NoError(t, err)

	local, err := service.ApplyRemoteSnapshot(ctx, remoteSnapshot("1", models.Record{"a": "server"}, 9000, 4))
	require.ErrorIs(t, err, ErrPendingDraft)
	assert.Equal(t, queued, local)

	got, err := service.GetDraft(ctx, "activity", "1")
	require.NoError(t, err)
	assert.Equal(t, queued, got)
}

func TestReconcileDraft_AdminScenario(t *testing.T) {
	store := newTestStore(t)
	service := NewService[models.Record](store, nil, nil)
	ctx := context.Background()

	base := remoteSnapshot("ca-1", models.Record{
		"name":        "Control activity",
		"description": "Weekly review",
		"owner":       "sam",
	}, 1000, 1)
	_, err := service.ApplyRemoteSnapshot(ctx, base)
	require.NoError(t, err)

	_, err = store.SaveDraft(ctx, draft.SaveInput{
		EntityType: "activity",
		EntityID:   "ca-1",
		Data: map[string]any{
			"name":        "Control activity - local",
			"description": "Weekly review + automation",
			"owner":       "sam",
		},
		Metadata: draft.MetadataPatch{UpdatedAt: 1500},
	})
	require.NoError(t, err)

	remote := remoteSnapshot("ca-1", models.Record{
		"name":        "Control activity (updated)",
		"description": "Weekly review",
		"owner":       "alex",
	}, 2000, 2)

	outcome, err := service.ReconcileDraft(ctx, remote, &base)
	require.NoError(t, err)
	require.NotNil(t, outcome.Result)

	want := models.Record{
		"name":        "Control activity (updated)",
		"description": "Weekly review + automation",
		"owner":       "alex",
	}
	assert.Equal(t, merge.WinnerMixed, outcome.Winner)
	assert.Equal(t, want, outcome.Result.Merged.Data)

	conflict, ok := outcome.Result.ConflictFor("name")
	require.True(t, ok)
	assert.Equal(t, merge.SideRemote, conflict.ResolvedFrom)

	persisted, err := service.GetDraft(ctx, "activity", "ca-1")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.True(t, persisted.Dirty)
	assert.Equal(t, outcome.Result.Merged.Data, persisted.Data)
	assert.Equal(t, models.DraftMetadata{ClientID: localClient, UpdatedAt: 2000, Version: 2}, persisted.Metadata)
	assert.Equal(t, outcome.Snapshot, persisted)
}

func TestReconcileDraft_WithoutLocalEdits(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, s *Service[models.Record])
	}{
		{
			name:  "no local snapshot",
			setup: func(t *testing.T, s *Service[models.Record]) {},
		},
		{
			name: "clean local snapshot",
			setup: func(t *testing.T, s *Service[models.Record]) {
				_, err := s.ApplyRemoteSnapshot(context.Background(), remoteSnapshot("1", models.Record{"old": "value"}, 100, 1))
				require.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewService[models.Record](newTestStore(t), nil, nil)
			tt.setup(t, service)

			remote := remoteSnapshot("1", models.Record{"new": "value"}, 200, 2)
			outcome, err := service.ReconcileDraft(context.Background(), remote, nil)
			require.NoError(t, err)

			assert.Nil(t, outcome.Result)
			assert.Equal(t, merge.WinnerRemote, outcome.Winner)
			assert.Equal(t, FromSyncSnapshot(remote), *outcome.Snapshot)
		})
	}
}

func TestReconcileDraft_WithoutBaseKeepsRemote(t *testing.T) {
	store := newTestStore(t)
	service := NewService[models.Record](store, nil, nil)
	ctx := context.Background()

	_, err := service.QueueDraftUpdate(ctx, "activity", "1", map[string]any{"title": "mine", "note": "local only"})
	require.NoError(t, err)

	remote := remoteSnapshot("1", models.Record{"title": "theirs"}, 9000, 4)
	outcome, err := service.ReconcileDraft(ctx, remote, nil)
	require.NoError(t, err)

	assert.True(t, outcome.Result.BaseMissing)
	assert.Equal(t, merge.WinnerRemote, outcome.Winner)
	assert.Len(t, outcome.Result.Conflicts, 2)
	for _, c := range outcome.Result.Conflicts {
		assert.True(t, c.Unresolved)
		assert.Equal(t, merge.SideRemote, c.ResolvedFrom)
	}

	persisted, err := service.GetDraft(ctx, "activity", "1")
	require.NoError(t, err)
	assert.Equal(t, models.Record{"title": "theirs"}, persisted.Data)
	assert.True(t, persisted.Dirty)
}

func TestReconcileDraft_EntityMismatch(t *testing.T) {
	service := NewService[models.Record](newTestStore(t), nil, nil)
	ctx := context.Background()

	_, err := service.QueueDraftUpdate(ctx, "activity", "1", map[string]any{"a": "b"})
	require.NoError(t, err)

	base := remoteSnapshot("2", models.Record{}, 1, 1)
	_, err = service.ReconcileDraft(ctx, remoteSnapshot("1", models.Record{}, 2, 2), &base)
	assert.ErrorIs(t, err, merge.ErrEntityMismatch)
}

func TestPurgeStaleDrafts(t *testing.T) {
	store := newTestStore(t)
	service := NewService[models.Record](store, nil, nil)
	ctx := context.Background()

	_, err := service.ApplyRemoteSnapshot(ctx, remoteSnapshot("old", models.Record{}, 1000, 1))
	require.NoError(t, err)
	_, err = service.ApplyRemoteSnapshot(ctx, remoteSnapshot("fresh", models.Record{}, 9000, 1))
	require.NoError(t, err)
	_, err = store.SaveDraft(ctx, draft.SaveInput{
		EntityType: "activity",
		EntityID:   "old-dirty",
		Data:       map[string]any{"x": "y"},
		Metadata:   draft.MetadataPatch{UpdatedAt: 1000},
	})
	require.NoError(t, err)

	removed, err := service.PurgeStaleDrafts(ctx, time.UnixMilli(5000))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	list, err := store.ListSnapshots(ctx, draft.ListOptions{})
	require.NoError(t, err)
	ids := []string{}
	for _, s := range list {
		ids = append(ids, s.EntityID)
	}
	assert.Equal(t, []string{"fresh", "old-dirty"}, ids)
}

func TestFlush(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"accepted", "conflict", "broken"} {
		_, err := store.SaveDraft(ctx, draft.SaveInput{EntityType: "activity", EntityID: id, Data: map[string]any{"id": id}})
		require.NoError(t, err)
	}
	_, err := store.WriteSnapshot(ctx, draft.WriteInput[models.Record]{EntityType: "activity", EntityID: "clean", Data: models.Record{}})
	require.NoError(t, err)

	serverCopy := remoteSnapshot("conflict", models.Record{"id": "server"}, 9000, 7)

	transport := &TransportMock[models.Record]{
		PushFunc: func(ctx context.Context, snapshot api.SyncSnapshot[models.Record]) (*api.SyncSnapshot[models.Record], error) {
			switch snapshot.EntityID {
			case "accepted":
				accepted := snapshot
				accepted.Metadata = api.Metadata{ClientID: "server", UpdatedAt: 6000, Version: 2}
				return &accepted, nil
			case "conflict":
				return nil, &api.ConflictError[models.Record]{Remote: serverCopy}
			default:
				return nil, errors.New("connection reset")
			}
		},
	}
	service := NewService[models.Record](store, transport, nil)

	result, err := service.Flush(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Pushed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []api.SyncSnapshot[models.Record]{serverCopy}, result.Conflicts)
	assert.Len(t, transport.PushCalls(), 3, "clean snapshots are not pushed")

	accepted, err := store.GetSnapshot(ctx, "activity", "accepted")
	require.NoError(t, err)
	assert.False(t, accepted.Dirty)
	assert.Equal(t, models.DraftMetadata{ClientID: "server", UpdatedAt: 6000, Version: 2}, accepted.Metadata)

	pending, err := store.ListSnapshots(ctx, draft.ListOptions{DirtyOnly: true})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestFlush_EditDuringPushStaysDirty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveDraft(ctx, draft.SaveInput{EntityType: "activity", EntityID: "1", Data: map[string]any{"a": "1"}})
	require.NoError(t, err)

	transport := &TransportMock[models.Record]{
		PushFunc: func(ctx context.Context, snapshot api.SyncSnapshot[models.Record]) (*api.SyncSnapshot[models.Record], error) {
			// пользователь продолжает править, пока запрос в пути
			_, err := store.SaveDraft(ctx, draft.SaveInput{EntityType: "activity", EntityID: "1", Data: map[string]any{"b": "2"}})
			require.NoError(t, err)
			return &snapshot, nil
		},
	}
	service := NewService[models.Record](store, transport, nil)

	result, err := service.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pushed)

	snapshot, err := store.GetSnapshot(ctx, "activity", "1")
	require.NoError(t, err)
	assert.True(t, snapshot.Dirty)
	assert.Equal(t, models.Record{"a": "1", "b": "2"}, snapshot.Data)
}

func TestFlushAndPull_WithoutTransport(t *testing.T) {
	service := NewService[models.Record](newTestStore(t), nil, nil)

	_, err := service.Flush(context.Background())
	assert.ErrorIs(t, err, ErrNoTransport)

	_, err = service.Pull(context.Background(), "activity", "1")
	assert.ErrorIs(t, err, ErrNoTransport)
}

func TestPull(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	transport := &TransportMock[models.Record]{
		PullFunc: func(ctx context.Context, entityType, entityID string) (*api.SyncSnapshot[models.Record], error) {
			if entityID == "missing" {
				return nil, api.ErrSnapshotNotFound
			}
			remote := remoteSnapshot(entityID, models.Record{"from": "server"}, 7000, 3)
			return &remote, nil
		},
	}
	service := NewService[models.Record](store, transport, nil)

	t.Run("absent locally", func(t *testing.T) {
		result, err := service.Pull(ctx, "activity", "fresh")
		require.NoError(t, err)
		assert.True(t, result.Installed)
		assert.False(t, result.Local.Dirty)
		assert.Equal(t, models.Record{"from": "server"}, result.Local.Data)
	})

	t.Run("dirty locally", func(t *testing.T) {
		_, err := service.QueueDraftUpdate(ctx, "activity", "mine", map[string]any{"from": "me"})
		require.NoError(t, err)

		result, err := service.Pull(ctx, "activity", "mine")
		require.NoError(t, err)
		assert.False(t, result.Installed)
		assert.True(t, result.Local.Dirty)
		assert.Equal(t, models.Record{"from": "me"}, result.Local.Data)
		assert.Equal(t, models.Record{"from": "server"}, result.Remote.Data)
	})

	t.Run("not on server", func(t *testing.T) {
		_, err := service.Pull(ctx, "activity", "missing")
		assert.ErrorIs(t, err, api.ErrSnapshotNotFound)
	})
}
