package merge

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/draftkeeper/internal/models"
	"github.com/iudanet/draftkeeper/pkg/api"
)

const (
	testType = "control"
	testID   = "ctl-1"
)

func wire(data models.Record, clientID string, updatedAt, version int64) api.SyncSnapshot[models.Record] {
	return api.SyncSnapshot[models.Record]{
		Data:       data,
		EntityType: testType,
		EntityID:   testID,
		Metadata:   api.Metadata{ClientID: clientID, UpdatedAt: updatedAt, Version: version},
	}
}

func draft(data models.Record, clientID string, updatedAt, version int64) models.DraftSnapshot[models.Record] {
	return models.DraftSnapshot[models.Record]{
		Data:       data,
		EntityType: testType,
		EntityID:   testID,
		Metadata:   models.DraftMetadata{ClientID: clientID, UpdatedAt: updatedAt, Version: version},
		Dirty:      true,
	}
}

func TestReconcile_DisjointChanges(t *testing.T) {
	base := wire(models.Record{"x": 1, "y": 1}, "server", 100, 1)
	local := draft(models.Record{"x": 2, "y": 1}, "web", 200, 2)
	remote := wire(models.Record{"x": 1, "y": 2}, "server", 300, 2)

	result, err := Reconcile(remote, &base, local)
	require.NoError(t, err)

	assert.Equal(t, models.Record{"x": float64(2), "y": float64(2)}, result.Merged.Data)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, WinnerMixed, result.Winner)
	assert.Equal(t, []string{"x"}, result.LocalFields)
	assert.Equal(t, []string{"y"}, result.RemoteFields)
	assert.False(t, result.BaseMissing)
}

func TestReconcile_SameValueConvergence(t *testing.T) {
	base := wire(models.Record{"x": 1}, "server", 100, 1)
	local := draft(models.Record{"x": 2}, "web", 200, 2)
	remote := wire(models.Record{"x": 2}, "server", 300, 2)

	result, err := Reconcile(remote, &base, local)
	require.NoError(t, err)

	assert.Equal(t, models.Record{"x": float64(2)}, result.Merged.Data)
	_, found := result.ConflictFor("x")
	assert.False(t, found)
	assert.False(t, result.HasConflicts())
}

func TestReconcile_ConflictTieBreak(t *testing.T) {
	tests := []struct {
		name       string
		localMeta  models.DraftMetadata
		remoteMeta api.Metadata
		wantOwner  string
		wantSide   Side
	}{
		{
			name:       "later remote updatedAt wins",
			localMeta:  models.DraftMetadata{ClientID: "web", UpdatedAt: 1000, Version: 5},
			remoteMeta: api.Metadata{ClientID: "server", UpdatedAt: 2000, Version: 1},
			wantOwner:  "bob",
			wantSide:   SideRemote,
		},
		{
			name:       "later local updatedAt wins",
			localMeta:  models.DraftMetadata{ClientID: "web", UpdatedAt: 3000, Version: 1},
			remoteMeta: api.Metadata{ClientID: "server", UpdatedAt: 2000, Version: 9},
			wantOwner:  "carol",
			wantSide:   SideLocal,
		},
		{
			name:       "equal time, higher version wins",
			localMeta:  models.DraftMetadata{ClientID: "web", UpdatedAt: 2000, Version: 4},
			remoteMeta: api.Metadata{ClientID: "server", UpdatedAt: 2000, Version: 3},
			wantOwner:  "carol",
			wantSide:   SideLocal,
		},
		{
			name:       "equal time and version, client id decides",
			localMeta:  models.DraftMetadata{ClientID: "a-web", UpdatedAt: 2000, Version: 3},
			remoteMeta: api.Metadata{ClientID: "z-server", UpdatedAt: 2000, Version: 3},
			wantOwner:  "bob",
			wantSide:   SideRemote,
		},
		{
			name:       "complete tie goes to remote",
			localMeta:  models.DraftMetadata{ClientID: "same", UpdatedAt: 2000, Version: 3},
			remoteMeta: api.Metadata{ClientID: "same", UpdatedAt: 2000, Version: 3},
			wantOwner:  "bob",
			wantSide:   SideRemote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := wire(models.Record{"owner": "alice"}, "server", 500, 1)
			local := draft(models.Record{"owner": "carol"}, tt.localMeta.ClientID, tt.localMeta.UpdatedAt, tt.localMeta.Version)
			remote := wire(models.Record{"owner": "bob"}, tt.remoteMeta.ClientID, tt.remoteMeta.UpdatedAt, tt.remoteMeta.Version)

			result, err := Reconcile(remote, &base, local)
			require.NoError(t, err)

			assert.Equal(t, tt.wantOwner, result.Merged.Data["owner"])
			require.Len(t, result.Conflicts, 1)

			conflict := result.Conflicts[0]
			assert.Equal(t, "owner", conflict.Field)
			assert.Equal(t, tt.wantSide, conflict.ResolvedFrom)
			assert.JSONEq(t, `"alice"`, string(conflict.BaseValue))
			assert.JSONEq(t, `"carol"`, string(conflict.LocalValue))
			assert.JSONEq(t, `"bob"`, string(conflict.RemoteValue))
			assert.False(t, conflict.Unresolved)

			// Конфликт всегда дает mixed
			assert.Equal(t, WinnerMixed, result.Winner)
		})
	}
}

func TestReconcile_WinnerClassification(t *testing.T) {
	base := models.Record{"a": 1, "b": 1}

	tests := []struct {
		name   string
		local  models.Record
		remote models.Record
		want   Winner
	}{
		{"only local changed", models.Record{"a": 2, "b": 1}, models.Record{"a": 1, "b": 1}, WinnerLocal},
		{"only remote changed", models.Record{"a": 1, "b": 1}, models.Record{"a": 1, "b": 3}, WinnerRemote},
		{"nothing changed", models.Record{"a": 1, "b": 1}, models.Record{"a": 1, "b": 1}, WinnerRemote},
		{"only convergent change", models.Record{"a": 5, "b": 1}, models.Record{"a": 5, "b": 1}, WinnerRemote},
		{"both sides disjoint", models.Record{"a": 2, "b": 1}, models.Record{"a": 1, "b": 2}, WinnerMixed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := wire(base, "server", 100, 1)
			result, err := Reconcile(wire(tt.remote, "server", 300, 2), &b, draft(tt.local, "web", 200, 2))
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Winner)
		})
	}
}

func TestReconcile_AddedAndRemovedFields(t *testing.T) {
	base := wire(models.Record{"keep": "k", "dropLocal": "d", "dropRemote": "r"}, "server", 100, 1)
	local := draft(models.Record{"keep": "k", "dropRemote": "r", "addedLocal": "L"}, "web", 200, 2)
	remote := wire(models.Record{"keep": "k", "dropLocal": "d", "addedRemote": "R"}, "server", 300, 2)

	result, err := Reconcile(remote, &base, local)
	require.NoError(t, err)

	// Изменения одной стороны (включая удаления) сохраняются
	assert.Equal(t, models.Record{"keep": "k", "addedLocal": "L", "addedRemote": "R"}, result.Merged.Data)
	assert.Equal(t, []string{"addedLocal", "dropLocal"}, result.LocalFields)
	assert.Equal(t, []string{"addedRemote", "dropRemote"}, result.RemoteFields)
	assert.Empty(t, result.Conflicts)
}

func TestReconcile_DeleteVersusEditConflict(t *testing.T) {
	base := wire(models.Record{"note": "v1"}, "server", 100, 1)
	local := draft(models.Record{}, "web", 400, 2)
	remote := wire(models.Record{"note": "v2"}, "server", 300, 2)

	result, err := Reconcile(remote, &base, local)
	require.NoError(t, err)

	// Локальное удаление новее и побеждает
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, SideLocal, result.Conflicts[0].ResolvedFrom)
	assert.Nil(t, result.Conflicts[0].LocalValue)
	assert.NotContains(t, result.Merged.Data, "note")
}

func TestReconcile_StructuralEquality(t *testing.T) {
	base := wire(models.Record{"address": map[string]any{"city": "Valletta", "zip": "VLT"}, "n": 1}, "server", 100, 1)

	// Локальная сторона записала тот же объект с другим порядком ключей и 1.0 вместо 1
	var localData models.Record
	require.NoError(t, json.Unmarshal([]byte(`{"n": 1.0, "address": {"zip": "VLT", "city": "Valletta"}}`), &localData))
	local := draft(localData, "web", 200, 2)
	remote := wire(models.Record{"address": map[string]any{"city": "Sliema", "zip": "VLT"}, "n": 1}, "server", 300, 2)

	result, err := Reconcile(remote, &base, local)
	require.NoError(t, err)

	assert.Empty(t, result.Conflicts)
	assert.Equal(t, []string{"address"}, result.RemoteFields)
	assert.Equal(t, WinnerRemote, result.Winner)
}

func TestReconcile_NullDiffersFromAbsent(t *testing.T) {
	base := wire(models.Record{}, "server", 100, 1)
	local := draft(models.Record{"x": nil}, "web", 200, 2)
	remote := wire(models.Record{}, "server", 300, 2)

	result, err := Reconcile(remote, &base, local)
	require.NoError(t, err)

	assert.Equal(t, []string{"x"}, result.LocalFields)
	v, ok := result.Merged.Data["x"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestReconcile_MergedMetadata(t *testing.T) {
	base := wire(models.Record{"x": 1}, "server", 100, 1)
	local := draft(models.Record{"x": 2}, "web", 900, 3)
	remote := wire(models.Record{"x": 1}, "server", 500, 7)

	result, err := Reconcile(remote, &base, local)
	require.NoError(t, err)

	assert.Equal(t, api.Metadata{ClientID: "web", UpdatedAt: 900, Version: 7}, result.Merged.Metadata)
	assert.Equal(t, testType, result.Merged.EntityType)
	assert.Equal(t, testID, result.Merged.EntityID)
}

func TestReconcile_WithoutBase(t *testing.T) {
	local := draft(models.Record{"name": "local name", "shared": "same", "onlyLocal": true}, "web", 5000, 3)
	remote := wire(models.Record{"name": "remote name", "shared": "same"}, "server", 1000, 2)

	result, err := Reconcile(remote, nil, local)
	require.NoError(t, err)

	// Сервер побеждает целиком, даже если локальная версия новее
	assert.Equal(t, models.Record{"name": "remote name", "shared": "same"}, result.Merged.Data)
	assert.True(t, result.BaseMissing)
	assert.Equal(t, WinnerRemote, result.Winner)

	require.Len(t, result.Conflicts, 2)
	assert.Equal(t, "name", result.Conflicts[0].Field)
	assert.Equal(t, "onlyLocal", result.Conflicts[1].Field)
	for _, c := range result.Conflicts {
		assert.True(t, c.Unresolved)
		assert.Equal(t, SideRemote, c.ResolvedFrom)
		assert.Nil(t, c.BaseValue)
	}
	assert.Nil(t, result.Conflicts[1].RemoteValue)
	assert.Equal(t, api.Metadata{ClientID: "web", UpdatedAt: 5000, Version: 3}, result.Merged.Metadata)
}

func TestReconcile_EntityMismatch(t *testing.T) {
	local := draft(models.Record{}, "web", 1, 1)
	remote := wire(models.Record{}, "server", 1, 1)
	remote.EntityID = "other"

	_, err := Reconcile(remote, nil, local)
	assert.ErrorIs(t, err, ErrEntityMismatch)

	base := wire(models.Record{}, "server", 1, 1)
	base.EntityType = "risk"
	_, err = Reconcile(wire(models.Record{}, "server", 1, 1), &base, local)
	assert.ErrorIs(t, err, ErrEntityMismatch)
}

type controlActivity struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
}

func TestReconcile_TypedPayload(t *testing.T) {
	base := api.SyncSnapshot[controlActivity]{
		Data:       controlActivity{Name: "Control activity", Description: "Weekly review", Owner: "sam"},
		EntityType: testType, EntityID: testID,
		Metadata: api.Metadata{ClientID: "server", UpdatedAt: 1000, Version: 1},
	}
	local := models.DraftSnapshot[controlActivity]{
		Data:       controlActivity{Name: "Control activity", Description: "Weekly review + automation", Owner: "sam"},
		EntityType: testType, EntityID: testID,
		Metadata: models.DraftMetadata{ClientID: "admin-web", UpdatedAt: 1500, Version: 2},
		Dirty:    true,
	}
	remote := api.SyncSnapshot[controlActivity]{
		Data:       controlActivity{Name: "Control activity", Description: "Weekly review", Owner: "alex"},
		EntityType: testType, EntityID: testID,
		Metadata: api.Metadata{ClientID: "server", UpdatedAt: 2000, Version: 2},
	}

	result, err := Reconcile(remote, &base, local)
	require.NoError(t, err)
	assert.Equal(t, controlActivity{Name: "Control activity", Description: "Weekly review + automation", Owner: "alex"}, result.Merged.Data)
}

type account struct {
	Name      string `json:"name"`
	AccountID int64  `json:"accountId"`
}

func accountSnapshots(baseID, localID, remoteID int64) (api.SyncSnapshot[account], models.DraftSnapshot[account], api.SyncSnapshot[account]) {
	base := api.SyncSnapshot[account]{
		Data:       account{Name: "Main", AccountID: baseID},
		EntityType: testType, EntityID: testID,
		Metadata: api.Metadata{ClientID: "server", UpdatedAt: 1000, Version: 1},
	}
	local := models.DraftSnapshot[account]{
		Data:       account{Name: "Main", AccountID: localID},
		EntityType: testType, EntityID: testID,
		Metadata: models.DraftMetadata{ClientID: "web", UpdatedAt: 1500, Version: 2},
		Dirty:    true,
	}
	remote := api.SyncSnapshot[account]{
		Data:       account{Name: "Main", AccountID: remoteID},
		EntityType: testType, EntityID: testID,
		Metadata: api.Metadata{ClientID: "server", UpdatedAt: 2000, Version: 2},
	}
	return base, local, remote
}

func TestReconcile_LargeIntegers(t *testing.T) {
	const big = int64(9007199254740993) // 2^53 + 1, не представимо в float64

	t.Run("untouched field keeps its exact value", func(t *testing.T) {
		base, local, remote := accountSnapshots(big, big, big)
		local.Data.Name = "Main (local)"

		result, err := Reconcile(remote, &base, local)
		require.NoError(t, err)

		assert.Equal(t, big, result.Merged.Data.AccountID)
		assert.Equal(t, "Main (local)", result.Merged.Data.Name)
		assert.Equal(t, []string{"name"}, result.LocalFields)
	})

	t.Run("local change above 2^53 survives", func(t *testing.T) {
		base, local, remote := accountSnapshots(big-1, big, big-1)

		result, err := Reconcile(remote, &base, local)
		require.NoError(t, err)

		assert.Equal(t, big, result.Merged.Data.AccountID)
		assert.Equal(t, []string{"accountId"}, result.LocalFields)
		assert.Equal(t, WinnerLocal, result.Winner)
	})

	t.Run("without base the difference is reported", func(t *testing.T) {
		_, local, remote := accountSnapshots(0, big, big-1)

		result, err := Reconcile(remote, nil, local)
		require.NoError(t, err)

		assert.Equal(t, big-1, result.Merged.Data.AccountID)
		require.Len(t, result.Conflicts, 1)
		assert.Equal(t, "accountId", result.Conflicts[0].Field)
		assert.Equal(t, "9007199254740993", string(result.Conflicts[0].LocalValue))
	})
}

func TestReconcile_AdminScenarioGolden(t *testing.T) {
	base := wire(models.Record{"name": "Control activity", "description": "Weekly review", "owner": "sam"}, "server", 1000, 1)
	local := draft(models.Record{"name": "Control activity - local", "description": "Weekly review + automation", "owner": "sam"}, "admin-web", 1500, 2)
	remote := wire(models.Record{"name": "Control activity (updated)", "description": "Weekly review", "owner": "alex"}, "server", 2000, 2)

	result, err := Reconcile(remote, &base, local)
	require.NoError(t, err)

	assert.Equal(t, models.Record{
		"name":        "Control activity (updated)",
		"description": "Weekly review + automation",
		"owner":       "alex",
	}, result.Merged.Data)
	_, found := result.ConflictFor("name")
	assert.True(t, found)
	assert.Equal(t, WinnerMixed, result.Winner)

	report, err := json.MarshalIndent(result, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "admin_scenario", append(report, '\n'))
}

func TestCompare(t *testing.T) {
	a := models.DraftMetadata{ClientID: "a", UpdatedAt: 10, Version: 1}

	assert.Equal(t, 0, Compare(a, a))
	assert.Equal(t, 1, Compare(models.DraftMetadata{ClientID: "a", UpdatedAt: 11, Version: 0}, a))
	assert.Equal(t, -1, Compare(models.DraftMetadata{ClientID: "a", UpdatedAt: 10, Version: 0}, a))
	assert.Equal(t, 1, Compare(models.DraftMetadata{ClientID: "b", UpdatedAt: 10, Version: 1}, a))
	assert.False(t, IsNewer(a, a))
}
