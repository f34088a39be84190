package merge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/iudanet/draftkeeper/internal/models"
	"github.com/iudanet/draftkeeper/pkg/api"
)

// ErrEntityMismatch is returned when the merged snapshots describe different entities.
var ErrEntityMismatch = errors.New("snapshots describe different entities")

// Reconcile merges a dirty local draft with the remote snapshot using base
// as the common ancestor.
//
// When base is nil no ancestor is known (first sync) and the merge falls
// back to remote-wins: the merged data equals the remote data and every field
// where the local draft differs is reported as an unresolved conflict, so the
// local work is never dropped silently.
//
// The merged metadata carries the local client id, the later UpdatedAt and
// the higher Version of the two sides. An error is returned only when a
// payload is not a JSON object.
func Reconcile[T any](remote api.SyncSnapshot[T], base *api.SyncSnapshot[T], local models.DraftSnapshot[T]) (*Result[T], error) {
	if remote.EntityType != local.EntityType || remote.EntityID != local.EntityID {
		return nil, fmt.Errorf("%w: remote %s, local %s", ErrEntityMismatch,
			models.EntityKey(remote.EntityType, remote.EntityID), local.Key())
	}
	if base != nil && (base.EntityType != local.EntityType || base.EntityID != local.EntityID) {
		return nil, fmt.Errorf("%w: base %s, local %s", ErrEntityMismatch,
			models.EntityKey(base.EntityType, base.EntityID), local.Key())
	}

	localFields, err := newSide(local.Data)
	if err != nil {
		return nil, fmt.Errorf("local data: %w", err)
	}
	remoteFields, err := newSide(remote.Data)
	if err != nil {
		return nil, fmt.Errorf("remote data: %w", err)
	}

	localMeta := local.Metadata
	remoteMeta := fromWire(remote.Metadata)

	var merged models.Fields
	result := &Result[T]{
		Conflicts:    []Conflict{},
		LocalFields:  []string{},
		RemoteFields: []string{},
	}

	if base == nil {
		merged = twoWay(result, localFields, remoteFields)
	} else {
		baseFields, err := newSide(base.Data)
		if err != nil {
			return nil, fmt.Errorf("base data: %w", err)
		}
		merged = threeWay(result, baseFields, localFields, remoteFields, IsNewer(localMeta, remoteMeta))
		result.Winner = classify(len(result.LocalFields), len(result.RemoteFields), len(result.Conflicts))
	}

	data, err := models.FromFields[T](merged)
	if err != nil {
		return nil, fmt.Errorf("merged data: %w", err)
	}

	result.Merged = api.SyncSnapshot[T]{
		Data:       data,
		EntityType: local.EntityType,
		EntityID:   local.EntityID,
		Metadata: api.Metadata{
			ClientID:  localMeta.ClientID,
			UpdatedAt: max(localMeta.UpdatedAt, remoteMeta.UpdatedAt),
			Version:   max(localMeta.Version, remoteMeta.Version),
		},
	}

	return result, nil
}

// threeWay выполняет полевое слияние по объединению ключей base, local и remote
func threeWay[T any](result *Result[T], base, local, remote side, localWins bool) models.Fields {
	merged := models.Fields{}

	for _, name := range unionKeys(base.canonical, local.canonical, remote.canonical) {
		b, inBase := base.raw[name]
		l, inLocal := local.raw[name]
		r, inRemote := remote.raw[name]

		localChanged := !local.same(name, base)
		remoteChanged := !remote.same(name, base)

		switch {
		case !localChanged && !remoteChanged:
			keep(merged, name, b, inBase)
		case localChanged && !remoteChanged:
			keep(merged, name, l, inLocal)
			result.LocalFields = append(result.LocalFields, name)
		case !localChanged && remoteChanged:
			keep(merged, name, r, inRemote)
			result.RemoteFields = append(result.RemoteFields, name)
		case local.same(name, remote):
			// Обе стороны пришли к одному значению - конфликта нет
			keep(merged, name, l, inLocal)
		default:
			conflict := Conflict{
				Field:        name,
				BaseValue:    b,
				LocalValue:   l,
				RemoteValue:  r,
				ResolvedFrom: SideRemote,
			}
			if localWins {
				conflict.ResolvedFrom = SideLocal
				keep(merged, name, l, inLocal)
			} else {
				keep(merged, name, r, inRemote)
			}
			result.Conflicts = append(result.Conflicts, conflict)
		}
	}

	return merged
}

// twoWay применяется без общего предка: сервер побеждает целиком,
// локальные отличия попадают в отчет как неразрешенные конфликты
func twoWay[T any](result *Result[T], local, remote side) models.Fields {
	merged := models.Fields{}
	for name, value := range remote.raw {
		merged[name] = value
	}

	for _, name := range unionKeys(local.canonical, remote.canonical) {
		if local.same(name, remote) {
			continue
		}
		l := local.raw[name]
		r := remote.raw[name]

		result.Conflicts = append(result.Conflicts, Conflict{
			Field:        name,
			LocalValue:   l,
			RemoteValue:  r,
			ResolvedFrom: SideRemote,
			Unresolved:   true,
		})
	}

	result.BaseMissing = true
	result.Winner = WinnerRemote

	return merged
}

func keep(merged models.Fields, name string, value json.RawMessage, present bool) {
	if present {
		merged[name] = value
	}
}

// side хранит исходные значения полей для результата и канонические для сравнения
type side struct {
	raw       models.Fields
	canonical models.Fields
}

func newSide(v any) (side, error) {
	raw, err := models.ToFields(v)
	if err != nil {
		return side{}, err
	}

	canonical := make(models.Fields, len(raw))
	for name, value := range raw {
		c, err := models.Canonical(value)
		if err != nil {
			return side{}, fmt.Errorf("field %q: %w", name, err)
		}
		canonical[name] = c
	}

	return side{raw: raw, canonical: canonical}, nil
}

// same сравнивает канонические значения; отсутствие поля равно только отсутствию
func (s side) same(name string, other side) bool {
	a, aPresent := s.canonical[name]
	b, bPresent := other.canonical[name]
	if aPresent != bPresent {
		return false
	}
	if !aPresent {
		return true
	}
	return bytes.Equal(a, b)
}

func unionKeys(sets ...models.Fields) []string {
	seen := make(map[string]struct{})
	for _, set := range sets {
		for name := range set {
			seen[name] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for name := range seen {
		keys = append(keys, name)
	}
	slices.Sort(keys)

	return keys
}
