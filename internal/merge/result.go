package merge

import (
	"encoding/json"

	"github.com/iudanet/draftkeeper/pkg/api"
)

// Winner classifies a merge outcome over the whole record.
type Winner string

const (
	WinnerLocal  Winner = "local"  // все изменения пришли из локального черновика
	WinnerRemote Winner = "remote" // все изменения пришли с сервера
	WinnerMixed  Winner = "mixed"  // комбинация сторон или есть конфликт
)

// Side names the origin of a field value.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// Conflict records a field both sides changed to different values.
// Absent values are nil and omitted from JSON; an explicit null is kept.
type Conflict struct {
	Field        string          `json:"field"`
	BaseValue    json.RawMessage `json:"baseValue,omitempty"`
	LocalValue   json.RawMessage `json:"localValue,omitempty"`
	RemoteValue  json.RawMessage `json:"remoteValue,omitempty"`
	ResolvedFrom Side            `json:"resolvedFrom"`
	// Unresolved is set when no common ancestor was available and the
	// remote value was taken without a real three-way decision.
	Unresolved bool `json:"unresolved,omitempty"`
}

// Result is the output of Reconcile.
type Result[T any] struct {
	Merged       api.SyncSnapshot[T] `json:"merged"`
	Winner       Winner              `json:"winner"`
	Conflicts    []Conflict          `json:"conflicts"`
	LocalFields  []string            `json:"localFields"`  // поля, взятые только из локальной стороны
	RemoteFields []string            `json:"remoteFields"` // поля, взятые только с сервера
	BaseMissing  bool                `json:"baseMissing"`
}

// HasConflicts reports whether any field was contested.
func (r *Result[T]) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// ConflictFor returns the conflict entry of field, if any.
func (r *Result[T]) ConflictFor(field string) (Conflict, bool) {
	for _, c := range r.Conflicts {
		if c.Field == field {
			return c, true
		}
	}
	return Conflict{}, false
}

func classify(localFields, remoteFields, conflicts int) Winner {
	switch {
	case conflicts > 0:
		return WinnerMixed
	case localFields > 0 && remoteFields > 0:
		return WinnerMixed
	case localFields > 0:
		return WinnerLocal
	default:
		// Нечего было разрешать или менялся только сервер: результат совпадает с remote
		return WinnerRemote
	}
}
