package merge

import (
	"cmp"
	"strings"

	"github.com/iudanet/draftkeeper/internal/models"
	"github.com/iudanet/draftkeeper/pkg/api"
)

// Compare orders two metadata tuples lexicographically by
// (UpdatedAt, Version, ClientID). It returns -1, 0 or +1.
func Compare(a, b models.DraftMetadata) int {
	if c := cmp.Compare(a.UpdatedAt, b.UpdatedAt); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Version, b.Version); c != 0 {
		return c
	}
	// Полное совпадение времени и версии - сравниваем ClientID для детерминизма
	return strings.Compare(a.ClientID, b.ClientID)
}

// IsNewer reports whether a strictly wins over b.
func IsNewer(a, b models.DraftMetadata) bool {
	return Compare(a, b) > 0
}

func fromWire(m api.Metadata) models.DraftMetadata {
	return models.DraftMetadata{
		ClientID:  m.ClientID,
		UpdatedAt: m.UpdatedAt,
		Version:   m.Version,
	}
}
