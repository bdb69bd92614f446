package catalog

import "github.com/google/uuid"

// CollectionUUID is the stable, version-4 random identifier assigned to a
// collection on creation. It survives renames; a copy of a collection
// (as opposed to a rename) gets a fresh UUID (spec.md §3
// CollectionUUID).
type CollectionUUID [16]byte

// NewCollectionUUID generates a fresh random CollectionUUID.
func NewCollectionUUID() CollectionUUID {
	id := uuid.New()
	var out CollectionUUID
	copy(out[:], id[:])
	return out
}

func (u CollectionUUID) String() string {
	id, _ := uuid.FromBytes(u[:])
	return id.String()
}

// IsZero reports whether u is the zero value (never assigned).
func (u CollectionUUID) IsZero() bool {
	return u == CollectionUUID{}
}
