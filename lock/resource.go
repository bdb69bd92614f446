// Package lock implements the process-wide Lock Manager: multi-granularity
// resources, mode compatibility, FIFO-with-priority granting, and
// lazy cycle-based deadlock detection (spec.md §3, §4.1).
package lock

import "hash/fnv"

// ResourceType tags what kind of entity a ResourceId names.
type ResourceType uint8

const (
	ResourceInvalid ResourceType = iota
	ResourceGlobal
	ResourceDatabase
	ResourceCollection
	ResourceMetadata
	ResourceMutex
	ResourceFlushSentinel
	ResourceParallelBatchWriterMode
)

func (t ResourceType) String() string {
	switch t {
	case ResourceGlobal:
		return "Global"
	case ResourceDatabase:
		return "Database"
	case ResourceCollection:
		return "Collection"
	case ResourceMetadata:
		return "Metadata"
	case ResourceMutex:
		return "Mutex"
	case ResourceFlushSentinel:
		return "FlushSentinel"
	case ResourceParallelBatchWriterMode:
		return "ParallelBatchWriterMode"
	default:
		return "Invalid"
	}
}

// ResourceId opaquely identifies a lockable resource: a type tag plus a
// hash of the resource's name. Two ResourceIds compare equal iff (type,
// name) are equal — callers should construct ResourceIds via NewResourceId
// so the hash and name stay consistent, and compare with Equals (or by
// value, since ResourceId has no pointer fields) rather than hashing twice.
type ResourceId struct {
	Type       ResourceType
	HashedName uint64
	// name is retained for administrative commands (lockInfo, §6) and for
	// equality in the rare case of a hash collision; it does not
	// participate in ordering.
	name string
}

// singleton resources named in spec.md §3 get fixed ids so every caller
// referring to "the" Global resource collides on the same ResourceId
// without hashing.
var (
	ResourceIdGlobal = ResourceId{Type: ResourceGlobal, HashedName: 0, name: "Global"}
	ResourceIdFlushSentinel = ResourceId{Type: ResourceFlushSentinel, HashedName: 0, name: "FlushSentinel"}
	ResourceIdParallelBatchWriterMode = ResourceId{Type: ResourceParallelBatchWriterMode, HashedName: 0, name: "ParallelBatchWriterMode"}
)

// NewResourceId builds a ResourceId for a named resource (database,
// collection, metadata row, or arbitrary mutex name).
func NewResourceId(t ResourceType, name string) ResourceId {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return ResourceId{Type: t, HashedName: h.Sum64(), name: name}
}

// Name returns the human-readable name the ResourceId was constructed
// from, for administrative commands and log lines.
func (r ResourceId) Name() string { return r.name }

// Equals reports whether two ResourceIds name the same (type, name) pair.
// Since ResourceId is comparable, r == other also works as long as both
// were produced by NewResourceId/the singleton vars; Equals is provided
// for readability at call sites.
func (r ResourceId) Equals(other ResourceId) bool {
	return r.Type == other.Type && r.HashedName == other.HashedName && r.name == other.name
}

// Less provides a total order over ResourceIds, used when Lockers
// reacquire saved locks in ascending ResourceId order to avoid introducing
// new cycles (spec.md §4.2 saveLockState/restoreLockState, §5 Ordering).
func (r ResourceId) Less(other ResourceId) bool {
	if r.Type != other.Type {
		return r.Type < other.Type
	}
	return r.HashedName < other.HashedName
}
