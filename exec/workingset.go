package exec

import (
	"sync"

	"github.com/kartikbazzad/bundoc-core/storageengine"
)

// memberState tracks how much of a WorkingSetMember is actually
// populated, since stages hand members to each other at different
// points of completeness (spec.md WorkingSetMember: RecordId-only,
// RecordId+indexKey, RecordId+document, or document-only).
type memberState int

const (
	memberRecordIdOnly memberState = iota
	memberRecordIdAndIndexKey
	memberRecordIdAndDocument
	memberOwnedDocument
)

// WorkingSetMember is the unit of data flow between stages. A
// CollectionScan produces memberRecordIdAndDocument members directly; an
// IndexScan produces memberRecordIdAndIndexKey members that a downstream
// Fetch stage completes into memberRecordIdAndDocument. The in-memory
// Sort only reorders member ids; no stage produces memberOwnedDocument.
type WorkingSetMember struct {
	State    memberState
	RecordId storageengine.RecordId
	IndexKey []byte
	Doc      storageengine.Document

	// CollectionUUID tags the member with the collection its scan stage
	// (CollectionScan or IndexScan) reads; Fetch/Delete/Update use the
	// RecordStore passed to their constructors instead of this field.
	CollectionUUID [16]byte
}

// WorkingSet is the pool of WorkingSetMembers shared by every stage in
// one plan tree, addressed by small integer WorkingSetIDs rather than
// pointers so save/restore and invalidation can reason about members
// without holding references into storage-engine internals across a
// yield.
type WorkingSet struct {
	mu      sync.Mutex
	members map[WorkingSetID]*WorkingSetMember
	nextID  WorkingSetID
	freed   []WorkingSetID
}

// NewWorkingSet constructs an empty WorkingSet for one plan execution.
func NewWorkingSet() *WorkingSet {
	return &WorkingSet{
		members: make(map[WorkingSetID]*WorkingSetMember),
		nextID:  Invalid + 1,
	}
}

// Allocate reserves a fresh WorkingSetID for an empty member, for a
// stage to fill in before returning StateAdvanced.
func (ws *WorkingSet) Allocate() (WorkingSetID, *WorkingSetMember) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	var id WorkingSetID
	if n := len(ws.freed); n > 0 {
		id = ws.freed[n-1]
		ws.freed = ws.freed[:n-1]
	} else {
		id = ws.nextID
		ws.nextID++
	}
	m := &WorkingSetMember{}
	ws.members[id] = m
	return id, m
}

// Get retrieves the member at id.
func (ws *WorkingSet) Get(id WorkingSetID) *WorkingSetMember {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.members[id]
}

// Free releases id back to the pool, for a stage that has fully
// consumed a member (e.g. Filter rejecting a candidate).
func (ws *WorkingSet) Free(id WorkingSetID) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.members, id)
	ws.freed = append(ws.freed, id)
}
