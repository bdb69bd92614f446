package exec

import (
	"github.com/kartikbazzad/bundoc-core/exec/predicate"
	"github.com/kartikbazzad/bundoc-core/storageengine"
)

// Fetch completes a memberRecordIdAndIndexKey member into
// memberRecordIdAndDocument by resolving its RecordId against the
// collection's RecordStore, then optionally rejects it against a
// residual filter the index alone couldn't satisfy (spec.md §9 Fetch:
// "optionally applies a residual filter expression"). A RecordId that
// no longer resolves (deleted since the index was scanned) causes
// Fetch to silently skip it and pull the next child result instead of
// failing the whole plan.
type Fetch struct {
	baseStage
	child  Stage
	ws     *WorkingSet
	store  *storageengine.RecordStore
	filter predicate.Node
}

// NewFetch wraps child (normally an IndexScan) with a document fetch
// against store, applying filter (nil means no residual filter) to each
// candidate before it is handed upstream.
func NewFetch(ws *WorkingSet, child Stage, store *storageengine.RecordStore, filter predicate.Node) *Fetch {
	return &Fetch{child: child, ws: ws, store: store, filter: filter}
}

func (f *Fetch) Work() (WorkingSetID, StageState, error) {
	if f.isDead() {
		return Invalid, StateDead, nil
	}

	childID, state, err := f.child.Work()
	if state != StateAdvanced {
		return childID, state, err
	}

	member := f.ws.Get(childID)
	if member == nil {
		return Invalid, StateFailure, nil
	}

	doc, ok, err := f.store.SeekExact(member.RecordId)
	if err != nil {
		return Invalid, StateFailure, err
	}
	if !ok {
		// The document was deleted after the index entry was read;
		// drop this candidate and ask the caller for another turn
		// rather than reporting EOF or failure.
		f.ws.Free(childID)
		return Invalid, StateNeedTime, nil
	}

	member.State = memberRecordIdAndDocument
	member.Doc = doc

	if f.filter != nil && !f.filter.Matches(doc) {
		f.ws.Free(childID)
		return Invalid, StateNeedTime, nil
	}

	return childID, StateAdvanced, nil
}

func (f *Fetch) SaveState()                  { f.child.SaveState() }
func (f *Fetch) RestoreState() (bool, error) { return f.child.RestoreState() }
func (f *Fetch) Children() []Stage           { return []Stage{f.child} }
