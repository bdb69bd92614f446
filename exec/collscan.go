package exec

import (
	"time"

	"github.com/kartikbazzad/bundoc-core/catalog"
	"github.com/kartikbazzad/bundoc-core/storageengine"
)

// tailableAwaitDataPollInterval bounds how long a single tailable,
// await-data Work() call blocks before returning StateNeedTime to let
// the executor loop re-check the operation deadline (spec.md §9 step 4).
const tailableAwaitDataPollInterval = 100 * time.Millisecond

// CollectionScan is a leaf stage that walks every record of one
// collection in storage order via a storageengine.Cursor (spec.md §9).
// It produces fully-materialized memberRecordIdAndDocument members
// directly, since the collection's own RecordStore already holds the
// document. A tailable CollectionScan (built via NewTailableCollectionScan,
// only meaningful over a capped collection's natural order) never reports
// EOF: instead of StateIsEOF it returns StateNeedTime, optionally having
// blocked for new data first, so the executor's retry loop keeps polling
// it the way a real getMore would (spec.md §4.4, §8 property 8).
type CollectionScan struct {
	baseStage
	ws     *WorkingSet
	store  *storageengine.RecordStore
	uuid   catalog.CollectionUUID
	dir    storageengine.Direction
	cursor *storageengine.Cursor

	tailable  bool
	awaitData bool
}

// NewCollectionScan opens a forward or backward cursor over store and
// registers for invalidation notices against uuid.
func NewCollectionScan(ws *WorkingSet, cat *catalog.Catalog, uuid catalog.CollectionUUID, store *storageengine.RecordStore, dir storageengine.Direction) (*CollectionScan, error) {
	cursor, err := store.NewCursor(dir)
	if err != nil {
		return nil, err
	}
	cs := &CollectionScan{ws: ws, store: store, uuid: uuid, dir: dir, cursor: cursor}
	cat.Register(uuid, &namespaceWatcher{uuid: uuid, target: &cs.baseStage})
	return cs, nil
}

// NewTailableCollectionScan builds a forward CollectionScan over a
// capped collection that blocks for new inserts at EOF rather than
// terminating (spec.md §4.4's tailable cursor). awaitData selects
// whether EOF actually waits (awaitData) or just immediately reopens the
// cursor and reports StateNeedTime (tailable without awaitData, matching
// a client that polls getMore itself without server-side blocking).
// Callers are responsible for only requesting this over a capped
// collection; CollectionScan has no CollectionOptions of its own to
// check.
func NewTailableCollectionScan(ws *WorkingSet, cat *catalog.Catalog, uuid catalog.CollectionUUID, store *storageengine.RecordStore, awaitData bool) (*CollectionScan, error) {
	cs, err := NewCollectionScan(ws, cat, uuid, store, storageengine.Forward)
	if err != nil {
		return nil, err
	}
	cs.tailable = true
	cs.awaitData = awaitData
	return cs, nil
}

func (cs *CollectionScan) Work() (WorkingSetID, StageState, error) {
	if cs.isDead() {
		return Invalid, StateDead, nil
	}

	recordID, doc, ok, err := cs.cursor.Next()
	if err != nil {
		return Invalid, StateFailure, err
	}
	if !ok {
		if !cs.tailable {
			return Invalid, StateIsEOF, nil
		}
		if cs.awaitData {
			cs.store.WaitForInsert(tailableAwaitDataPollInterval)
		}
		// Reopen the cursor over the current key range so a concurrent
		// insert (the collection's own or one raced in while waiting) is
		// visible on the next Next() call; this is the same Save/Restore
		// pair the yield policy uses, just driven directly from Work()
		// rather than from an executor-triggered yield.
		cs.cursor.Save()
		if _, _, err := cs.cursor.Restore(); err != nil {
			return Invalid, StateFailure, err
		}
		return Invalid, StateNeedTime, nil
	}

	id, member := cs.ws.Allocate()
	member.State = memberRecordIdAndDocument
	member.RecordId = recordID
	member.Doc = doc
	member.CollectionUUID = cs.uuid
	return id, StateAdvanced, nil
}

func (cs *CollectionScan) SaveState() {
	cs.cursor.Save()
}

func (cs *CollectionScan) RestoreState() (bool, error) {
	if cs.isDead() {
		return false, nil
	}
	_, needsRetry, err := cs.cursor.Restore()
	return needsRetry, err
}

func (cs *CollectionScan) Children() []Stage { return nil }
