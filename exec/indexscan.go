package exec

import (
	"github.com/kartikbazzad/bundoc-core/catalog"
	"github.com/kartikbazzad/bundoc-core/exec/predicate"
	"github.com/kartikbazzad/bundoc-core/storageengine"
)

// IndexBounds is the [StartKey, EndKey] interval an IndexScan walks, both
// inclusive, already encoded in the index's own key order (building this
// from a query predicate is the planSelect layer's job, not this stage's).
type IndexBounds struct {
	StartKey []byte
	EndKey   []byte
}

// IndexScan is a leaf stage that walks one IndexStore's entries within
// Bounds, producing memberRecordIdAndIndexKey members a downstream Fetch
// stage completes into full documents (spec.md §9). When the underlying
// IndexDescriptor carries a PartialFilterExpression, IndexScan is also
// the enforcement point for it: nothing elsewhere maintains a partial
// index's entries against the filter at write time, so entries whose
// document fails the expression are skipped here rather than surfaced to
// a downstream Fetch as if the index had never covered them.
type IndexScan struct {
	baseStage
	ws      *WorkingSet
	uuid    catalog.CollectionUUID
	store   *storageengine.IndexStore
	bounds  IndexBounds
	reverse bool

	// records, filter, and partialFilterExpression are only set when the
	// index carries a PartialFilterExpression; a plain index skips the
	// per-entry document fetch entirely.
	records                 *storageengine.RecordStore
	filter                  *predicate.FilterEngine
	partialFilterExpression string

	entries []storageengine.IndexEntry
	pos     int
	lastKey []byte
	opened  bool
}

// NewIndexScan constructs an IndexScan over store within bounds, and
// registers for invalidation notices against uuid.
func NewIndexScan(ws *WorkingSet, cat *catalog.Catalog, uuid catalog.CollectionUUID, store *storageengine.IndexStore, bounds IndexBounds, reverse bool) *IndexScan {
	is := &IndexScan{ws: ws, uuid: uuid, store: store, bounds: bounds, reverse: reverse}
	cat.Register(uuid, &namespaceWatcher{uuid: uuid, target: &is.baseStage})
	return is
}

// WithPartialFilter enables per-entry PartialFilterExpression enforcement:
// records is the collection's backing RecordStore (to fetch the candidate
// document), filter is the shared CEL FilterEngine, and expression is the
// IndexDescriptor's PartialFilterExpression (spec.md §3). No plan-
// selection code calls it; an IndexScan is configured with it directly.
func (is *IndexScan) WithPartialFilter(records *storageengine.RecordStore, filter *predicate.FilterEngine, expression string) *IndexScan {
	is.records = records
	is.filter = filter
	is.partialFilterExpression = expression
	return is
}

func (is *IndexScan) ensureOpened() error {
	if is.opened {
		return nil
	}
	entries, err := is.store.RangeScan(is.bounds.StartKey, is.bounds.EndKey)
	if err != nil {
		return err
	}
	if is.reverse {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	is.entries = entries
	is.opened = true
	return nil
}

func (is *IndexScan) Work() (WorkingSetID, StageState, error) {
	if is.isDead() {
		return Invalid, StateDead, nil
	}
	if err := is.ensureOpened(); err != nil {
		return Invalid, StateFailure, err
	}
	if is.pos >= len(is.entries) {
		return Invalid, StateIsEOF, nil
	}

	e := is.entries[is.pos]
	is.pos++
	is.lastKey = e.Key

	if is.partialFilterExpression != "" {
		matches, err := is.matchesPartialFilter(e.RecordId)
		if err != nil {
			return Invalid, StateFailure, err
		}
		if !matches {
			return Invalid, StateNeedTime, nil
		}
	}

	id, member := is.ws.Allocate()
	member.State = memberRecordIdAndIndexKey
	member.RecordId = e.RecordId
	member.IndexKey = e.Key
	member.CollectionUUID = is.uuid
	return id, StateAdvanced, nil
}

// matchesPartialFilter fetches id's document and evaluates it against
// partialFilterExpression, reporting false for a document that has since
// been deleted (a concurrent delete racing the scan, not a filter
// mismatch) rather than failing the whole plan.
func (is *IndexScan) matchesPartialFilter(id storageengine.RecordId) (bool, error) {
	doc, ok, err := is.records.SeekExact(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return is.filter.Evaluate(is.partialFilterExpression, map[string]interface{}(doc))
}

// SaveState drops the buffered entry slice; the scan re-reads it from
// the IndexStore on RestoreState, since the B+Tree may have changed
// shape while the Locker's locks were released.
func (is *IndexScan) SaveState() {
	is.opened = false
	is.entries = nil
}

// RestoreState re-runs the range scan and repositions at lastKey. If
// lastKey was deleted while the scan was suspended, it resumes at the
// first surviving key past the original start, signalling needsRetry so
// the caller knows positional continuity was not guaranteed.
func (is *IndexScan) RestoreState() (bool, error) {
	if is.isDead() {
		return false, nil
	}
	if err := is.ensureOpened(); err != nil {
		return false, err
	}
	if is.lastKey == nil {
		return false, nil
	}
	for i, e := range is.entries {
		if string(e.Key) == string(is.lastKey) {
			is.pos = i + 1
			return false, nil
		}
	}
	is.pos = 0
	return true, nil
}

func (is *IndexScan) Children() []Stage { return nil }
