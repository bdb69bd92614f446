package exec

import (
	"testing"

	"github.com/kartikbazzad/bundoc-core/catalog"
	"github.com/kartikbazzad/bundoc-core/exec/predicate"
	"github.com/kartikbazzad/bundoc-core/storageengine"
)

// TestIndexScanEnforcesPartialFilterExpression exercises the
// PartialFilterExpression enforcement path: an IndexScan configured via
// WithPartialFilter must skip entries whose document fails the CEL
// expression, the same guarantee a real partial index promises even
// though nothing in the write path maintains that invariant at insert
// time yet.
func TestIndexScanEnforcesPartialFilterExpression(t *testing.T) {
	dir := t.TempDir()
	cat := catalog.New(dir, 4, nil)
	uuid := catalog.NewCollectionUUID()

	records, err := storageengine.OpenRecordStore(dir, "coll", 4)
	if err != nil {
		t.Fatalf("OpenRecordStore: %v", err)
	}
	t.Cleanup(func() { records.Close() })

	idx, err := storageengine.OpenIndexStore(dir, "coll.status", 4)
	if err != nil {
		t.Fatalf("OpenIndexStore: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	active, err := records.Insert(storageengine.Document{"status": "active", "n": 1.0})
	if err != nil {
		t.Fatalf("insert active: %v", err)
	}
	if err := idx.Insert([]byte("active"), active); err != nil {
		t.Fatalf("index active: %v", err)
	}
	archived, err := records.Insert(storageengine.Document{"status": "archived", "n": 2.0})
	if err != nil {
		t.Fatalf("insert archived: %v", err)
	}
	if err := idx.Insert([]byte("archived"), archived); err != nil {
		t.Fatalf("index archived: %v", err)
	}

	filter, err := predicate.NewFilterEngine()
	if err != nil {
		t.Fatalf("NewFilterEngine: %v", err)
	}

	ws := NewWorkingSet()
	scan := NewIndexScan(ws, cat, uuid, idx, IndexBounds{StartKey: []byte("active"), EndKey: []byte("archived")}, false)
	scan.WithPartialFilter(records, filter, `document.status == "active"`)

	var advanced, skipped int
	for i := 0; i < 4; i++ {
		id, state, err := scan.Work()
		if err != nil {
			t.Fatalf("Work: %v", err)
		}
		switch state {
		case StateAdvanced:
			advanced++
			member := ws.Get(id)
			if member.CollectionUUID != uuid {
				t.Fatalf("expected member tagged with %v, got %v", uuid, member.CollectionUUID)
			}
		case StateNeedTime:
			skipped++
		case StateIsEOF:
		default:
			t.Fatalf("unexpected state %v", state)
		}
	}

	if advanced != 1 {
		t.Fatalf("expected exactly 1 entry to pass the partial filter, got %d", advanced)
	}
	if skipped != 1 {
		t.Fatalf("expected exactly 1 entry skipped by the partial filter, got %d", skipped)
	}
}
