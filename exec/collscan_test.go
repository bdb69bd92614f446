package exec

import (
	"sync"
	"testing"
	"time"

	"github.com/kartikbazzad/bundoc-core/catalog"
	"github.com/kartikbazzad/bundoc-core/storageengine"
)

// TestCollectionScanTailableAwaitDataBlocksUntilInsert exercises the
// await-data path end to end: a tailable scan parked at EOF must not
// report StateIsEOF, and once a concurrent Insert lands it must surface
// that record on a subsequent Work() call rather than staying stuck on
// a stale cursor snapshot.
func TestCollectionScanTailableAwaitDataBlocksUntilInsert(t *testing.T) {
	dir := t.TempDir()
	cat := catalog.New(dir, 4, nil)
	uuid := catalog.NewCollectionUUID()

	store, err := storageengine.OpenRecordStore(dir, "coll", 4)
	if err != nil {
		t.Fatalf("OpenRecordStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ws := NewWorkingSet()
	scan, err := NewTailableCollectionScan(ws, cat, uuid, store, true)
	if err != nil {
		t.Fatalf("NewTailableCollectionScan: %v", err)
	}

	id, state, err := scan.Work()
	if err != nil {
		t.Fatalf("Work on empty collection: %v", err)
	}
	if state != StateNeedTime {
		t.Fatalf("expected StateNeedTime on an empty tailable scan, got %v", state)
	}
	if id != Invalid {
		t.Fatalf("expected Invalid id alongside StateNeedTime, got %v", id)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		if _, err := store.Insert(storageengine.Document{"seq": 1.0}); err != nil {
			t.Errorf("concurrent insert: %v", err)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	var advancedID WorkingSetID
	var advanced bool
	for time.Now().Before(deadline) {
		wsID, state, err := scan.Work()
		if err != nil {
			t.Fatalf("Work: %v", err)
		}
		if state == StateAdvanced {
			advancedID = wsID
			advanced = true
			break
		}
		if state != StateNeedTime {
			t.Fatalf("unexpected state %v while awaiting data", state)
		}
	}
	wg.Wait()

	if !advanced {
		t.Fatalf("expected the tailable scan to surface the concurrent insert before the test deadline")
	}
	member := ws.Get(advancedID)
	if member.CollectionUUID != uuid {
		t.Fatalf("expected member tagged with %v, got %v", uuid, member.CollectionUUID)
	}
}

// TestCollectionScanTailableWithoutAwaitDataDoesNotBlock confirms a
// tailable-but-not-awaitData scan reports StateNeedTime immediately at
// EOF rather than blocking in WaitForInsert.
func TestCollectionScanTailableWithoutAwaitDataDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	cat := catalog.New(dir, 4, nil)
	uuid := catalog.NewCollectionUUID()

	store, err := storageengine.OpenRecordStore(dir, "coll", 4)
	if err != nil {
		t.Fatalf("OpenRecordStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ws := NewWorkingSet()
	scan, err := NewTailableCollectionScan(ws, cat, uuid, store, false)
	if err != nil {
		t.Fatalf("NewTailableCollectionScan: %v", err)
	}

	start := time.Now()
	_, state, err := scan.Work()
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if state != StateNeedTime {
		t.Fatalf("expected StateNeedTime, got %v", state)
	}
	if elapsed > tailableAwaitDataPollInterval {
		t.Fatalf("expected an immediate return without awaitData, took %v", elapsed)
	}
}
