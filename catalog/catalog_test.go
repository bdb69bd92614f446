package catalog

import (
	"path/filepath"
	"testing"

	"github.com/kartikbazzad/bundoc-core/internal/util"
	"github.com/kartikbazzad/bundoc-core/replication"
	"github.com/kartikbazzad/bundoc-core/storageengine/mvcc"
	"github.com/kartikbazzad/bundoc-core/storageengine/wal"
	"github.com/kartikbazzad/bundoc-core/txn"
)

func newTestCatalog(t *testing.T, repl *replication.Coordinator) (*Catalog, *txn.Manager) {
	t.Helper()
	dir := t.TempDir()
	w, err := wal.NewWAL(filepath.Join(dir, "wal"))
	if err != nil {
		t.Fatalf("NewWAL: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	sm := mvcc.NewSnapshotManager(mvcc.NewVersionManager())
	txnMgr := txn.NewTransactionManager(sm, w)

	return New(dir, 16, repl), txnMgr
}

func mustCreate(t *testing.T, cat *Catalog, txnMgr *txn.Manager, ns Namespace) *CollectionDescriptor {
	t.Helper()
	tx, err := txnMgr.Begin(mvcc.IsolationLevel(0))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	desc, err := cat.CreateCollection(tx, ns, CollectionOptions{})
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := txnMgr.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return desc
}

func TestCreateCollectionAssignsStableUUID(t *testing.T) {
	cat, txnMgr := newTestCatalog(t, nil)
	ns := Namespace{Database: "db", Collection: "coll"}
	desc := mustCreate(t, cat, txnMgr, ns)

	if desc.State != StateActive {
		t.Fatalf("expected Active after commit, got %v", desc.State)
	}
	got, err := cat.GetCollection(ns)
	if err != nil {
		t.Fatalf("GetCollection: %v", err)
	}
	if got.UUID != desc.UUID {
		t.Fatalf("UUID mismatch: %v != %v", got.UUID, desc.UUID)
	}
}

func TestCreateCollectionRollbackUndoesDescriptor(t *testing.T) {
	cat, txnMgr := newTestCatalog(t, nil)
	ns := Namespace{Database: "db", Collection: "coll"}

	tx, err := txnMgr.Begin(mvcc.IsolationLevel(0))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := cat.CreateCollection(tx, ns, CollectionOptions{}); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := txnMgr.Rollback(tx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := cat.GetCollection(ns); !util.Is(err, util.KindNamespaceNotFound) {
		t.Fatalf("expected KindNamespaceNotFound after rollback, got %v", err)
	}
}

// TestTwoPhaseDropWaitsForCommitPoint reproduces S3: a drop with
// replication active must not physically remove the collection until the
// coordinator's commit point passes dropOpTime, but the namespace becomes
// immediately invisible to GetCollection.
func TestTwoPhaseDropWaitsForCommitPoint(t *testing.T) {
	repl := replication.NewCoordinator()
	defer repl.Close()
	cat, txnMgr := newTestCatalog(t, repl)
	ns := Namespace{Database: "db", Collection: "coll"}
	desc := mustCreate(t, cat, txnMgr, ns)

	const dropOpTime = 5
	tx, err := txnMgr.Begin(mvcc.IsolationLevel(0))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := cat.DropCollection(tx, ns, dropOpTime); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
	if err := txnMgr.Commit(tx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := cat.GetCollection(ns); !util.Is(err, util.KindNamespaceNotFound) {
		t.Fatalf("expected namespace to be gone immediately, got %v", err)
	}

	// The commit point hasn't advanced yet: a sweep must not reap it, and
	// the UUID must still resolve (the storage entry is still intact).
	cat.Sweep()
	if _, ok := cat.GetCollectionByUUID(desc.UUID); !ok {
		t.Fatal("collection reaped before the commit point advanced")
	}

	repl.AdvanceCommitPoint(dropOpTime)
	cat.Sweep()
	if _, ok := cat.GetCollectionByUUID(desc.UUID); ok {
		t.Fatal("expected collection to be reaped once the commit point advanced")
	}
}

// TestDropCollectionRollbackResurrects exercises the rollback hook: an
// aborted drop must make the collection visible under its original name
// again.
func TestDropCollectionRollbackResurrects(t *testing.T) {
	cat, txnMgr := newTestCatalog(t, nil)
	ns := Namespace{Database: "db", Collection: "coll"}
	mustCreate(t, cat, txnMgr, ns)

	tx, err := txnMgr.Begin(mvcc.IsolationLevel(0))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := cat.DropCollection(tx, ns, 0); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
	if err := txnMgr.Rollback(tx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := cat.GetCollection(ns); err != nil {
		t.Fatalf("expected collection to be resurrected, got %v", err)
	}
}

type recordingListener struct {
	invalidated []CollectionUUID
}

func (r *recordingListener) InvalidateNamespace(uuid CollectionUUID) {
	r.invalidated = append(r.invalidated, uuid)
}

// TestRenamePreservesUUIDAndInvalidatesListeners reproduces S6: rename
// keeps the same CollectionUUID and notifies every registered executor.
func TestRenamePreservesUUIDAndInvalidatesListeners(t *testing.T) {
	cat, txnMgr := newTestCatalog(t, nil)
	from := Namespace{Database: "db", Collection: "old"}
	to := Namespace{Database: "db", Collection: "new"}
	desc := mustCreate(t, cat, txnMgr, from)

	listener := &recordingListener{}
	cat.Register(desc.UUID, listener)
	defer cat.Unregister(desc.UUID, listener)

	if err := cat.RenameCollection(from, to, false); err != nil {
		t.Fatalf("RenameCollection: %v", err)
	}

	if _, err := cat.GetCollection(from); !util.Is(err, util.KindNamespaceNotFound) {
		t.Fatalf("expected old namespace gone, got %v", err)
	}
	got, err := cat.GetCollection(to)
	if err != nil {
		t.Fatalf("GetCollection(to): %v", err)
	}
	if got.UUID != desc.UUID {
		t.Fatalf("rename must preserve UUID: got %v, want %v", got.UUID, desc.UUID)
	}
	if len(listener.invalidated) != 1 || listener.invalidated[0] != desc.UUID {
		t.Fatalf("expected listener notified of %v, got %v", desc.UUID, listener.invalidated)
	}
}

func TestRenameAcrossDatabasesRejected(t *testing.T) {
	cat, txnMgr := newTestCatalog(t, nil)
	from := Namespace{Database: "db1", Collection: "coll"}
	mustCreate(t, cat, txnMgr, from)

	err := cat.RenameCollection(from, Namespace{Database: "db2", Collection: "coll"}, false)
	if !util.Is(err, util.KindIllegalOperation) {
		t.Fatalf("expected KindIllegalOperation, got %v", err)
	}
}
