package locker

import (
	"context"
	"testing"
	"time"

	"github.com/kartikbazzad/bundoc-core/internal/util"
	"github.com/kartikbazzad/bundoc-core/lock"
)

func newTestLocker(manager *lock.Manager) *Locker {
	return New(manager, NewTicketPool("reader", defaultTicketCapacity), NewTicketPool("writer", defaultTicketCapacity))
}

func TestLockGlobalThenCollectionGranted(t *testing.T) {
	m := lock.NewManager()
	l := newTestLocker(m)
	ctx := context.Background()

	if err := l.LockGlobal(ctx, lock.ModeIX); err != nil {
		t.Fatalf("LockGlobal: %v", err)
	}
	coll := lock.NewResourceId(lock.ResourceCollection, "db.coll")
	if err := l.Lock(ctx, coll, lock.ModeX); err != nil {
		t.Fatalf("Lock collection: %v", err)
	}
	if l.State() != StateActiveWriter {
		t.Errorf("expected ActiveWriter, got %v", l.State())
	}

	l.Unlock(coll)
	l.Unlock(lock.ResourceIdGlobal)
}

func TestLockWithoutGlobalRejected(t *testing.T) {
	m := lock.NewManager()
	l := newTestLocker(m)
	coll := lock.NewResourceId(lock.ResourceCollection, "db.coll")
	err := l.Lock(context.Background(), coll, lock.ModeX)
	if !util.Is(err, util.KindIllegalOperation) {
		t.Fatalf("expected KindIllegalOperation, got %v", err)
	}
}

// TestDeadlockDetected reproduces S1: two lockers each hold one
// collection X and block waiting on the other's, forming a two-node
// wait-for cycle that DetectCycle must surface within the periodic
// deadlock-check window.
func TestDeadlockDetected(t *testing.T) {
	m := lock.NewManager()
	l1 := newTestLocker(m)
	l2 := newTestLocker(m)

	resA := lock.NewResourceId(lock.ResourceCollection, "db.a")
	resB := lock.NewResourceId(lock.ResourceCollection, "db.b")

	ctx := context.Background()
	if err := l1.LockGlobal(ctx, lock.ModeIX); err != nil {
		t.Fatalf("l1 LockGlobal: %v", err)
	}
	if err := l1.Lock(ctx, resA, lock.ModeX); err != nil {
		t.Fatalf("l1 lock A: %v", err)
	}
	if err := l2.LockGlobal(ctx, lock.ModeIX); err != nil {
		t.Fatalf("l2 LockGlobal: %v", err)
	}
	if err := l2.Lock(ctx, resB, lock.ModeX); err != nil {
		t.Fatalf("l2 lock B: %v", err)
	}

	// A deadlock victim's operation aborts, releasing the lock it already
	// holds so the other locker can be granted and return as well.
	errCh := make(chan error, 2)
	go func() {
		err := l1.Lock(ctx, resB, lock.ModeX)
		if err != nil {
			l1.Unlock(resA)
		}
		errCh <- err
	}()
	go func() {
		err := l2.Lock(ctx, resA, lock.ModeX)
		if err != nil {
			l2.Unlock(resB)
		}
		errCh <- err
	}()

	deadline := time.After(5 * time.Second)
	var sawDeadlock bool
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if util.Is(err, util.KindLockDeadlock) {
				sawDeadlock = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for deadlock detection")
		}
	}
	if !sawDeadlock {
		t.Fatal("expected at least one locker to observe a deadlock")
	}
}

// TestSaveRestoreLockState exercises saveLockState/restoreLockState's
// ascending-ResourceId reacquisition order.
func TestSaveRestoreLockState(t *testing.T) {
	m := lock.NewManager()
	l := newTestLocker(m)
	ctx := context.Background()

	if err := l.LockGlobal(ctx, lock.ModeIS); err != nil {
		t.Fatalf("LockGlobal: %v", err)
	}
	coll := lock.NewResourceId(lock.ResourceCollection, "db.coll")
	if err := l.Lock(ctx, coll, lock.ModeS); err != nil {
		t.Fatalf("Lock collection: %v", err)
	}

	saved := l.SaveLockState()
	if len(saved) != 2 {
		t.Fatalf("expected 2 saved locks, got %d", len(saved))
	}
	if l.State() != StateInactive {
		t.Errorf("expected Inactive after save, got %v", l.State())
	}

	if err := l.RestoreLockState(ctx, saved); err != nil {
		t.Fatalf("RestoreLockState: %v", err)
	}
	if l.State() != StateActiveReader {
		t.Errorf("expected ActiveReader after restore, got %v", l.State())
	}
}

// TestWriteUnitOfWorkDefersRelease exercises the deferred-unlock queue:
// a database X release inside a nested WUOW must not actually free the
// lock until the outermost EndWriteUnitOfWork.
func TestWriteUnitOfWorkDefersRelease(t *testing.T) {
	m := lock.NewManager()
	l1 := newTestLocker(m)
	l2 := newTestLocker(m)
	ctx := context.Background()

	db := lock.NewResourceId(lock.ResourceDatabase, "db")

	if err := l1.LockGlobal(ctx, lock.ModeIX); err != nil {
		t.Fatalf("l1 LockGlobal: %v", err)
	}
	l1.BeginWriteUnitOfWork()
	if err := l1.Lock(ctx, db, lock.ModeX); err != nil {
		t.Fatalf("l1 lock db: %v", err)
	}
	l1.Unlock(db) // deferred: wuowDepth > 0

	if err := l2.LockGlobal(ctx, lock.ModeIX); err != nil {
		t.Fatalf("l2 LockGlobal: %v", err)
	}

	shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if err := l2.Lock(shortCtx, db, lock.ModeX); err == nil {
		t.Fatal("expected l2's lock attempt to still block while l1's WUOW is open")
	}

	l1.EndWriteUnitOfWork()
	l1.Unlock(lock.ResourceIdGlobal)

	if err := l2.Lock(ctx, db, lock.ModeX); err != nil {
		t.Fatalf("l2 lock db after l1's WUOW closed: %v", err)
	}
	l2.Unlock(db)
	l2.Unlock(lock.ResourceIdGlobal)
}
