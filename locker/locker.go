package locker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kartikbazzad/bundoc-core/internal/util"
	"github.com/kartikbazzad/bundoc-core/lock"
)

// ClientState is the Locker's visible admission-control state (spec.md
// §4.2).
type ClientState int

const (
	StateInactive ClientState = iota
	StateQueuedReader
	StateQueuedWriter
	StateActiveReader
	StateActiveWriter
)

func (s ClientState) String() string {
	switch s {
	case StateQueuedReader:
		return "QueuedReader"
	case StateQueuedWriter:
		return "QueuedWriter"
	case StateActiveReader:
		return "ActiveReader"
	case StateActiveWriter:
		return "ActiveWriter"
	default:
		return "Inactive"
	}
}

// deferredRelease is one entry of the write-unit-of-work deferred-unlock
// queue: a resource whose release was postponed until the enclosing
// WUOW commits or rolls back (spec.md §4.2 unlock, §9 "Write unit of
// work").
type deferredRelease struct {
	resource lock.ResourceId
}

// lockerIDSeq mints process-wide unique LockerIDs.
var lockerIDSeq atomic.Uint64

// Locker aggregates one in-flight operation's lock acquisitions,
// enforcing the hierarchical acquisition protocol and gating entry
// through the reader/writer ticket pools (spec.md §4.2).
type Locker struct {
	id      lock.LockerID
	manager *lock.Manager
	readers *TicketPool
	writers *TicketPool

	mu         sync.Mutex
	requests   map[lock.ResourceId]*lock.Request
	state      ClientState
	heldTicket *TicketPool // which pool currently holds this Locker's ticket, nil if none

	wuowDepth int
	deferred  []deferredRelease
}

// New constructs a Locker against manager, drawing tickets from readers
// and writers.
func New(manager *lock.Manager, readers, writers *TicketPool) *Locker {
	return &Locker{
		id:       lock.LockerID(lockerIDSeq.Add(1)),
		manager:  manager,
		readers:  readers,
		writers:  writers,
		requests: make(map[lock.ResourceId]*lock.Request),
	}
}

// ID returns this Locker's opaque identity, for lockInfo/WaitsFor
// reporting and the deadlock detector's wait-for graph.
func (l *Locker) ID() lock.LockerID { return l.id }

// poolFor chooses the ticket pool a mode draws from: shared modes from
// the reader pool, intent-exclusive from the writer pool, X bypasses
// pools entirely (spec.md §4.2 lockGlobal).
func poolFor(mode lock.Mode, readers, writers *TicketPool) *TicketPool {
	switch mode {
	case lock.ModeS, lock.ModeIS:
		return readers
	case lock.ModeIX:
		return writers
	default:
		return nil
	}
}

func stateFor(mode lock.Mode, queued bool) ClientState {
	writerish := mode == lock.ModeIX || mode == lock.ModeX
	switch {
	case writerish && queued:
		return StateQueuedWriter
	case writerish:
		return StateActiveWriter
	case queued:
		return StateQueuedReader
	default:
		return StateActiveReader
	}
}

// LockGlobal is spec.md §4.2's two-phase lockGlobal: acquire a ticket
// (unless already held, or mode is X which bypasses pools), then call
// the Lock Manager on the Global resource, blocking until granted or
// until deadlock/timeout.
func (l *Locker) LockGlobal(ctx context.Context, mode lock.Mode) error {
	l.mu.Lock()
	needsTicket := l.heldTicket == nil
	pool := poolFor(mode, l.readers, l.writers)
	l.mu.Unlock()

	if needsTicket && pool != nil {
		l.mu.Lock()
		l.state = stateFor(mode, true)
		l.mu.Unlock()

		if err := pool.Acquire(ctx); err != nil {
			l.mu.Lock()
			l.state = StateInactive
			l.mu.Unlock()
			return err
		}

		l.mu.Lock()
		l.heldTicket = pool
		l.state = stateFor(mode, false)
		l.mu.Unlock()
	}

	if err := l.lockInternal(ctx, lock.ResourceIdGlobal, mode); err != nil {
		if needsTicket && pool != nil {
			pool.Release()
			l.mu.Lock()
			l.heldTicket = nil
			l.state = StateInactive
			l.mu.Unlock()
		}
		return err
	}
	return nil
}

// Lock is spec.md §4.2's lock(resource, mode, timeout): a simple wrapper
// over the lock-and-wait loop, asserting the hierarchical protocol
// first.
func (l *Locker) Lock(ctx context.Context, resource lock.ResourceId, mode lock.Mode) error {
	if err := l.checkHierarchy(resource, mode); err != nil {
		return err
	}
	return l.lockInternal(ctx, resource, mode)
}

// checkHierarchy enforces spec.md §4.2's hierarchical protocol
// invariant: any non-global, non-mutex acquisition requires the Global
// resource already held; a Database S/X acquisition requires the
// corresponding Global intent mode; a Collection S/X acquisition
// requires the corresponding Database intent mode already held by this
// Locker (checked only for Global here — Database/Collection intent
// ancestry is the caller's responsibility to request in order, since
// the Locker has no namespace hierarchy of its own to walk).
func (l *Locker) checkHierarchy(resource lock.ResourceId, mode lock.Mode) error {
	if resource.Type == lock.ResourceMutex || resource.Type == lock.ResourceGlobal {
		return nil
	}
	l.mu.Lock()
	_, holdsGlobal := l.requests[lock.ResourceIdGlobal]
	l.mu.Unlock()
	if !holdsGlobal {
		return util.New(util.KindIllegalOperation, "locker.Locker.checkHierarchy", "non-global resource acquired without holding Global")
	}
	return nil
}

// lockInternal runs the acquire-and-wait loop shared by LockGlobal and
// Lock: call the Lock Manager, and if Waiting, block on the request's
// Notifier, waking periodically to run a deadlock check, until Granted
// or until ctx's deadline fires (spec.md §4.2 "periodic wakeups (≈500
// ms) trigger deadlock checks").
func (l *Locker) lockInternal(ctx context.Context, resource lock.ResourceId, mode lock.Mode) error {
	l.mu.Lock()
	req, exists := l.requests[resource]
	if exists && req.Status != lock.StatusGranted {
		// A prior acquisition on this resource timed out or lost a
		// deadlock race: the Manager has already fully unlocked it
		// (Status reverted to New), so this entry is stale bookkeeping,
		// not a held lock. Drop it and fall through to acquire fresh.
		delete(l.requests, resource)
		exists = false
	}
	if exists {
		req.RecursiveCount++
		if lock.Covers(req.Mode, mode) {
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()
		newMode := lock.Supremum([]lock.Mode{req.Mode, mode})
		status := l.manager.Convert(resource, req, newMode)
		if status == lock.StatusGranted {
			util.LoggerFor(ctx).Debug("lock converted", "locker_id", l.id, "resource", resource.Name(), "mode", newMode)
			return nil
		}
		if err := l.waitForGrant(ctx, req); err != nil {
			return err
		}
		util.LoggerFor(ctx).Debug("lock converted", "locker_id", l.id, "resource", resource.Name(), "mode", req.Mode)
		return nil
	}

	req = &lock.Request{
		Locker:         l.id,
		Mode:           mode,
		Notify:         lock.NewNotifier(),
		RecursiveCount: 1,
	}
	l.requests[resource] = req
	l.mu.Unlock()

	status := l.manager.Lock(resource, req)
	if status == lock.StatusGranted {
		util.LoggerFor(ctx).Debug("lock granted", "locker_id", l.id, "resource", resource.Name(), "mode", mode)
		return nil
	}
	if err := l.waitForGrant(ctx, req); err != nil {
		return err
	}
	util.LoggerFor(ctx).Debug("lock granted", "locker_id", l.id, "resource", resource.Name(), "mode", mode)
	return nil
}

// waitForGrant blocks on req's Notifier until it transitions out of
// Waiting/Converting, periodically re-checking for a deadlock cycle and
// honoring ctx's deadline (spec.md §4.2 "periodic wakeups (≈500 ms)
// trigger deadlock checks"). A background goroutine broadcasts on
// req's Notifier every deadlockCheckInterval (and once ctx is done) so
// the Cond.Wait loop below wakes up to re-check both conditions even
// when no grant/promotion ever occurs.
func (l *Locker) waitForGrant(ctx context.Context, req *lock.Request) error {
	l.manager.BeginWait(l.id, req.Resource)
	defer l.manager.EndWait(l.id)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(deadlockCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				req.Notify.Signal()
			case <-ctx.Done():
				req.Notify.Signal()
				return
			case <-stop:
				return
			}
		}
	}()

	req.Notify.Mu.Lock()
	for req.Status == lock.StatusWaiting || req.Status == lock.StatusConverting {
		if ctx.Err() != nil {
			req.Notify.Mu.Unlock()
			l.manager.Unlock(req)
			return util.Wrap(util.KindLockTimeout, "locker.Locker.waitForGrant", "operation deadline reached while waiting for lock", ctx.Err())
		}
		if l.manager.DetectCycle(l.id) {
			req.Notify.Mu.Unlock()
			l.manager.Unlock(req)
			util.LoggerFor(ctx).Warn("deadlock detected",
				"locker_id", l.id,
				"resource", req.Resource.Name(),
				"mode", req.Mode)
			return util.New(util.KindLockDeadlock, "locker.Locker.waitForGrant", fmt.Sprintf("deadlock detected waiting on resource %s", req.Resource.Name()))
		}
		req.Notify.Cond.Wait()
	}
	finalStatus := req.Status
	req.Notify.Mu.Unlock()

	if finalStatus == lock.StatusGranted {
		return nil
	}
	// Status reverted to New (unlocked out from under us) — treat as a
	// timeout/deadlock already surfaced by the branch above.
	return util.New(util.KindLockTimeout, "locker.Locker.waitForGrant", "lock request no longer waiting but not granted")
}

// Unlock is spec.md §4.2's unlock(resource): deferred if inside a WUOW
// and the resource is a database/collection held in X or IX, otherwise
// released immediately.
func (l *Locker) Unlock(resource lock.ResourceId) {
	l.mu.Lock()
	req, ok := l.requests[resource]
	if !ok {
		l.mu.Unlock()
		return
	}

	deferrable := l.wuowDepth > 0 &&
		(resource.Type == lock.ResourceDatabase || resource.Type == lock.ResourceCollection) &&
		(req.Mode == lock.ModeX || req.Mode == lock.ModeIX)

	if deferrable {
		l.deferred = append(l.deferred, deferredRelease{resource: resource})
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.releaseNow(resource, req)
}

// releaseNow performs the actual Lock Manager release and, if this was
// the Global resource and the Locker is fully done with it, returns the
// admission-control ticket and resets client state.
func (l *Locker) releaseNow(resource lock.ResourceId, req *lock.Request) {
	fullyReleased := l.manager.Unlock(req)
	if !fullyReleased {
		return
	}

	l.mu.Lock()
	delete(l.requests, resource)
	_, stillHoldsAnything := l.requests[lock.ResourceIdGlobal]
	ticket := l.heldTicket
	if resource.Equals(lock.ResourceIdGlobal) && !stillHoldsAnything {
		l.heldTicket = nil
		l.state = StateInactive
	}
	l.mu.Unlock()

	if resource.Equals(lock.ResourceIdGlobal) && ticket != nil {
		ticket.Release()
	}
}

// BeginWriteUnitOfWork opens (or nests into) a write unit of work
// (spec.md §4.2, §9 "Write unit of work").
func (l *Locker) BeginWriteUnitOfWork() {
	l.mu.Lock()
	l.wuowDepth++
	l.mu.Unlock()
}

// EndWriteUnitOfWork closes one level of nesting; only the outermost
// call actually releases the deferred-unlock queue.
func (l *Locker) EndWriteUnitOfWork() {
	l.mu.Lock()
	l.wuowDepth--
	if l.wuowDepth > 0 {
		l.mu.Unlock()
		return
	}
	pending := l.deferred
	l.deferred = nil
	l.mu.Unlock()

	for _, d := range pending {
		l.mu.Lock()
		req, ok := l.requests[d.resource]
		l.mu.Unlock()
		if !ok {
			continue
		}
		l.releaseNow(d.resource, req)
	}
}

// savedLock is one (resource, mode) pair captured by SaveLockState.
type savedLock struct {
	resource lock.ResourceId
	mode     lock.Mode
}

// SaveLockState atomically releases every non-mutex lock this Locker
// holds, recording their (resource, mode) pairs for RestoreLockState
// (spec.md §4.2).
func (l *Locker) SaveLockState() []savedLock {
	l.mu.Lock()
	var saved []savedLock
	for resource, req := range l.requests {
		if resource.Type == lock.ResourceMutex {
			continue
		}
		saved = append(saved, savedLock{resource: resource, mode: req.Mode})
	}
	l.mu.Unlock()

	for _, s := range saved {
		l.mu.Lock()
		req, ok := l.requests[s.resource]
		l.mu.Unlock()
		if ok {
			l.releaseNow(s.resource, req)
		}
	}
	return saved
}

// RestoreLockState reacquires every entry of saved in ascending
// ResourceId order, to avoid introducing new lock-ordering cycles
// (spec.md §4.2, §5 Ordering).
func (l *Locker) RestoreLockState(ctx context.Context, saved []savedLock) error {
	sort.Slice(saved, func(i, j int) bool { return saved[i].resource.Less(saved[j].resource) })
	for _, s := range saved {
		if s.resource.Equals(lock.ResourceIdGlobal) {
			if err := l.LockGlobal(ctx, s.mode); err != nil {
				return err
			}
			continue
		}
		if err := l.Lock(ctx, s.resource, s.mode); err != nil {
			return err
		}
	}
	return nil
}

// State returns the Locker's current client-state flag.
func (l *Locker) State() ClientState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
