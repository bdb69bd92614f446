package lock

import "sync"

// waitRegistry tracks, for each Locker currently blocked in the Manager,
// which resource it is waiting on. The lazy deadlock detector (driven by
// the waiter itself, per spec.md §4.1) uses this to hop from a holder to
// whatever that holder might in turn be waiting for, building the
// wait-for graph Waiter -> Holder -> Holder's-waiter -> ... on demand
// rather than maintaining it eagerly.
type waitRegistry struct {
	mu      sync.Mutex
	waiting map[LockerID]ResourceId
}

func newWaitRegistry() *waitRegistry {
	return &waitRegistry{waiting: make(map[LockerID]ResourceId)}
}

func (w *waitRegistry) begin(id LockerID, resource ResourceId) {
	w.mu.Lock()
	w.waiting[id] = resource
	w.mu.Unlock()
}

func (w *waitRegistry) end(id LockerID) {
	w.mu.Lock()
	delete(w.waiting, id)
	w.mu.Unlock()
}

func (w *waitRegistry) resourceOf(id LockerID) (ResourceId, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.waiting[id]
	return r, ok
}

// BeginWait records that locker is now blocked waiting on resource. The
// Locker calls this right after Lock/Convert returns StatusWaiting, and
// EndWait once it stops waiting (granted, timeout, or deadlock).
func (m *Manager) BeginWait(locker LockerID, resource ResourceId) {
	m.waiters.begin(locker, resource)
}

// EndWait clears the wait-for-graph entry for locker.
func (m *Manager) EndWait(locker LockerID) {
	m.waiters.end(locker)
}

// DetectCycle performs one lazy wait-for-graph traversal starting from
// `start`, which must currently be registered (via BeginWait) as waiting
// on some resource. It follows edges Waiter -> Holder for every Granted
// request on the LockHead the waiter is queued on, marking visited
// Lockers; a revisit of `start` signals a cycle (spec.md §4.1, §8
// property 3, S1). Concurrent traversals from different starting waiters
// are safe: each call uses its own visited set (the set is the only
// "thread-local marking" state spec.md §4.1 calls for).
func (m *Manager) DetectCycle(start LockerID) bool {
	visited := make(map[LockerID]bool)
	return m.detectCycleFrom(start, start, visited)
}

func (m *Manager) detectCycleFrom(start, current LockerID, visited map[LockerID]bool) bool {
	resource, ok := m.waiters.resourceOf(current)
	if !ok {
		return false // current isn't blocked (anymore): dead end, no cycle through here.
	}

	for _, holder := range m.Holders(resource) {
		if holder == start {
			return true
		}
		if holder == current || visited[holder] {
			continue
		}
		visited[holder] = true
		if m.detectCycleFrom(start, holder, visited) {
			return true
		}
	}
	return false
}
