package lock

import (
	"sync"
)

// numShards controls how LockHeads are sharded by resource-id hash so
// unrelated resources don't contend on the same mutex (spec.md §5).
const numShards = 64

type shard struct {
	mu    sync.Mutex
	heads map[ResourceId]*head
}

// Manager is the process-wide Lock Manager (spec.md §4.1). lock/convert/
// unlock/downgrade never fail for program-logic reasons; they only
// return Granted or Waiting. A Waiting caller is expected to wait on the
// Request's Notifier until Granted, or until it decides to give up
// (Timeout/Deadlock), in which case it calls Unlock to detach.
type Manager struct {
	shards  [numShards]*shard
	waiters *waitRegistry
}

// NewManager constructs an empty Lock Manager.
func NewManager() *Manager {
	m := &Manager{waiters: newWaitRegistry()}
	for i := range m.shards {
		m.shards[i] = &shard{heads: make(map[ResourceId]*head)}
	}
	return m
}

func (m *Manager) shardFor(id ResourceId) *shard {
	return m.shards[id.HashedName%numShards]
}

func (s *shard) headFor(id ResourceId) *head {
	h, ok := s.heads[id]
	if !ok {
		h = newHead(id)
		s.heads[id] = h
	}
	return h
}

// Lock attempts to add req (a freshly built *Request for mode `mode`) to
// resource's grant list. Returns StatusGranted if compatible with the
// current granted-mode supremum and either the conflict queue is empty or
// the front of the queue is CompatibleFirst with this mode; otherwise
// enqueues req (at front if req.EnqueueAtFront is set, else at back) and
// returns StatusWaiting.
func (m *Manager) Lock(resource ResourceId, req *Request) Status {
	s := m.shardFor(resource)
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.headFor(resource)
	req.Resource = resource

	if h.waiting.Len() == 0 && CompatibleWith(req.Mode, h.effectiveMode()) {
		h.addGranted(req)
		return StatusGranted
	}

	// Queue is non-empty or incompatible: check whether the queue's front
	// is CompatibleFirst and this request is compatible with it and the
	// current supremum — that also grants immediately (spec.md §4.1
	// lock() bullet).
	if front := h.waiting.Front(); front != nil {
		fr := front.Value.(*Request)
		if fr.CompatibleFirst && CompatibleWith(req.Mode, fr.Mode) && CompatibleWith(req.Mode, h.effectiveMode()) {
			h.addGranted(req)
			return StatusGranted
		}
	}

	req.Status = StatusWaiting
	h.enqueueWaiting(req, req.EnqueueAtFront)
	return StatusWaiting
}

// Convert upgrades an already-Granted request to newMode. Returns
// StatusGranted if the union of the other grants and newMode is
// self-compatible; otherwise marks req Converting, re-enqueues it at the
// front of the conflict queue (a converter never loses its place to a
// fresh waiter), and returns StatusWaiting. Until the conversion
// completes, req's prior Mode keeps contributing to the granted-mode
// supremum via ConvertMode.
func (m *Manager) Convert(resource ResourceId, req *Request, newMode Mode) Status {
	s := m.shardFor(resource)
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.headFor(resource)

	others := h.grantedModes(req)

	if CompatibleWithAll(newMode, others) {
		req.Mode = newMode
		return StatusGranted
	}

	h.removeGranted(req)
	req.ConvertMode = req.Mode
	req.Mode = newMode
	req.Status = StatusConverting
	h.enqueueWaiting(req, true)
	return StatusWaiting
}

// Unlock decrements req.RecursiveCount; at zero, removes req from its
// LockHead and re-evaluates the conflict queue. Returns true if the
// request was fully released (recursive count reached zero).
func (m *Manager) Unlock(req *Request) bool {
	if req.RecursiveCount > 0 {
		req.RecursiveCount--
	}
	if req.RecursiveCount > 0 {
		return false
	}

	s := m.shardFor(req.Resource)
	s.mu.Lock()
	h := s.headFor(req.Resource)

	switch req.Status {
	case StatusGranted:
		h.removeGranted(req)
	case StatusWaiting, StatusConverting:
		h.removeWaiting(req)
	}
	req.Status = StatusNew

	promoted := h.reevaluate()
	s.mu.Unlock()

	for _, p := range promoted {
		p.Notify.Signal()
	}
	return true
}

// Downgrade replaces req's mode with a weaker one and re-evaluates the
// queue. Cannot fail.
func (m *Manager) Downgrade(req *Request, weakerMode Mode) {
	s := m.shardFor(req.Resource)
	s.mu.Lock()
	h := s.headFor(req.Resource)
	req.Mode = weakerMode
	promoted := h.reevaluate()
	s.mu.Unlock()

	for _, p := range promoted {
		p.Notify.Signal()
	}
}

// Holders returns the LockerID of every currently-Granted request on
// resource, for the waiter-driven deadlock detector's wait-for-graph
// traversal (spec.md §4.1).
func (m *Manager) Holders(resource ResourceId) []LockerID {
	s := m.shardFor(resource)
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.heads[resource]
	if !ok {
		return nil
	}
	out := make([]LockerID, 0, h.granted.Len())
	for e := h.granted.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Request).Locker)
	}
	return out
}

// WaitsFor returns the LockerID of the resource's waiters, used to detect
// a waiter that is itself a holder elsewhere (e.g. for lockInfo
// reporting). Not used by the deadlock detector itself, which only
// follows Waiter -> Holder edges.
func (m *Manager) WaitsFor(resource ResourceId) []LockerID {
	s := m.shardFor(resource)
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.heads[resource]
	if !ok {
		return nil
	}
	out := make([]LockerID, 0, h.waiting.Len())
	for e := h.waiting.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Request).Locker)
	}
	return out
}

// Snapshot describes one LockHead for the administrative lockInfo command
// (spec.md §6): every granted and pending request, by LockerID.
type Snapshot struct {
	Resource ResourceId
	Granted  []LockerID
	Waiting  []LockerID
}

// LockInfo returns a Snapshot of every resource the manager currently
// tracks, for the lockInfo administrative command.
func (m *Manager) LockInfo() []Snapshot {
	var out []Snapshot
	for _, s := range m.shards {
		s.mu.Lock()
		for id, h := range s.heads {
			if h.granted.Len() == 0 && h.waiting.Len() == 0 {
				continue
			}
			snap := Snapshot{Resource: id}
			for e := h.granted.Front(); e != nil; e = e.Next() {
				snap.Granted = append(snap.Granted, e.Value.(*Request).Locker)
			}
			for e := h.waiting.Front(); e != nil; e = e.Next() {
				snap.Waiting = append(snap.Waiting, e.Value.(*Request).Locker)
			}
			out = append(out, snap)
		}
		s.mu.Unlock()
	}
	return out
}
