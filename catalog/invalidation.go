package catalog

import "sync"

// Invalidatable is implemented by the executor (spec.md §9 back-references
// and cycles): the catalog holds only a registry of non-owning references
// and calls InvalidateNamespace when the underlying collection is renamed
// or dropped, or when an index is created on it.
type Invalidatable interface {
	// InvalidateNamespace signals that the collection this executor reads
	// from has changed under it. Only the collection's UUID is passed; the
	// Executor answers by returning StateDead with a KindQueryPlanKilled
	// error from its next Next call.
	InvalidateNamespace(uuid CollectionUUID)
}

// invalidationRegistry tracks every live executor, keyed by the
// CollectionUUID it reads from, so a rename or drop can notify exactly
// the executors that would otherwise dereference a stale descriptor.
type invalidationRegistry struct {
	mu        sync.Mutex
	listeners map[CollectionUUID]map[Invalidatable]struct{}
}

func newInvalidationRegistry() *invalidationRegistry {
	return &invalidationRegistry{listeners: make(map[CollectionUUID]map[Invalidatable]struct{})}
}

// Register subscribes l to invalidation notices for uuid. Executors call
// this when they open a CollectionScan/IndexScan stage over a collection,
// and Unregister when the executor is torn down.
func (r *invalidationRegistry) Register(uuid CollectionUUID, l Invalidatable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.listeners[uuid]
	if !ok {
		set = make(map[Invalidatable]struct{})
		r.listeners[uuid] = set
	}
	set[l] = struct{}{}
}

// Unregister removes l from uuid's listener set.
func (r *invalidationRegistry) Unregister(uuid CollectionUUID, l Invalidatable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.listeners[uuid]; ok {
		delete(set, l)
		if len(set) == 0 {
			delete(r.listeners, uuid)
		}
	}
}

// Notify invalidates every executor registered against uuid (called on
// rename and on both phases of a drop).
func (r *invalidationRegistry) Notify(uuid CollectionUUID) {
	r.mu.Lock()
	listeners := make([]Invalidatable, 0, len(r.listeners[uuid]))
	for l := range r.listeners[uuid] {
		listeners = append(listeners, l)
	}
	r.mu.Unlock()

	for _, l := range listeners {
		l.InvalidateNamespace(uuid)
	}
}

// Register exposes the catalog's invalidation registry to the exec
// package without leaking its internals.
func (c *Catalog) Register(uuid CollectionUUID, l Invalidatable) {
	c.executors.Register(uuid, l)
}

// Unregister removes a previously Registered executor.
func (c *Catalog) Unregister(uuid CollectionUUID, l Invalidatable) {
	c.executors.Unregister(uuid, l)
}
