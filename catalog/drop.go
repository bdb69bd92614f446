package catalog

import (
	"sync"

	"github.com/kartikbazzad/bundoc-core/internal/util"
	"github.com/kartikbazzad/bundoc-core/replication"
	"github.com/kartikbazzad/bundoc-core/txn"
)

// DropCollection implements spec.md §4.3 dropCollection. If the Catalog
// was built with a nil replication.Coordinator ("replication is
// inactive"), the storage entry is dropped immediately; otherwise it
// performs a two-phase drop: rename to a drop-pending namespace derived
// from dropOpTime now, and hand the collection to the reaper to
// physically drop once the replication commit point passes dropOpTime.
func (c *Catalog) DropCollection(t *txn.Transaction, ns Namespace, dropOpTime uint64) error {
	if isSystemCollection(ns.Collection) {
		return util.New(util.KindIllegalOperation, "catalog.DropCollection", "refusing to drop a system collection")
	}

	c.mu.Lock()
	db, ok := c.databases[ns.Database]
	if !ok {
		c.mu.Unlock()
		return util.New(util.KindNamespaceNotFound, "catalog.DropCollection", ns.String()+" not found")
	}
	desc, ok := db.collections[ns.Collection]
	if !ok || desc.State != StateActive {
		c.mu.Unlock()
		return util.New(util.KindNamespaceNotFound, "catalog.DropCollection", ns.String()+" not found")
	}

	if c.repl == nil {
		// Replication inactive: drop immediately, no pending phase.
		delete(db.collections, ns.Collection)
		delete(c.byUUID, desc.UUID)
		store := c.stores[desc.UUID]
		delete(c.stores, desc.UUID)
		desc.State = StateGone
		c.mu.Unlock()

		c.executors.Notify(desc.UUID)
		t.RegisterChange(
			func() {
				if store != nil {
					store.Close()
				}
				util.Logger().Info("collection dropped", "namespace", ns.String(), "uuid", desc.UUID.String())
			},
			func() { // rollback: resurrect
				c.mu.Lock()
				desc.State = StateActive
				db.collections[ns.Collection] = desc
				c.byUUID[desc.UUID] = desc
				c.stores[desc.UUID] = store
				c.mu.Unlock()
			},
		)
		return nil
	}

	pendingName := dropPendingNamespace(ns, dropOpTime)
	oldNamespace := desc.Namespace
	desc.Namespace = Namespace{Database: ns.Database, Collection: pendingName}
	desc.State = StateDropPending
	delete(db.collections, ns.Collection)
	db.collections[pendingName] = desc
	c.mu.Unlock()

	c.executors.Notify(desc.UUID)

	t.RegisterChange(
		func() { // commit: enqueue with the reaper
			c.reaper.enqueue(desc.UUID, ns.Database, pendingName, replication.CommitIndex(dropOpTime))
			util.Logger().Info("collection drop pending", "namespace", ns.String(), "uuid", desc.UUID.String(), "drop_op_time", dropOpTime)
		},
		func() { // rollback: rename back to Active
			c.mu.Lock()
			desc.Namespace = oldNamespace
			desc.State = StateActive
			delete(db.collections, pendingName)
			db.collections[oldNamespace.Collection] = desc
			c.mu.Unlock()
		},
	)
	return nil
}

// reaper physically removes drop-pending collections once the
// replication commit point has passed their drop timestamp (spec.md §9
// "Two-phase drop").
type reaper struct {
	catalog *Catalog

	mu      sync.Mutex
	pending []pendingDrop
}

type pendingDrop struct {
	uuid       CollectionUUID
	database   string
	collection string
	dropOpTime replication.CommitIndex
}

func newReaper(c *Catalog) *reaper {
	return &reaper{catalog: c}
}

func (r *reaper) enqueue(uuid CollectionUUID, database, collection string, dropOpTime replication.CommitIndex) {
	r.mu.Lock()
	r.pending = append(r.pending, pendingDrop{uuid: uuid, database: database, collection: collection, dropOpTime: dropOpTime})
	r.mu.Unlock()
}

// Sweep physically drops every pending collection whose dropOpTime is at
// or below the replication coordinator's current commit point. A caller
// (e.g. a background ticker in cmd/bundoccore) invokes this periodically;
// it is also safe to call synchronously after every AdvanceCommitPoint.
func (r *reaper) Sweep() {
	if r.catalog.repl == nil {
		return
	}
	commitPoint := r.catalog.repl.CommitPoint()

	r.mu.Lock()
	var remaining []pendingDrop
	var ready []pendingDrop
	for _, p := range r.pending {
		if p.dropOpTime <= commitPoint {
			ready = append(ready, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	r.pending = remaining
	r.mu.Unlock()

	for _, p := range ready {
		r.catalog.finalizeDrop(p)
	}
}

// Sweep exposes the reaper's sweep to callers outside the package
// (cmd/bundoccore's maintenance loop).
func (c *Catalog) Sweep() {
	c.reaper.Sweep()
}

func (c *Catalog) finalizeDrop(p pendingDrop) {
	c.mu.Lock()
	db, ok := c.databases[p.database]
	if !ok {
		c.mu.Unlock()
		return
	}
	desc, ok := db.collections[p.collection]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(db.collections, p.collection)
	delete(c.byUUID, desc.UUID)
	store := c.stores[desc.UUID]
	delete(c.stores, desc.UUID)
	desc.State = StateGone
	c.mu.Unlock()

	c.executors.Notify(desc.UUID)
	if store != nil {
		store.Close()
	}
	util.Logger().Info("collection drop finalized", "database", p.database, "collection", p.collection, "uuid", desc.UUID.String())
}
