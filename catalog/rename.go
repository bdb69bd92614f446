package catalog

import "github.com/kartikbazzad/bundoc-core/internal/util"

// RenameCollection implements spec.md §4.3 renameCollection: both names
// must be in the same database (caller is expected to already hold
// Database X on it), cursors over the old namespace are invalidated, and
// the namespace swap preserves UUID (spec.md §3 CollectionUUID
// invariant, exercised by S6).
func (c *Catalog) RenameCollection(from, to Namespace, keepTemp bool) error {
	if from.Database != to.Database {
		return util.New(util.KindIllegalOperation, "catalog.RenameCollection", "rename across databases is not supported")
	}
	if err := to.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	db, ok := c.databases[from.Database]
	if !ok {
		return util.New(util.KindNamespaceNotFound, "catalog.RenameCollection", from.String()+" not found")
	}
	desc, ok := db.collections[from.Collection]
	if !ok || desc.State != StateActive {
		return util.New(util.KindNamespaceNotFound, "catalog.RenameCollection", from.String()+" not found")
	}
	if _, exists := db.collections[to.Collection]; exists {
		return util.New(util.KindNamespaceExists, "catalog.RenameCollection", to.String()+" already exists")
	}

	delete(db.collections, from.Collection)
	desc.Namespace = to
	if !keepTemp {
		desc.Options.Temp = false
	}
	desc.Generation++
	db.collections[to.Collection] = desc

	// Invalidate every executor/cursor reading the old namespace; they
	// will surface QueryPlanKilled on their next restore() (spec.md S6).
	c.executors.Notify(desc.UUID)

	util.Logger().Info("collection renamed", "from", from.String(), "to", to.String(), "uuid", desc.UUID.String())
	return nil
}
