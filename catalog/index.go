package catalog

import (
	"github.com/kartikbazzad/bundoc-core/internal/util"
	"github.com/kartikbazzad/bundoc-core/storageengine"
)

// CreateIndex adds desc to a collection, backed by its own IndexStore (a
// separate file and B+Tree) so the executor's IndexScan stage can range-
// scan it independently of the collection's own document store. Only
// AccessMethodBTree is actually buildable in this engine; other access
// methods are valid descriptors but rejected here (spec.md §3 lists them
// as the full MongoDB access-method set, most of which this engine's
// storage layer has no backing implementation for).
func (c *Catalog) CreateIndex(ns Namespace, desc *IndexDescriptor) error {
	if desc.AccessMethod != AccessMethodBTree {
		return util.New(util.KindInvalidOptions, "catalog.CreateIndex", "only the btree access method is supported")
	}
	if desc.PartialFilterExpression != "" {
		fe, err := c.FilterEngine()
		if err != nil {
			return util.Wrap(util.KindOperationFailed, "catalog.CreateIndex", "failed to build filter engine", err)
		}
		if err := fe.Validate(desc.PartialFilterExpression); err != nil {
			return util.Wrap(util.KindInvalidOptions, "catalog.CreateIndex", "invalid partialFilterExpression", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	db, ok := c.databases[ns.Database]
	if !ok {
		return util.New(util.KindNamespaceNotFound, "catalog.CreateIndex", ns.String()+" not found")
	}
	coll, ok := db.collections[ns.Collection]
	if !ok || coll.State != StateActive {
		return util.New(util.KindNamespaceNotFound, "catalog.CreateIndex", ns.String()+" not found")
	}
	if _, exists := coll.Indexes[desc.Name]; exists {
		return util.New(util.KindNamespaceExists, "catalog.CreateIndex", ns.IndexNamespace(desc.Name)+" already exists")
	}
	if len(ns.IndexNamespace(desc.Name)) > maxNamespaceLength {
		return util.New(util.KindInvalidNamespace, "catalog.CreateIndex", "index namespace exceeds length limit")
	}

	idxStore, err := storageengine.OpenIndexStore(c.dataDir, coll.UUID.String()+"."+desc.Name, c.bufferPoolPages)
	if err != nil {
		return util.Wrap(util.KindOperationFailed, "catalog.CreateIndex", "failed to create index store", err)
	}

	coll.Indexes[desc.Name] = desc
	c.indexStores[indexStoreKey(coll.UUID, desc.Name)] = idxStore
	coll.Generation++
	return nil
}

// DropIndex removes name from ns's index set. Dropping the mandatory
// "_id_" index is refused.
func (c *Catalog) DropIndex(ns Namespace, name string) error {
	if name == "_id_" {
		return util.New(util.KindIllegalOperation, "catalog.DropIndex", "cannot drop the _id index")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	db, ok := c.databases[ns.Database]
	if !ok {
		return util.New(util.KindNamespaceNotFound, "catalog.DropIndex", ns.String()+" not found")
	}
	coll, ok := db.collections[ns.Collection]
	if !ok || coll.State != StateActive {
		return util.New(util.KindNamespaceNotFound, "catalog.DropIndex", ns.String()+" not found")
	}
	if _, exists := coll.Indexes[name]; !exists {
		return util.New(util.KindNamespaceNotFound, "catalog.DropIndex", ns.IndexNamespace(name)+" not found")
	}

	key := indexStoreKey(coll.UUID, name)
	if store, ok := c.indexStores[key]; ok {
		store.Close()
		delete(c.indexStores, key)
	}

	delete(coll.Indexes, name)
	coll.Generation++
	c.executors.Notify(coll.UUID)
	return nil
}
