// Package catalog is the hierarchical map of database -> collection ->
// indexes, with stable identifiers, storage-engine-backed metadata, and
// transactional create/drop/rename (spec.md §4.3). Callers are expected
// to already hold the locks spec.md documents (Database in X for
// create/drop/rename); the catalog itself never acquires locks.
package catalog

import (
	"sync"

	"github.com/kartikbazzad/bundoc-core/exec/predicate"
	"github.com/kartikbazzad/bundoc-core/internal/util"
	"github.com/kartikbazzad/bundoc-core/replication"
	"github.com/kartikbazzad/bundoc-core/storageengine"
	"github.com/kartikbazzad/bundoc-core/txn"
)

// database is the catalog's per-database bookkeeping: its collections by
// name, plus a drop-pending flag checked by createCollection (spec.md
// §4.3 KindDatabaseDropPending).
type database struct {
	name         string
	collections  map[string]*CollectionDescriptor
	dropPending  bool
}

// Catalog is the process-wide, in-memory catalog, backed one-for-one by
// storage-engine RecordStores it creates/opens/drops on the caller's
// behalf.
type Catalog struct {
	mu        sync.RWMutex
	databases map[string]*database
	byUUID    map[CollectionUUID]*CollectionDescriptor

	dataDir         string
	bufferPoolPages int
	stores          map[CollectionUUID]*storageengine.RecordStore
	indexStores     map[string]*storageengine.IndexStore // keyed by uuid.String()+"."+indexName

	repl      *replication.Coordinator
	reaper    *reaper
	executors *invalidationRegistry

	filterEngineOnce sync.Once
	filterEngine     *predicate.FilterEngine
	filterEngineErr  error
}

// New constructs an empty Catalog rooted at dataDir, whose RecordStores
// each get a buffer pool of bufferPoolPages pages.
func New(dataDir string, bufferPoolPages int, repl *replication.Coordinator) *Catalog {
	c := &Catalog{
		databases:       make(map[string]*database),
		byUUID:          make(map[CollectionUUID]*CollectionDescriptor),
		dataDir:         dataDir,
		bufferPoolPages: bufferPoolPages,
		stores:          make(map[CollectionUUID]*storageengine.RecordStore),
		indexStores:     make(map[string]*storageengine.IndexStore),
		repl:            repl,
		executors:       newInvalidationRegistry(),
	}
	c.reaper = newReaper(c)
	return c
}

func (c *Catalog) dbOf(name string) *database {
	db, ok := c.databases[name]
	if !ok {
		db = &database{name: name, collections: make(map[string]*CollectionDescriptor)}
		c.databases[name] = db
	}
	return db
}

// CreateCollection validates ns and options, allocates a fresh UUID,
// opens the backing RecordStore, registers a rollback hook on t that
// deletes the descriptor (and the RecordStore) if the enclosing
// transaction aborts, and inserts the descriptor in Creating state,
// flipping to Active on commit (spec.md §4.3 createCollection).
func (c *Catalog) CreateCollection(t *txn.Transaction, ns Namespace, options CollectionOptions) (*CollectionDescriptor, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	if options.Capped && isSystemCollection(ns.Collection) && ns.Collection != "system.profile" {
		// Oplog-style capped system collections must be capped; anything
		// else asking for Capped+system.* is caller error territory, but
		// spec.md only calls out "oplog must be capped" — no converse
		// restriction exists, so this is a no-op guard kept intentionally
		// permissive.
	}
	if err := options.compileValidator(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	db := c.dbOf(ns.Database)
	if db.dropPending {
		return nil, util.New(util.KindDatabaseDropPending, "catalog.CreateCollection", "database is pending drop")
	}
	if _, exists := db.collections[ns.Collection]; exists {
		return nil, util.New(util.KindNamespaceExists, "catalog.CreateCollection", ns.String()+" already exists")
	}

	uuid := NewCollectionUUID()
	store, err := storageengine.OpenRecordStore(c.dataDir, uuid.String(), c.bufferPoolPages)
	if err != nil {
		return nil, util.Wrap(util.KindOperationFailed, "catalog.CreateCollection", "failed to create storage-engine entry", err)
	}

	desc := &CollectionDescriptor{
		UUID:      uuid,
		Namespace: ns,
		Options:   options,
		Indexes:   make(map[string]*IndexDescriptor),
		State:     StateCreating,
	}
	desc.Indexes["_id_"] = &IndexDescriptor{
		Name:         "_id_",
		KeyPattern:   map[string]int{"_id": 1},
		AccessMethod: AccessMethodBTree,
		Unique:       true,
	}

	idxStore, err := storageengine.OpenIndexStore(c.dataDir, uuid.String()+"._id_", c.bufferPoolPages)
	if err != nil {
		store.Close()
		return nil, util.Wrap(util.KindOperationFailed, "catalog.CreateCollection", "failed to create _id_ index store", err)
	}

	db.collections[ns.Collection] = desc
	c.byUUID[uuid] = desc
	c.stores[uuid] = store
	c.indexStores[indexStoreKey(uuid, "_id_")] = idxStore

	t.RegisterChange(
		func() { // commit
			c.mu.Lock()
			desc.State = StateActive
			c.mu.Unlock()
			util.Logger().Info("collection created", "namespace", ns.String(), "uuid", uuid.String())
		},
		func() { // rollback
			c.mu.Lock()
			delete(db.collections, ns.Collection)
			delete(c.byUUID, uuid)
			delete(c.stores, uuid)
			delete(c.indexStores, indexStoreKey(uuid, "_id_"))
			c.mu.Unlock()
			store.Close()
			idxStore.Close()
		},
	)

	return desc, nil
}

// GetCollection performs an O(1) lookup by namespace. Only collections in
// Active or DropPending state are returned; Creating collections are
// invisible to readers until their transaction commits.
func (c *Catalog) GetCollection(ns Namespace) (*CollectionDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	db, ok := c.databases[ns.Database]
	if !ok {
		return nil, util.New(util.KindNamespaceNotFound, "catalog.GetCollection", ns.String()+" not found")
	}
	desc, ok := db.collections[ns.Collection]
	if !ok || desc.State == StateCreating || desc.State == StateGone {
		return nil, util.New(util.KindNamespaceNotFound, "catalog.GetCollection", ns.String()+" not found")
	}
	return desc, nil
}

// GetCollectionByUUID resolves a collection by its stable identifier,
// which survives renames (spec.md §3 CollectionUUID invariant).
func (c *Catalog) GetCollectionByUUID(id CollectionUUID) (*CollectionDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	desc, ok := c.byUUID[id]
	return desc, ok
}

// RecordStoreFor returns the RecordStore backing desc, for the executor's
// CollectionScan/Fetch stages and the Locker's cursor bookkeeping.
func (c *Catalog) RecordStoreFor(desc *CollectionDescriptor) (*storageengine.RecordStore, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	store, ok := c.stores[desc.UUID]
	if !ok {
		return nil, util.New(util.KindNamespaceNotFound, "catalog.RecordStoreFor", "no storage entry for "+desc.Namespace.String())
	}
	return store, nil
}

// GetCollectionNamespaces lists every Active collection's namespace, for
// the administrative listCollections-style command.
func (c *Catalog) GetCollectionNamespaces() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, db := range c.databases {
		for _, desc := range db.collections {
			if desc.State == StateActive {
				out = append(out, desc.Namespace.String())
			}
		}
	}
	return out
}

// GetCollectionOptions returns a copy of ns's CollectionOptions.
func (c *Catalog) GetCollectionOptions(ns Namespace) (CollectionOptions, error) {
	desc, err := c.GetCollection(ns)
	if err != nil {
		return CollectionOptions{}, err
	}
	return desc.Options, nil
}

// FilterEngine returns the catalog's shared CEL FilterEngine, building it
// on first use. CreateIndex uses it to validate a PartialFilterExpression
// at index-creation time. The same instance can be passed to
// exec.IndexScan.WithPartialFilter; no plan-selection code does so.
func (c *Catalog) FilterEngine() (*predicate.FilterEngine, error) {
	c.filterEngineOnce.Do(func() {
		c.filterEngine, c.filterEngineErr = predicate.NewFilterEngine()
	})
	return c.filterEngine, c.filterEngineErr
}

func indexStoreKey(uuid CollectionUUID, indexName string) string {
	return uuid.String() + "." + indexName
}

// IndexStoreFor returns the IndexStore backing the named index of desc,
// for the executor's IndexScan stage.
func (c *Catalog) IndexStoreFor(desc *CollectionDescriptor, indexName string) (*storageengine.IndexStore, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	store, ok := c.indexStores[indexStoreKey(desc.UUID, indexName)]
	if !ok {
		return nil, util.New(util.KindNamespaceNotFound, "catalog.IndexStoreFor", "no index store for "+desc.Namespace.IndexNamespace(indexName))
	}
	return store, nil
}
