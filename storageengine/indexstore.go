package storageengine

import (
	"path/filepath"
	"sync"

	"github.com/kartikbazzad/bundoc-core/internal/util"
)

// IndexStore is a RecordStore sibling keyed by arbitrary encoded index
// keys rather than RecordIds: each entry maps an index key to the
// RecordId of the document it points at (spec.md §3 IndexDescriptor,
// §9 IndexScan). Every catalog.IndexDescriptor gets its own IndexStore,
// backed by its own file and B+Tree, mirroring how RecordStore backs
// each collection.
type IndexStore struct {
	name   string
	pager  *Pager
	bp     *BufferPool
	tree   *BPlusTree
	mu     sync.RWMutex
	closed bool
}

// OpenIndexStore opens (creating if absent) the index store backing
// name at dir/name.idx.
func OpenIndexStore(dir, name string, bufferPoolPages int) (*IndexStore, error) {
	pager, err := NewPager(filepath.Join(dir, name+".idx"))
	if err != nil {
		return nil, err
	}
	bp := NewBufferPool(bufferPoolPages, pager)

	var tree *BPlusTree
	if pager.GetNextPageID() == 0 {
		tree, err = NewBPlusTree(bp)
	} else {
		tree, err = LoadBPlusTree(bp, 0)
	}
	if err != nil {
		pager.Close()
		return nil, err
	}
	return &IndexStore{name: name, pager: pager, bp: bp, tree: tree}, nil
}

// Insert maps key to id, overwriting any prior mapping for key (the
// caller is responsible for uniqueness enforcement when the index is
// declared unique).
func (is *IndexStore) Insert(key []byte, id RecordId) error {
	is.mu.Lock()
	defer is.mu.Unlock()
	if is.closed {
		return util.ErrClosed
	}
	return is.tree.Insert(key, id.bytes())
}

// Delete removes key's mapping.
func (is *IndexStore) Delete(key []byte) error {
	is.mu.Lock()
	defer is.mu.Unlock()
	if is.closed {
		return util.ErrClosed
	}
	return is.tree.Delete(key)
}

// Search looks up a single key's RecordId.
func (is *IndexStore) Search(key []byte) (RecordId, bool, error) {
	is.mu.RLock()
	defer is.mu.RUnlock()
	if is.closed {
		return 0, false, util.ErrClosed
	}
	data, err := is.tree.Search(key)
	if err != nil {
		if err == util.ErrDocumentNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	return recordIdFromBytes(data), true, nil
}

// IndexEntry is one (key, RecordId) pair produced by a range scan.
type IndexEntry struct {
	Key      []byte
	RecordId RecordId
}

// RangeScan returns every entry with a key in [startKey, endKey]
// inclusive, in ascending key order (descending order is the caller's
// responsibility to reverse, matching storageengine.Cursor's own
// convention).
func (is *IndexStore) RangeScan(startKey, endKey []byte) ([]IndexEntry, error) {
	is.mu.RLock()
	defer is.mu.RUnlock()
	if is.closed {
		return nil, util.ErrClosed
	}
	entries, err := is.tree.RangeScan(startKey, endKey)
	if err != nil {
		return nil, err
	}
	out := make([]IndexEntry, len(entries))
	for i, e := range entries {
		out[i] = IndexEntry{Key: e.Key, RecordId: recordIdFromBytes(e.Value)}
	}
	return out, nil
}

// Flush writes every dirty page to disk.
func (is *IndexStore) Flush() error {
	is.mu.Lock()
	defer is.mu.Unlock()
	return is.bp.FlushAllPages()
}

// Close flushes and releases the store's buffer pool and file handle.
func (is *IndexStore) Close() error {
	is.mu.Lock()
	defer is.mu.Unlock()
	if is.closed {
		return nil
	}
	is.closed = true
	return is.bp.Close()
}
