package storageengine

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kartikbazzad/bundoc-core/internal/util"
)

// RecordId identifies one record within a single RecordStore. It is
// stable for the record's lifetime and is what WorkingSetMembers carry
// between stages before a document has been fetched (spec.md
// WorkingSet/WorkingSetMember).
type RecordId uint64

func (r RecordId) bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(r))
	return b
}

func recordIdFromBytes(b []byte) RecordId {
	return RecordId(binary.BigEndian.Uint64(b))
}

var minKey = RecordId(0).bytes()
var maxKey = func() []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = 0xff
	}
	return b
}()

// RecordStore is the disk-backed, single-collection record container
// behind the narrow RecordStore/Cursor interface the executor and catalog
// consume (spec.md §6). Every collection gets its own RecordStore, with
// its own data file and B+Tree; indexes use IndexStore instead.
type RecordStore struct {
	name   string
	pager  *Pager
	bp     *BufferPool
	tree   *BPlusTree
	nextID atomic.Uint64
	mu     sync.RWMutex
	closed bool

	// insertCond wakes every tailable CollectionScan's WaitForInsert call
	// on the next successful Insert (spec.md §4.4 tailable/awaitData).
	insertCond *sync.Cond
}

// OpenRecordStore opens (creating if absent) the record store backing
// name at dir/name.db, with a buffer pool sized bufferPoolPages.
func OpenRecordStore(dir, name string, bufferPoolPages int) (*RecordStore, error) {
	pager, err := NewPager(filepath.Join(dir, name+".db"))
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

	rs := &RecordStore{name: name, pager: pager, bp: bp, tree: tree, insertCond: sync.NewCond(&sync.Mutex{})}
	rs.nextID.Store(uint64(pager.GetNextPageID()) << 32)
	return rs, nil
}

// Insert assigns doc a fresh RecordId and writes it.
func (rs *RecordStore) Insert(doc Document) (RecordId, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return 0, util.ErrClosed
	}

	id := RecordId(rs.nextID.Add(1))
	data, err := doc.Serialize()
	if err != nil {
		return 0, err
	}
	if err := rs.tree.Insert(id.bytes(), data); err != nil {
		return 0, err
	}

	rs.insertCond.L.Lock()
	rs.insertCond.Broadcast()
	rs.insertCond.L.Unlock()

	return id, nil
}

// InsertAt writes doc at a specific, previously-issued id rather than
// minting a fresh one, for a rollback hook reinstating a document a
// Delete stage removed within the same transaction.
func (rs *RecordStore) InsertAt(id RecordId, doc Document) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return util.ErrClosed
	}
	data, err := doc.Serialize()
	if err != nil {
		return err
	}
	return rs.tree.Insert(id.bytes(), data)
}

// Update overwrites the document stored at id.
func (rs *RecordStore) Update(id RecordId, doc Document) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return util.ErrClosed
	}
	data, err := doc.Serialize()
	if err != nil {
		return err
	}
	return rs.tree.Insert(id.bytes(), data)
}

// Delete removes the document stored at id.
func (rs *RecordStore) Delete(id RecordId) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return util.ErrClosed
	}
	return rs.tree.Delete(id.bytes())
}

// SeekExact looks up a single record by id, for Fetch and for a Cursor's
// own seekExact/restore path.
func (rs *RecordStore) SeekExact(id RecordId) (Document, bool, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if rs.closed {
		return nil, false, util.ErrClosed
	}
	data, err := rs.tree.Search(id.bytes())
	if err != nil {
		if err == util.ErrDocumentNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	doc, err := DeserializeDocument(data)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Flush writes every dirty page to disk (called at checkpoints, not on
// every commit — ordinary durability comes from the WAL).
func (rs *RecordStore) Flush() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.bp.FlushAllPages()
}

// Close flushes and releases the store's buffer pool and file handle.
func (rs *RecordStore) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return nil
	}
	rs.closed = true
	return rs.bp.Close()
}

// CollectionScan asks for a forward or backward full-range Cursor
// (spec.md's CollectionScan stage) rather than a bounded index interval.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Cursor is the §6 storage-engine cursor contract: seekExact, next,
// save/restore. It is owned by exactly one Stage (CollectionScan or
// IndexScan) at a time and is released entirely during saveState, to be
// reacquired by restoreState.
type Cursor struct {
	store  *RecordStore
	dir    Direction
	buf    []Entry
	pos    int
	lastID RecordId
	live   bool
}

// NewCursor opens a cursor over the full record-id range of store. The
// underlying B+Tree range scan is eager (spec.md's RangeScan signature),
// which is acceptable at the RecordStore layer since each Stage still
// drives iteration one WorkingSetMember at a time.
func (rs *RecordStore) NewCursor(dir Direction) (*Cursor, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if rs.closed {
		return nil, util.ErrClosed
	}

	entries, err := rs.tree.RangeScan(minKey, maxKey)
	if err != nil {
		return nil, err
	}
	if dir == Backward {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return &Cursor{store: rs, dir: dir, buf: entries, live: true}, nil
}

// Next advances the cursor, returning (id, document, true) for each
// record and ok=false once exhausted ("Advanced" vs EOF is the Stage's
// concern, not the cursor's — the cursor only reports ok=false at EOF).
func (c *Cursor) Next() (RecordId, Document, bool, error) {
	if !c.live {
		return 0, nil, false, util.ErrNilCursor
	}
	if c.pos >= len(c.buf) {
		return 0, nil, false, nil
	}
	e := c.buf[c.pos]
	c.pos++
	id := recordIdFromBytes(e.Key)
	doc, err := DeserializeDocument(e.Value)
	if err != nil {
		return 0, nil, false, err
	}
	c.lastID = id
	return id, doc, true, nil
}

// SeekExact looks up id directly in the cursor's store, for RecordId-
// driven lookups rather than ordered iteration; the cursor's own
// position is left unchanged.
func (c *Cursor) SeekExact(id RecordId) (Document, bool, error) {
	return c.store.SeekExact(id)
}

// Save releases the cursor's buffered state, remembering only the last
// position returned, as the yield policy requires before a Locker gives
// up its locks (spec.md §9 save/restore).
func (c *Cursor) Save() {
	c.buf = nil
	c.live = false
}

// Restore reopens the cursor at the point after lastID. If lastID no
// longer exists (deleted while yielded) it resumes at the next surviving
// key; needsRetry signals the Stage should re-fetch lastID's replacement
// state rather than assume continuity.
func (c *Cursor) Restore() (ok bool, needsRetry bool, err error) {
	entries, err := c.store.tree.RangeScan(minKey, maxKey)
	if err != nil {
		return false, false, err
	}
	if c.dir == Backward {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	c.buf = entries
	c.live = true

	if c.lastID == 0 && c.pos == 0 {
		return true, false, nil
	}

	for i, e := range entries {
		if recordIdFromBytes(e.Key) == c.lastID {
			c.pos = i + 1
			return true, false, nil
		}
	}
	// lastID vanished; resume at the first surviving key past it in scan
	// order.
	c.pos = len(entries)
	for i, e := range entries {
		id := recordIdFromBytes(e.Key)
		if (c.dir == Forward && id > c.lastID) || (c.dir == Backward && id < c.lastID) {
			c.pos = i
			break
		}
	}
	return true, true, nil
}

// WaitForInsert blocks for at most timeout waiting for the next Insert,
// self-waking via a background broadcast if none arrives — the same
// bounded-wakeup idiom locker.Locker.waitForGrant uses for its periodic
// deadlock-check ticker, adapted so a tailable CollectionScan's
// await-data Work() call (spec.md §4.4) always returns in bounded time
// even when the collection never receives another insert.
func (rs *RecordStore) WaitForInsert(timeout time.Duration) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-time.After(timeout):
		case <-stop:
			return
		}
		rs.insertCond.L.Lock()
		rs.insertCond.Broadcast()
		rs.insertCond.L.Unlock()
	}()

	rs.insertCond.L.Lock()
	rs.insertCond.Wait()
	rs.insertCond.L.Unlock()
}

func (rs *RecordStore) String() string {
	return fmt.Sprintf("RecordStore(%s)", rs.name)
}
