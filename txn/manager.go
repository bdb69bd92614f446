// Package txn is the recovery-unit layer sitting between the Locker and
// the storage engine: it assigns transaction ids, tracks each
// transaction's write set for read-your-own-writes, and durably records
// commit/abort through the write-ahead log before a WriteUnitOfWork
// releases its locks (spec.md §9 registerChange/commit/rollback hooks).
package txn

import (
	"sync"
	"sync/atomic"

	"github.com/kartikbazzad/bundoc-core/internal/util"
	"github.com/kartikbazzad/bundoc-core/storageengine/mvcc"
	"github.com/kartikbazzad/bundoc-core/storageengine/wal"
)

// Status is a Transaction's lifecycle state.
type Status int

const (
	StatusActive Status = iota
	StatusCommitted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusCommitted:
		return "Committed"
	case StatusAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// ChangeHook is a catalog-registered commit or rollback callback (spec.md
// §4.3's two-phase create/drop relies on this to undo in-memory catalog
// state if the surrounding WriteUnitOfWork aborts).
type ChangeHook func()

// Transaction is one recovery unit: a transaction id, its isolation
// level, and the write set accumulated so far for read-your-own-writes.
type Transaction struct {
	ID             uint64
	Status         Status
	IsolationLevel mvcc.IsolationLevel
	WriteSet       map[string][]byte

	snapshot      *mvcc.Snapshot
	lastLSN       wal.LSN
	mu            sync.Mutex
	commitHooks   []ChangeHook
	rollbackHooks []ChangeHook
}

// RegisterChange records a commit/rollback hook pair that fires when this
// transaction finishes, mirroring spec.md's registerChange(commitHook,
// rollbackHook) contract for catalog operations layered over a
// WriteUnitOfWork.
func (t *Transaction) RegisterChange(commit, rollback ChangeHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if commit != nil {
		t.commitHooks = append(t.commitHooks, commit)
	}
	if rollback != nil {
		t.rollbackHooks = append(t.rollbackHooks, rollback)
	}
}

// Manager is the process-wide transaction manager: one per Engine,
// shared by every Locker's write-unit-of-work.
type Manager struct {
	snapshots *mvcc.SnapshotManager
	wal       *wal.WAL

	mu     sync.RWMutex
	nextID atomic.Uint64
	active map[uint64]*Transaction
}

// NewTransactionManager builds a Manager layered over sm (for snapshot
// isolation) and walWriter (for durable commit/abort records).
func NewTransactionManager(sm *mvcc.SnapshotManager, walWriter *wal.WAL) *Manager {
	return &Manager{
		snapshots: sm,
		wal:       walWriter,
		active:    make(map[uint64]*Transaction),
	}
}

// Begin starts a new transaction at the requested isolation level.
func (m *Manager) Begin(level mvcc.IsolationLevel) (*Transaction, error) {
	id := m.nextID.Add(1)
	snap := m.snapshots.BeginSnapshot(id, level)

	txn := &Transaction{
		ID:             id,
		Status:         StatusActive,
		IsolationLevel: level,
		WriteSet:       make(map[string][]byte),
		snapshot:       snap,
	}

	m.mu.Lock()
	m.active[id] = txn
	m.mu.Unlock()

	return txn, nil
}

// Write stages a key/value pair into txn's write set and appends an
// insert/update WAL record. The write is not visible to other
// transactions until Commit.
func (m *Manager) Write(txn *Transaction, key string, value []byte) error {
	txn.mu.Lock()
	defer txn.mu.Unlock()

	if txn.Status != StatusActive {
		return util.New(util.KindWriteConflict, "txn.Write", "transaction is not active")
	}

	record := &wal.Record{
		TxnID:   txn.ID,
		Type:    wal.RecordTypeUpdate,
		Key:     []byte(key),
		Value:   value,
		PrevLSN: txn.lastLSN,
	}
	lsn, err := m.wal.Append(record)
	if err != nil {
		return util.Wrap(util.KindOperationFailed, "txn.Write", "wal append failed", err)
	}
	txn.lastLSN = lsn
	txn.WriteSet[key] = value
	return nil
}

// Read returns key's value as staged in txn's own write set
// (read-your-own-writes). Visibility of committed versions from other
// transactions is the storage engine's concern, consulted only when the
// key is absent from the local write set.
func (m *Manager) Read(txn *Transaction, key string) ([]byte, error) {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if v, ok := txn.WriteSet[key]; ok {
		return v, nil
	}
	return nil, util.New(util.KindNone, "txn.Read", "key not found in write set")
}

// Commit durably records the commit, marks the transaction committed in
// the snapshot manager (making its writes visible to new snapshots), and
// runs every registered commit hook.
func (m *Manager) Commit(txn *Transaction) error {
	txn.mu.Lock()
	if txn.Status != StatusActive {
		txn.mu.Unlock()
		return util.New(util.KindWriteConflict, "txn.Commit", "transaction is not active")
	}

	_, err := m.wal.Append(&wal.Record{
		TxnID:   txn.ID,
		Type:    wal.RecordTypeCommit,
		PrevLSN: txn.lastLSN,
	})
	if err == nil {
		err = m.wal.Sync()
	}
	if err != nil {
		txn.mu.Unlock()
		return util.Wrap(util.KindOperationFailed, "txn.Commit", "wal commit record append or sync failed", err)
	}

	txn.Status = StatusCommitted
	hooks := txn.commitHooks
	txn.mu.Unlock()

	m.snapshots.CommitTransaction(txn.ID)

	m.mu.Lock()
	delete(m.active, txn.ID)
	m.mu.Unlock()

	for _, h := range hooks {
		h()
	}
	return nil
}

// Rollback discards txn's write set, records an abort marker, and runs
// every registered rollback hook (the catalog's undo path for a failed
// two-phase create/drop).
func (m *Manager) Rollback(txn *Transaction) error {
	txn.mu.Lock()
	if txn.Status != StatusActive {
		txn.mu.Unlock()
		return nil
	}

	m.wal.Append(&wal.Record{
		TxnID:   txn.ID,
		Type:    wal.RecordTypeAbort,
		PrevLSN: txn.lastLSN,
	})

	txn.Status = StatusAborted
	hooks := txn.rollbackHooks
	txn.mu.Unlock()

	m.snapshots.AbortTransaction(txn.ID)

	m.mu.Lock()
	delete(m.active, txn.ID)
	m.mu.Unlock()

	for _, h := range hooks {
		h()
	}
	return nil
}

// GetActiveTransactionCount returns the number of transactions currently
// Active, for administrative reporting and tests.
func (m *Manager) GetActiveTransactionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Close releases the manager's WAL handle.
func (m *Manager) Close() error {
	return m.wal.Close()
}
