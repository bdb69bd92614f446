// Command bundoccore stands up one embedded-engine instance: storage,
// write-ahead log, catalog, lock manager, and administrative surface
// wired together the way bundoc/examples/basic/main.go wires its
// simpler single-package Database, generalized to this engine's
// layered packages.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kartikbazzad/bundoc-core/admin"
	"github.com/kartikbazzad/bundoc-core/catalog"
	"github.com/kartikbazzad/bundoc-core/config"
	"github.com/kartikbazzad/bundoc-core/lock"
	"github.com/kartikbazzad/bundoc-core/locker"
	"github.com/kartikbazzad/bundoc-core/replication"
	"github.com/kartikbazzad/bundoc-core/storageengine/mvcc"
	"github.com/kartikbazzad/bundoc-core/storageengine/wal"
	"github.com/kartikbazzad/bundoc-core/txn"
)

// Engine bundles every component a running server needs, assembled once
// at startup and handed to the admin/exec layers.
type Engine struct {
	Config  *config.EngineConfig
	Catalog *catalog.Catalog
	Locks   *lock.Manager
	Txns    *txn.Manager
	Repl    *replication.Coordinator
	Admin   *admin.Server

	readers *locker.TicketPool
	writers *locker.TicketPool
}

// NewEngine opens (or creates) the engine rooted at cfg.Path.
func NewEngine(cfg *config.EngineConfig) (*Engine, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	walWriter, err := wal.NewWAL(cfg.WALPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL: %w", err)
	}

	vm := mvcc.NewVersionManager()
	sm := mvcc.NewSnapshotManager(vm)
	txnMgr := txn.NewTransactionManager(sm, walWriter)

	repl := replication.NewCoordinator()
	cat := catalog.New(cfg.Path, cfg.BufferPoolSize, repl)

	locks := lock.NewManager()
	readers := locker.NewTicketPool("reader", cfg.ReaderTicketPoolSize)
	writers := locker.NewTicketPool("writer", cfg.WriterTicketPoolSize)

	srv := admin.NewServer(cat, locks, txnMgr, readers, writers)

	return &Engine{
		Config:  cfg,
		Catalog: cat,
		Locks:   locks,
		Txns:    txnMgr,
		Repl:    repl,
		Admin:   srv,
		readers: readers,
		writers: writers,
	}, nil
}

// NewLocker builds a fresh per-operation Locker against this engine's
// Lock Manager and ticket pools (spec.md §4.2: one Locker per client
// operation, never shared across goroutines).
func (e *Engine) NewLocker() *locker.Locker {
	return locker.New(e.Locks, e.readers, e.writers)
}

// Close releases the engine's WAL and replication-coordinator handles.
func (e *Engine) Close() error {
	e.Repl.Close()
	return e.Txns.Close()
}

// runMaintenanceLoop periodically sweeps the catalog's two-phase-drop
// reaper, standing in for what would otherwise be driven by real
// replication commit-point advancement (spec.md §4.3).
func (e *Engine) runMaintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Catalog.Sweep()
		}
	}
}

func main() {
	cfg := config.DefaultEngineConfig("./bundoccore-data")
	if err := config.Load("BUNDOC", cfg); err != nil {
		log.Printf("config.Load: %v (continuing with defaults)", err)
	}

	engine, err := NewEngine(cfg)
	if err != nil {
		log.Fatalf("failed to start engine: %v", err)
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.runMaintenanceLoop(ctx)

	l := engine.NewLocker()
	ns := catalog.Namespace{Database: "example", Collection: "users"}
	if _, err := engine.Admin.CreateCollection(ctx, l, ns, catalog.CollectionOptions{}); err != nil {
		log.Fatalf("createCollection: %v", err)
	}

	fmt.Printf("bundoccore engine ready at %s (database %s)\n", cfg.Path, ns.Database)
	fmt.Printf("lockInfo: %+v\n", engine.Admin.LockInfo())
	fmt.Printf("status: %+v\n", engine.Admin.Status())
}
