// Package admin implements the server's administrative surface (spec.md
// §6): lockInfo, shardingState/serverStatus-style ticket-pool reporting,
// and the create/drop/rename/createIndexes/dropIndexes commands layered
// directly over the catalog and lock manager. These are the operations
// an operator or driver issues out-of-band from the query path; they
// take the locks spec.md documents themselves rather than relying on a
// caller to have taken them first.
package admin

import (
	"context"

	"github.com/kartikbazzad/bundoc-core/catalog"
	"github.com/kartikbazzad/bundoc-core/lock"
	"github.com/kartikbazzad/bundoc-core/locker"
	"github.com/kartikbazzad/bundoc-core/txn"
)

// Server bundles the engine components administrative commands need.
type Server struct {
	Catalog *catalog.Catalog
	Locks   *lock.Manager
	Txns    *txn.Manager
	Readers *locker.TicketPool
	Writers *locker.TicketPool
}

// NewServer constructs a Server over the given engine components.
func NewServer(cat *catalog.Catalog, locks *lock.Manager, txns *txn.Manager, readers, writers *locker.TicketPool) *Server {
	return &Server{Catalog: cat, Locks: locks, Txns: txns, Readers: readers, Writers: writers}
}

// LockInfoEntry mirrors one lock.Snapshot for the lockInfo command's
// wire shape.
type LockInfoEntry struct {
	Resource string
	Type     string
	Granted  []uint64
	Waiting  []uint64
}

// LockInfo reports every resource the Lock Manager currently tracks
// (spec.md §6 "lockInfo").
func (s *Server) LockInfo() []LockInfoEntry {
	snaps := s.Locks.LockInfo()
	out := make([]LockInfoEntry, 0, len(snaps))
	for _, snap := range snaps {
		entry := LockInfoEntry{
			Resource: snap.Resource.Name(),
			Type:     snap.Resource.Type.String(),
		}
		for _, id := range snap.Granted {
			entry.Granted = append(entry.Granted, uint64(id))
		}
		for _, id := range snap.Waiting {
			entry.Waiting = append(entry.Waiting, uint64(id))
		}
		out = append(out, entry)
	}
	return out
}

// ServerStatus is the shardingState/serverStatus-style snapshot spec.md
// §6 calls for: ticket-pool occupancy plus the active transaction
// count.
type ServerStatus struct {
	Readers             locker.Stats
	Writers             locker.Stats
	ActiveTransactions  int
}

// Status snapshots the server's current admission-control and
// transaction-manager state.
func (s *Server) Status() ServerStatus {
	return ServerStatus{
		Readers:            s.Readers.Stats(),
		Writers:            s.Writers.Stats(),
		ActiveTransactions: s.Txns.GetActiveTransactionCount(),
	}
}

// CreateCollection takes Global IX and Database X per spec.md §4.2's
// hierarchical protocol, then runs catalog.CreateCollection inside a
// write unit of work.
func (s *Server) CreateCollection(ctx context.Context, l *locker.Locker, ns catalog.Namespace, options catalog.CollectionOptions) (*catalog.CollectionDescriptor, error) {
	if err := l.LockGlobal(ctx, lock.ModeIX); err != nil {
		return nil, err
	}
	defer l.Unlock(lock.ResourceIdGlobal)

	dbResource := lock.NewResourceId(lock.ResourceDatabase, ns.Database)
	if err := l.Lock(ctx, dbResource, lock.ModeX); err != nil {
		return nil, err
	}
	defer l.Unlock(dbResource)

	l.BeginWriteUnitOfWork()
	defer l.EndWriteUnitOfWork()

	t, err := s.Txns.Begin(0)
	if err != nil {
		return nil, err
	}
	desc, err := s.Catalog.CreateCollection(t, ns, options)
	if err != nil {
		s.Txns.Rollback(t)
		return nil, err
	}
	if err := s.Txns.Commit(t); err != nil {
		return nil, err
	}
	return desc, nil
}

// DropCollection takes Global IX and Database X, then runs
// catalog.DropCollection inside a write unit of work.
func (s *Server) DropCollection(ctx context.Context, l *locker.Locker, ns catalog.Namespace, dropOpTime uint64) error {
	if err := l.LockGlobal(ctx, lock.ModeIX); err != nil {
		return err
	}
	defer l.Unlock(lock.ResourceIdGlobal)

	dbResource := lock.NewResourceId(lock.ResourceDatabase, ns.Database)
	if err := l.Lock(ctx, dbResource, lock.ModeX); err != nil {
		return err
	}
	defer l.Unlock(dbResource)

	l.BeginWriteUnitOfWork()
	defer l.EndWriteUnitOfWork()

	t, err := s.Txns.Begin(0)
	if err != nil {
		return err
	}
	if err := s.Catalog.DropCollection(t, ns, dropOpTime); err != nil {
		s.Txns.Rollback(t)
		return err
	}
	return s.Txns.Commit(t)
}

// RenameCollection takes Global IX and Database X on from's database,
// matching spec.md §4.3 renameCollection's locking requirement.
func (s *Server) RenameCollection(ctx context.Context, l *locker.Locker, from, to catalog.Namespace, keepTemp bool) error {
	if err := l.LockGlobal(ctx, lock.ModeIX); err != nil {
		return err
	}
	defer l.Unlock(lock.ResourceIdGlobal)

	dbResource := lock.NewResourceId(lock.ResourceDatabase, from.Database)
	if err := l.Lock(ctx, dbResource, lock.ModeX); err != nil {
		return err
	}
	defer l.Unlock(dbResource)

	return s.Catalog.RenameCollection(from, to, keepTemp)
}

// CreateIndexes takes Database IX and Collection X (spec.md §3
// IndexDescriptor operations are collection-exclusive: no concurrent
// document writes may observe a partially built index).
func (s *Server) CreateIndexes(ctx context.Context, l *locker.Locker, ns catalog.Namespace, descs []*catalog.IndexDescriptor) error {
	if err := l.LockGlobal(ctx, lock.ModeIX); err != nil {
		return err
	}
	defer l.Unlock(lock.ResourceIdGlobal)

	dbResource := lock.NewResourceId(lock.ResourceDatabase, ns.Database)
	if err := l.Lock(ctx, dbResource, lock.ModeIX); err != nil {
		return err
	}
	defer l.Unlock(dbResource)

	collResource := lock.NewResourceId(lock.ResourceCollection, ns.String())
	if err := l.Lock(ctx, collResource, lock.ModeX); err != nil {
		return err
	}
	defer l.Unlock(collResource)

	for _, desc := range descs {
		if err := s.Catalog.CreateIndex(ns, desc); err != nil {
			return err
		}
	}
	return nil
}

// DropIndexes mirrors CreateIndexes' locking for index removal.
func (s *Server) DropIndexes(ctx context.Context, l *locker.Locker, ns catalog.Namespace, names []string) error {
	if err := l.LockGlobal(ctx, lock.ModeIX); err != nil {
		return err
	}
	defer l.Unlock(lock.ResourceIdGlobal)

	dbResource := lock.NewResourceId(lock.ResourceDatabase, ns.Database)
	if err := l.Lock(ctx, dbResource, lock.ModeIX); err != nil {
		return err
	}
	defer l.Unlock(dbResource)

	collResource := lock.NewResourceId(lock.ResourceCollection, ns.String())
	if err := l.Lock(ctx, collResource, lock.ModeX); err != nil {
		return err
	}
	defer l.Unlock(collResource)

	for _, name := range names {
		if err := s.Catalog.DropIndex(ns, name); err != nil {
			return err
		}
	}
	return nil
}
