// Package replication tracks the replication commit point the catalog's
// two-phase drop reaper waits on before permanently removing a
// drop-pending collection (spec.md §4.3). It deliberately implements
// only commit-point bookkeeping: leader election and log replication are
// out of scope (spec.md Non-goals, "replication oplog generation").
package replication

import (
	"sync"

	"github.com/kartikbazzad/bundoc-core/internal/util"
)

// CommitIndex is a monotonically increasing marker: every write
// committed at or below this index is durable on a majority of nodes (or,
// in the single-node deployment this engine targets, durable on disk).
type CommitIndex uint64

// Coordinator exposes the single piece of replication state the rest of
// the engine needs: how far the commit point has advanced, plus a way to
// wait for it to reach a target index. Nothing in the engine advances the
// commit point on its own: AdvanceCommitPoint is called only by whoever
// owns the Coordinator (the catalog tests do so directly), and this
// package does not track peer acknowledgements.
type Coordinator struct {
	mu          sync.Mutex
	cond        *sync.Cond
	commitPoint CommitIndex
	closed      bool
}

// NewCoordinator returns a Coordinator starting at commit point zero.
func NewCoordinator() *Coordinator {
	c := &Coordinator{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// CommitPoint returns the current commit index.
func (c *Coordinator) CommitPoint() CommitIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitPoint
}

// AdvanceCommitPoint moves the commit point forward to index, if index is
// greater than the current value, and wakes any WaitFor callers.
func (c *Coordinator) AdvanceCommitPoint(index CommitIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index > c.commitPoint {
		c.commitPoint = index
		c.cond.Broadcast()
	}
}

// WaitFor blocks until the commit point reaches at least index, or the
// Coordinator is closed (returning ErrClosed). The catalog's drop-pending
// reaper does not block here; it polls CommitPoint on each Sweep.
func (c *Coordinator) WaitFor(index CommitIndex) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.commitPoint < index && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return util.ErrClosed
	}
	return nil
}

// Close unblocks every WaitFor caller with ErrClosed, for shutdown.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}
