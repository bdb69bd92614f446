// Package locker implements the per-operation Locker (spec.md §4.2): a
// thin aggregation layer over the process-wide lock.Manager that enforces
// the hierarchical acquisition protocol, brackets writes in a nestable
// write unit of work, and gates entry through a pair of ticket pools
// before any Lock Manager call is made.
package locker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kartikbazzad/bundoc-core/internal/util"
)

// TicketPool is a counting semaphore bounding the number of concurrently
// active readers or writers in the server (spec.md §4.2 "Ticket pool",
// glossary "Ticket"), independent of the Lock Manager's own fairness.
// Modeled on the teacher's connection-pool admission pattern
// (bundoc/pool/pool.go's Acquire/Release over a bounded slice),
// generalized here into a pure semaphore since a ticket has no
// connection identity to track.
type TicketPool struct {
	name     string
	capacity int
	tickets  chan struct{}

	mu      sync.Mutex
	inUse   int
	waiting int

	totalAcquired atomic.Uint64
	totalTimedOut atomic.Uint64
}

// NewTicketPool constructs a pool of capacity tickets, named for
// statistics/logging (typically "reader" or "writer").
func NewTicketPool(name string, capacity int) *TicketPool {
	return &TicketPool{name: name, capacity: capacity, tickets: make(chan struct{}, capacity)}
}

// Acquire blocks until a ticket is available or ctx's deadline passes.
// The caller is QueuedReader/QueuedWriter (per the Locker's client-state
// flag) for the duration of this call.
func (p *TicketPool) Acquire(ctx context.Context) error {
	p.mu.Lock()
	p.waiting++
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.waiting--
		p.mu.Unlock()
	}()

	select {
	case p.tickets <- struct{}{}:
		p.mu.Lock()
		p.inUse++
		p.mu.Unlock()
		p.totalAcquired.Add(1)
		return nil
	case <-ctx.Done():
		p.totalTimedOut.Add(1)
		return util.Wrap(util.KindLockTimeout, "locker.TicketPool.Acquire", fmt.Sprintf("%s pool exhausted (capacity %d)", p.name, p.capacity), ctx.Err())
	}
}

// Release returns a ticket to the pool.
func (p *TicketPool) Release() {
	select {
	case <-p.tickets:
		p.mu.Lock()
		p.inUse--
		p.mu.Unlock()
	default:
		// Releasing without a matching Acquire is a caller bug; ignored
		// rather than panicking, matching the rest of this package's
		// never-fail-for-program-logic-reasons stance on release paths.
	}
}

// Stats reports the pool's current occupancy, for the administrative
// shardingState/serverStatus-style commands.
type Stats struct {
	Name      string
	Capacity  int
	InUse     int
	Waiting   int
	Acquired  uint64
	TimedOut  uint64
}

// Stats snapshots p's current statistics.
func (p *TicketPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Name:     p.name,
		Capacity: p.capacity,
		InUse:    p.inUse,
		Waiting:  p.waiting,
		Acquired: p.totalAcquired.Load(),
		TimedOut: p.totalTimedOut.Load(),
	}
}

// defaultTicketCapacity is spec.md §4.2's "default capacity 128 per
// reader/writer".
const defaultTicketCapacity = 128

// deadlockCheckInterval is the periodic wakeup spec.md §4.2's lock()
// describes ("periodic wakeups (≈500 ms) trigger deadlock checks").
const deadlockCheckInterval = 500 * time.Millisecond
