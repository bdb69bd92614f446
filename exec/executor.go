package exec

import (
	"context"
	"math/rand"
	"time"

	"github.com/kartikbazzad/bundoc-core/catalog"
	"github.com/kartikbazzad/bundoc-core/internal/util"
)

// YieldPolicy decides, before each work() call, whether the executor
// should save stage state and give its Locker a chance to release and
// reacquire locks (spec.md §9 executor loop step 1).
type YieldPolicy interface {
	// ShouldYield is consulted before every work() call.
	ShouldYield() bool
	// BeginYield releases locks (respecting WUOW nesting); it is called
	// only after every stage in the tree has had SaveState called.
	BeginYield() error
	// EndYield reacquires locks in canonical (ResourceId-ascending)
	// order; it is called before RestoreState is invoked on the tree.
	EndYield() error
}

// Result is one terminal or data-bearing outcome of an executor Next
// call.
type Result struct {
	State  StageState
	Member *WorkingSetMember
	Err    error
}

// Executor drives one plan tree to completion, implementing spec.md
// §9's executor loop and registering itself with the catalog for
// invalidation so a concurrent rename/drop can kill it mid-scan.
type Executor struct {
	root   Stage
	ws     *WorkingSet
	yield  YieldPolicy
	uuid   catalog.CollectionUUID
	cat    *catalog.Catalog
	killed bool
	killErr error

	backoffAttempts int
}

// NewExecutor constructs an Executor over root, registering for
// invalidation notices against uuid and resolving any Subplan/MultiPlan/
// CachedPlan root's winning plan before the first Next call (spec.md §9
// Plan selection: "on executor construction the tree is scanned... and
// pickBestPlan is dispatched").
func NewExecutor(cat *catalog.Catalog, uuid catalog.CollectionUUID, root Stage, ws *WorkingSet, yield YieldPolicy) (*Executor, error) {
	e := &Executor{root: root, ws: ws, yield: yield, uuid: uuid, cat: cat}
	cat.Register(uuid, e)
	if err := pickBestPlan(root); err != nil {
		cat.Unregister(uuid, e)
		return nil, err
	}
	return e, nil
}

// InvalidateNamespace implements catalog.Invalidatable.
func (e *Executor) InvalidateNamespace(uuid catalog.CollectionUUID) {
	if uuid == e.uuid {
		e.killed = true
		e.killErr = util.New(util.KindQueryPlanKilled, "exec.Executor", "namespace invalidated during plan execution")
	}
}

// Close unregisters the executor from the catalog's invalidation
// registry; callers must call this once the plan is done (or
// abandoned) to avoid leaking a listener entry.
func (e *Executor) Close() {
	e.cat.Unregister(e.uuid, e)
}

// Next runs the executor loop until it can return exactly one
// terminal-or-data Result (spec.md §9 executor loop steps 2-5), honoring
// ctx's deadline as the operation deadline the loop polls on every
// suspension point.
func (e *Executor) Next(ctx context.Context) Result {
	for {
		if e.killed {
			return Result{State: StateDead, Err: e.killErr}
		}
		if err := ctx.Err(); err != nil {
			return Result{State: StateFailure, Err: util.Wrap(util.KindInterrupted, "exec.Executor.Next", "operation deadline reached", err)}
		}

		if e.yield != nil && e.yield.ShouldYield() {
			e.root.SaveState()
			if err := e.yield.BeginYield(); err != nil {
				return Result{State: StateFailure, Err: err}
			}
			if err := e.yield.EndYield(); err != nil {
				return Result{State: StateFailure, Err: err}
			}
			needsRetry, err := e.root.RestoreState()
			if err != nil {
				if util.Is(err, util.KindQueryPlanKilled) {
					return Result{State: StateDead, Err: err}
				}
				return Result{State: StateFailure, Err: err}
			}
			if needsRetry {
				util.LoggerFor(ctx).Debug("replan after yield", "uuid", e.uuid.String())
				continue
			}
		}

		id, state, err := e.root.Work()
		switch state {
		case StateAdvanced:
			e.backoffAttempts = 0
			return Result{State: StateAdvanced, Member: e.ws.Get(id)}

		case StateNeedTime:
			continue

		case StateNeedYield:
			// No record-fetcher plumbing exists at this layer (spec.md
			// §9 step 3's "without a fetcher" branch): treat every
			// NeedYield as a write-conflict backoff with exponential
			// jitter.
			e.backoffAttempts++
			delay := backoffDelay(e.backoffAttempts)
			util.LoggerFor(ctx).Debug("write-conflict retry backoff", "uuid", e.uuid.String(), "attempt", e.backoffAttempts, "delay", delay)
			select {
			case <-ctx.Done():
				return Result{State: StateFailure, Err: util.Wrap(util.KindExceededTimeLimit, "exec.Executor.Next", "deadline reached during write-conflict backoff", ctx.Err())}
			case <-time.After(delay):
			}
			continue

		case StateIsEOF:
			return Result{State: StateIsEOF}

		case StateFailure:
			return Result{State: StateFailure, Err: err}

		case StateDead:
			return Result{State: StateDead, Err: err}
		}
	}
}

// backoffDelay returns an exponentially growing, jittered delay for
// write-conflict retries, capped to avoid unbounded waits.
func backoffDelay(attempt int) time.Duration {
	base := time.Millisecond * time.Duration(1<<uint(min(attempt, 10)))
	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	const cap = 500 * time.Millisecond
	d := base + jitter
	if d > cap {
		d = cap
	}
	return d
}
