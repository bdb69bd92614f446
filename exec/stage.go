// Package exec implements the pull-based plan executor and its stage tree
// (spec.md §9): every work() call advances a stage by one unit and
// produces at most one WorkingSetMember, save/restore propagates through
// a stage's children around a Locker yield, and an InvalidateNamespace
// notice from the catalog marks the stage reading the invalidated
// namespace dead rather than tearing it down synchronously.
package exec

import "github.com/kartikbazzad/bundoc-core/catalog"

// StageState is the outcome of a single work() call, mirroring spec.md's
// six-state contract.
type StageState int

const (
	// StateAdvanced means id names a WorkingSetMember ready for the
	// caller (and, for an intermediate stage, ready to push upstream).
	StateAdvanced StageState = iota
	// StateNeedTime means the stage did internal work but produced no
	// result yet; the caller should call work() again without yielding.
	StateNeedTime
	// StateNeedYield means the stage wants its Locker to drop and
	// reacquire locks before the next work() call (a blocking fetch is
	// imminent, or a page fault occurred).
	StateNeedYield
	// StateIsEOF means the stage has no more results.
	StateIsEOF
	// StateFailure means the stage failed unrecoverably; Err is set.
	StateFailure
	// StateDead means the stage's underlying namespace was invalidated
	// mid-scan (spec.md §9 back-references and cycles) and can never
	// produce another result.
	StateDead
)

func (s StageState) String() string {
	switch s {
	case StateAdvanced:
		return "Advanced"
	case StateNeedTime:
		return "NeedTime"
	case StateNeedYield:
		return "NeedYield"
	case StateIsEOF:
		return "IsEOF"
	case StateFailure:
		return "Failure"
	case StateDead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// WorkingSetID is an index into a WorkingSet.
type WorkingSetID uint32

// Invalid names "no member produced this call".
const Invalid WorkingSetID = 0

// Stage is one node of the plan tree. A Stage pulls results from its
// children (if any) rather than being pushed to, so the executor's loop
// never needs to know the shape of the tree it's driving.
type Stage interface {
	// Work advances the stage by one unit, returning the WorkingSetID of
	// any produced member alongside the resulting state.
	Work() (WorkingSetID, StageState, error)

	// SaveState releases any resource (cursor, page pin) the stage can't
	// safely hold across a lock yield.
	SaveState()

	// RestoreState reacquires what SaveState released. needsRetry means
	// the stage's positional state (e.g. a cursor's last key) no longer
	// exists and the stage must re-derive its position.
	RestoreState() (needsRetry bool, err error)

	// Children returns this stage's direct children, for save/restore
	// and invalidation propagation.
	Children() []Stage
}

// baseStage centralizes InvalidateNamespace bookkeeping so every
// concrete Stage embeds it instead of re-implementing the dead-flag
// dance spec.md describes for back-reference safety.
type baseStage struct {
	dead bool
}

// markDead flags the stage as reading an invalidated namespace;
// namespaceWatcher.InvalidateNamespace calls it once the notice's uuid
// matches the stage's own.
func (b *baseStage) markDead() {
	b.dead = true
}

func (b *baseStage) isDead() bool {
	return b.dead
}

var _ catalog.Invalidatable = (*namespaceWatcher)(nil)

// namespaceWatcher adapts a single Stage's markDead to the catalog's
// broader Invalidatable interface, filtering notices down to the one
// CollectionUUID this stage actually reads.
type namespaceWatcher struct {
	uuid   catalog.CollectionUUID
	target *baseStage
}

func (w *namespaceWatcher) InvalidateNamespace(uuid catalog.CollectionUUID) {
	if uuid == w.uuid {
		w.target.markDead()
	}
}
