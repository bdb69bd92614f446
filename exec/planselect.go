package exec

import "sync"

// PlanCache remembers, for a canonical query shape, which MultiPlan
// candidate index won the trial last time (spec.md §9 Plan selection:
// "caches the winner keyed by the canonical query shape"). Entry
// eviction policy is deliberately unspecified (spec.md §9 Open
// Questions (b)) — this cache never evicts on its own; a caller that
// wants a bound can wrap it.
type PlanCache struct {
	mu      sync.RWMutex
	winners map[string]int
}

// NewPlanCache constructs an empty PlanCache.
func NewPlanCache() *PlanCache {
	return &PlanCache{winners: make(map[string]int)}
}

// Lookup returns the winning candidate index for shape, if cached.
func (c *PlanCache) Lookup(shape string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.winners[shape]
	return idx, ok
}

// Record stores shape's winning candidate index.
func (c *PlanCache) Record(shape string, idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.winners[shape] = idx
}

// Evict discards shape's cached winner, for CachedPlan's replan path.
func (c *PlanCache) Evict(shape string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.winners, shape)
}

// PlanSelectKind identifies which plan-selection stage sits at a tree's
// root, for the executor's construction-time scan (spec.md §9: "scanned
// for Subplan/MultiPlan/CachedPlan roots (in that priority order)").
type PlanSelectKind int

const (
	PlanSelectNone PlanSelectKind = iota
	PlanSelectSubplan
	PlanSelectMultiPlan
	PlanSelectCachedPlan
)

// planSelector is implemented by any root stage that needs its winner
// picked before ordinary work() calls begin.
type planSelector interface {
	Stage
	pickBestPlan() error
}

// classifyRoot reports which kind of plan-selection root stage is at
// the top of a tree, in the priority order spec.md specifies: Subplan,
// then MultiPlan, then CachedPlan.
func classifyRoot(root Stage) PlanSelectKind {
	switch root.(type) {
	case *Subplan:
		return PlanSelectSubplan
	case *MultiPlan:
		return PlanSelectMultiPlan
	case *CachedPlan:
		return PlanSelectCachedPlan
	default:
		return PlanSelectNone
	}
}

// pickBestPlan dispatches to root's planSelector implementation, if it
// has one, at executor construction time.
func pickBestPlan(root Stage) error {
	if sel, ok := root.(planSelector); ok {
		return sel.pickBestPlan()
	}
	return nil
}
