package exec

// replanWorksRatio is the number of works a cached plan may spend without
// a single advance before a replan is triggered (spec.md §9 CachedPlan:
// "if replanning conditions fire (too many works for too few advances),
// discards the cache entry and switches to MultiPlan").
const replanWorksRatio = 20

// CachedPlan runs a previously cached winning plan directly, counting its
// works and advances; once it reaches replanWorksRatio works with no
// advance at all it evicts the cache entry and falls back to a fresh
// MultiPlan trial over rebuildCandidates (spec.md §9 CachedPlan). A plan
// that has advanced even once is never replanned.
type CachedPlan struct {
	ws                *WorkingSet
	cached            Stage
	rebuildCandidates func() []Stage
	cache             *PlanCache
	shape             string

	works     int
	advances  int
	replanned Stage
}

// NewCachedPlan wraps cached (the plan last picked by a MultiPlan for
// shape), with rebuildCandidates used to construct a fresh candidate
// set if a replan is triggered.
func NewCachedPlan(ws *WorkingSet, cached Stage, rebuildCandidates func() []Stage, cache *PlanCache, shape string) *CachedPlan {
	return &CachedPlan{ws: ws, cached: cached, rebuildCandidates: rebuildCandidates, cache: cache, shape: shape}
}

func (cp *CachedPlan) pickBestPlan() error { return nil }

func (cp *CachedPlan) active() Stage {
	if cp.replanned != nil {
		return cp.replanned
	}
	return cp.cached
}

func (cp *CachedPlan) Work() (WorkingSetID, StageState, error) {
	if cp.replanned != nil {
		return cp.replanned.Work()
	}

	id, state, err := cp.cached.Work()
	cp.works++
	if state == StateAdvanced {
		cp.advances++
	}

	if cp.advances == 0 && cp.works >= replanWorksRatio {
		cp.cache.Evict(cp.shape)
		mp := NewMultiPlan(cp.ws, cp.rebuildCandidates(), cp.cache, cp.shape)
		if pErr := mp.pickBestPlan(); pErr != nil {
			return Invalid, StateFailure, pErr
		}
		cp.replanned = mp
		return mp.Work()
	}

	return id, state, err
}

func (cp *CachedPlan) SaveState() { cp.active().SaveState() }

func (cp *CachedPlan) RestoreState() (bool, error) { return cp.active().RestoreState() }

func (cp *CachedPlan) Children() []Stage { return []Stage{cp.active()} }
