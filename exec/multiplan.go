package exec

// trialBudget bounds how many work() calls a MultiPlan trial gives each
// candidate before forcing a decision (spec.md §8 S5: "bounded by
// O(matches on the better plan)" — a fixed ceiling stands in for that
// cost-based bound here).
const trialBudget = 1000

// planTrial tracks one candidate's trial-phase statistics: works is
// every work() call made against it, advances is how many of those
// returned StateAdvanced. Their ratio is the selection metric spec.md
// names ("works-to-advance ratio"); the lowest ratio wins.
type planTrial struct {
	candidate Stage
	works     int
	advances  int
	buffered  []WorkingSetID
	eof       bool
	dead      bool
	failed    error
}

func (t *planTrial) ratio() float64 {
	if t.advances == 0 {
		return float64(t.works + 1)
	}
	return float64(t.works) / float64(t.advances)
}

// MultiPlan holds N candidate subtrees, runs each for a bounded trial,
// and picks the one with the best works-to-advance ratio, caching the
// winner against Shape so subsequent executor constructions for the
// same query shape skip straight to it (spec.md §9 MultiPlan).
type MultiPlan struct {
	ws         *WorkingSet
	candidates []Stage
	cache      *PlanCache
	shape      string

	winner      Stage
	winnerTrial *planTrial
	selected    bool
}

// NewMultiPlan constructs a MultiPlan over candidates, consulting cache
// under shape for an already-known winner.
func NewMultiPlan(ws *WorkingSet, candidates []Stage, cache *PlanCache, shape string) *MultiPlan {
	return &MultiPlan{ws: ws, candidates: candidates, cache: cache, shape: shape}
}

// pickBestPlan runs the trial phase (unless the cache already names a
// winner) and fixes mp.winner.
func (mp *MultiPlan) pickBestPlan() error {
	if mp.selected {
		return nil
	}
	if idx, ok := mp.cache.Lookup(mp.shape); ok && idx >= 0 && idx < len(mp.candidates) {
		mp.winner = mp.candidates[idx]
		mp.selected = true
		return nil
	}

	trials := make([]*planTrial, len(mp.candidates))
	for i, c := range mp.candidates {
		trials[i] = &planTrial{candidate: c}
	}

	for round := 0; round < trialBudget; round++ {
		liveCount := 0
		for _, t := range trials {
			if t.eof || t.dead || t.failed != nil {
				continue
			}
			liveCount++
			id, state, err := t.candidate.Work()
			t.works++
			switch state {
			case StateAdvanced:
				t.advances++
				t.buffered = append(t.buffered, id)
			case StateIsEOF:
				t.eof = true
			case StateDead:
				t.dead = true
			case StateFailure:
				t.failed = err
			}
		}
		if liveCount == 0 {
			break
		}
	}

	bestIdx, best := 0, trials[0]
	for i, t := range trials {
		if t.ratio() < best.ratio() {
			bestIdx, best = i, t
		}
	}

	mp.winner = mp.candidates[bestIdx]
	mp.winnerTrial = best
	mp.cache.Record(mp.shape, bestIdx)
	mp.selected = true
	return nil
}

func (mp *MultiPlan) Work() (WorkingSetID, StageState, error) {
	if !mp.selected {
		if err := mp.pickBestPlan(); err != nil {
			return Invalid, StateFailure, err
		}
	}
	if mp.winnerTrial != nil && len(mp.winnerTrial.buffered) > 0 {
		id := mp.winnerTrial.buffered[0]
		mp.winnerTrial.buffered = mp.winnerTrial.buffered[1:]
		return id, StateAdvanced, nil
	}
	if mp.winnerTrial != nil {
		if mp.winnerTrial.dead {
			return Invalid, StateDead, nil
		}
		if mp.winnerTrial.failed != nil {
			return Invalid, StateFailure, mp.winnerTrial.failed
		}
		if mp.winnerTrial.eof {
			return Invalid, StateIsEOF, nil
		}
	}
	return mp.winner.Work()
}

func (mp *MultiPlan) SaveState() {
	if mp.selected {
		mp.winner.SaveState()
		return
	}
	for _, c := range mp.candidates {
		c.SaveState()
	}
}

func (mp *MultiPlan) RestoreState() (bool, error) {
	if mp.selected {
		return mp.winner.RestoreState()
	}
	for _, c := range mp.candidates {
		if needsRetry, err := c.RestoreState(); err != nil || needsRetry {
			return needsRetry, err
		}
	}
	return false, nil
}

func (mp *MultiPlan) Children() []Stage {
	if mp.selected {
		return []Stage{mp.winner}
	}
	return mp.candidates
}
