package exec

import "github.com/kartikbazzad/bundoc-core/storageengine"

// Subplan plans each branch of a rooted-OR query independently, then
// composes their results, deduplicating RecordIds that satisfy more
// than one branch so a document is never returned twice (spec.md §9
// Subplan).
type Subplan struct {
	branches []Stage
	seen     map[storageengine.RecordId]struct{}
	cur      int
	ws       *WorkingSet
}

// NewSubplan wraps branches, each of which should already be planned
// (typically each branch is itself a MultiPlan).
func NewSubplan(ws *WorkingSet, branches []Stage) *Subplan {
	return &Subplan{ws: ws, branches: branches, seen: make(map[storageengine.RecordId]struct{})}
}

// pickBestPlan resolves every branch's own plan selection before the
// first work() call, per spec.md §9's construction-time scan.
func (sp *Subplan) pickBestPlan() error {
	for _, b := range sp.branches {
		if err := pickBestPlan(b); err != nil {
			return err
		}
	}
	return nil
}

func (sp *Subplan) Work() (WorkingSetID, StageState, error) {
	for sp.cur < len(sp.branches) {
		id, state, err := sp.branches[sp.cur].Work()
		switch state {
		case StateAdvanced:
			member := sp.ws.Get(id)
			if member != nil {
				if _, dup := sp.seen[member.RecordId]; dup {
					sp.ws.Free(id)
					continue
				}
				sp.seen[member.RecordId] = struct{}{}
			}
			return id, StateAdvanced, nil
		case StateIsEOF:
			sp.cur++
			continue
		default:
			return id, state, err
		}
	}
	return Invalid, StateIsEOF, nil
}

func (sp *Subplan) SaveState() {
	for _, b := range sp.branches {
		b.SaveState()
	}
}

func (sp *Subplan) RestoreState() (bool, error) {
	for _, b := range sp.branches {
		if needsRetry, err := b.RestoreState(); err != nil || needsRetry {
			return needsRetry, err
		}
	}
	return false, nil
}

func (sp *Subplan) Children() []Stage { return sp.branches }
