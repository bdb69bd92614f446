package exec

import (
	"sort"

	"github.com/kartikbazzad/bundoc-core/exec/predicate"
)

// SortKey is one field of a compound sort order.
type SortKey struct {
	Field     string
	Ascending bool
}

// Sort is a blocking stage: it drains its entire child into memory
// before producing its first result, ordering by Keys (spec.md §9 Sort
// stage — explicitly not streaming, unlike every other stage). This is
// the one stage where NeedTime dominates work() calls while the child
// is still being drained.
type Sort struct {
	baseStage
	child Stage
	ws    *WorkingSet
	keys  []SortKey

	drained bool
	ids     []WorkingSetID
	pos     int
}

// NewSort wraps child, producing members in the order keys describes
// once the child is fully drained.
func NewSort(ws *WorkingSet, child Stage, keys []SortKey) *Sort {
	return &Sort{child: child, ws: ws, keys: keys}
}

func (s *Sort) Work() (WorkingSetID, StageState, error) {
	if !s.drained {
		childID, state, err := s.child.Work()
		switch state {
		case StateAdvanced:
			s.ids = append(s.ids, childID)
			return Invalid, StateNeedTime, nil
		case StateIsEOF:
			s.sortIds()
			s.drained = true
			return Invalid, StateNeedTime, nil
		default:
			return childID, state, err
		}
	}

	if s.pos >= len(s.ids) {
		return Invalid, StateIsEOF, nil
	}
	id := s.ids[s.pos]
	s.pos++
	return id, StateAdvanced, nil
}

func (s *Sort) sortIds() {
	sort.SliceStable(s.ids, func(i, j int) bool {
		a := s.ws.Get(s.ids[i])
		b := s.ws.Get(s.ids[j])
		for _, k := range s.keys {
			cmp := predicate.CompareValues(fieldValue(a.Doc, k.Field), fieldValue(b.Doc, k.Field))
			if cmp == 0 {
				continue
			}
			if k.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

func fieldValue(doc map[string]interface{}, field string) interface{} {
	if doc == nil {
		return nil
	}
	return doc[field]
}

// SaveState is a no-op once the child has been fully drained (there is
// nothing left to release); before that point it simply forwards.
func (s *Sort) SaveState() {
	if !s.drained {
		s.child.SaveState()
	}
}

func (s *Sort) RestoreState() (bool, error) {
	if !s.drained {
		return s.child.RestoreState()
	}
	return false, nil
}

func (s *Sort) Children() []Stage { return []Stage{s.child} }
