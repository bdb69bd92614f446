package exec

import "github.com/kartikbazzad/bundoc-core/exec/predicate"

// Filter drops any child member whose document fails to match Expr,
// pulling repeatedly from its child until one passes or the child
// reports a terminal state (spec.md §9 Filter stage).
type Filter struct {
	baseStage
	child Stage
	ws    *WorkingSet
	expr  predicate.Node
}

// NewFilter wraps child, rejecting members whose Doc does not match
// expr.
func NewFilter(ws *WorkingSet, child Stage, expr predicate.Node) *Filter {
	return &Filter{child: child, ws: ws, expr: expr}
}

func (f *Filter) Work() (WorkingSetID, StageState, error) {
	childID, state, err := f.child.Work()
	if state != StateAdvanced {
		return childID, state, err
	}

	member := f.ws.Get(childID)
	if member == nil || member.Doc == nil {
		f.ws.Free(childID)
		return Invalid, StateNeedTime, nil
	}
	if !f.expr.Matches(member.Doc) {
		f.ws.Free(childID)
		return Invalid, StateNeedTime, nil
	}
	return childID, StateAdvanced, nil
}

func (f *Filter) SaveState()                  { f.child.SaveState() }
func (f *Filter) RestoreState() (bool, error) { return f.child.RestoreState() }
func (f *Filter) Children() []Stage           { return []Stage{f.child} }
