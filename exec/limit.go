package exec

// Limit passes through at most N child results, then reports EOF
// regardless of whether the child has more (spec.md §9 Limit stage).
type Limit struct {
	child Stage
	n     int
	seen  int
}

// NewLimit wraps child, capping it at n results. n <= 0 means
// unlimited (the stage is a pure passthrough).
func NewLimit(child Stage, n int) *Limit {
	return &Limit{child: child, n: n}
}

func (l *Limit) Work() (WorkingSetID, StageState, error) {
	if l.n > 0 && l.seen >= l.n {
		return Invalid, StateIsEOF, nil
	}
	id, state, err := l.child.Work()
	if state == StateAdvanced {
		l.seen++
	}
	return id, state, err
}

func (l *Limit) SaveState()                  { l.child.SaveState() }
func (l *Limit) RestoreState() (bool, error) { return l.child.RestoreState() }
func (l *Limit) Children() []Stage           { return []Stage{l.child} }
