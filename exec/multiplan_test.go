package exec

import "testing"

// fakeStage is a scripted Stage: it returns states[i] on its i'th Work()
// call (clamped to the last entry once exhausted), for deterministic
// MultiPlan trial tests.
type fakeStage struct {
	states []StageState
	calls  int
}

func (f *fakeStage) Work() (WorkingSetID, StageState, error) {
	i := f.calls
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	f.calls++
	state := f.states[i]
	if state == StateAdvanced {
		return WorkingSetID(f.calls), state, nil
	}
	return Invalid, state, nil
}

func (f *fakeStage) SaveState()                  {}
func (f *fakeStage) RestoreState() (bool, error) { return false, nil }
func (f *fakeStage) Children() []Stage           { return nil }

var _ Stage = (*fakeStage)(nil)

func statesOf(advanced int, tail StageState) []StageState {
	out := make([]StageState, 0, advanced+1)
	for i := 0; i < advanced; i++ {
		out = append(out, StateAdvanced)
	}
	out = append(out, tail)
	return out
}

// TestMultiPlanPicksBetterRatio reproduces S5: given two candidates, the
// one that advances on every call until EOF beats one that spends its
// first three calls in StateNeedTime, even though both eventually reach
// EOF.
func TestMultiPlanPicksBetterRatio(t *testing.T) {
	ws := NewWorkingSet()
	good := &fakeStage{states: statesOf(3, StateIsEOF)}
	bad := &fakeStage{states: append(append([]StageState{}, StateNeedTime, StateNeedTime, StateNeedTime), statesOf(3, StateIsEOF)...)}

	cache := NewPlanCache()
	mp := NewMultiPlan(ws, []Stage{bad, good}, cache, "shape-a")

	if err := mp.pickBestPlan(); err != nil {
		t.Fatalf("pickBestPlan: %v", err)
	}
	if mp.winner != good {
		t.Fatalf("expected the lower works-to-advance candidate (good) to win")
	}
	idx, ok := cache.Lookup("shape-a")
	if !ok || idx != 1 {
		t.Fatalf("expected winner index 1 cached, got %d (ok=%v)", idx, ok)
	}
}

// TestMultiPlanReusesCachedWinner reproduces the "subsequent executor
// constructions for the same query shape skip straight to it" behavior:
// a pre-populated cache entry must be honored without running a trial.
func TestMultiPlanReusesCachedWinner(t *testing.T) {
	ws := NewWorkingSet()
	first := &fakeStage{states: statesOf(1, StateIsEOF)}
	second := &fakeStage{states: statesOf(1, StateIsEOF)}

	cache := NewPlanCache()
	cache.Record("shape-b", 1)

	mp := NewMultiPlan(ws, []Stage{first, second}, cache, "shape-b")
	if err := mp.pickBestPlan(); err != nil {
		t.Fatalf("pickBestPlan: %v", err)
	}
	if mp.winner != second {
		t.Fatal("expected cached winner to be selected without a trial")
	}
	if first.calls != 0 {
		t.Fatalf("expected no trial calls against the non-cached candidate, got %d", first.calls)
	}
}
