package exec

import (
	"github.com/kartikbazzad/bundoc-core/catalog"
	"github.com/kartikbazzad/bundoc-core/storageengine"
	"github.com/kartikbazzad/bundoc-core/txn"
)

// Update wraps a child fetch, applying Patch to each matched document
// inside the enclosing write unit of work, validating the result
// against the collection's schema validator if one is set (spec.md §9
// Update/Delete stage; validation is the supplemented document-
// validation feature from catalog.CollectionOptions).
type Update struct {
	child   Stage
	ws      *WorkingSet
	store   *storageengine.RecordStore
	options catalog.CollectionOptions
	patch   map[string]interface{}
	t       *txn.Transaction

	matched int
	updated int
}

// NewUpdate wraps child, applying patch to every matched document
// inside transaction t.
func NewUpdate(ws *WorkingSet, child Stage, store *storageengine.RecordStore, options catalog.CollectionOptions, patch map[string]interface{}, t *txn.Transaction) *Update {
	return &Update{child: child, ws: ws, store: store, options: options, patch: patch, t: t}
}

func (u *Update) Work() (WorkingSetID, StageState, error) {
	childID, state, err := u.child.Work()
	if state != StateAdvanced {
		return childID, state, err
	}

	member := u.ws.Get(childID)
	if member == nil || member.Doc == nil {
		return Invalid, StateNeedTime, nil
	}
	u.matched++

	patched := member.Doc.Clone()
	if err := patched.ApplyPatch(u.patch); err != nil {
		return Invalid, StateFailure, err
	}

	if u.options.Validator != nil {
		docJSON, err := patched.Serialize()
		if err != nil {
			return Invalid, StateFailure, err
		}
		if err := u.options.ValidateDocument(docJSON); err != nil {
			return Invalid, StateFailure, err
		}
	}

	recordID := member.RecordId
	previous := member.Doc
	if err := u.store.Update(recordID, patched); err != nil {
		// A concurrent writer won the race on this record; the caller's
		// yield policy is expected to retry, not fail the whole plan.
		return Invalid, StateNeedYield, nil
	}

	u.t.RegisterChange(
		func() {},
		func() { u.store.Update(recordID, previous) },
	)

	member.Doc = patched
	u.updated++
	return childID, StateAdvanced, nil
}

func (u *Update) SaveState()                  { u.child.SaveState() }
func (u *Update) RestoreState() (bool, error) { return u.child.RestoreState() }
func (u *Update) Children() []Stage           { return []Stage{u.child} }
