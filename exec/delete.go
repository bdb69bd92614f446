package exec

import (
	"github.com/kartikbazzad/bundoc-core/catalog"
	"github.com/kartikbazzad/bundoc-core/storageengine"
	"github.com/kartikbazzad/bundoc-core/txn"
)

// ReferenceEnforcer applies a deleted document's referential-integrity
// rules (restrict/cascade/set_null) before the record is actually
// removed. It is implemented above the exec package (where the catalog
// and other collections' RecordStores are reachable) and injected here
// so this package never has to resolve namespaces itself.
type ReferenceEnforcer interface {
	Enforce(rules []catalog.ReferenceRule, doc storageengine.Document, t *txn.Transaction) error
}

// Delete wraps a child fetch, removing each matched document inside
// the enclosing write unit of work after checking Rules against
// Enforcer (spec.md §9 Update/Delete stage; referential-integrity
// enforcement is the supplemented cascade/restrict/set_null feature
// adapted from the teacher's reference rules).
type Delete struct {
	child    Stage
	ws       *WorkingSet
	store    *storageengine.RecordStore
	rules    []catalog.ReferenceRule
	enforcer ReferenceEnforcer
	t        *txn.Transaction

	deleted int
}

// NewDelete wraps child, deleting every matched document inside
// transaction t. enforcer may be nil if no referential-integrity rules
// apply to this collection.
func NewDelete(ws *WorkingSet, child Stage, store *storageengine.RecordStore, rules []catalog.ReferenceRule, enforcer ReferenceEnforcer, t *txn.Transaction) *Delete {
	return &Delete{child: child, ws: ws, store: store, rules: rules, enforcer: enforcer, t: t}
}

func (d *Delete) Work() (WorkingSetID, StageState, error) {
	childID, state, err := d.child.Work()
	if state != StateAdvanced {
		return childID, state, err
	}

	member := d.ws.Get(childID)
	if member == nil || member.Doc == nil {
		return Invalid, StateNeedTime, nil
	}

	if len(d.rules) > 0 && d.enforcer != nil {
		if err := d.enforcer.Enforce(d.rules, member.Doc, d.t); err != nil {
			return Invalid, StateFailure, err
		}
	}

	recordID := member.RecordId
	previous := member.Doc
	if err := d.store.Delete(recordID); err != nil {
		return Invalid, StateNeedYield, nil
	}

	d.t.RegisterChange(
		func() {},
		func() { d.store.InsertAt(recordID, previous) },
	)

	d.deleted++
	return childID, StateAdvanced, nil
}

func (d *Delete) SaveState()                  { d.child.SaveState() }
func (d *Delete) RestoreState() (bool, error) { return d.child.RestoreState() }
func (d *Delete) Children() []Stage           { return []Stage{d.child} }
