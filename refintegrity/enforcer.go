// Package refintegrity implements the exec.ReferenceEnforcer the Delete
// stage consults before removing a document: restrict/cascade/set_null
// against every other collection a schema's "x-bundoc-ref" properties
// point back at this one. The teacher repo parses these rules
// (references.go's parseReferenceRules) but never actually enforces
// them anywhere in Collection.Delete — this package is the missing
// enforcement half, built the way the teacher resolves collections and
// walks a RecordStore elsewhere in the codebase.
package refintegrity

import (
	"fmt"

	"github.com/kartikbazzad/bundoc-core/catalog"
	"github.com/kartikbazzad/bundoc-core/internal/util"
	"github.com/kartikbazzad/bundoc-core/storageengine"
	"github.com/kartikbazzad/bundoc-core/txn"
)

// Enforcer resolves a ReferenceRule's source collection through the
// catalog and walks its RecordStore looking for documents that still
// point at the document about to be deleted.
type Enforcer struct {
	cat *catalog.Catalog
}

// New constructs an Enforcer backed by cat.
func New(cat *catalog.Catalog) *Enforcer {
	return &Enforcer{cat: cat}
}

// Enforce applies every rule in rules against doc (the document about to
// be removed from its collection), in the order spec.md's cascade/
// restrict/set_null expects: a restrict violation fails the whole
// operation before any cascade/set_null side effect is committed.
func (e *Enforcer) Enforce(rules []catalog.ReferenceRule, doc storageengine.Document, t *txn.Transaction) error {
	targetID, ok := doc.GetID()
	if !ok {
		return nil
	}
	targetIDStr, err := catalog.NormalizeReferenceValue(string(targetID))
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if err := e.enforceOne(rule, targetIDStr, t); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enforcer) enforceOne(rule catalog.ReferenceRule, targetID string, t *txn.Transaction) error {
	ns, err := catalog.ParseNamespace(rule.SourceCollection)
	if err != nil {
		// SourceCollection may already be a bare collection name sharing
		// the target's database; callers that build rule sets from a
		// single database's schemas pass it unqualified.
		ns = catalog.Namespace{Database: "", Collection: rule.SourceCollection}
	}
	desc, err := e.cat.GetCollection(ns)
	if err != nil {
		// The referencing collection doesn't exist (yet, or anymore):
		// nothing to enforce.
		return nil
	}
	store, err := e.cat.RecordStoreFor(desc)
	if err != nil {
		return nil
	}

	cursor, err := store.NewCursor(storageengine.Forward)
	if err != nil {
		return util.Wrap(util.KindOperationFailed, "refintegrity.Enforcer.enforceOne", "failed to scan referencing collection", err)
	}

	var referrers []referrer
	for {
		id, srcDoc, ok, err := cursor.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		val, exists := srcDoc[rule.SourceField]
		if !exists {
			continue
		}
		normalized, err := catalog.NormalizeReferenceValue(val)
		if err != nil || normalized != targetID {
			continue
		}
		referrers = append(referrers, referrer{id: id, doc: srcDoc})
	}

	if len(referrers) == 0 {
		return nil
	}

	switch rule.OnDelete {
	case catalog.OnDeleteRestrict:
		return util.New(util.KindIllegalOperation, "refintegrity.Enforcer.enforceOne",
			fmt.Sprintf("restrict violation: %d document(s) in %s still reference %s=%s", len(referrers), rule.SourceCollection, rule.SourceField, targetID))

	case catalog.OnDeleteCascade:
		for _, r := range referrers {
			previous := r.doc
			if err := store.Delete(r.id); err != nil {
				return err
			}
			recordID, prev := r.id, previous
			t.RegisterChange(func() {}, func() { store.InsertAt(recordID, prev) })
		}
		return nil

	case catalog.OnDeleteSetNull:
		for _, r := range referrers {
			previous := r.doc.Clone()
			updated := r.doc.Clone()
			updated[rule.SourceField] = nil
			if err := store.Update(r.id, updated); err != nil {
				return err
			}
			recordID, prev := r.id, previous
			t.RegisterChange(func() {}, func() { store.Update(recordID, prev) })
		}
		return nil

	default:
		return util.New(util.KindInvalidOptions, "refintegrity.Enforcer.enforceOne", "unknown on_delete policy "+string(rule.OnDelete))
	}
}

type referrer struct {
	id  storageengine.RecordId
	doc storageengine.Document
}
