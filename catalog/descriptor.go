package catalog

import (
	"github.com/xeipuuv/gojsonschema"

	"github.com/kartikbazzad/bundoc-core/internal/util"
)

// AccessMethod names an index's underlying implementation (spec.md §3
// IndexDescriptor). Only btree is backed by a real storageengine.BPlusTree
// in this engine; the others are accepted for descriptor compatibility
// but rejected at createIndexes time.
type AccessMethod string

const (
	AccessMethodBTree    AccessMethod = "btree"
	AccessMethodHashed   AccessMethod = "hashed"
	AccessMethodText     AccessMethod = "text"
	AccessMethod2D       AccessMethod = "2d"
	AccessMethod2DSphere AccessMethod = "2dsphere"
)

// IndexDescriptor is one index on a collection (spec.md §3).
type IndexDescriptor struct {
	Name                   string
	KeyPattern             map[string]int
	AccessMethod           AccessMethod
	Unique                 bool
	Sparse                 bool
	PartialFilterExpression string // CEL expression; empty means unfiltered
	Collation              string
	Version                int
}

// IsIDIndex reports whether this is the mandatory {_id:1} unique index.
func (d *IndexDescriptor) IsIDIndex() bool {
	return d.Name == "_id_"
}

// CollectionOptions mirrors spec.md §3 CollectionDescriptor.options.
type CollectionOptions struct {
	Capped        bool
	MaxSize       int64
	MaxDocs       int64
	IndexDefaults map[string]interface{}
	ValidatorJSON string // raw JSON Schema source, compiled into Validator
	Collation     string
	Temp          bool
	ViewOn        string // non-empty marks this descriptor as a view definition

	Validator *gojsonschema.Schema `json:"-"`
}

// compileValidator parses and compiles ValidatorJSON into Validator, the
// domain-stack wiring point for github.com/xeipuuv/gojsonschema: every
// document the executor's Update stage writes is checked against it before
// the storage engine is touched; inserts are not checked (spec.md §4.3 supplemented
// feature — document validation).
func (o *CollectionOptions) compileValidator() error {
	if o.ValidatorJSON == "" {
		o.Validator = nil
		return nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(o.ValidatorJSON))
	if err != nil {
		return util.Wrap(util.KindInvalidOptions, "catalog.CollectionOptions.compileValidator", "invalid validator schema", err)
	}
	o.Validator = schema
	return nil
}

// ValidateDocument checks doc (already marshaled to JSON bytes by the
// caller) against the compiled Validator, if one is set.
func (o *CollectionOptions) ValidateDocument(docJSON []byte) error {
	if o.Validator == nil {
		return nil
	}
	result, err := o.Validator.Validate(gojsonschema.NewBytesLoader(docJSON))
	if err != nil {
		return util.Wrap(util.KindDocumentValidationFailure, "catalog.CollectionOptions.ValidateDocument", "schema evaluation failed", err)
	}
	if !result.Valid() {
		msg := "document failed schema validation"
		if errs := result.Errors(); len(errs) > 0 {
			msg = errs[0].String()
		}
		return util.New(util.KindDocumentValidationFailure, "catalog.CollectionOptions.ValidateDocument", msg)
	}
	return nil
}

// State is a collection's visible lifecycle state (spec.md §4.3).
type State int

const (
	StateAbsent State = iota
	StateCreating
	StateActive
	StateDropPending
	StateGone
)

func (s State) String() string {
	switch s {
	case StateCreating:
		return "Creating"
	case StateActive:
		return "Active"
	case StateDropPending:
		return "DropPending"
	case StateGone:
		return "Gone"
	default:
		return "Absent"
	}
}

// CollectionDescriptor is the catalog's record of one collection
// (spec.md §3). The catalog exclusively owns it; executors hold
// non-owning references validated against Generation.
type CollectionDescriptor struct {
	UUID       CollectionUUID
	Namespace  Namespace
	Options    CollectionOptions
	Indexes    map[string]*IndexDescriptor
	State      State
	Generation uint64 // bumped on every structural mutation, for invalidation
}
