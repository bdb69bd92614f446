package catalog

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/kartikbazzad/bundoc-core/internal/util"
)

// OnDelete is the cascade policy attached to a ReferenceRule.
type OnDelete string

const (
	OnDeleteRestrict OnDelete = "restrict"
	OnDeleteSetNull  OnDelete = "set_null"
	OnDeleteCascade  OnDelete = "cascade"
)

// ReferenceRule is a schema-declared foreign-key-like reference from one
// field of a source collection to the "_id" of a target collection,
// consulted by the executor's Delete stage before it removes a document
// the reference points at. This supplements spec.md's core operation
// set: the original system this engine is modeled on enforces referential
// integrity at the application layer, but the teacher repo carried a
// schema-declared version of it worth keeping.
type ReferenceRule struct {
	SourceCollection string
	SourceField      string
	TargetCollection string
	TargetField      string
	OnDelete         OnDelete
}

// ParseReferenceRules extracts every "x-bundoc-ref"-annotated property
// from a JSON Schema source string into its ReferenceRules.
func ParseReferenceRules(sourceCollection, schemaJSON string) ([]ReferenceRule, error) {
	if schemaJSON == "" {
		return nil, nil
	}

	var root map[string]interface{}
	if err := json.Unmarshal([]byte(schemaJSON), &root); err != nil {
		return nil, util.Wrap(util.KindInvalidOptions, "catalog.ParseReferenceRules", "schema is not valid JSON", err)
	}

	propsRaw, ok := root["properties"]
	if !ok {
		return nil, nil
	}
	props, ok := propsRaw.(map[string]interface{})
	if !ok {
		return nil, util.New(util.KindInvalidOptions, "catalog.ParseReferenceRules", "schema.properties must be an object")
	}

	var rules []ReferenceRule
	for fieldName, defRaw := range props {
		defMap, ok := defRaw.(map[string]interface{})
		if !ok {
			continue
		}
		refRaw, hasRef := defMap["x-bundoc-ref"]
		if !hasRef {
			continue
		}
		refMap, ok := refRaw.(map[string]interface{})
		if !ok {
			return nil, util.New(util.KindInvalidOptions, "catalog.ParseReferenceRules", fmt.Sprintf("x-bundoc-ref for field %s must be an object", fieldName))
		}

		targetCollection, ok := refMap["collection"].(string)
		if !ok || targetCollection == "" {
			return nil, util.New(util.KindInvalidOptions, "catalog.ParseReferenceRules", fmt.Sprintf("x-bundoc-ref.collection is required for field %s", fieldName))
		}

		targetField := "_id"
		if v, ok := refMap["field"].(string); ok && v != "" {
			targetField = v
		}
		if targetField != "_id" {
			return nil, util.New(util.KindInvalidOptions, "catalog.ParseReferenceRules", fmt.Sprintf("x-bundoc-ref.field for field %s must be _id", fieldName))
		}

		onDelete := OnDeleteSetNull
		if v, ok := refMap["on_delete"].(string); ok && v != "" {
			onDelete = OnDelete(v)
		}
		if !isValidOnDelete(onDelete) {
			return nil, util.New(util.KindInvalidOptions, "catalog.ParseReferenceRules", fmt.Sprintf("invalid on_delete %q for field %s", onDelete, fieldName))
		}

		rules = append(rules, ReferenceRule{
			SourceCollection: sourceCollection,
			SourceField:      fieldName,
			TargetCollection: targetCollection,
			TargetField:      targetField,
			OnDelete:         onDelete,
		})
	}
	return rules, nil
}

func isValidOnDelete(v OnDelete) bool {
	switch v {
	case OnDeleteRestrict, OnDeleteSetNull, OnDeleteCascade:
		return true
	default:
		return false
	}
}

// NormalizeReferenceValue coerces a reference field's value to the string
// form used to look it up against a target's "_id".
func NormalizeReferenceValue(v interface{}) (string, error) {
	switch typed := v.(type) {
	case string:
		if typed == "" {
			return "", util.New(util.KindInvalidOptions, "catalog.NormalizeReferenceValue", "empty reference value")
		}
		return typed, nil
	case float64, float32, int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8, bool:
		return fmt.Sprintf("%v", typed), nil
	case nil:
		return "", nil
	default:
		return "", util.New(util.KindInvalidOptions, "catalog.NormalizeReferenceValue", "reference field must be a scalar")
	}
}

// SchemaEqual reports whether two JSON Schema source strings are
// equivalent for the purpose of a validator-override check (same schema
// modulo key order and whitespace).
func SchemaEqual(a, b string) (bool, error) {
	if a == b {
		return true, nil
	}
	var va, vb interface{}
	if err := json.Unmarshal([]byte(a), &va); err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(b), &vb); err != nil {
		return false, err
	}
	return reflect.DeepEqual(va, vb), nil
}
