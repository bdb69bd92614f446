// Package predicate implements the residual filter expression AST a
// Filter or Fetch stage evaluates against a fully materialized document
// (spec.md's Filter/Fetch stages: "optionally applies a residual filter
// expression").
package predicate

import "fmt"

// Operator is a comparison operator recognized inside a field predicate.
type Operator string

const (
	OpEq  Operator = "$eq"
	OpNe  Operator = "$ne"
	OpGt  Operator = "$gt"
	OpGte Operator = "$gte"
	OpLt  Operator = "$lt"
	OpLte Operator = "$lte"
	OpIn  Operator = "$in"
)

// Node is the common interface for every predicate AST node.
type Node interface {
	Matches(doc map[string]interface{}) bool
}

// FieldNode tests one field of the document against Operator/Value.
type FieldNode struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// LogicalNode combines children with $and/$or.
type LogicalNode struct {
	Operator string // "$and" or "$or"
	Children []Node
}

// Parse converts a Mongo-style query map, e.g. {"age": {"$gt": 25},
// "status": "active"}, into a predicate tree.
func Parse(query map[string]interface{}) (Node, error) {
	var nodes []Node

	for key, val := range query {
		if key == "$and" || key == "$or" {
			list, ok := val.([]interface{})
			if !ok {
				return nil, fmt.Errorf("value for %s must be a list", key)
			}
			children := make([]Node, 0, len(list))
			for _, item := range list {
				subMap, ok := item.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("element of %s must be an object", key)
				}
				subNode, err := Parse(subMap)
				if err != nil {
					return nil, err
				}
				children = append(children, subNode)
			}
			nodes = append(nodes, &LogicalNode{Operator: key, Children: children})
			continue
		}

		if valMap, ok := val.(map[string]interface{}); ok {
			for op, opVal := range valMap {
				switch Operator(op) {
				case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn:
					nodes = append(nodes, &FieldNode{Field: key, Operator: Operator(op), Value: opVal})
				default:
					return nil, fmt.Errorf("unknown operator: %s", op)
				}
			}
		} else {
			nodes = append(nodes, &FieldNode{Field: key, Operator: OpEq, Value: val})
		}
	}

	return &LogicalNode{Operator: "$and", Children: nodes}, nil
}

// Matches implements Node for FieldNode: a missing field never matches,
// even against $ne (consistent with the rest of the operator set's
// existence-requiring semantics).
func (n *FieldNode) Matches(doc map[string]interface{}) bool {
	val, exists := doc[n.Field]
	if !exists {
		return false
	}
	return compare(val, n.Operator, n.Value)
}

// Matches implements Node for LogicalNode.
func (n *LogicalNode) Matches(doc map[string]interface{}) bool {
	switch n.Operator {
	case "$and":
		for _, child := range n.Children {
			if !child.Matches(doc) {
				return false
			}
		}
		return true
	case "$or":
		for _, child := range n.Children {
			if child.Matches(doc) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Compare evaluates a single operator/value pair against actual, exposing
// the same comparison semantics the residual filter uses to callers
// outside this package.
func Compare(actual interface{}, op Operator, expected interface{}) bool {
	return compare(actual, op, expected)
}

func compare(actual interface{}, op Operator, expected interface{}) bool {
	switch op {
	case OpEq:
		return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
	case OpNe:
		return fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", expected)
	case OpGt:
		return compareNumbers(actual, expected) > 0
	case OpGte:
		return compareNumbers(actual, expected) >= 0
	case OpLt:
		return compareNumbers(actual, expected) < 0
	case OpLte:
		return compareNumbers(actual, expected) <= 0
	case OpIn:
		list, ok := expected.([]interface{})
		if !ok {
			return false
		}
		for _, item := range list {
			if fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", item) {
				return true
			}
		}
		return false
	}
	return false
}

// CompareValues returns -1/0/1 for a<b / a==b / a>b, for Sort.
func CompareValues(a, b interface{}) int {
	return compareNumbers(a, b)
}

func compareNumbers(a, b interface{}) int {
	f1, ok1 := toFloat(a)
	f2, ok2 := toFloat(b)
	if ok1 && ok2 {
		switch {
		case f1 > f2:
			return 1
		case f1 < f2:
			return -1
		default:
			return 0
		}
	}
	s1, s2 := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case s1 > s2:
		return 1
	case s1 < s2:
		return -1
	default:
		return 0
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch i := v.(type) {
	case float64:
		return i, true
	case float32:
		return float64(i), true
	case int:
		return float64(i), true
	case int64:
		return float64(i), true
	}
	return 0, false
}
