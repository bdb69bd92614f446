package predicate

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// FilterEngine compiles and evaluates CEL expressions against a document,
// the domain-stack wiring point for github.com/google/cel-go: an
// IndexDescriptor's PartialFilterExpression (spec.md §3) is a CEL
// expression over the single "document" variable, evaluated once per
// candidate record by an IndexScan configured with WithPartialFilter. It
// covers arbitrary boolean expressions rather than the $and/$or/comparison
// operator subset Parse understands; the Filter stage uses only that
// residual-filter AST, not this engine.
type FilterEngine struct {
	env      *cel.Env
	prgCache sync.Map // map[string]cel.Program
}

// NewFilterEngine builds a FilterEngine whose expressions see a single
// "document" variable bound to the candidate record.
func NewFilterEngine() (*FilterEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("document", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build CEL environment: %w", err)
	}
	return &FilterEngine{env: env}, nil
}

// compile resolves expression to a cel.Program, reusing a cached
// compilation when one already exists.
func (fe *FilterEngine) compile(expression string) (cel.Program, error) {
	if cached, ok := fe.prgCache.Load(expression); ok {
		return cached.(cel.Program), nil
	}
	ast, issues := fe.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("partial filter expression compile error: %w", issues.Err())
	}
	prg, err := fe.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("partial filter expression program error: %w", err)
	}
	fe.prgCache.Store(expression, prg)
	return prg, nil
}

// Validate compiles expression without evaluating it, so
// catalog.CreateIndex can reject a malformed PartialFilterExpression at
// index-creation time rather than the first time an IndexScan reaches it.
func (fe *FilterEngine) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := fe.compile(expression)
	return err
}

// Evaluate compiles (or reuses a cached compilation of) expression and
// runs it against doc. An empty expression always matches, matching the
// convention that an index with no PartialFilterExpression applies to
// every document.
func (fe *FilterEngine) Evaluate(expression string, doc map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil
	}

	prg, err := fe.compile(expression)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]interface{}{"document": doc})
	if err != nil {
		return false, fmt.Errorf("partial filter expression eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("partial filter expression must evaluate to a boolean")
	}
	return result, nil
}
