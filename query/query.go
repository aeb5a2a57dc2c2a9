// Package query implements a CEL-based predicate evaluated over an
// index's rows: a compile-once/Eval-many evaluator adapted from a
// pairwise field-comparison expression to a single-row filter predicate
// ("row.Total > 100").
package query

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"

	"github.com/andrewcoll/yessql"
	"github.com/andrewcoll/yessql/session"
)

// Predicate is a compiled CEL boolean expression evaluated against one
// decoded index row at a time.
type Predicate struct {
	expression string
	program    cel.Program
}

// NewPredicate compiles expression, which must reference the row under
// evaluation as the "row" variable, e.g. `row.Total > 100 && row.Status ==
// "open"`.
func NewPredicate(expression string) (*Predicate, error) {
	if expression == "" {
		return nil, fmt.Errorf("query: expression must not be empty")
	}
	env, err := cel.NewEnv(cel.Variable("row", cel.MapType(cel.StringType, cel.AnyType)))
	if err != nil {
		return nil, fmt.Errorf("query: error creating CEL environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("query: error compiling expression: %w", issues.Err())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("query: error creating program: %w", err)
	}
	return &Predicate{expression: expression, program: prog}, nil
}

// Matches evaluates the predicate against row, which is first flattened to a
// map[string]any of its exported fields for CEL to inspect.
func (p *Predicate) Matches(row any) (bool, error) {
	out, _, err := p.program.Eval(map[string]any{"row": toFieldMap(row)})
	if err != nil {
		return false, fmt.Errorf("query: error evaluating %q: %w", p.expression, err)
	}
	nv, err := out.ConvertToNative(reflect.TypeOf(true))
	if err != nil {
		return false, fmt.Errorf("query: predicate %q did not evaluate to a bool: %w", p.expression, err)
	}
	b, ok := nv.(bool)
	if !ok {
		return false, fmt.Errorf("query: predicate %q did not evaluate to a bool", p.expression)
	}
	return b, nil
}

func toFieldMap(row any) map[string]any {
	v := reflect.ValueOf(row)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	out := map[string]any{}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		out[f.Name] = v.Field(i).Interface()
	}
	return out
}

// Index runs QueryIndex<TIndex>: it scans every row of the given index type
// through handle's executor and transaction, and returns the rows matching
// pred in the order ScanIndex returned them. It does not flush the session
// itself; handle is expected to come from Session.Query, which does.
func Index[I any](ctx context.Context, s *session.Session, handle *session.QueryHandle, pred *Predicate) ([]*I, error) {
	var sample I
	indexTypeName := yessql.SimplifiedTypeName(&sample)

	rows, err := handle.Executor.ScanIndex(ctx, handle.Tx, indexTypeName, &sample)
	if err != nil {
		return nil, yessql.Backend(err)
	}

	var matched []*I
	for _, row := range rows {
		ok, err := pred.Matches(row)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		typed, ok := row.(*I)
		if !ok {
			return nil, yessql.InvalidOperation("query: index row %T is not %T", row, sample)
		}
		matched = append(matched, typed)
	}
	return matched, nil
}
