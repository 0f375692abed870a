package dataset

import (
	"fmt"
	"math/rand"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL predicate over a row exposed as `row`, a
// map(string, string). Programs are safe for concurrent evaluation.
type Filter struct {
	expr string
	prg  cel.Program
}

// CompileFilter compiles expr, which must evaluate to a bool, e.g.
// `"City" in row && row["City"].matches("(?i)bangalore")`.
func CompileFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must return bool, got %v", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &Filter{expr: expr, prg: prg}, nil
}

func (flt *Filter) String() string {
	return flt.expr
}

// Match evaluates the filter against one row.
func (flt *Filter) Match(row map[string]string) (bool, error) {
	out, _, err := flt.prg.Eval(map[string]interface{}{"row": row})
	if err != nil {
		return false, err
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T", flt.expr, out.Value())
	}
	return matched, nil
}

// Where returns the rows of f that match flt.
func (f *Frame) Where(flt *Filter) (*Frame, error) {
	kept := make([]int, 0)
	for i := 0; i < f.Len(); i++ {
		ok, err := flt.Match(f.Row(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if ok {
			kept = append(kept, i)
		}
	}
	return f.Select(kept), nil
}

// Sample returns up to n rows chosen without replacement by a seeded shuffle.
func (f *Frame) Sample(n int, seed int64) *Frame {
	if n >= f.Len() {
		n = f.Len()
	}
	rnd := rand.New(rand.NewSource(seed))
	return f.Select(rnd.Perm(f.Len())[:n])
}
