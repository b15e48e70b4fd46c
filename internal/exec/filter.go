package exec

import "quelldb/internal/expr"

// Filter yields only the rows of input for which predicate evaluates
// truthy.
type Filter struct {
	input     Operator
	predicate *expr.Node
}

// NewFilter builds a Filter over input.
func NewFilter(input Operator, predicate *expr.Node) *Filter {
	return &Filter{input: input, predicate: predicate}
}

func (f *Filter) Schema() RowSchema { return f.input.Schema() }

func (f *Filter) Open() error { return f.input.Open() }

func (f *Filter) Next() (Row, bool, error) {
	for {
		row, ok, err := f.input.Next()
		if err != nil || !ok {
			return Row{}, false, err
		}
		v, err := expr.Eval(f.predicate, NewRowEnv(f.input.Schema(), row))
		if err != nil {
			return Row{}, false, err
		}
		if v.AsBool() {
			return row, true, nil
		}
	}
}

func (f *Filter) Close() error { return f.input.Close() }
