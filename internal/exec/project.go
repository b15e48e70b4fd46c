package exec

import (
	"quelldb/internal/expr"
	"quelldb/internal/plan"
	"quelldb/internal/types"
)

// Projection evaluates a fixed list of output expressions over each row
// of input, expanding any Star items against input's schema at
// construction time.
type Projection struct {
	input  Operator
	exprs  []*expr.Node // nil entries are resolved Star passthroughs
	passes []int        // input column index, used when exprs[i] is nil
	schema RowSchema
}

// NewProjection builds a Projection over input, resolving SELECT * and
// table.* against input.Schema().
func NewProjection(input Operator, items []plan.ProjectItem) *Projection {
	in := input.Schema()
	p := &Projection{input: input}
	for _, item := range items {
		if item.Star {
			for i, cs := range in {
				if item.Table != "" && cs.Table != item.Table {
					continue
				}
				p.exprs = append(p.exprs, nil)
				p.passes = append(p.passes, i)
				p.schema = append(p.schema, cs)
			}
			continue
		}
		p.exprs = append(p.exprs, item.Expr)
		p.passes = append(p.passes, -1)
		p.schema = append(p.schema, ColumnSchema{Name: item.Output})
	}
	return p
}

func (p *Projection) Schema() RowSchema { return p.schema }

func (p *Projection) Open() error { return p.input.Open() }

func (p *Projection) Next() (Row, bool, error) {
	row, ok, err := p.input.Next()
	if err != nil || !ok {
		return Row{}, false, err
	}
	env := NewRowEnv(p.input.Schema(), row)
	out := make([]types.Value, len(p.exprs))
	for i, e := range p.exprs {
		if e == nil {
			out[i] = row.Values[p.passes[i]]
			continue
		}
		v, err := expr.Eval(e, env)
		if err != nil {
			return Row{}, false, err
		}
		out[i] = v
	}
	return Row{Values: out}, true, nil
}

func (p *Projection) Close() error { return p.input.Close() }

// Distinct suppresses rows whose full value set duplicates one already
// seen, materializing a seen-set as it goes.
type Distinct struct {
	input Operator
	seen  map[string]bool
}

// NewDistinct builds a Distinct over input.
func NewDistinct(input Operator) *Distinct { return &Distinct{input: input} }

func (d *Distinct) Schema() RowSchema { return d.input.Schema() }

func (d *Distinct) Open() error {
	d.seen = make(map[string]bool)
	return d.input.Open()
}

func (d *Distinct) Next() (Row, bool, error) {
	for {
		row, ok, err := d.input.Next()
		if err != nil || !ok {
			return Row{}, false, err
		}
		key := rowKey(row.Values)
		if d.seen[key] {
			continue
		}
		d.seen[key] = true
		return row, true, nil
	}
}

func (d *Distinct) Close() error { return d.input.Close() }
