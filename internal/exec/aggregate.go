package exec

import (
	"fmt"

	"quelldb/internal/expr"
	"quelldb/internal/plan"
	"quelldb/internal/types"
	"quelldb/pkg/dberr"
)

// Aggregate groups input by a set of key expressions (possibly none, for
// a single implicit group) and computes a fixed list of aggregate
// expressions per group. It materializes input fully in Open, since
// grouping cannot be streamed without knowing every row's key.
type Aggregate struct {
	input      Operator
	groupKeys  []*expr.Node
	aggregates []plan.Aggregate
	schema     RowSchema

	rows []Row
	pos  int
}

// NewAggregate builds an Aggregate over input.
func NewAggregate(input Operator, groupKeys []*expr.Node, aggregates []plan.Aggregate) *Aggregate {
	schema := make(RowSchema, 0, len(groupKeys)+len(aggregates))
	for i, k := range groupKeys {
		schema = append(schema, ColumnSchema{Name: groupKeyName(k, i)})
	}
	for _, a := range aggregates {
		schema = append(schema, ColumnSchema{Name: a.Output})
	}
	return &Aggregate{input: input, groupKeys: groupKeys, aggregates: aggregates, schema: schema}
}

// groupKeyName labels a GROUP BY output column after the column it
// groups on, when it is a plain reference, falling back to a positional
// name for computed group keys.
func groupKeyName(k *expr.Node, i int) string {
	if k.Kind == expr.KindColumnRef {
		return k.Column
	}
	return fmt.Sprintf("group_key_%d", i)
}

func (a *Aggregate) Schema() RowSchema { return a.schema }

func (a *Aggregate) Open() error {
	if err := a.input.Open(); err != nil {
		return err
	}

	inSchema := a.input.Schema()
	type group struct {
		keyValues []types.Value
		rows      []Row
	}
	order := make([]string, 0)
	groups := make(map[string]*group)

	for {
		row, ok, err := a.input.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		keyValues := make([]types.Value, len(a.groupKeys))
		for i, k := range a.groupKeys {
			v, err := expr.Eval(k, NewRowEnv(inSchema, row))
			if err != nil {
				return err
			}
			keyValues[i] = v
		}
		key := rowKey(keyValues)
		g, ok := groups[key]
		if !ok {
			g = &group{keyValues: keyValues}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, row)
	}

	// No GROUP BY and no input rows still produces exactly one implicit
	// group, so that e.g. COUNT(*) over an empty table reports 0.
	if len(a.groupKeys) == 0 && len(order) == 0 {
		order = append(order, "")
		groups[""] = &group{}
	}

	a.rows = make([]Row, 0, len(order))
	for _, key := range order {
		g := groups[key]
		out := make([]types.Value, 0, len(a.groupKeys)+len(a.aggregates))
		out = append(out, g.keyValues...)
		for _, agg := range a.aggregates {
			v, err := computeAggregate(agg, inSchema, g.rows)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		a.rows = append(a.rows, Row{Values: out})
	}
	a.pos = 0
	return nil
}

func (a *Aggregate) Next() (Row, bool, error) {
	if a.pos >= len(a.rows) {
		return Row{}, false, nil
	}
	row := a.rows[a.pos]
	a.pos++
	return row, true, nil
}

func (a *Aggregate) Close() error { return a.input.Close() }

func computeAggregate(agg plan.Aggregate, schema RowSchema, rows []Row) (types.Value, error) {
	if agg.Kind == plan.AggCount && agg.Star {
		return types.IntValue(int64(len(rows))), nil
	}

	var values []types.Value
	for _, row := range rows {
		v, err := expr.Eval(agg.Arg, NewRowEnv(schema, row))
		if err != nil {
			return types.Value{}, err
		}
		if v.IsNull() {
			continue
		}
		values = append(values, v)
	}

	switch agg.Kind {
	case plan.AggCount:
		return types.IntValue(int64(len(values))), nil
	case plan.AggSum:
		return sumValues(values)
	case plan.AggAvg:
		if len(values) == 0 {
			return types.NullValue(), nil
		}
		sum, err := sumValues(values)
		if err != nil {
			return types.Value{}, err
		}
		return types.DoubleValue(numericOf(sum) / float64(len(values))), nil
	case plan.AggMin:
		return extremeValue(values, -1)
	case plan.AggMax:
		return extremeValue(values, 1)
	default:
		return types.Value{}, dberr.New(dberr.LogicError, "unknown aggregate kind")
	}
}

func sumValues(values []types.Value) (types.Value, error) {
	if len(values) == 0 {
		return types.IntValue(0), nil
	}
	useDouble := false
	var intSum int64
	var floatSum float64
	for _, v := range values {
		switch v.Kind {
		case types.KindInt:
			intSum += v.I
			floatSum += float64(v.I)
		case types.KindDouble:
			useDouble = true
			floatSum += v.D
		default:
			return types.Value{}, dberr.Newf(dberr.DomainError, "SUM requires numeric values, got %v", v.Kind)
		}
	}
	if useDouble {
		return types.DoubleValue(floatSum), nil
	}
	return types.IntValue(intSum), nil
}

func extremeValue(values []types.Value, favor int) (types.Value, error) {
	if len(values) == 0 {
		return types.NullValue(), nil
	}
	best := values[0]
	for _, v := range values[1:] {
		if types.Compare(v, best)*favor > 0 {
			best = v
		}
	}
	return best, nil
}

func numericOf(v types.Value) float64 {
	if v.Kind == types.KindInt {
		return float64(v.I)
	}
	return v.D
}
