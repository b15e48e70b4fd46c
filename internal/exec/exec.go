// Package exec implements the pull-based physical operator tree: each
// physical.Node lowers to an Operator that produces rows one at a time
// through Open/Next/Close, mirroring the teacher's scan/eval pull style
// rather than materializing whole relations up front except where an
// operator's algorithm requires it (sorting, hashing, grouping).
package exec

import (
	"strings"

	"quelldb/internal/expr"
	"quelldb/internal/types"
)

// ColumnSchema names one output position: Table is the binding a
// qualified reference must match ("" once a projection or aggregate has
// stripped it), Name is the column's own name.
type ColumnSchema struct {
	Table string
	Name  string
}

// RowSchema describes the shape of every Row an operator produces.
type RowSchema []ColumnSchema

// Concat returns the schema formed by placing b's columns after a's,
// used by join operators to combine both sides' output shapes.
func Concat(a, b RowSchema) RowSchema {
	out := make(RowSchema, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// IndexOf returns the position of the first column in s matching table
// (if non-empty) and column, or -1.
func (s RowSchema) IndexOf(table, column string) int {
	for i, cs := range s {
		if cs.Name != column {
			continue
		}
		if table != "" && cs.Table != table {
			continue
		}
		return i
	}
	return -1
}

// Row is one tuple of values, positionally aligned with its producing
// operator's RowSchema. Slot is populated only by operators that read
// directly off a single base table (TableScan, IndexScan); it lets the
// mutating statements (UPDATE, DELETE) find their way back to the
// physical record a row came from. Operators that pass input rows through
// unchanged (Filter, Distinct, Sort, Limit) keep it; operators that build
// new rows (joins, projections, aggregates, Alias) drop it.
type Row struct {
	Values []types.Value
	Slot   *types.Slot
}

// Operator is one node of the physical operator tree.
type Operator interface {
	Schema() RowSchema
	Open() error
	Next() (Row, bool, error)
	Close() error
}

// rowEnv adapts a Row, given the schema it was produced against, to
// expr.Env so the expression engine can resolve column references
// without knowing anything about row layout.
type rowEnv struct {
	schema RowSchema
	row    Row
}

// NewRowEnv builds an expr.Env over one row.
func NewRowEnv(schema RowSchema, row Row) expr.Env {
	return &rowEnv{schema: schema, row: row}
}

func (e *rowEnv) Get(table, column string) (types.Value, bool) {
	i := e.schema.IndexOf(table, column)
	if i < 0 {
		return types.NullValue(), false
	}
	return e.row.Values[i], true
}

// rowKey renders every value of row as a single comparable string, used
// by Distinct and by Aggregate's grouping.
func rowKey(values []types.Value) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		if v.IsNull() {
			b.WriteByte('\x00')
			continue
		}
		b.WriteString(v.CanonicalString())
	}
	return b.String()
}

func cloneValues(v []types.Value) []types.Value {
	out := make([]types.Value, len(v))
	copy(out, v)
	return out
}
