package exec

import (
	"quelldb/internal/expr"
	"quelldb/internal/sql"
	"quelldb/internal/types"
)

// NestedLoopJoin materializes its right side once in Open, then for each
// left row scans the materialized right rows for matches. It is the only
// join the executor uses for LEFT and CROSS joins, and the fallback for
// any INNER join whose predicate is not a plain equality.
type NestedLoopJoin struct {
	left, right Operator
	kind        sql.JoinKind
	predicate   *expr.Node
	schema      RowSchema

	rightRows  []Row
	leftRow    Row
	leftValid  bool
	rightPos   int
	leftMatched bool
	nullRight  []types.Value
}

// NewNestedLoopJoin builds a NestedLoopJoin of left and right. predicate
// is nil for a CROSS join.
func NewNestedLoopJoin(left, right Operator, kind sql.JoinKind, predicate *expr.Node) *NestedLoopJoin {
	return &NestedLoopJoin{
		left: left, right: right, kind: kind, predicate: predicate,
		schema: Concat(left.Schema(), right.Schema()),
	}
}

func (j *NestedLoopJoin) Schema() RowSchema { return j.schema }

func (j *NestedLoopJoin) Open() error {
	if err := j.left.Open(); err != nil {
		return err
	}
	if err := j.right.Open(); err != nil {
		return err
	}
	j.rightRows = nil
	for {
		row, ok, err := j.right.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		j.rightRows = append(j.rightRows, row)
	}
	j.nullRight = make([]types.Value, len(j.right.Schema()))
	for i := range j.nullRight {
		j.nullRight[i] = types.NullValue()
	}
	j.leftValid = false
	j.rightPos = 0
	return nil
}

func (j *NestedLoopJoin) Next() (Row, bool, error) {
	for {
		if !j.leftValid {
			row, ok, err := j.left.Next()
			if err != nil || !ok {
				return Row{}, false, err
			}
			j.leftRow = row
			j.leftValid = true
			j.rightPos = 0
			j.leftMatched = false
		}

		for j.rightPos < len(j.rightRows) {
			rightRow := j.rightRows[j.rightPos]
			j.rightPos++

			combined := append(cloneValues(j.leftRow.Values), rightRow.Values...)
			if j.predicate != nil {
				v, err := expr.Eval(j.predicate, NewRowEnv(j.schema, Row{Values: combined}))
				if err != nil {
					return Row{}, false, err
				}
				if !v.AsBool() {
					continue
				}
			}
			j.leftMatched = true
			return Row{Values: combined}, true, nil
		}

		// Right side exhausted for this left row.
		unmatched := j.kind == sql.LeftJoin && !j.leftMatched
		j.leftValid = false
		if unmatched {
			combined := append(cloneValues(j.leftRow.Values), j.nullRight...)
			return Row{Values: combined}, true, nil
		}
	}
}

func (j *NestedLoopJoin) Close() error {
	if err := j.left.Close(); err != nil {
		return err
	}
	return j.right.Close()
}

// HashJoin implements an inner equi-join: it builds a hash multimap over
// the right side keyed by HashRightKey's value and probes it once per
// left row.
type HashJoin struct {
	left, right       Operator
	leftKey, rightKey *expr.Node
	schema            RowSchema

	buckets map[string][]Row

	leftRow   Row
	leftValid bool
	matches   []Row
	matchPos  int
}

// NewHashJoin builds a HashJoin of left and right on leftKey = rightKey.
func NewHashJoin(left, right Operator, leftKey, rightKey *expr.Node) *HashJoin {
	return &HashJoin{
		left: left, right: right, leftKey: leftKey, rightKey: rightKey,
		schema: Concat(left.Schema(), right.Schema()),
	}
}

func (j *HashJoin) Schema() RowSchema { return j.schema }

func (j *HashJoin) Open() error {
	if err := j.left.Open(); err != nil {
		return err
	}
	if err := j.right.Open(); err != nil {
		return err
	}
	j.buckets = make(map[string][]Row)
	rightSchema := j.right.Schema()
	for {
		row, ok, err := j.right.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		v, err := expr.Eval(j.rightKey, NewRowEnv(rightSchema, row))
		if err != nil {
			return err
		}
		key := v.CanonicalString()
		j.buckets[key] = append(j.buckets[key], row)
	}
	j.leftValid = false
	return nil
}

func (j *HashJoin) Next() (Row, bool, error) {
	leftSchema := j.left.Schema()
	for {
		if !j.leftValid || j.matchPos >= len(j.matches) {
			row, ok, err := j.left.Next()
			if err != nil || !ok {
				return Row{}, false, err
			}
			v, err := expr.Eval(j.leftKey, NewRowEnv(leftSchema, row))
			if err != nil {
				return Row{}, false, err
			}
			j.leftRow = row
			j.matches = j.buckets[v.CanonicalString()]
			j.matchPos = 0
			j.leftValid = true
			continue
		}
		rightRow := j.matches[j.matchPos]
		j.matchPos++
		combined := append(cloneValues(j.leftRow.Values), rightRow.Values...)
		return Row{Values: combined}, true, nil
	}
}

func (j *HashJoin) Close() error {
	if err := j.left.Close(); err != nil {
		return err
	}
	return j.right.Close()
}
