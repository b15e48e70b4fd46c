package plan

import (
	"fmt"

	"quelldb/internal/expr"
	"quelldb/internal/sql"
	"quelldb/pkg/dberr"
)

// Build lowers a parsed SELECT statement into a logical plan tree,
// bottom-up: FROM first (scans and joins), then WHERE, then GROUP BY /
// aggregates, then HAVING, then the SELECT list projection, then
// DISTINCT, then ORDER BY, then LIMIT/OFFSET.
func Build(stmt *sql.SelectStmt) (*Node, error) {
	node, err := buildFrom(stmt.From)
	if err != nil {
		return nil, err
	}

	if stmt.Where != nil {
		node = &Node{Op: OpSelect, Input: node, Predicate: stmt.Where}
	}

	hasAggregates := false
	for _, item := range stmt.Items {
		if item.Func != nil {
			hasAggregates = true
		}
	}

	if len(stmt.GroupBy) > 0 || hasAggregates {
		aggs, err := buildAggregates(stmt.Items)
		if err != nil {
			return nil, err
		}
		node = &Node{Op: OpGroup, Input: node, GroupKeys: stmt.GroupBy, Aggregates: aggs}
		if stmt.Having != nil {
			node = &Node{Op: OpSelect, Input: node, Predicate: stmt.Having}
		}
	}

	items, err := buildProjectItems(stmt.Items)
	if err != nil {
		return nil, err
	}
	node = &Node{Op: OpProject, Input: node, Items: items}

	if stmt.Distinct {
		node = &Node{Op: OpDistinct, Input: node}
	}

	if len(stmt.OrderBy) > 0 {
		keys := make([]SortKey, len(stmt.OrderBy))
		for i, ob := range stmt.OrderBy {
			keys[i] = SortKey{Expr: ob.Expr, Desc: ob.Desc}
		}
		node = &Node{Op: OpSort, Input: node, SortKeys: keys}
	}

	if stmt.Limit != nil {
		node = &Node{Op: OpLimit, Input: node, Limit: stmt.Limit, Offset: stmt.Offset}
	}

	return node, nil
}

func buildFrom(ref sql.TableRef) (*Node, error) {
	switch t := ref.(type) {
	case sql.NamedTable:
		return &Node{Op: OpScan, Table: t.Name, Alias: t.Alias}, nil
	case sql.Subquery:
		inner, err := Build(t.Stmt)
		if err != nil {
			return nil, err
		}
		return &Node{Op: OpRename, Input: inner, NewName: t.Alias}, nil
	case sql.Join:
		left, err := buildFrom(t.Left)
		if err != nil {
			return nil, err
		}
		right, err := buildFrom(t.Right)
		if err != nil {
			return nil, err
		}
		if t.Kind == sql.CrossJoin {
			return &Node{Op: OpCrossProduct, Left: left, Right: right}, nil
		}
		return &Node{Op: OpJoin, Left: left, Right: right, JoinKind: t.Kind, On: t.On}, nil
	default:
		return nil, dberr.Newf(dberr.LogicError, "unknown table reference type %T", ref)
	}
}

func buildAggregates(items []sql.SelectItem) ([]Aggregate, error) {
	var out []Aggregate
	for _, item := range items {
		if item.Func == nil {
			continue
		}
		kind, err := aggKindOf(item.Func.Name)
		if err != nil {
			return nil, err
		}
		name := item.Alias
		if name == "" {
			name = fmt.Sprintf("%s(...)", item.Func.Name)
		}
		out = append(out, Aggregate{Kind: kind, Arg: item.Func.Arg, Star: item.Func.Star, Output: name})
	}
	return out, nil
}

func aggKindOf(name string) (AggKind, error) {
	switch name {
	case "COUNT":
		return AggCount, nil
	case "SUM":
		return AggSum, nil
	case "AVG":
		return AggAvg, nil
	case "MIN":
		return AggMin, nil
	case "MAX":
		return AggMax, nil
	default:
		return 0, dberr.Newf(dberr.InvalidArgument, "unknown aggregate function %q", name)
	}
}

func buildProjectItems(items []sql.SelectItem) ([]ProjectItem, error) {
	out := make([]ProjectItem, 0, len(items))
	for _, item := range items {
		switch {
		case item.Star:
			out = append(out, ProjectItem{Star: true, Table: item.Table})
		case item.Func != nil:
			name := item.Alias
			if name == "" {
				name = fmt.Sprintf("%s(...)", item.Func.Name)
			}
			out = append(out, ProjectItem{Output: name})
		default:
			name := item.Alias
			if name == "" {
				name = columnLabel(item)
			}
			out = append(out, ProjectItem{Expr: item.Expr, Output: name})
		}
	}
	return out, nil
}

func columnLabel(item sql.SelectItem) string {
	if item.Expr != nil && item.Expr.Kind == expr.KindColumnRef {
		return item.Expr.Column
	}
	return "expr"
}
