package physical

import (
	"quelldb/internal/expr"
	"quelldb/internal/plan"
	"quelldb/internal/sql"
	"quelldb/pkg/dberr"
)

// Lower turns a logical plan tree into a cost-annotated physical plan,
// choosing TableScan vs. IndexScan and NestedLoopJoin vs. HashJoin along
// the way.
func Lower(node *plan.Node, cat CatalogInfo) (*Node, error) {
	n, err := lowerNode(node, cat)
	if err != nil {
		return nil, err
	}
	assignCost(n, cat)
	return n, nil
}

func lowerNode(node *plan.Node, cat CatalogInfo) (*Node, error) {
	if node == nil {
		return nil, nil
	}
	switch node.Op {
	case plan.OpScan:
		return &Node{Op: OpTableScan, Table: node.Table, Alias: effectiveAlias(node)}, nil

	case plan.OpSelect:
		return lowerSelect(node, cat)

	case plan.OpProject:
		input, err := lowerNode(node.Input, cat)
		if err != nil {
			return nil, err
		}
		return &Node{Op: OpProjection, Input: input, Items: node.Items}, nil

	case plan.OpDistinct:
		input, err := lowerNode(node.Input, cat)
		if err != nil {
			return nil, err
		}
		return &Node{Op: OpDistinct, Input: input}, nil

	case plan.OpSort:
		input, err := lowerNode(node.Input, cat)
		if err != nil {
			return nil, err
		}
		return &Node{Op: OpSort, Input: input, SortKeys: node.SortKeys}, nil

	case plan.OpLimit:
		input, err := lowerNode(node.Input, cat)
		if err != nil {
			return nil, err
		}
		return &Node{Op: OpLimit, Input: input, Limit: node.Limit, Offset: node.Offset}, nil

	case plan.OpRename:
		input, err := lowerNode(node.Input, cat)
		if err != nil {
			return nil, err
		}
		return &Node{Op: OpAlias, Input: input, NewName: node.NewName}, nil

	case plan.OpGroup:
		input, err := lowerNode(node.Input, cat)
		if err != nil {
			return nil, err
		}
		return &Node{Op: OpAggregate, Input: input, GroupKeys: node.GroupKeys, Aggregates: node.Aggregates}, nil

	case plan.OpCrossProduct:
		left, err := lowerNode(node.Left, cat)
		if err != nil {
			return nil, err
		}
		right, err := lowerNode(node.Right, cat)
		if err != nil {
			return nil, err
		}
		return &Node{Op: OpNestedLoopJoin, Left: left, Right: right, JoinKind: sql.CrossJoin}, nil

	case plan.OpJoin:
		return lowerJoin(node, cat)

	default:
		return nil, dberr.Newf(dberr.LogicError, "unknown logical operator %v", node.Op)
	}
}

func effectiveAlias(node *plan.Node) string {
	if node.Alias != "" {
		return node.Alias
	}
	return node.Table
}

// lowerSelect lowers Select-over-Scan into an IndexScan when the
// predicate is a single equality on an indexed column of the scanned
// table; otherwise it lowers to Filter(TableScan) or Filter(<lowered
// input>) generally.
func lowerSelect(node *plan.Node, cat CatalogInfo) (*Node, error) {
	if scan, ok := asScan(node.Input); ok {
		if col, lit, ok := equalityOnColumn(node.Predicate, effectiveAlias(scan)); ok {
			if idxName, found := cat.EqualityIndexOn(scan.Table, col); found {
				return &Node{
					Op:         OpIndexScan,
					Table:      scan.Table,
					Alias:      effectiveAlias(scan),
					IndexName:  idxName,
					EqualValue: lit,
				}, nil
			}
		}
	}
	input, err := lowerNode(node.Input, cat)
	if err != nil {
		return nil, err
	}
	return &Node{Op: OpFilter, Input: input, Predicate: node.Predicate}, nil
}

func asScan(node *plan.Node) (*plan.Node, bool) {
	if node != nil && node.Op == plan.OpScan {
		return node, true
	}
	return nil, false
}

// equalityOnColumn reports whether pred is exactly `<table.>col = literal`
// (in either operand order), returning the bare column name and the
// literal expression node.
func equalityOnColumn(pred *expr.Node, table string) (string, *expr.Node, bool) {
	if pred == nil || pred.Kind != expr.KindCompare || pred.CompareOp != expr.CmpEQ {
		return "", nil, false
	}
	if col, ok := columnMatching(pred.Left, table); ok && pred.Right.Kind == expr.KindLiteral {
		return col, pred.Right, true
	}
	if col, ok := columnMatching(pred.Right, table); ok && pred.Left.Kind == expr.KindLiteral {
		return col, pred.Left, true
	}
	return "", nil, false
}

func columnMatching(n *expr.Node, table string) (string, bool) {
	if n.Kind != expr.KindColumnRef {
		return "", false
	}
	if n.Table != "" && n.Table != table {
		return "", false
	}
	return n.Column, true
}

// lowerJoin chooses HashJoin for an inner equi-join and NestedLoopJoin
// otherwise. A RIGHT JOIN is normalized to a LEFT JOIN with its operands
// swapped, so the executor only ever has to implement INNER/LEFT/CROSS.
func lowerJoin(node *plan.Node, cat CatalogInfo) (*Node, error) {
	leftPlan, rightPlan, kind := node.Left, node.Right, node.JoinKind
	if kind == sql.RightJoin {
		leftPlan, rightPlan, kind = rightPlan, leftPlan, sql.LeftJoin
	}

	left, err := lowerNode(leftPlan, cat)
	if err != nil {
		return nil, err
	}
	right, err := lowerNode(rightPlan, cat)
	if err != nil {
		return nil, err
	}

	if kind == sql.InnerJoin {
		if lk, rk, ok := equiJoinKeys(node.On); ok {
			return &Node{Op: OpHashJoin, Left: left, Right: right, HashLeftKey: lk, HashRightKey: rk}, nil
		}
	}
	return &Node{Op: OpNestedLoopJoin, Left: left, Right: right, JoinKind: kind, JoinPredicate: node.On}, nil
}

// equiJoinKeys reports whether pred is a single `a = b` comparison
// between two column references, returning them in (left, right) order.
func equiJoinKeys(pred *expr.Node) (*expr.Node, *expr.Node, bool) {
	if pred == nil || pred.Kind != expr.KindCompare || pred.CompareOp != expr.CmpEQ {
		return nil, nil, false
	}
	if pred.Left.Kind == expr.KindColumnRef && pred.Right.Kind == expr.KindColumnRef {
		return pred.Left, pred.Right, true
	}
	return nil, nil, false
}

// assignCost fills in Cost for every node, bottom-up, as its own
// operator cost plus the summed cost of its subtree. TableScan uses the
// catalog's block count for the scanned table when known, falling back
// to defaultScanCost otherwise.
func assignCost(n *Node, cat CatalogInfo) int {
	if n == nil {
		return 0
	}
	childCost := assignCost(n.Input, cat) + assignCost(n.Left, cat) + assignCost(n.Right, cat)

	var own int
	switch n.Op {
	case OpTableScan:
		own = defaultScanCost
		if blocks := cat.BlockCountOf(n.Table); blocks > 0 {
			own = blocks
		}
	case OpIndexScan:
		own = costIndexScan
	case OpFilter:
		own = costFilter
	case OpProjection:
		own = costProjection
	case OpDistinct:
		own = costDistinct
	case OpSort:
		own = costSort
	case OpHashJoin:
		own = costHashJoin
	case OpNestedLoopJoin:
		own = costNestedLoop
	case OpAggregate:
		own = costAggregate
	case OpLimit:
		own = costLimit
	case OpAlias:
		own = costAlias
	}
	n.Cost = own + childCost
	return n.Cost
}
