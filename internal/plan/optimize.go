package plan

import (
	"quelldb/internal/expr"
	"quelldb/internal/sql"
)

// Optimize applies the engine's rule-based rewrites to node and returns
// the rewritten tree. Rules are applied bottom-up, repeatedly, until a
// full pass makes no further change.
//
//   - pushDownSelection: Select-over-CrossProduct becomes an inner Join
//     whose condition is the Select's whole predicate.
//   - combineSelections: Select-over-Select collapses into one Select
//     whose predicate is the AND of both.
//
// reorderJoins and pushDownProjection are named in the design but left as
// no-ops: this engine has no multi-way join cost search, and projection
// pushdown would only save work the pull executor already does lazily
// (columns are never materialized earlier than a Project reads them).
func Optimize(node *Node) *Node {
	for {
		rewritten, changed := optimizePass(node)
		node = rewritten
		if !changed {
			return node
		}
	}
}

func optimizePass(node *Node) (*Node, bool) {
	if node == nil {
		return nil, false
	}

	changedAny := false
	if node.Input != nil {
		rewritten, changed := optimizePass(node.Input)
		node.Input = rewritten
		changedAny = changedAny || changed
	}
	if node.Left != nil {
		rewritten, changed := optimizePass(node.Left)
		node.Left = rewritten
		changedAny = changedAny || changed
	}
	if node.Right != nil {
		rewritten, changed := optimizePass(node.Right)
		node.Right = rewritten
		changedAny = changedAny || changed
	}

	if node.Op == OpSelect {
		if inner := node.Input; inner != nil && inner.Op == OpSelect {
			combined := &Node{
				Op:        OpSelect,
				Input:     inner.Input,
				Predicate: expr.And(node.Predicate, inner.Predicate),
			}
			return combined, true
		}
		if inner := node.Input; inner != nil && inner.Op == OpCrossProduct {
			joined := &Node{
				Op:       OpJoin,
				Left:     inner.Left,
				Right:    inner.Right,
				JoinKind: sql.InnerJoin,
				On:       node.Predicate,
			}
			return joined, true
		}
	}

	return node, changedAny
}
