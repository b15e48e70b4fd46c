// Package plan implements the logical relational-algebra intermediate
// representation: a tree of relational operators lowered from the SQL
// AST, plus a small set of rule-based rewrites applied before physical
// lowering.
package plan

import (
	"quelldb/internal/expr"
	"quelldb/internal/sql"
)

// Op tags the variant each Node carries.
type Op int

const (
	OpScan Op = iota
	OpSelect
	OpProject
	OpJoin
	OpCrossProduct
	OpSort
	OpGroup
	OpDistinct
	OpLimit
	OpRename
)

// AggKind enumerates the supported aggregate functions.
type AggKind int

const (
	AggCount AggKind = iota
	AggSum
	AggAvg
	AggMin
	AggMax
)

// Aggregate is one aggregate computed by a Group node.
type Aggregate struct {
	Kind   AggKind
	Arg    *expr.Node // nil for COUNT(*)
	Star   bool
	Output string
}

// ProjectItem is one output column of a Project node. Star projects every
// column of Table (or of every input table when Table is empty).
type ProjectItem struct {
	Expr   *expr.Node
	Output string
	Star   bool
	Table  string
}

// SortKey is one ORDER BY key.
type SortKey struct {
	Expr *expr.Node
	Desc bool
}

// Node is the logical plan tree. As with the expression AST, only the
// fields relevant to Op are populated.
type Node struct {
	Op Op

	Input  *Node // Select, Project, Sort, Group, Distinct, Limit, Rename
	Left   *Node // Join, CrossProduct
	Right  *Node // Join, CrossProduct

	// OpScan
	Table string
	Alias string

	// OpSelect
	Predicate *expr.Node

	// OpProject
	Items []ProjectItem

	// OpJoin
	JoinKind sql.JoinKind
	On       *expr.Node

	// OpSort
	SortKeys []SortKey

	// OpGroup
	GroupKeys  []*expr.Node
	Aggregates []Aggregate

	// OpDistinct: no extra fields

	// OpLimit
	Limit  *int64
	Offset *int64

	// OpRename
	NewName string
}

// OutputName returns the effective table/alias name rows flowing out of
// n are addressed by, used to resolve qualified column references.
func (n *Node) OutputName() string {
	switch n.Op {
	case OpScan:
		if n.Alias != "" {
			return n.Alias
		}
		return n.Table
	case OpRename:
		return n.NewName
	default:
		if n.Input != nil {
			return n.Input.OutputName()
		}
		return ""
	}
}
