package exec

import (
	"quelldb/internal/btree"
	"quelldb/internal/buffer"
	"quelldb/internal/disk"
	"quelldb/internal/physical"
	"quelldb/internal/types"
	"quelldb/pkg/dberr"
)

// Context supplies everything Build needs to turn a physical plan into a
// live operator tree, without exec depending on the catalog package
// directly (mirroring physical.CatalogInfo's decoupling one layer up).
type Context struct {
	Pool    *buffer.Pool
	Schemas map[string]*types.TableSchema
	Stores  map[string]*disk.TableStore
	Trees   map[string]*btree.Tree
}

// Build lowers a physical plan into its operator tree.
func Build(node *physical.Node, ctx *Context) (Operator, error) {
	if node == nil {
		return nil, dberr.New(dberr.LogicError, "cannot build a nil physical plan node")
	}

	switch node.Op {
	case physical.OpTableScan:
		schema, store, err := ctx.tableAndStore(node.Table)
		if err != nil {
			return nil, err
		}
		return NewTableScan(node.Table, node.Alias, schema, ctx.Pool, store), nil

	case physical.OpIndexScan:
		schema, _, err := ctx.tableAndStore(node.Table)
		if err != nil {
			return nil, err
		}
		tree, ok := ctx.Trees[node.IndexName]
		if !ok {
			return nil, dberr.Newf(dberr.NotFound, "index %q has no loaded tree", node.IndexName)
		}
		return NewIndexScan(node.Table, node.Alias, schema, ctx.Pool, tree, node.EqualValue.Literal.CanonicalString()), nil

	case physical.OpFilter:
		input, err := Build(node.Input, ctx)
		if err != nil {
			return nil, err
		}
		return NewFilter(input, node.Predicate), nil

	case physical.OpProjection:
		input, err := Build(node.Input, ctx)
		if err != nil {
			return nil, err
		}
		return NewProjection(input, node.Items), nil

	case physical.OpDistinct:
		input, err := Build(node.Input, ctx)
		if err != nil {
			return nil, err
		}
		return NewDistinct(input), nil

	case physical.OpSort:
		input, err := Build(node.Input, ctx)
		if err != nil {
			return nil, err
		}
		return NewSort(input, node.SortKeys), nil

	case physical.OpLimit:
		input, err := Build(node.Input, ctx)
		if err != nil {
			return nil, err
		}
		return NewLimit(input, node.Limit, node.Offset), nil

	case physical.OpAlias:
		input, err := Build(node.Input, ctx)
		if err != nil {
			return nil, err
		}
		return NewAlias(input, node.NewName), nil

	case physical.OpAggregate:
		input, err := Build(node.Input, ctx)
		if err != nil {
			return nil, err
		}
		return NewAggregate(input, node.GroupKeys, node.Aggregates), nil

	case physical.OpNestedLoopJoin:
		left, err := Build(node.Left, ctx)
		if err != nil {
			return nil, err
		}
		right, err := Build(node.Right, ctx)
		if err != nil {
			return nil, err
		}
		return NewNestedLoopJoin(left, right, node.JoinKind, node.JoinPredicate), nil

	case physical.OpHashJoin:
		left, err := Build(node.Left, ctx)
		if err != nil {
			return nil, err
		}
		right, err := Build(node.Right, ctx)
		if err != nil {
			return nil, err
		}
		return NewHashJoin(left, right, node.HashLeftKey, node.HashRightKey), nil

	default:
		return nil, dberr.Newf(dberr.LogicError, "unknown physical operator %v", node.Op)
	}
}

func (c *Context) tableAndStore(table string) (*types.TableSchema, *disk.TableStore, error) {
	schema, ok := c.Schemas[table]
	if !ok {
		return nil, nil, dberr.Newf(dberr.NotFound, "no schema loaded for table %q", table)
	}
	store, ok := c.Stores[table]
	if !ok {
		return nil, nil, dberr.Newf(dberr.NotFound, "no block store loaded for table %q", table)
	}
	return schema, store, nil
}
