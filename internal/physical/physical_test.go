package physical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quelldb/internal/expr"
	"quelldb/internal/plan"
	"quelldb/internal/sql"
	"quelldb/internal/types"
)

type fakeCatalog struct {
	blocks  map[string]int
	indexes map[[2]string]string // {table, column} -> index name
}

func (f *fakeCatalog) BlockCountOf(table string) int { return f.blocks[table] }

func (f *fakeCatalog) EqualityIndexOn(table, column string) (string, bool) {
	name, ok := f.indexes[[2]string{table, column}]
	return name, ok
}

func TestLowerPlainScanIsTableScan(t *testing.T) {
	cat := &fakeCatalog{}
	node, err := Lower(&plan.Node{Op: plan.OpScan, Table: "accounts"}, cat)
	require.NoError(t, err)
	assert.Equal(t, OpTableScan, node.Op)
	assert.Equal(t, "accounts", node.Table)
}

func TestLowerSelectEqualityOnIndexedColumnBecomesIndexScan(t *testing.T) {
	cat := &fakeCatalog{indexes: map[[2]string]string{{"accounts", "id"}: "idx_id"}}
	scan := &plan.Node{Op: plan.OpScan, Table: "accounts"}
	pred := expr.Compare(expr.CmpEQ, expr.ColumnRef("", "id"), expr.Literal(types.IntValue(7)))
	sel := &plan.Node{Op: plan.OpSelect, Input: scan, Predicate: pred}

	node, err := Lower(sel, cat)
	require.NoError(t, err)
	assert.Equal(t, OpIndexScan, node.Op)
	assert.Equal(t, "idx_id", node.IndexName)
}

func TestLowerSelectWithoutIndexBecomesFilterOverTableScan(t *testing.T) {
	cat := &fakeCatalog{}
	scan := &plan.Node{Op: plan.OpScan, Table: "accounts"}
	pred := expr.Compare(expr.CmpEQ, expr.ColumnRef("", "id"), expr.Literal(types.IntValue(7)))
	sel := &plan.Node{Op: plan.OpSelect, Input: scan, Predicate: pred}

	node, err := Lower(sel, cat)
	require.NoError(t, err)
	assert.Equal(t, OpFilter, node.Op)
	assert.Equal(t, OpTableScan, node.Input.Op)
}

func TestLowerSelectNonEqualityNeverUsesIndex(t *testing.T) {
	cat := &fakeCatalog{indexes: map[[2]string]string{{"accounts", "id"}: "idx_id"}}
	scan := &plan.Node{Op: plan.OpScan, Table: "accounts"}
	pred := expr.Compare(expr.CmpGT, expr.ColumnRef("", "id"), expr.Literal(types.IntValue(7)))
	sel := &plan.Node{Op: plan.OpSelect, Input: scan, Predicate: pred}

	node, err := Lower(sel, cat)
	require.NoError(t, err)
	assert.Equal(t, OpFilter, node.Op)
}

func TestLowerInnerEquiJoinBecomesHashJoin(t *testing.T) {
	cat := &fakeCatalog{}
	left := &plan.Node{Op: plan.OpScan, Table: "a"}
	right := &plan.Node{Op: plan.OpScan, Table: "b"}
	on := expr.Compare(expr.CmpEQ, expr.ColumnRef("a", "id"), expr.ColumnRef("b", "a_id"))
	join := &plan.Node{Op: plan.OpJoin, Left: left, Right: right, JoinKind: sql.InnerJoin, On: on}

	node, err := Lower(join, cat)
	require.NoError(t, err)
	assert.Equal(t, OpHashJoin, node.Op)
}

func TestLowerInnerJoinWithoutEqualityUsesNestedLoop(t *testing.T) {
	cat := &fakeCatalog{}
	left := &plan.Node{Op: plan.OpScan, Table: "a"}
	right := &plan.Node{Op: plan.OpScan, Table: "b"}
	on := expr.Compare(expr.CmpGT, expr.ColumnRef("a", "id"), expr.ColumnRef("b", "a_id"))
	join := &plan.Node{Op: plan.OpJoin, Left: left, Right: right, JoinKind: sql.InnerJoin, On: on}

	node, err := Lower(join, cat)
	require.NoError(t, err)
	assert.Equal(t, OpNestedLoopJoin, node.Op)
}

func TestLowerOuterJoinNeverUsesHashJoin(t *testing.T) {
	cat := &fakeCatalog{}
	left := &plan.Node{Op: plan.OpScan, Table: "a"}
	right := &plan.Node{Op: plan.OpScan, Table: "b"}
	on := expr.Compare(expr.CmpEQ, expr.ColumnRef("a", "id"), expr.ColumnRef("b", "a_id"))
	join := &plan.Node{Op: plan.OpJoin, Left: left, Right: right, JoinKind: sql.LeftJoin, On: on}

	node, err := Lower(join, cat)
	require.NoError(t, err)
	assert.Equal(t, OpNestedLoopJoin, node.Op)
	assert.Equal(t, sql.LeftJoin, node.JoinKind)
}

func TestLowerRightJoinNormalizesToLeftJoinWithSwappedOperands(t *testing.T) {
	cat := &fakeCatalog{}
	left := &plan.Node{Op: plan.OpScan, Table: "a"}
	right := &plan.Node{Op: plan.OpScan, Table: "b"}
	on := expr.Compare(expr.CmpEQ, expr.ColumnRef("a", "id"), expr.ColumnRef("b", "a_id"))
	join := &plan.Node{Op: plan.OpJoin, Left: left, Right: right, JoinKind: sql.RightJoin, On: on}

	node, err := Lower(join, cat)
	require.NoError(t, err)
	assert.Equal(t, OpNestedLoopJoin, node.Op)
	assert.Equal(t, sql.LeftJoin, node.JoinKind)
	assert.Equal(t, "b", node.Left.Table)
	assert.Equal(t, "a", node.Right.Table)
}

func TestAssignCostUsesCatalogBlockCountForTableScan(t *testing.T) {
	cat := &fakeCatalog{blocks: map[string]int{"accounts": 42}}
	node, err := Lower(&plan.Node{Op: plan.OpScan, Table: "accounts"}, cat)
	require.NoError(t, err)
	assert.Equal(t, 42, node.Cost)
}

func TestAssignCostFallsBackToDefaultScanCost(t *testing.T) {
	cat := &fakeCatalog{}
	node, err := Lower(&plan.Node{Op: plan.OpScan, Table: "accounts"}, cat)
	require.NoError(t, err)
	assert.Equal(t, defaultScanCost, node.Cost)
}

func TestAssignCostSumsSubtreeCosts(t *testing.T) {
	cat := &fakeCatalog{blocks: map[string]int{"accounts": 5}}
	scan := &plan.Node{Op: plan.OpScan, Table: "accounts"}
	project := &plan.Node{Op: plan.OpProject, Input: scan, Items: []plan.ProjectItem{{Star: true}}}

	node, err := Lower(project, cat)
	require.NoError(t, err)
	assert.Equal(t, OpProjection, node.Op)
	assert.Equal(t, 5+costProjection, node.Cost)
}
