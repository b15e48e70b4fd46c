package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quelldb/internal/expr"
)

func TestParseSimpleSelect(t *testing.T) {
	stmt, err := Parse("SELECT id, name FROM accounts WHERE id = 1")
	require.NoError(t, err)
	sel, ok := stmt.(*SelectStmt)
	require.True(t, ok)
	require.Len(t, sel.Items, 2)
	assert.Equal(t, "id", sel.Items[0].Expr.Column)
	assert.Equal(t, "name", sel.Items[1].Expr.Column)

	table, ok := sel.From.(NamedTable)
	require.True(t, ok)
	assert.Equal(t, "accounts", table.Name)
	require.NotNil(t, sel.Where)
	assert.Equal(t, expr.CmpEQ, sel.Where.CompareOp)
}

func TestParseSelectStar(t *testing.T) {
	stmt, err := Parse("SELECT * FROM accounts")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	require.Len(t, sel.Items, 1)
	assert.True(t, sel.Items[0].Star)
}

func TestParseSelectWithJoinAndOrderByAndLimit(t *testing.T) {
	stmt, err := Parse(`
		SELECT a.id, b.total
		FROM accounts a
		LEFT JOIN orders b ON a.id = b.account_id
		ORDER BY b.total DESC
		LIMIT 10 OFFSET 5
	`)
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)

	join, ok := sel.From.(Join)
	require.True(t, ok)
	assert.Equal(t, LeftJoin, join.Kind)
	require.NotNil(t, join.On)

	require.Len(t, sel.OrderBy, 1)
	assert.True(t, sel.OrderBy[0].Desc)
	require.NotNil(t, sel.Limit)
	assert.Equal(t, int64(10), *sel.Limit)
	require.NotNil(t, sel.Offset)
	assert.Equal(t, int64(5), *sel.Offset)
}

func TestParseSelectWithAggregateAndGroupBy(t *testing.T) {
	stmt, err := Parse("SELECT dept, COUNT(*) AS n FROM employees GROUP BY dept HAVING n > 1")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	require.Len(t, sel.Items, 2)
	require.NotNil(t, sel.Items[1].Func)
	assert.Equal(t, "COUNT", sel.Items[1].Func.Name)
	assert.True(t, sel.Items[1].Func.Star)
	assert.Equal(t, "n", sel.Items[1].Alias)
	require.Len(t, sel.GroupBy, 1)
	require.NotNil(t, sel.Having)
}

func TestParseInsertWithExplicitColumns(t *testing.T) {
	stmt, err := Parse("INSERT INTO accounts (id, name) VALUES (1, 'alice'), (2, 'bob')")
	require.NoError(t, err)
	ins := stmt.(*InsertStmt)
	assert.Equal(t, "accounts", ins.Table)
	assert.Equal(t, []string{"id", "name"}, ins.Columns)
	require.Len(t, ins.Rows, 2)
	require.Len(t, ins.Rows[0], 2)
}

func TestParseUpdateWithWhere(t *testing.T) {
	stmt, err := Parse("UPDATE accounts SET name = 'carol', age = age + 1 WHERE id = 3")
	require.NoError(t, err)
	upd := stmt.(*UpdateStmt)
	assert.Equal(t, "accounts", upd.Table)
	require.Len(t, upd.Assignments, 2)
	assert.Equal(t, "name", upd.Assignments[0].Column)
	require.NotNil(t, upd.Where)
}

func TestParseDeleteWithoutWhere(t *testing.T) {
	stmt, err := Parse("DELETE FROM accounts")
	require.NoError(t, err)
	del := stmt.(*DeleteStmt)
	assert.Equal(t, "accounts", del.Table)
	assert.Nil(t, del.Where)
}

func TestParseRejectsUnknownStatement(t *testing.T) {
	_, err := Parse("MERGE INTO accounts")
	assert.Error(t, err)
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := Parse("SELECT * FROM accounts extra garbage here")
	assert.Error(t, err)
}

func TestParseExpressionPrecedence(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE a = 1 AND b = 2 OR c = 3")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	// OR is loosest, so root should be an OR node.
	assert.Equal(t, expr.KindOr, sel.Where.Kind)
	assert.Equal(t, expr.KindAnd, sel.Where.LHS.Kind)
}

func TestParseParenthesizedExpression(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE (a = 1 OR b = 2) AND c = 3")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	assert.Equal(t, expr.KindAnd, sel.Where.Kind)
	assert.Equal(t, expr.KindOr, sel.Where.LHS.Kind)
}

func TestParseCommaJoinLowersToCrossJoin(t *testing.T) {
	stmt, err := Parse("SELECT * FROM a, b")
	require.NoError(t, err)
	sel := stmt.(*SelectStmt)
	join, ok := sel.From.(Join)
	require.True(t, ok)
	assert.Equal(t, CrossJoin, join.Kind)
	assert.Nil(t, join.On)
}
