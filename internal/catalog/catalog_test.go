package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quelldb/internal/types"
)

func accountsSchema() types.TableSchema {
	return types.TableSchema{
		Name: "accounts",
		Columns: []types.ColumnDefinition{
			{Name: "id", Type: types.Integer, MaxLength: 20, PrimaryKey: true},
			{Name: "name", Type: types.String, MaxLength: 64},
		},
	}
}

func TestCreateTableRejectsDuplicate(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, c.CreateTable(accountsSchema()))

	err = c.CreateTable(accountsSchema())
	assert.Error(t, err)
}

func TestCreateTablePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, c.CreateTable(accountsSchema()))
	require.NoError(t, c.CreateIndex(IndexDefinition{
		Name: "idx_name", Table: "accounts", Columns: []string{"name"}, KeyLength: 64,
	}))

	reopened, err := Open(dir)
	require.NoError(t, err)

	info, err := reopened.Table("accounts")
	require.NoError(t, err)
	assert.Len(t, info.Schema.Columns, 2)
	assert.Equal(t, "id", info.Schema.Columns[0].Name)

	idx, err := reopened.Index("idx_name")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, idx.Definition.Columns)
}

func TestAddColumnThenDropColumn(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, c.CreateTable(accountsSchema()))

	require.NoError(t, c.AddColumn("accounts", types.ColumnDefinition{Name: "email", Type: types.String, MaxLength: 128}))
	info, err := c.Table("accounts")
	require.NoError(t, err)
	assert.Equal(t, 2, info.Schema.ColumnIndex("email"))

	require.NoError(t, c.DropColumn("accounts", "email"))
	info, err = c.Table("accounts")
	require.NoError(t, err)
	assert.Equal(t, -1, info.Schema.ColumnIndex("email"))
}

func TestAddColumnRejectsDuplicateName(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, c.CreateTable(accountsSchema()))

	err = c.AddColumn("accounts", types.ColumnDefinition{Name: "name", Type: types.String, MaxLength: 10})
	assert.Error(t, err)
}

func TestRenameTableCarriesIndexesAlong(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, c.CreateTable(accountsSchema()))
	require.NoError(t, c.CreateIndex(IndexDefinition{Name: "idx_name", Table: "accounts", Columns: []string{"name"}}))

	require.NoError(t, c.RenameTable("accounts", "users"))

	_, err = c.Table("accounts")
	assert.Error(t, err)
	_, err = c.Table("users")
	assert.NoError(t, err)

	idx, err := c.Index("idx_name")
	require.NoError(t, err)
	assert.Equal(t, "users", idx.Definition.Table)
}

func TestDropTableRemovesItsIndexes(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, c.CreateTable(accountsSchema()))
	require.NoError(t, c.CreateIndex(IndexDefinition{Name: "idx_name", Table: "accounts", Columns: []string{"name"}}))

	require.NoError(t, c.DropTable("accounts"))
	_, err = c.Index("idx_name")
	assert.Error(t, err)
}

func TestCreateIndexRequiresExistingTable(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	err = c.CreateIndex(IndexDefinition{Name: "idx", Table: "missing", Columns: []string{"x"}})
	assert.Error(t, err)
}

func TestUpdateStatsTracksByteBudget(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, c.CreateTable(accountsSchema()))

	require.NoError(t, c.UpdateStats("accounts", 10, 4, 4096))
	assert.False(t, c.OverBudget())

	require.NoError(t, c.UpdateStats("accounts", 1000000, 100000, 4096))
	assert.True(t, c.OverBudget())
}

func TestIndexOnColumnsFindsExactProjection(t *testing.T) {
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, c.CreateTable(accountsSchema()))
	require.NoError(t, c.CreateIndex(IndexDefinition{Name: "idx_name", Table: "accounts", Columns: []string{"name"}}))

	idx, ok := c.IndexOnColumns("accounts", []string{"name"})
	require.True(t, ok)
	assert.Equal(t, "idx_name", idx.Definition.Name)

	_, ok = c.IndexOnColumns("accounts", []string{"id"})
	assert.False(t, ok)
}
