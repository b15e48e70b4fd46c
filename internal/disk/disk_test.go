package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ts, err := Open(dir, "accounts", 128)
	require.NoError(t, err)
	assert.Equal(t, 0, ts.NumBlocks())

	idx, err := ts.AllocateBlock()
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.True(t, ts.Contains(0))

	payload := make([]byte, 128)
	copy(payload, "row data")
	require.NoError(t, ts.Write(0, payload))

	got, err := ts.Read(0)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestOpenRediscoversExistingBlocks(t *testing.T) {
	dir := t.TempDir()
	ts, err := Open(dir, "accounts", 128)
	require.NoError(t, err)
	_, err = ts.AllocateBlock()
	require.NoError(t, err)
	_, err = ts.AllocateBlock()
	require.NoError(t, err)

	reopened, err := Open(dir, "accounts", 128)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.NumBlocks())
}

func TestWriteRejectsWrongSizedPayload(t *testing.T) {
	dir := t.TempDir()
	ts, err := Open(dir, "accounts", 128)
	require.NoError(t, err)
	_, err = ts.AllocateBlock()
	require.NoError(t, err)

	err = ts.Write(0, []byte("too short"))
	assert.Error(t, err)
}

func TestAllocateBlockRejectsSecondBlockPastCap(t *testing.T) {
	dir := t.TempDir()
	ts, err := Open(dir, "accounts", 128)
	require.NoError(t, err)
	ts.SetMaxBlocks(1)

	_, err = ts.AllocateBlock()
	require.NoError(t, err)

	_, err = ts.AllocateBlock()
	assert.Error(t, err)
}

func TestListTablesIgnoresReservedDirectories(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, "orders", 128)
	require.NoError(t, err)
	_, err = Open(dir, "customers", 128)
	require.NoError(t, err)

	tables, err := ListTables(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, tables)
}
