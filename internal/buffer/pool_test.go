package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quelldb/internal/disk"
	"quelldb/internal/types"
)

func openTable(t *testing.T, name string, pageSize int) *disk.TableStore {
	t.Helper()
	ts, err := disk.Open(t.TempDir(), name, pageSize)
	require.NoError(t, err)
	_, err = ts.AllocateBlock()
	require.NoError(t, err)
	return ts
}

func TestFetchMissThenHit(t *testing.T) {
	store := openTable(t, "t1", 128)
	pool, err := New(4, 128)
	require.NoError(t, err)
	pool.RegisterTable("t1", store)

	addr := types.BlockAddress{Table: "t1", Block: 0}
	res, err := pool.Fetch(addr, false)
	require.NoError(t, err)
	assert.False(t, res.WasHit)

	res2, err := pool.Fetch(addr, false)
	require.NoError(t, err)
	assert.True(t, res2.WasHit)

	hits, misses := pool.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestFetchForWriteMarksDirty(t *testing.T) {
	store := openTable(t, "t1", 128)
	pool, err := New(4, 128)
	require.NoError(t, err)
	pool.RegisterTable("t1", store)

	addr := types.BlockAddress{Table: "t1", Block: 0}
	res, err := pool.Fetch(addr, true)
	require.NoError(t, err)
	assert.True(t, res.Frame.Dirty)
}

func TestCapacityOneWritesBackDirtyFrameOnEviction(t *testing.T) {
	store := openTable(t, "t1", 128)
	_, err := store.AllocateBlock()
	require.NoError(t, err)
	pool, err := New(1, 128)
	require.NoError(t, err)
	pool.RegisterTable("t1", store)

	addrA := types.BlockAddress{Table: "t1", Block: 0}
	res, err := pool.Fetch(addrA, true)
	require.NoError(t, err)
	copy(res.Frame.Page.Bytes()[16:], []byte("dirty-write"))

	addrB := types.BlockAddress{Table: "t1", Block: 1}
	_, err = pool.Fetch(addrB, false)
	require.NoError(t, err)

	onDisk, err := store.Read(0)
	require.NoError(t, err)
	assert.Contains(t, string(onDisk), "dirty-write")
}

func TestFlushWritesBackWithoutEvicting(t *testing.T) {
	store := openTable(t, "t1", 128)
	pool, err := New(4, 128)
	require.NoError(t, err)
	pool.RegisterTable("t1", store)

	addr := types.BlockAddress{Table: "t1", Block: 0}
	res, err := pool.Fetch(addr, true)
	require.NoError(t, err)
	copy(res.Frame.Page.Bytes()[16:], []byte("flush-me"))

	require.NoError(t, pool.Flush())
	assert.False(t, res.Frame.Dirty)

	onDisk, err := store.Read(0)
	require.NoError(t, err)
	assert.Contains(t, string(onDisk), "flush-me")
}
