package btree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quelldb/pkg/dberr"
)

func TestInsertUniqueRejectsDuplicate(t *testing.T) {
	tr := New(256, 16)
	require.NoError(t, tr.InsertUnique("a", "1"))
	err := tr.InsertUnique("a", "2")
	assert.Error(t, err)

	v, ok := tr.Find("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestInsertOrAssignUpserts(t *testing.T) {
	tr := New(256, 16)
	tr.InsertOrAssign("a", "1")
	tr.InsertOrAssign("a", "2")

	v, ok := tr.Find("a")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestUpdateFailsOnMissingKey(t *testing.T) {
	tr := New(256, 16)
	err := tr.Update("missing", "x")
	assert.Error(t, err)
}

func TestEraseRemovesKey(t *testing.T) {
	tr := New(256, 16)
	tr.InsertOrAssign("a", "1")
	require.NoError(t, tr.Erase("a"))
	_, ok := tr.Find("a")
	assert.False(t, ok)

	err := tr.Erase("a")
	assert.Error(t, err)
}

func TestBulkInsertAndOrderedTraversal(t *testing.T) {
	tr := New(256, 16)
	tr.BulkInsert([][2]string{{"c", "3"}, {"a", "1"}, {"b", "2"}})

	all := tr.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0][0], all[1][0], all[2][0]})
}

func TestSplitAndMergeAcrossManyKeys(t *testing.T) {
	tr := New(128, 8)
	const n = 200
	for i := 0; i < n; i++ {
		tr.InsertOrAssign(keyOf(i), valOf(i))
	}
	assert.Equal(t, n, tr.Len())

	for i := 0; i < n; i += 2 {
		require.NoError(t, tr.Erase(keyOf(i)))
	}
	assert.Equal(t, n/2, tr.Len())

	for i := 1; i < n; i += 2 {
		v, ok := tr.Find(keyOf(i))
		require.True(t, ok)
		assert.Equal(t, valOf(i), v)
	}
	for i := 0; i < n; i += 2 {
		_, ok := tr.Find(keyOf(i))
		assert.False(t, ok)
	}
}

func TestRangeRespectsBounds(t *testing.T) {
	tr := New(256, 16)
	tr.BulkInsert([][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"}})

	got := tr.Range("b", "c")
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0][0])
	assert.Equal(t, "c", got[1][0])
}

func TestSaveThenLoadYieldsIdenticalDescribePages(t *testing.T) {
	tr := New(128, 8)
	for i := 0; i < 50; i++ {
		tr.InsertOrAssign(keyOf(i), valOf(i))
	}

	path := filepath.Join(t.TempDir(), "idx.idx")
	require.NoError(t, tr.SaveToFile(path))

	reloaded, err := LoadFromFile(path, 128, 8)
	require.NoError(t, err)

	assert.Equal(t, tr.DescribePages(), reloaded.DescribePages())
	assert.Equal(t, tr.All(), reloaded.All())
}

func TestLoadFromFileRejectsMismatchedPageSize(t *testing.T) {
	tr := New(128, 8)
	tr.InsertOrAssign("a", "1")

	path := filepath.Join(t.TempDir(), "idx.idx")
	require.NoError(t, tr.SaveToFile(path))

	_, err := LoadFromFile(path, 256, 8)
	require.Error(t, err)
	assert.Equal(t, dberr.Corrupted, dberr.CodeOf(err))
}

func TestLoadFromFileRejectsMismatchedKeyLength(t *testing.T) {
	tr := New(128, 8)
	tr.InsertOrAssign("a", "1")

	path := filepath.Join(t.TempDir(), "idx.idx")
	require.NoError(t, tr.SaveToFile(path))

	_, err := LoadFromFile(path, 128, 16)
	require.Error(t, err)
	assert.Equal(t, dberr.Corrupted, dberr.CodeOf(err))
}

func TestSplitLeafLinksNextPointerForRangeScans(t *testing.T) {
	tr := New(64, 8)
	for i := 0; i < 30; i++ {
		tr.InsertOrAssign(keyOf(i), valOf(i))
	}

	all := tr.All()
	require.Len(t, all, 30)
	for i := 0; i < 30; i++ {
		assert.Equal(t, keyOf(i), all[i][0])
	}
}

func TestKeysLongerThanKeyLengthAreTruncated(t *testing.T) {
	tr := New(256, 4)
	tr.InsertOrAssign("abcdefgh", "1")
	v, ok := tr.Find("abcd-anything-else")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func keyOf(i int) string { return "key" + padded(i) }
func valOf(i int) string { return "val" + padded(i) }

func padded(i int) string {
	s := "000" + itoa(i)
	return s[len(s)-4:]
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
