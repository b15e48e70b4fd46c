package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGetRoundTrip(t *testing.T) {
	p, err := New(256)
	require.NoError(t, err)

	idx, err := p.Insert([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	got, err := p.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	assert.Equal(t, 1, p.ActiveCount())
}

func TestEraseThenRestore(t *testing.T) {
	p, err := New(256)
	require.NoError(t, err)
	idx, err := p.Insert([]byte("row-1"))
	require.NoError(t, err)

	require.NoError(t, p.Erase(idx))
	_, err = p.Get(idx)
	assert.Error(t, err)
	assert.Equal(t, 1, p.DeletedCount())

	require.NoError(t, p.Restore(idx, []byte("row-1")))
	got, err := p.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, []byte("row-1"), got)
}

func TestRestoreRejectsOversizedRecord(t *testing.T) {
	p, err := New(256)
	require.NoError(t, err)
	idx, err := p.Insert([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, p.Erase(idx))

	err = p.Restore(idx, []byte("this record is much longer than abc"))
	assert.Error(t, err)
}

func TestUpdateInPlaceWhenShorter(t *testing.T) {
	p, err := New(256)
	require.NoError(t, err)
	idx, err := p.Insert([]byte("longer-value"))
	require.NoError(t, err)

	newIdx, err := p.Update(idx, []byte("short"))
	require.NoError(t, err)
	assert.Equal(t, idx, newIdx)

	got, err := p.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, []byte("short"), got)
}

func TestUpdateReinsertsWhenLonger(t *testing.T) {
	p, err := New(256)
	require.NoError(t, err)
	idx, err := p.Insert([]byte("sh"))
	require.NoError(t, err)

	newIdx, err := p.Update(idx, []byte("a much longer replacement value"))
	require.NoError(t, err)
	assert.NotEqual(t, idx, newIdx)

	_, err = p.Get(idx)
	assert.Error(t, err, "old slot should now be deleted")
	got, err := p.Get(newIdx)
	require.NoError(t, err)
	assert.Equal(t, []byte("a much longer replacement value"), got)
}

func TestInsertReusesDeletedSlotWhenItFits(t *testing.T) {
	p, err := New(256)
	require.NoError(t, err)
	idx0, err := p.Insert([]byte("keep"))
	require.NoError(t, err)
	idx1, err := p.Insert([]byte("removed-value"))
	require.NoError(t, err)
	idx2, err := p.Insert([]byte("also-keep"))
	require.NoError(t, err)

	require.NoError(t, p.Erase(idx1))
	activeBefore := p.ActiveCount()

	reused, err := p.Insert([]byte("new-row"))
	require.NoError(t, err)
	assert.Equal(t, idx1, reused, "insert should reuse the tombstoned slot id rather than append")
	assert.Equal(t, activeBefore+1, p.ActiveCount())
	assert.Equal(t, 0, p.DeletedCount())

	got, err := p.Get(reused)
	require.NoError(t, err)
	assert.Equal(t, []byte("new-row"), got)

	got0, err := p.Get(idx0)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), got0)
	got2, err := p.Get(idx2)
	require.NoError(t, err)
	assert.Equal(t, []byte("also-keep"), got2)
}

func TestInsertAppendsWhenNoDeletedSlotFits(t *testing.T) {
	p, err := New(256)
	require.NoError(t, err)
	idx0, err := p.Insert([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, p.Erase(idx0))

	newIdx, err := p.Insert([]byte("much-longer-than-the-erased-slot"))
	require.NoError(t, err)
	assert.NotEqual(t, idx0, newIdx)
}

func TestInsertFailsWhenFull(t *testing.T) {
	p, err := New(64)
	require.NoError(t, err)
	for {
		if _, err := p.Insert([]byte("0123456789")); err != nil {
			break
		}
	}
	_, err = p.Insert([]byte("one more"))
	assert.Error(t, err)
}

func TestVacuumIsIdempotentWithoutTombstones(t *testing.T) {
	p, err := New(256)
	require.NoError(t, err)
	_, err = p.Insert([]byte("a"))
	require.NoError(t, err)
	_, err = p.Insert([]byte("bb"))
	require.NoError(t, err)

	before := append([]byte(nil), p.Bytes()...)
	p.Vacuum()
	assert.Equal(t, before, p.Bytes())
}

func TestVacuumReclaimsDeletedSpace(t *testing.T) {
	p, err := New(256)
	require.NoError(t, err)
	idx0, err := p.Insert([]byte("keep-me"))
	require.NoError(t, err)
	_, err = p.Insert([]byte("delete-me-too"))
	require.NoError(t, err)

	require.NoError(t, p.Erase(idx0 + 1))
	freeBefore := p.FreeSpace()
	p.Vacuum()
	assert.Greater(t, p.FreeSpace(), freeBefore)
	assert.Equal(t, 1, p.ActiveCount())
	assert.Equal(t, 0, p.DeletedCount())

	got, err := p.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep-me"), got)
}

func TestLoadValidatesMagic(t *testing.T) {
	buf := make([]byte, 64)
	_, err := Load(buf)
	assert.Error(t, err)
}

func TestLoadRoundTripsThroughBytes(t *testing.T) {
	p, err := New(256)
	require.NoError(t, err)
	_, err = p.Insert([]byte("persisted"))
	require.NoError(t, err)

	reloaded, err := Load(p.Bytes())
	require.NoError(t, err)
	got, err := reloaded.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}

func TestIterateSkipsDeletedSlots(t *testing.T) {
	p, err := New(256)
	require.NoError(t, err)
	_, err = p.Insert([]byte("a"))
	require.NoError(t, err)
	idx1, err := p.Insert([]byte("b"))
	require.NoError(t, err)
	_, err = p.Insert([]byte("c"))
	require.NoError(t, err)
	require.NoError(t, p.Erase(idx1))

	var seen []string
	p.Iterate(func(slot int, record []byte) bool {
		seen = append(seen, string(record))
		return true
	})
	assert.Equal(t, []string{"a", "c"}, seen)
}
