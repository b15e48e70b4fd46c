package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quelldb/internal/types"
)

func openLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, err)
	return l
}

func TestAppendThenReopenRecoversEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	l, err := Open(path)
	require.NoError(t, err)

	txnID := NewTxnID()
	slot := types.Slot{Address: types.BlockAddress{Table: "accounts", Block: 2}, Index: 5}
	require.NoError(t, l.Append(Entry{TxnID: txnID, Kind: Begin, Table: "accounts"}))
	require.NoError(t, l.Append(Entry{
		TxnID: txnID, Kind: Insert, Table: "accounts", Slot: slot,
		After: []string{"1", "alice"},
	}))
	require.NoError(t, l.Append(Entry{TxnID: txnID, Kind: Commit, Table: "accounts"}))
	require.NoError(t, l.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	entries := reopened.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, Begin, entries[0].Kind)
	assert.Equal(t, Insert, entries[1].Kind)
	assert.Equal(t, slot, entries[1].Slot)
	assert.Equal(t, []string{"1", "alice"}, entries[1].After)
	assert.Equal(t, Commit, entries[2].Kind)
}

func TestFieldsWithDelimiterCharactersRoundTrip(t *testing.T) {
	l := openLog(t)
	slot := types.Slot{Address: types.BlockAddress{Table: "t", Block: 0}, Index: 0}
	before := []string{"a|b", "c,d", ""}
	require.NoError(t, l.Append(Entry{TxnID: "tx1", Kind: Delete, Table: "t", Slot: slot, Before: before}))

	require.NoError(t, l.Close())
	reopened, err := Open(l.path)
	require.NoError(t, err)
	entries := reopened.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, before, entries[0].Before)
}

func TestClearTruncatesLog(t *testing.T) {
	l := openLog(t)
	require.NoError(t, l.Append(Entry{TxnID: "tx1", Kind: Begin, Table: "t"}))
	require.Len(t, l.Entries(), 1)

	require.NoError(t, l.Clear())
	assert.Empty(t, l.Entries())

	require.NoError(t, l.Close())
	reopened, err := Open(l.path)
	require.NoError(t, err)
	assert.Empty(t, reopened.Entries())
}

func TestOpenRejectsCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	require.NoError(t, appendRaw(path, "not-a-valid-wal-line"))

	_, err = Open(path)
	assert.Error(t, err)
}

func TestNewTxnIDIsUniquePerCall(t *testing.T) {
	a := NewTxnID()
	b := NewTxnID()
	assert.NotEqual(t, a, b)
}

func appendRaw(path, line string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}
