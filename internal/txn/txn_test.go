package txn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quelldb/internal/wal"
)

// fakeApplier records Redo/Undo calls in order so tests can assert on
// replay order without needing a real database.
type fakeApplier struct {
	redone []RecordOp
	undone []RecordOp
	fail   func(op RecordOp, isUndo bool) error
}

func (f *fakeApplier) Redo(op RecordOp) error {
	if f.fail != nil {
		if err := f.fail(op, false); err != nil {
			return err
		}
	}
	f.redone = append(f.redone, op)
	return nil
}

func (f *fakeApplier) Undo(op RecordOp) error {
	if f.fail != nil {
		if err := f.fail(op, true); err != nil {
			return err
		}
	}
	f.undone = append(f.undone, op)
	return nil
}

func openLog(t *testing.T) *wal.Log {
	t.Helper()
	l, err := wal.Open(filepath.Join(t.TempDir(), "wal.log"))
	require.NoError(t, err)
	return l
}

func TestManagerAllowsOnlyOneActiveTransaction(t *testing.T) {
	mgr := NewManager(openLog(t))
	_, err := mgr.Begin()
	require.NoError(t, err)

	_, err = mgr.Begin()
	assert.Error(t, err)
}

func TestCommitClearsActiveTransaction(t *testing.T) {
	mgr := NewManager(openLog(t))
	tx, err := mgr.Begin()
	require.NoError(t, err)

	require.NoError(t, mgr.Commit(tx))
	_, ok := mgr.Current()
	assert.False(t, ok)
	assert.Equal(t, StatusCommitted, tx.Status)
}

func TestRollbackUndoesInReverseOrder(t *testing.T) {
	mgr := NewManager(openLog(t))
	tx, err := mgr.Begin()
	require.NoError(t, err)

	tx.Record(RecordOp{Kind: wal.Insert, Table: "t", After: []string{"1"}})
	tx.Record(RecordOp{Kind: wal.Insert, Table: "t", After: []string{"2"}})

	applier := &fakeApplier{}
	require.NoError(t, mgr.Rollback(tx, applier))

	require.Len(t, applier.undone, 2)
	assert.Equal(t, []string{"2"}, applier.undone[0].After)
	assert.Equal(t, []string{"1"}, applier.undone[1].After)
	assert.Equal(t, StatusRolledBack, tx.Status)

	_, ok := mgr.Current()
	assert.False(t, ok)
}

func TestCommitRejectsInactiveTransaction(t *testing.T) {
	mgr := NewManager(openLog(t))
	tx := &Txn{ID: "ghost", Status: StatusActive}
	err := mgr.Commit(tx)
	assert.Error(t, err)
}

func TestRecoverRedoesCommittedAndUndoesUnfinished(t *testing.T) {
	entries := []wal.Entry{
		{TxnID: "tx1", Kind: wal.Begin},
		{TxnID: "tx1", Kind: wal.Insert, Table: "t", After: []string{"a"}},
		{TxnID: "tx1", Kind: wal.Commit},

		{TxnID: "tx2", Kind: wal.Begin},
		{TxnID: "tx2", Kind: wal.Insert, Table: "t", After: []string{"b"}},
		{TxnID: "tx2", Kind: wal.Update, Table: "t", Before: []string{"b"}, After: []string{"c"}},
		// tx2 never commits or rolls back: crash happened mid-transaction.
	}

	applier := &fakeApplier{}
	require.NoError(t, Recover(entries, applier))

	require.Len(t, applier.redone, 1)
	assert.Equal(t, []string{"a"}, applier.redone[0].After)

	require.Len(t, applier.undone, 2)
	assert.Equal(t, wal.Update, applier.undone[0].Kind)
	assert.Equal(t, wal.Insert, applier.undone[1].Kind)
}

func TestRecoverSkipsTransactionsAlreadyRolledBack(t *testing.T) {
	entries := []wal.Entry{
		{TxnID: "tx1", Kind: wal.Begin},
		{TxnID: "tx1", Kind: wal.Insert, Table: "t", After: []string{"a"}},
		{TxnID: "tx1", Kind: wal.Rollback},
	}

	applier := &fakeApplier{}
	require.NoError(t, Recover(entries, applier))
	assert.Empty(t, applier.redone)
	assert.Empty(t, applier.undone, "already-rolled-back mutations were undone live, recovery must not redo that work")
}

func TestRecoverPropagatesApplierError(t *testing.T) {
	entries := []wal.Entry{
		{TxnID: "tx1", Kind: wal.Begin},
		{TxnID: "tx1", Kind: wal.Insert, Table: "t", After: []string{"a"}},
		{TxnID: "tx1", Kind: wal.Commit},
	}
	boom := assert.AnError
	applier := &fakeApplier{fail: func(op RecordOp, isUndo bool) error { return boom }}

	err := Recover(entries, applier)
	assert.ErrorIs(t, err, boom)
}
