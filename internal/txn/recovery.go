package txn

import "quelldb/internal/wal"

// Recover replays entries against applier using the standard two-pass
// algorithm: every mutation belonging to a committed transaction is
// redone in log order, then every mutation belonging to a transaction
// that never reached Commit (the crash happened mid-transaction, so no
// Rollback marker was written either) is undone in reverse log order.
// Transactions that did reach a Rollback marker before the crash need no
// further action: their mutations were already undone live.
func Recover(entries []wal.Entry, applier Applier) error {
	committed := make(map[string]bool)
	rolledBack := make(map[string]bool)
	for _, e := range entries {
		switch e.Kind {
		case wal.Commit:
			committed[e.TxnID] = true
		case wal.Rollback:
			rolledBack[e.TxnID] = true
		}
	}

	for _, e := range entries {
		if !isMutation(e.Kind) || !committed[e.TxnID] {
			continue
		}
		if err := applier.Redo(toRecordOp(e)); err != nil {
			return err
		}
	}

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !isMutation(e.Kind) {
			continue
		}
		if committed[e.TxnID] || rolledBack[e.TxnID] {
			continue
		}
		if err := applier.Undo(toRecordOp(e)); err != nil {
			return err
		}
	}
	return nil
}

func isMutation(k wal.EntryKind) bool {
	return k == wal.Insert || k == wal.Update || k == wal.Delete
}

func toRecordOp(e wal.Entry) RecordOp {
	return RecordOp{
		Kind:   e.Kind,
		Table:  e.Table,
		Slot:   e.Slot,
		Before: e.Before,
		After:  e.After,
	}
}
