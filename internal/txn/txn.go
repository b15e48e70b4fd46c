// Package txn implements explicit transaction control: a single active
// transaction at a time, an in-memory undo stack recording every
// mutation it performs, and two-pass WAL-driven crash recovery. It is
// deliberately stripped of the teacher's isolation-level and
// read/write-set conflict machinery (there is exactly one transaction
// active at any moment, so there is nothing to validate against).
package txn

import (
	"quelldb/internal/types"
	"quelldb/internal/wal"
	"quelldb/pkg/dberr"
)

// Status is the lifecycle state of one transaction.
type Status int

const (
	StatusActive Status = iota
	StatusCommitted
	StatusRolledBack
)

// ApplyMode tells the database façade's mutating path how to treat WAL
// and undo bookkeeping for one mutation. It is threaded through as an
// explicit parameter rather than a mutable flag on shared state, so a
// recovery or rollback replay can never leak into, or be interrupted by,
// ordinary request handling.
type ApplyMode int

const (
	// ModeNormal mutations append an undo entry (if a transaction is
	// active) and a WAL entry, exactly like any ordinary statement.
	ModeNormal ApplyMode = iota
	// ModeRecoveryRedo reapplies a committed mutation read back out of
	// the WAL; it must not re-append to the WAL or to any undo stack.
	ModeRecoveryRedo
	// ModeRollback reverts a mutation to its before image, both for an
	// explicit rollback and for recovery's undo pass; it must not
	// re-append to the WAL or to any undo stack.
	ModeRollback
)

// RecordOp describes one mutation to a single record, in the shape
// needed to redo or undo it later: which slot it touched, and its
// canonical field values before and after.
type RecordOp struct {
	Kind   wal.EntryKind
	Table  string
	Slot   types.Slot
	Before []string
	After  []string
}

// Applier is implemented by internal/database: it knows how to turn a
// RecordOp back into a physical page mutation in either direction.
type Applier interface {
	Redo(op RecordOp) error
	Undo(op RecordOp) error
}

// Txn is one transaction: an ordered undo stack of every mutation it has
// performed, applied in reverse on rollback.
type Txn struct {
	ID     string
	Status Status
	undo   []RecordOp
}

// Record appends op to the transaction's undo stack. Callers must not
// call this for mutations made under ModeRecoveryRedo or ModeRollback.
func (t *Txn) Record(op RecordOp) {
	t.undo = append(t.undo, op)
}

// Rollback reverts every mutation this transaction has performed, most
// recent first, via applier.
func (t *Txn) Rollback(applier Applier) error {
	if t.Status != StatusActive {
		return dberr.New(dberr.LogicError, "transaction is not active")
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		if err := applier.Undo(t.undo[i]); err != nil {
			return err
		}
	}
	t.Status = StatusRolledBack
	return nil
}
