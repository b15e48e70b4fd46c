package txn

import (
	"sync"

	"quelldb/internal/wal"
	"quelldb/pkg/dberr"
)

// Manager owns at most one active transaction at a time and ties its
// lifecycle to the write-ahead log's Begin/Commit/Rollback markers.
type Manager struct {
	mu     sync.Mutex
	active *Txn
	log    *wal.Log
}

// NewManager builds a Manager writing transaction boundaries to log.
func NewManager(log *wal.Log) *Manager {
	return &Manager{log: log}
}

// Begin starts a new transaction, failing with Conflict if one is
// already active (this engine supports exactly one at a time).
func (m *Manager) Begin() (*Txn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return nil, dberr.New(dberr.Conflict, "a transaction is already active")
	}
	id := wal.NewTxnID()
	if err := m.log.Append(wal.Entry{TxnID: id, Kind: wal.Begin}); err != nil {
		return nil, err
	}
	tx := &Txn{ID: id, Status: StatusActive}
	m.active = tx
	return tx, nil
}

// Current returns the active transaction, if any.
func (m *Manager) Current() (*Txn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != nil
}

// Commit finalizes tx, which must be the currently active transaction.
func (m *Manager) Commit(tx *Txn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != tx {
		return dberr.New(dberr.LogicError, "commit called on a transaction that is not active")
	}
	if err := m.log.Append(wal.Entry{TxnID: tx.ID, Kind: wal.Commit}); err != nil {
		return err
	}
	tx.Status = StatusCommitted
	m.active = nil
	return nil
}

// Rollback reverts and finalizes tx via applier, which must be the
// currently active transaction.
func (m *Manager) Rollback(tx *Txn, applier Applier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != tx {
		return dberr.New(dberr.LogicError, "rollback called on a transaction that is not active")
	}
	if err := tx.Rollback(applier); err != nil {
		return err
	}
	if err := m.log.Append(wal.Entry{TxnID: tx.ID, Kind: wal.Rollback}); err != nil {
		return err
	}
	m.active = nil
	return nil
}
