package database

import (
	"quelldb/internal/btree"
	"quelldb/internal/catalog"
	"quelldb/internal/page"
	"quelldb/internal/txn"
	"quelldb/internal/types"
	"quelldb/internal/wal"
	"quelldb/pkg/dberr"
)

// insertRecord is step 1-8 of the mutating path for INSERT: validate,
// enforce unique-index constraints, place the row, apply index changes
// (rolling them back locally if one fails), record undo/WAL entries, and
// refresh stats. tx is nil on the recovery and rollback replay paths
// (Redo/Undo), which run outside any transaction.
func (db *Database) insertRecord(table string, rec types.Record, tx *txn.Txn, mode txn.ApplyMode) (types.Slot, error) {
	schema, store, err := db.tableAndStore(table)
	if err != nil {
		return types.Slot{}, err
	}
	ordered, err := rec.ToSchemaOrder(schema)
	if err != nil {
		return types.Slot{}, err
	}
	if err := ordered.ValidateAgainst(schema); err != nil {
		return types.Slot{}, err
	}

	indexes := db.catalog.IndexesOnTable(table)
	if err := db.checkUniqueConstraints(indexes, ordered, ""); err != nil {
		return types.Slot{}, err
	}

	data, err := types.EncodeRow(schema, ordered)
	if err != nil {
		return types.Slot{}, err
	}
	slot, err := db.placeRecord(table, store, data)
	if err != nil {
		return types.Slot{}, err
	}

	if err := db.applyIndexInserts(indexes, ordered, slot); err != nil {
		return types.Slot{}, err
	}

	if mode == txn.ModeNormal {
		after := types.Encode(ordered)
		if tx != nil {
			tx.Record(txn.RecordOp{Kind: wal.Insert, Table: table, Slot: slot, After: after})
		}
		if err := db.wal.Append(wal.Entry{TxnID: txnIDOf(tx), Kind: wal.Insert, Table: table, Slot: slot, After: after}); err != nil {
			return types.Slot{}, err
		}
	}

	if err := db.persistIndexes(indexes); err != nil {
		return types.Slot{}, err
	}
	db.updateStats(table, store)
	return slot, nil
}

// applyIndexInserts inserts rec's key into every index on the table at
// slot. If a later unique index rejects the key, it rolls back the index
// entries already applied in this call and erases the just-placed row;
// the row must not survive in the page once the statement has failed.
func (db *Database) applyIndexInserts(indexes []*catalog.IndexInfo, rec types.Record, slot types.Slot) error {
	applied := make([]indexEdit, 0, len(indexes))
	for _, info := range indexes {
		tree := db.trees[info.Definition.Name]
		key := indexKey(rec, info.Definition.Columns)
		if info.Definition.Unique {
			if err := tree.InsertUnique(key, slot.String()); err != nil {
				rollbackIndexEdits(applied)
				res, fetchErr := db.pool.Fetch(slot.Address, true)
				if fetchErr != nil {
					return fetchErr
				}
				if eraseErr := res.Frame.Page.Erase(slot.Index); eraseErr != nil {
					return eraseErr
				}
				return err
			}
		} else {
			tree.InsertOrAssign(key, slot.String())
		}
		applied = append(applied, indexEdit{tree: tree, key: key, wasInsert: true})
	}
	return nil
}

// updateRecord is the mutating path for UPDATE: re-key affected indexes
// after a unique-constraint precheck (safe in this single-threaded
// engine — no concurrent writer can race the check), rewrite the row in
// place, record undo/WAL entries, and refresh stats.
func (db *Database) updateRecord(table string, slot types.Slot, newRec types.Record, tx *txn.Txn, mode txn.ApplyMode) (types.Slot, error) {
	schema, store, err := db.tableAndStore(table)
	if err != nil {
		return types.Slot{}, err
	}
	res, err := db.pool.Fetch(slot.Address, true)
	if err != nil {
		return types.Slot{}, err
	}
	oldData, err := res.Frame.Page.Get(slot.Index)
	if err != nil {
		return types.Slot{}, err
	}
	oldRec, err := types.DecodeRow(schema, oldData)
	if err != nil {
		return types.Slot{}, err
	}

	ordered, err := newRec.ToSchemaOrder(schema)
	if err != nil {
		return types.Slot{}, err
	}
	if err := ordered.ValidateAgainst(schema); err != nil {
		return types.Slot{}, err
	}

	indexes := db.catalog.IndexesOnTable(table)
	if err := db.checkUniqueConstraints(indexes, ordered, slot.String()); err != nil {
		return types.Slot{}, err
	}

	data, err := types.EncodeRow(schema, ordered)
	if err != nil {
		return types.Slot{}, err
	}
	newIdx, err := res.Frame.Page.Update(slot.Index, data)
	if err != nil {
		return types.Slot{}, err
	}
	newSlot := types.Slot{Address: slot.Address, Index: newIdx}

	applied := make([]indexEdit, 0, len(indexes))
	for _, info := range indexes {
		tree := db.trees[info.Definition.Name]
		oldKey := indexKey(oldRec, info.Definition.Columns)
		newKey := indexKey(ordered, info.Definition.Columns)
		if oldKey == newKey {
			tree.InsertOrAssign(newKey, newSlot.String())
			continue
		}
		if info.Definition.Unique {
			if err := tree.InsertUnique(newKey, newSlot.String()); err != nil {
				rollbackIndexEdits(applied)
				return types.Slot{}, err
			}
		} else {
			tree.InsertOrAssign(newKey, newSlot.String())
		}
		_ = tree.Erase(oldKey)
		applied = append(applied, indexEdit{tree: tree, key: oldKey, oldValue: slot.String(), wasInsert: false})
	}

	if mode == txn.ModeNormal {
		before := types.Encode(oldRec)
		after := types.Encode(ordered)
		if tx != nil {
			tx.Record(txn.RecordOp{Kind: wal.Update, Table: table, Slot: newSlot, Before: before, After: after})
		}
		if err := db.wal.Append(wal.Entry{TxnID: txnIDOf(tx), Kind: wal.Update, Table: table, Slot: newSlot, Before: before, After: after}); err != nil {
			return types.Slot{}, err
		}
	}

	if err := db.persistIndexes(indexes); err != nil {
		return types.Slot{}, err
	}
	db.updateStats(table, store)
	return newSlot, nil
}

// deleteRecord is the mutating path for DELETE: erase the slot, drop its
// index entries (best-effort: a non-unique index may already have lost
// track of this exact slot, see the catalog adapter's unique-only
// restriction), record undo/WAL entries, and refresh stats.
func (db *Database) deleteRecord(table string, slot types.Slot, tx *txn.Txn, mode txn.ApplyMode) error {
	schema, store, err := db.tableAndStore(table)
	if err != nil {
		return err
	}
	res, err := db.pool.Fetch(slot.Address, true)
	if err != nil {
		return err
	}
	data, err := res.Frame.Page.Get(slot.Index)
	if err != nil {
		return err
	}
	rec, err := types.DecodeRow(schema, data)
	if err != nil {
		return err
	}
	if err := res.Frame.Page.Erase(slot.Index); err != nil {
		return err
	}

	indexes := db.catalog.IndexesOnTable(table)
	for _, info := range indexes {
		key := indexKey(rec, info.Definition.Columns)
		_ = db.trees[info.Definition.Name].Erase(key)
	}

	if mode == txn.ModeNormal {
		before := types.Encode(rec)
		if tx != nil {
			tx.Record(txn.RecordOp{Kind: wal.Delete, Table: table, Slot: slot, Before: before})
		}
		if err := db.wal.Append(wal.Entry{TxnID: txnIDOf(tx), Kind: wal.Delete, Table: table, Slot: slot, Before: before}); err != nil {
			return err
		}
	}

	if err := db.persistIndexes(indexes); err != nil {
		return err
	}
	db.updateStats(table, store)
	return nil
}

// checkUniqueConstraints fails with Conflict if any unique index on
// indexes would collide with rec's values. selfSlot (the record's own
// current slot, update-only) lets an UPDATE that doesn't change its
// unique columns pass without tripping over its own entry.
func (db *Database) checkUniqueConstraints(indexes []*catalog.IndexInfo, rec types.Record, selfSlot string) error {
	for _, info := range indexes {
		if !info.Definition.Unique {
			continue
		}
		key := indexKey(rec, info.Definition.Columns)
		if v, found := db.trees[info.Definition.Name].Find(key); found && (selfSlot == "" || v != selfSlot) {
			return dberr.Newf(dberr.Conflict, "unique index %q already has an entry for this value", info.Definition.Name)
		}
	}
	return nil
}

// placeRecord finds a block with room for data, vacuuming in place before
// giving up on a block, and allocates a fresh one as a last resort.
func (db *Database) placeRecord(table string, store interface {
	AllBlockIndexes() []int
	AllocateBlock() (int, error)
}, data []byte) (types.Slot, error) {
	for _, block := range store.AllBlockIndexes() {
		addr := types.BlockAddress{Table: table, Block: block}
		res, err := db.pool.Fetch(addr, true)
		if err != nil {
			return types.Slot{}, err
		}
		if !res.Frame.Page.HasSpaceFor(len(data)) {
			res.Frame.Page.Vacuum()
		}
		if res.Frame.Page.HasSpaceFor(len(data)) {
			idx, err := res.Frame.Page.Insert(data)
			if err != nil {
				return types.Slot{}, err
			}
			return types.Slot{Address: addr, Index: idx}, nil
		}
	}

	blockIdx, err := store.AllocateBlock()
	if err != nil {
		return types.Slot{}, err
	}
	addr := types.BlockAddress{Table: table, Block: blockIdx}
	fresh, err := page.New(db.pageSize)
	if err != nil {
		return types.Slot{}, err
	}
	res, err := db.pool.Fetch(addr, true)
	if err != nil {
		return types.Slot{}, err
	}
	*res.Frame.Page = *fresh
	idx, err := res.Frame.Page.Insert(data)
	if err != nil {
		return types.Slot{}, err
	}
	return types.Slot{Address: addr, Index: idx}, nil
}

// indexEdit records one index mutation for local rollback when a later
// index in the same statement fails its constraint.
type indexEdit struct {
	tree      *btree.Tree
	key       string
	oldValue  string
	wasInsert bool
}

func rollbackIndexEdits(edits []indexEdit) {
	for _, e := range edits {
		if e.wasInsert {
			_ = e.tree.Erase(e.key)
			continue
		}
		e.tree.InsertOrAssign(e.key, e.oldValue)
	}
}

func txnIDOf(tx *txn.Txn) string {
	if tx == nil {
		return ""
	}
	return tx.ID
}
