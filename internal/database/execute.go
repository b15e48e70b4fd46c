package database

import (
	"strings"

	"quelldb/internal/exec"
	"quelldb/internal/expr"
	"quelldb/internal/physical"
	"quelldb/internal/plan"
	"quelldb/internal/sql"
	"quelldb/internal/txn"
	"quelldb/internal/types"
	"quelldb/pkg/dberr"
)

// Result is the outcome of one Execute call. A query populates Columns
// and Rows (possibly zero rows, never a nil Columns slice); a mutation
// leaves them nil and reports RowsAffected instead.
type Result struct {
	Columns      []string
	Rows         [][]types.Value
	RowsAffected int
	IsQuery      bool
}

// Execute parses and runs one SQL statement, or one of the BEGIN/COMMIT/
// ROLLBACK transaction-control keywords, against db. It is the engine's
// single entry point from a client: cmd/quelldbd and the façade's own
// tests both go through here rather than touching the mutating path or
// the exec package directly.
func (db *Database) Execute(sqlText string) (*Result, error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sqlText), ";"))
	if res, handled, err := db.executeTxnControl(trimmed); handled {
		return res, err
	}

	stmt, err := sql.Parse(sqlText)
	if err != nil {
		return nil, err
	}
	switch s := stmt.(type) {
	case *sql.SelectStmt:
		return db.executeSelect(s)
	case *sql.InsertStmt:
		return db.executeInsert(s)
	case *sql.UpdateStmt:
		return db.executeUpdate(s)
	case *sql.DeleteStmt:
		return db.executeDelete(s)
	default:
		return nil, dberr.Newf(dberr.LogicError, "unrecognized statement type %T", stmt)
	}
}

// executeTxnControl recognizes BEGIN/COMMIT/ROLLBACK ahead of the SQL
// parser, which only knows SELECT/INSERT/UPDATE/DELETE.
func (db *Database) executeTxnControl(trimmed string) (*Result, bool, error) {
	switch strings.ToLower(firstWord(trimmed)) {
	case "begin", "start":
		_, err := db.Begin()
		return &Result{}, true, err
	case "commit":
		tx, ok := db.CurrentTxn()
		if !ok {
			return nil, true, dberr.New(dberr.LogicError, "no active transaction to commit")
		}
		return &Result{}, true, db.Commit(tx)
	case "rollback":
		tx, ok := db.CurrentTxn()
		if !ok {
			return nil, true, dberr.New(dberr.LogicError, "no active transaction to roll back")
		}
		return &Result{}, true, db.Rollback(tx)
	default:
		return nil, false, nil
	}
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// withTxn runs fn under the currently active explicit transaction, if
// the caller already opened one with BEGIN, leaving its lifecycle under
// their control. Otherwise it synthesizes an implicit transaction around
// fn alone, committing on success and rolling back on any error, so a
// bare INSERT/UPDATE/DELETE is still atomic and crash-recoverable.
func (db *Database) withTxn(fn func(tx *txn.Txn) error) error {
	if tx, ok := db.CurrentTxn(); ok {
		return fn(tx)
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = db.Rollback(tx)
		return err
	}
	return db.Commit(tx)
}

// execContext builds the exec.Context spanning every table and index
// currently open, so any plan physical.Lower produces (including joins
// across tables the statement names) can be built into an operator tree.
func (db *Database) execContext() *exec.Context {
	schemas := make(map[string]*types.TableSchema, len(db.stores))
	for name := range db.stores {
		if info, err := db.catalog.Table(name); err == nil {
			schemas[name] = &info.Schema
		}
	}
	return &exec.Context{Pool: db.pool, Schemas: schemas, Stores: db.stores, Trees: db.trees}
}

func (db *Database) executeSelect(stmt *sql.SelectStmt) (*Result, error) {
	logical, err := plan.Build(stmt)
	if err != nil {
		return nil, err
	}
	logical = plan.Optimize(logical)
	physNode, err := physical.Lower(logical, catalogAdapter{db})
	if err != nil {
		return nil, err
	}
	op, err := exec.Build(physNode, db.execContext())
	if err != nil {
		return nil, err
	}
	if err := op.Open(); err != nil {
		return nil, err
	}
	defer op.Close()

	schema := op.Schema()
	cols := make([]string, len(schema))
	for i, cs := range schema {
		cols[i] = cs.Name
	}

	rows := make([][]types.Value, 0)
	for {
		row, ok, err := op.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, row.Values)
	}
	return &Result{Columns: cols, Rows: rows, IsQuery: true}, nil
}

func (db *Database) executeInsert(stmt *sql.InsertStmt) (*Result, error) {
	schema, _, err := db.tableAndStore(stmt.Table)
	if err != nil {
		return nil, err
	}
	cols := stmt.Columns
	if len(cols) == 0 {
		cols = make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			cols[i] = c.Name
		}
	}

	env := expr.NewRecordEnv("", types.Record{})
	affected := 0
	err = db.withTxn(func(tx *txn.Txn) error {
		for _, rowExprs := range stmt.Rows {
			if len(rowExprs) != len(cols) {
				return dberr.Newf(dberr.InvalidArgument, "INSERT into %q expects %d values, got %d",
					stmt.Table, len(cols), len(rowExprs))
			}
			rec := types.Record{Cols: make([]string, len(cols)), Vals: make([]types.Value, len(cols))}
			for i, e := range rowExprs {
				v, err := expr.Eval(e, env)
				if err != nil {
					return err
				}
				rec.Cols[i] = cols[i]
				rec.Vals[i] = v
			}
			if _, err := db.insertRecord(stmt.Table, rec, tx, txn.ModeNormal); err != nil {
				return err
			}
			affected++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{RowsAffected: affected}, nil
}

func (db *Database) executeUpdate(stmt *sql.UpdateStmt) (*Result, error) {
	matches, err := db.scanMatches(stmt.Table, stmt.Where)
	if err != nil {
		return nil, err
	}

	affected := 0
	err = db.withTxn(func(tx *txn.Txn) error {
		for _, m := range matches {
			rec := m.rec.Clone()
			env := expr.NewRecordEnv(stmt.Table, rec)
			for _, a := range stmt.Assignments {
				v, err := expr.Eval(a.Value, env)
				if err != nil {
					return err
				}
				rec.Set(a.Column, v)
			}
			if _, err := db.updateRecord(stmt.Table, m.slot, rec, tx, txn.ModeNormal); err != nil {
				return err
			}
			affected++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{RowsAffected: affected}, nil
}

func (db *Database) executeDelete(stmt *sql.DeleteStmt) (*Result, error) {
	matches, err := db.scanMatches(stmt.Table, stmt.Where)
	if err != nil {
		return nil, err
	}

	affected := 0
	err = db.withTxn(func(tx *txn.Txn) error {
		for _, m := range matches {
			if err := db.deleteRecord(stmt.Table, m.slot, tx, txn.ModeNormal); err != nil {
				return err
			}
			affected++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{RowsAffected: affected}, nil
}

// matchedRow pairs a live record with the physical slot it was read
// from, so UPDATE and DELETE can feed it straight into the mutating
// path without rescanning.
type matchedRow struct {
	slot types.Slot
	rec  types.Record
}

// scanMatches plans table+where directly as Scan (optionally wrapped in
// Select), bypassing plan.Build's always-present Projection stage: a
// Projection never carries a row's Slot through (see exec.Projection),
// and UPDATE/DELETE need it to locate the physical record to mutate.
// Lowering still goes through physical.Lower, so an equality predicate
// on an indexed column is served by an IndexScan exactly as in SELECT.
func (db *Database) scanMatches(table string, where *expr.Node) ([]matchedRow, error) {
	schema, _, err := db.tableAndStore(table)
	if err != nil {
		return nil, err
	}

	logical := &plan.Node{Op: plan.OpScan, Table: table}
	if where != nil {
		logical = &plan.Node{Op: plan.OpSelect, Input: logical, Predicate: where}
	}
	physNode, err := physical.Lower(logical, catalogAdapter{db})
	if err != nil {
		return nil, err
	}
	op, err := exec.Build(physNode, db.execContext())
	if err != nil {
		return nil, err
	}
	if err := op.Open(); err != nil {
		return nil, err
	}
	defer op.Close()

	var out []matchedRow
	for {
		row, ok, err := op.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if row.Slot == nil {
			return nil, dberr.New(dberr.LogicError, "update/delete scan produced a row with no physical slot")
		}
		rec := types.Record{Cols: make([]string, len(schema.Columns)), Vals: row.Values}
		for i, c := range schema.Columns {
			rec.Cols[i] = c.Name
		}
		out = append(out, matchedRow{slot: *row.Slot, rec: rec})
	}
	return out, nil
}
