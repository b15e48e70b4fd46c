// Package database is the engine's façade: it wires the buffer pool, disk
// stores, write-ahead log, catalog, B+Tree indexes, and transaction
// manager into one open storage root, and exposes the mutating path and
// SQL statement dispatch everything else in the engine goes through.
package database

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"quelldb/internal/btree"
	"quelldb/internal/buffer"
	"quelldb/internal/catalog"
	"quelldb/internal/disk"
	"quelldb/internal/txn"
	"quelldb/internal/types"
	"quelldb/internal/wal"
	"quelldb/pkg/dberr"
)

const (
	defaultPageSize     = 4096
	defaultPoolCapacity = 256
	defaultIndexKeyLen  = 64
)

// Database owns every live resource backing one storage root: a buffer
// pool shared across tables, one disk.TableStore per table, the
// write-ahead log, the catalog, one btree.Tree per index, and the
// single-active-transaction manager.
type Database struct {
	rootDir  string
	pageSize int
	log      *logrus.Logger

	pool    *buffer.Pool
	stores  map[string]*disk.TableStore
	wal     *wal.Log
	catalog *catalog.Catalog
	trees   map[string]*btree.Tree
	txns    *txn.Manager
}

// Open opens (creating if necessary) the database rooted at rootDir: it
// loads the catalog, wires table stores and index trees into the buffer
// pool, and replays the write-ahead log via txn.Recover before accepting
// any statement.
func Open(rootDir string) (*Database, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, dberr.Wrapf(dberr.Corrupted, err, "creating storage root %q", rootDir)
	}
	logsDir := filepath.Join(rootDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, dberr.Wrapf(dberr.Corrupted, err, "creating logs directory")
	}
	if err := os.MkdirAll(filepath.Join(rootDir, "indexes"), 0o755); err != nil {
		return nil, dberr.Wrapf(dberr.Corrupted, err, "creating indexes directory")
	}

	cat, err := catalog.Open(rootDir)
	if err != nil {
		return nil, err
	}

	pool, err := buffer.New(defaultPoolCapacity, defaultPageSize)
	if err != nil {
		return nil, err
	}

	walLog, err := wal.Open(filepath.Join(logsDir, "wal.log"))
	if err != nil {
		return nil, err
	}

	db := &Database{
		rootDir:  rootDir,
		pageSize: defaultPageSize,
		log:      newLogger(),
		pool:     pool,
		stores:   make(map[string]*disk.TableStore),
		wal:      walLog,
		catalog:  cat,
		trees:    make(map[string]*btree.Tree),
	}
	db.txns = txn.NewManager(walLog)

	for _, name := range cat.ListTables() {
		store, err := disk.Open(rootDir, name, defaultPageSize)
		if err != nil {
			return nil, err
		}
		db.stores[name] = store
		pool.RegisterTable(name, store)

		for _, info := range cat.IndexesOnTable(name) {
			tree, err := db.loadOrCreateTree(info.Definition)
			if err != nil {
				return nil, err
			}
			db.trees[info.Definition.Name] = tree
		}
	}

	if err := txn.Recover(walLog.Entries(), db); err != nil {
		return nil, dberr.Wrap(dberr.Corrupted, err, "replaying write-ahead log")
	}
	if err := walLog.Clear(); err != nil {
		return nil, err
	}

	db.log.WithField("root", rootDir).Info("database opened")
	return db, nil
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

func (db *Database) loadOrCreateTree(def catalog.IndexDefinition) (*btree.Tree, error) {
	keyLen := def.KeyLength
	if keyLen <= 0 {
		keyLen = defaultIndexKeyLen
	}
	path := db.indexPath(def.Name)
	if _, err := os.Stat(path); err == nil {
		return btree.LoadFromFile(path, db.pageSize, keyLen)
	}
	return btree.New(db.pageSize, keyLen), nil
}

func (db *Database) indexPath(name string) string {
	return filepath.Join(db.rootDir, "indexes", name+".idx")
}

// Close flushes every dirty buffer-pool frame and closes the write-ahead
// log. Index files are already current on disk: CreateIndex and every
// mutating-path call persist their affected trees before returning.
func (db *Database) Close() error {
	if err := db.pool.Flush(); err != nil {
		return err
	}
	return db.wal.Close()
}

// CreateTable registers a new table and opens its (initially empty)
// block-file store.
func (db *Database) CreateTable(schema types.TableSchema) error {
	if err := db.catalog.CreateTable(schema); err != nil {
		return err
	}
	store, err := disk.Open(db.rootDir, schema.Name, db.pageSize)
	if err != nil {
		return err
	}
	db.stores[schema.Name] = store
	db.pool.RegisterTable(schema.Name, store)
	db.log.WithField("table", schema.Name).Info("table created")
	return nil
}

// CreateIndex registers a new index and backfills it from the table's
// current contents.
func (db *Database) CreateIndex(def catalog.IndexDefinition) error {
	if def.KeyLength <= 0 {
		def.KeyLength = defaultIndexKeyLen
	}
	if err := db.catalog.CreateIndex(def); err != nil {
		return err
	}

	tree := btree.New(db.pageSize, def.KeyLength)
	entries := 0
	err := db.iterateTable(def.Table, func(slot types.Slot, rec types.Record) error {
		key := indexKey(rec, def.Columns)
		if def.Unique {
			if err := tree.InsertUnique(key, slot.String()); err != nil {
				return dberr.Wrapf(dberr.Conflict, err, "backfilling unique index %q", def.Name)
			}
		} else {
			tree.InsertOrAssign(key, slot.String())
		}
		entries++
		return nil
	})
	if err != nil {
		_ = db.catalog.DropIndex(def.Name)
		return err
	}

	if err := tree.SaveToFile(db.indexPath(def.Name)); err != nil {
		_ = db.catalog.DropIndex(def.Name)
		return err
	}
	db.trees[def.Name] = tree
	if entries > 0 {
		db.catalog.SetEntriesPerPage(def.Name, entries)
	}
	db.log.WithFields(logrus.Fields{"index": def.Name, "table": def.Table, "entries": entries}).Info("index created")
	return nil
}

// Describe renders the catalog's human-readable table/index summary.
func (db *Database) Describe() string { return db.catalog.Describe() }

// Begin starts a new explicit transaction.
func (db *Database) Begin() (*txn.Txn, error) { return db.txns.Begin() }

// Commit finalizes tx.
func (db *Database) Commit(tx *txn.Txn) error { return db.txns.Commit(tx) }

// Rollback reverts and finalizes tx.
func (db *Database) Rollback(tx *txn.Txn) error { return db.txns.Rollback(tx, db) }

// CurrentTxn returns the currently active explicit transaction, if any.
func (db *Database) CurrentTxn() (*txn.Txn, bool) { return db.txns.Current() }

func (db *Database) tableAndStore(table string) (*types.TableSchema, *disk.TableStore, error) {
	info, err := db.catalog.Table(table)
	if err != nil {
		return nil, nil, err
	}
	store, ok := db.stores[table]
	if !ok {
		return nil, nil, dberr.Newf(dberr.NotFound, "no block store open for table %q", table)
	}
	return &info.Schema, store, nil
}

func (db *Database) updateStats(table string, store *disk.TableStore) {
	recordCount := 0
	_ = db.iterateTable(table, func(types.Slot, types.Record) error {
		recordCount++
		return nil
	})
	_ = db.catalog.UpdateStats(table, recordCount, store.NumBlocks(), db.pageSize)
}

func (db *Database) persistIndexes(indexes []*catalog.IndexInfo) error {
	for _, info := range indexes {
		tree, ok := db.trees[info.Definition.Name]
		if !ok {
			continue
		}
		if err := tree.SaveToFile(db.indexPath(info.Definition.Name)); err != nil {
			return err
		}
	}
	return nil
}

// iterateTable walks every live record of table in block/slot order.
func (db *Database) iterateTable(table string, fn func(slot types.Slot, rec types.Record) error) error {
	schema, store, err := db.tableAndStore(table)
	if err != nil {
		return err
	}
	for _, block := range store.AllBlockIndexes() {
		addr := types.BlockAddress{Table: table, Block: block}
		res, err := db.pool.Fetch(addr, false)
		if err != nil {
			return err
		}
		var iterErr error
		res.Frame.Page.Iterate(func(idx int, data []byte) bool {
			rec, err := types.DecodeRow(schema, data)
			if err != nil {
				iterErr = err
				return false
			}
			if err := fn(types.Slot{Address: addr, Index: idx}, rec); err != nil {
				iterErr = err
				return false
			}
			return true
		})
		if iterErr != nil {
			return iterErr
		}
	}
	return nil
}

// catalogAdapter exposes the subset of catalog behavior physical.Lower
// needs, without physical depending on the catalog package directly.
// EqualityIndexOn only ever reports unique indexes: internal/btree.Tree
// stores one value per key, so an equality-eligible IndexScan would
// silently return just the most recently inserted match for a
// non-unique index.
type catalogAdapter struct{ db *Database }

func (c catalogAdapter) BlockCountOf(table string) int {
	info, err := c.db.catalog.Table(table)
	if err != nil {
		return 0
	}
	return info.BlockCount
}

func (c catalogAdapter) EqualityIndexOn(table, column string) (string, bool) {
	for _, info := range c.db.catalog.IndexesOnTable(table) {
		def := info.Definition
		if def.Unique && len(def.Columns) == 1 && def.Columns[0] == column {
			return def.Name, true
		}
	}
	return "", false
}

func indexKey(rec types.Record, cols []string) string {
	var b []byte
	for i, c := range cols {
		if i > 0 {
			b = append(b, '\x1f')
		}
		v, _ := rec.Get(c)
		b = append(b, v.CanonicalString()...)
	}
	return string(b)
}
