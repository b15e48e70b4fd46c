package exec

import (
	"strconv"
	"strings"

	"quelldb/internal/btree"
	"quelldb/internal/buffer"
	"quelldb/internal/disk"
	"quelldb/internal/types"
	"quelldb/pkg/dberr"
)

// TableScan walks every block of a table in block order, yielding every
// live record via the buffer pool.
type TableScan struct {
	table  string
	alias  string
	schema *types.TableSchema
	pool   *buffer.Pool
	store  *disk.TableStore

	rowSchema RowSchema

	curBlock int
	curSlot  int
	curPage  *buffer.Frame
}

// NewTableScan builds a scan over table, addressed downstream as alias
// (defaulting to table itself).
func NewTableScan(table, alias string, schema *types.TableSchema, pool *buffer.Pool, store *disk.TableStore) *TableScan {
	if alias == "" {
		alias = table
	}
	rs := make(RowSchema, len(schema.Columns))
	for i, c := range schema.Columns {
		rs[i] = ColumnSchema{Table: alias, Name: c.Name}
	}
	return &TableScan{table: table, alias: alias, schema: schema, pool: pool, store: store, rowSchema: rs}
}

func (s *TableScan) Schema() RowSchema { return s.rowSchema }

func (s *TableScan) Open() error {
	s.curBlock = 0
	s.curSlot = 0
	s.curPage = nil
	return nil
}

func (s *TableScan) Next() (Row, bool, error) {
	for {
		if s.curPage == nil {
			if s.curBlock >= s.store.NumBlocks() {
				return Row{}, false, nil
			}
			addr := types.BlockAddress{Table: s.table, Block: s.curBlock}
			res, err := s.pool.Fetch(addr, false)
			if err != nil {
				return Row{}, false, err
			}
			s.curPage = res.Frame
			s.curSlot = 0
		}

		for s.curSlot < s.curPage.Page.SlotCount() {
			idx := s.curSlot
			s.curSlot++
			data, err := s.curPage.Page.Get(idx)
			if err != nil {
				continue // deleted slot
			}
			rec, err := types.DecodeRow(s.schema, data)
			if err != nil {
				return Row{}, false, err
			}
			slot := types.Slot{Address: types.BlockAddress{Table: s.table, Block: s.curBlock}, Index: idx}
			return Row{Values: valuesOf(rec), Slot: &slot}, true, nil
		}

		s.curBlock++
		s.curPage = nil
	}
}

func (s *TableScan) Close() error { return nil }

func valuesOf(rec types.Record) []types.Value { return cloneValues(rec.Vals) }

// IndexScan fetches the single record (if any) whose indexed column
// equals a fixed literal, via a B+Tree lookup instead of a full scan.
type IndexScan struct {
	table  string
	alias  string
	schema *types.TableSchema
	pool   *buffer.Pool
	tree   *btree.Tree
	key    string

	rowSchema RowSchema
	done      bool
}

// NewIndexScan builds an equality lookup against tree for key (the
// literal's canonical string form).
func NewIndexScan(table, alias string, schema *types.TableSchema, pool *buffer.Pool, tree *btree.Tree, key string) *IndexScan {
	if alias == "" {
		alias = table
	}
	rs := make(RowSchema, len(schema.Columns))
	for i, c := range schema.Columns {
		rs[i] = ColumnSchema{Table: alias, Name: c.Name}
	}
	return &IndexScan{table: table, alias: alias, schema: schema, pool: pool, tree: tree, key: key, rowSchema: rs}
}

func (s *IndexScan) Schema() RowSchema { return s.rowSchema }

func (s *IndexScan) Open() error {
	s.done = false
	return nil
}

func (s *IndexScan) Next() (Row, bool, error) {
	if s.done {
		return Row{}, false, nil
	}
	s.done = true

	value, found := s.tree.Find(s.key)
	if !found {
		return Row{}, false, nil
	}
	slot, err := ParseSlot(value)
	if err != nil {
		return Row{}, false, err
	}
	res, err := s.pool.Fetch(slot.Address, false)
	if err != nil {
		return Row{}, false, err
	}
	data, err := res.Frame.Page.Get(slot.Index)
	if err != nil {
		return Row{}, false, dberr.Wrapf(dberr.Corrupted, err, "index %q points at a missing record", s.key)
	}
	rec, err := types.DecodeRow(s.schema, data)
	if err != nil {
		return Row{}, false, err
	}
	return Row{Values: valuesOf(rec), Slot: &slot}, true, nil
}

func (s *IndexScan) Close() error { return nil }

// ParseSlot parses the "table:block#index" form produced by
// types.Slot.String, the encoding stored as B+Tree index values.
func ParseSlot(s string) (types.Slot, error) {
	addrPart, idxPart, ok := strings.Cut(s, "#")
	if !ok {
		return types.Slot{}, dberr.Newf(dberr.Corrupted, "malformed slot reference %q", s)
	}
	table, blockStr, ok := strings.Cut(addrPart, ":")
	if !ok {
		return types.Slot{}, dberr.Newf(dberr.Corrupted, "malformed slot reference %q", s)
	}
	block, err := strconv.Atoi(blockStr)
	if err != nil {
		return types.Slot{}, dberr.Wrapf(dberr.Corrupted, err, "parsing slot block index")
	}
	idx, err := strconv.Atoi(idxPart)
	if err != nil {
		return types.Slot{}, dberr.Wrapf(dberr.Corrupted, err, "parsing slot index")
	}
	return types.Slot{Address: types.BlockAddress{Table: table, Block: block}, Index: idx}, nil
}
