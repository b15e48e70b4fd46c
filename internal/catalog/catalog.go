// Package catalog tracks table and index metadata, persisted as line-
// oriented text files under the storage root's meta/ directory, and
// enforces a soft byte-capacity budget that flags overflow without
// rejecting writes.
package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"quelldb/internal/types"
	"quelldb/pkg/dberr"
)

// IndexDefinition names the table, the projected columns, and the
// uniqueness constraint of one secondary index.
type IndexDefinition struct {
	Name      string
	Table     string
	Columns   []string
	Unique    bool
	KeyLength int
}

// TableInfo is the catalog's live view of one table: its schema plus
// running statistics maintained by the database façade after every
// mutation.
type TableInfo struct {
	Schema      types.TableSchema
	RecordCount int
	BlockCount  int
}

// IndexInfo is the catalog's live view of one index.
type IndexInfo struct {
	Definition    IndexDefinition
	EntriesPerPage int
}

// defaultByteBudget is a soft capacity limit: Catalog tracks estimated bytes
// used and flags, but never rejects, writes past the budget.
const defaultByteBudget = 256 * 1024 * 1024

// Catalog is the engine's in-memory metadata store, mirrored to
// meta/schemas.meta and meta/indexes.meta on every change.
type Catalog struct {
	mu          sync.RWMutex
	rootDir     string
	tables      map[string]*TableInfo
	indexes     map[string]*IndexInfo
	byteBudget  int64
	bytesUsed   int64
	overBudget  bool
}

// Open loads (or initializes) the catalog rooted at rootDir/meta.
func Open(rootDir string) (*Catalog, error) {
	c := &Catalog{
		rootDir:    rootDir,
		tables:     make(map[string]*TableInfo),
		indexes:    make(map[string]*IndexInfo),
		byteBudget: defaultByteBudget,
	}
	if err := os.MkdirAll(filepath.Join(rootDir, "meta"), 0o755); err != nil {
		return nil, dberr.Wrapf(dberr.Corrupted, err, "creating meta directory")
	}
	if err := c.loadSchemas(); err != nil {
		return nil, err
	}
	if err := c.loadIndexes(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) schemasPath() string { return filepath.Join(c.rootDir, "meta", "schemas.meta") }
func (c *Catalog) indexesPath() string { return filepath.Join(c.rootDir, "meta", "indexes.meta") }

// CreateTable registers a new table schema, failing with Conflict if a
// table of that name already exists.
func (c *Catalog) CreateTable(schema types.TableSchema) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tables[schema.Name]; exists {
		return dberr.Newf(dberr.Conflict, "table %q already exists", schema.Name)
	}
	if err := schema.Validate(); err != nil {
		return err
	}
	c.tables[schema.Name] = &TableInfo{Schema: schema}
	return c.persistSchemas()
}

// Table returns the TableInfo for name, or NotFound.
func (c *Catalog) Table(name string) (*TableInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	if !ok {
		return nil, dberr.Newf(dberr.NotFound, "table %q does not exist", name)
	}
	return t, nil
}

// AddColumn appends a new column to table's schema, to be used with a
// default NULL for every existing record.
func (c *Catalog) AddColumn(table string, col types.ColumnDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[table]
	if !ok {
		return dberr.Newf(dberr.NotFound, "table %q does not exist", table)
	}
	if t.Schema.ColumnIndex(col.Name) >= 0 {
		return dberr.Newf(dberr.Conflict, "column %q already exists on table %q", col.Name, table)
	}
	t.Schema.Columns = append(t.Schema.Columns, col)
	return c.persistSchemas()
}

// DropColumn removes a column from table's schema.
func (c *Catalog) DropColumn(table, column string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[table]
	if !ok {
		return dberr.Newf(dberr.NotFound, "table %q does not exist", table)
	}
	i := t.Schema.ColumnIndex(column)
	if i < 0 {
		return dberr.Newf(dberr.NotFound, "column %q does not exist on table %q", column, table)
	}
	t.Schema.Columns = append(t.Schema.Columns[:i], t.Schema.Columns[i+1:]...)
	return c.persistSchemas()
}

// RenameTable renames a table and every index defined over it.
func (c *Catalog) RenameTable(oldName, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[oldName]
	if !ok {
		return dberr.Newf(dberr.NotFound, "table %q does not exist", oldName)
	}
	if _, exists := c.tables[newName]; exists {
		return dberr.Newf(dberr.Conflict, "table %q already exists", newName)
	}
	t.Schema.Name = newName
	c.tables[newName] = t
	delete(c.tables, oldName)
	for _, info := range c.indexes {
		if info.Definition.Table == oldName {
			info.Definition.Table = newName
		}
	}
	if err := c.persistSchemas(); err != nil {
		return err
	}
	return c.persistIndexes()
}

// ListTables returns every registered table name.
func (c *Catalog) ListTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tables))
	for n := range c.tables {
		out = append(out, n)
	}
	return out
}

// DropTable removes a table and every index defined over it.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; !ok {
		return dberr.Newf(dberr.NotFound, "table %q does not exist", name)
	}
	delete(c.tables, name)
	for idxName, info := range c.indexes {
		if info.Definition.Table == name {
			delete(c.indexes, idxName)
		}
	}
	if err := c.persistSchemas(); err != nil {
		return err
	}
	return c.persistIndexes()
}

// UpdateStats records the current record/block counts for a table after
// a mutation, and updates the soft byte budget tracking.
func (c *Catalog) UpdateStats(table string, recordCount, blockCount, pageSize int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[table]
	if !ok {
		return dberr.Newf(dberr.NotFound, "table %q does not exist", table)
	}
	prevBytes := int64(t.BlockCount) * int64(pageSize)
	t.RecordCount = recordCount
	t.BlockCount = blockCount
	newBytes := int64(blockCount) * int64(pageSize)
	c.bytesUsed += newBytes - prevBytes
	c.overBudget = c.bytesUsed > c.byteBudget
	return nil
}

// OverBudget reports whether the catalog's tracked byte usage currently
// exceeds the soft capacity budget. Writes are never rejected for this;
// callers may surface it as a warning.
func (c *Catalog) OverBudget() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.overBudget
}

// CreateIndex registers a new index definition.
func (c *Catalog) CreateIndex(def IndexDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.indexes[def.Name]; exists {
		return dberr.Newf(dberr.Conflict, "index %q already exists", def.Name)
	}
	if _, ok := c.tables[def.Table]; !ok {
		return dberr.Newf(dberr.NotFound, "table %q does not exist", def.Table)
	}
	if len(def.Columns) == 0 {
		return dberr.New(dberr.InvalidArgument, "index requires at least one column")
	}
	c.indexes[def.Name] = &IndexInfo{Definition: def}
	return c.persistIndexes()
}

// DropIndex removes an index definition.
func (c *Catalog) DropIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.indexes[name]; !ok {
		return dberr.Newf(dberr.NotFound, "index %q does not exist", name)
	}
	delete(c.indexes, name)
	return c.persistIndexes()
}

// Index returns the IndexInfo for name, or NotFound.
func (c *Catalog) Index(name string) (*IndexInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.indexes[name]
	if !ok {
		return nil, dberr.Newf(dberr.NotFound, "index %q does not exist", name)
	}
	return idx, nil
}

// IndexesOnTable returns every index defined over table.
func (c *Catalog) IndexesOnTable(table string) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*IndexInfo
	for _, info := range c.indexes {
		if info.Definition.Table == table {
			out = append(out, info)
		}
	}
	return out
}

// IndexOnColumns returns the index (if any) whose column projection is
// exactly cols, for the given table.
func (c *Catalog) IndexOnColumns(table string, cols []string) (*IndexInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, info := range c.indexes {
		if info.Definition.Table != table {
			continue
		}
		if sameColumns(info.Definition.Columns, cols) {
			return info, true
		}
	}
	return nil, false
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SetEntriesPerPage records an index's observed entries-per-page density.
func (c *Catalog) SetEntriesPerPage(name string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if info, ok := c.indexes[name]; ok {
		info.EntriesPerPage = n
	}
}

// Describe renders a human-readable summary of every table in the
// catalog.
func (c *Catalog) Describe() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var b strings.Builder
	for name := range c.tables {
		b.WriteString(c.describeTableLocked(name))
		b.WriteByte('\n')
	}
	return b.String()
}

// DescribeTable renders a human-readable summary of one table and its
// indexes.
func (c *Catalog) DescribeTable(name string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.tables[name]; !ok {
		return "", dberr.Newf(dberr.NotFound, "table %q does not exist", name)
	}
	return c.describeTableLocked(name), nil
}

func (c *Catalog) describeTableLocked(name string) string {
	t := c.tables[name]
	var b strings.Builder
	fmt.Fprintf(&b, "TABLE %s (%d records, %d blocks)\n", name, t.RecordCount, t.BlockCount)
	for _, col := range t.Schema.Columns {
		pk := ""
		if col.PrimaryKey {
			pk = " PRIMARY KEY"
		}
		fmt.Fprintf(&b, "  %s %s%s\n", col.Name, col.Type, pk)
	}
	for _, info := range c.indexes {
		if info.Definition.Table != name {
			continue
		}
		unique := ""
		if info.Definition.Unique {
			unique = "UNIQUE "
		}
		fmt.Fprintf(&b, "  INDEX %s%s ON (%s)\n", unique, info.Definition.Name, strings.Join(info.Definition.Columns, ", "))
	}
	return b.String()
}

// persistSchemas writes meta/schemas.meta, one line per table in the
// bootstrap catalog's own format: name|col:type:length:pk,col:type:length:pk,…
func (c *Catalog) persistSchemas() error {
	f, err := os.Create(c.schemasPath())
	if err != nil {
		return dberr.Wrapf(dberr.Corrupted, err, "writing schemas metadata")
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for name, t := range c.tables {
		colParts := make([]string, len(t.Schema.Columns))
		for i, col := range t.Schema.Columns {
			pk := "0"
			if col.PrimaryKey {
				pk = "1"
			}
			colParts[i] = fmt.Sprintf("%s:%s:%d:%s", col.Name, col.Type, col.MaxLength, pk)
		}
		fmt.Fprintf(w, "%s|%s\n", name, strings.Join(colParts, ","))
	}
	return w.Flush()
}

func (c *Catalog) loadSchemas() error {
	data, err := os.ReadFile(c.schemasPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return dberr.Wrapf(dberr.Corrupted, err, "reading schemas metadata")
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			return dberr.Newf(dberr.Corrupted, "malformed schemas.meta line %q", line)
		}
		schema := types.TableSchema{Name: parts[0]}
		for _, colSpec := range strings.Split(parts[1], ",") {
			cp := strings.Split(colSpec, ":")
			if len(cp) != 4 {
				return dberr.Newf(dberr.Corrupted, "malformed column spec %q", colSpec)
			}
			ct, err := types.ParseColumnType(cp[1])
			if err != nil {
				return err
			}
			maxLen, err := strconv.Atoi(cp[2])
			if err != nil {
				return dberr.Wrapf(dberr.Corrupted, err, "parsing column %q maxLength", cp[0])
			}
			schema.Columns = append(schema.Columns, types.ColumnDefinition{
				Name: cp[0], Type: ct, MaxLength: maxLen, PrimaryKey: cp[3] == "1",
			})
		}
		c.tables[schema.Name] = &TableInfo{Schema: schema}
	}
	return nil
}

// persistIndexes writes meta/indexes.meta, one pipe-delimited line per
// index: name|table|column[+column...]|keyLength|unique(0|1). An index
// projecting more than one column joins them with "+" in the column
// field (this catalog's indexes are a composite-column generalization of
// the single-column B+Tree index the spec's file format names).
func (c *Catalog) persistIndexes() error {
	f, err := os.Create(c.indexesPath())
	if err != nil {
		return dberr.Wrapf(dberr.Corrupted, err, "writing indexes metadata")
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for name, info := range c.indexes {
		unique := "0"
		if info.Definition.Unique {
			unique = "1"
		}
		fmt.Fprintf(w, "%s|%s|%s|%d|%s\n",
			name, info.Definition.Table, strings.Join(info.Definition.Columns, "+"), info.Definition.KeyLength, unique)
	}
	return w.Flush()
}

func (c *Catalog) loadIndexes() error {
	data, err := os.ReadFile(c.indexesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return dberr.Wrapf(dberr.Corrupted, err, "reading indexes metadata")
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) != 5 {
			return dberr.Newf(dberr.Corrupted, "malformed indexes.meta line %q", line)
		}
		keyLen, err := strconv.Atoi(parts[3])
		if err != nil {
			return dberr.Wrapf(dberr.Corrupted, err, "parsing index key length")
		}
		def := IndexDefinition{
			Name:      parts[0],
			Table:     parts[1],
			Columns:   strings.Split(parts[2], "+"),
			KeyLength: keyLen,
			Unique:    parts[4] == "1",
		}
		c.indexes[def.Name] = &IndexInfo{Definition: def}
	}
	return nil
}
