package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"quelldb/pkg/dberr"
)

// ColumnDefinition describes one column of a table: its name, its stored
// type, the maximum byte length its canonical text form may occupy, and
// whether it participates in the table's primary key.
type ColumnDefinition struct {
	Name       string
	Type       ColumnType
	MaxLength  int
	PrimaryKey bool
}

// TableSchema is the ordered list of column definitions for a table plus
// its name. Column order is significant: it is the order records store
// and decode values in.
type TableSchema struct {
	Name    string
	Columns []ColumnDefinition
}

// ColumnIndex returns the position of name within the schema, or -1.
func (s *TableSchema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the definition of name, or nil.
func (s *TableSchema) Column(name string) *ColumnDefinition {
	i := s.ColumnIndex(name)
	if i < 0 {
		return nil
	}
	return &s.Columns[i]
}

// PrimaryKeyColumns returns the definitions marked PrimaryKey, in schema
// order.
func (s *TableSchema) PrimaryKeyColumns() []ColumnDefinition {
	var out []ColumnDefinition
	for _, c := range s.Columns {
		if c.PrimaryKey {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks that the schema itself is well formed: non-empty name,
// at least one column, no duplicate column names.
func (s *TableSchema) Validate() error {
	if s.Name == "" {
		return dberr.New(dberr.InvalidArgument, "table schema requires a name")
	}
	if len(s.Columns) == 0 {
		return dberr.New(dberr.InvalidArgument, "table schema requires at least one column")
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if seen[c.Name] {
			return dberr.Newf(dberr.InvalidArgument, "duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		if c.MaxLength < 1 {
			return dberr.Newf(dberr.InvalidArgument, "column %q requires a maxLength of at least 1", c.Name)
		}
	}
	return nil
}

// Record is a row of values addressed positionally by the owning table's
// schema; Cols mirrors the schema's column names so a Record can also be
// consulted standalone (e.g. inside the expression engine) without a
// schema reference.
type Record struct {
	Cols []string
	Vals []Value
}

// Get returns the value for col, or (NullValue, false) if the column is
// not present in this record.
func (r *Record) Get(col string) (Value, bool) {
	for i, c := range r.Cols {
		if c == col {
			return r.Vals[i], true
		}
	}
	return NullValue(), false
}

// Set overwrites the value for col if present, returning false if the
// column does not exist in this record.
func (r *Record) Set(col string, v Value) bool {
	for i, c := range r.Cols {
		if c == col {
			r.Vals[i] = v
			return true
		}
	}
	return false
}

// Clone returns a deep-enough copy of r (values are not pointers, so a
// slice copy suffices) safe to mutate independently.
func (r *Record) Clone() Record {
	out := Record{Cols: make([]string, len(r.Cols)), Vals: make([]Value, len(r.Vals))}
	copy(out.Cols, r.Cols)
	copy(out.Vals, r.Vals)
	return out
}

// ValidateAgainst checks arity, and (loosely) that the values are
// convertible to their declared types, against schema.
func (r *Record) ValidateAgainst(schema *TableSchema) error {
	if len(r.Cols) != len(schema.Columns) {
		return dberr.Newf(dberr.InvalidArgument, "record has %d columns, table %q expects %d",
			len(r.Cols), schema.Name, len(schema.Columns))
	}
	if len(r.Vals) != len(r.Cols) {
		return dberr.New(dberr.InvalidArgument, "record column/value arity mismatch")
	}
	for _, c := range schema.Columns {
		v, ok := r.Get(c.Name)
		if !ok {
			return dberr.Newf(dberr.InvalidArgument, "record missing column %q", c.Name)
		}
		if n := len(v.CanonicalString()); n > c.MaxLength {
			return dberr.Newf(dberr.InvalidArgument, "column %q value is %d bytes, exceeds maxLength %d",
				c.Name, n, c.MaxLength)
		}
	}
	return nil
}

// ToSchemaOrder reorders r's columns/values to match schema's column
// order, which storage and serialization assume.
func (r *Record) ToSchemaOrder(schema *TableSchema) (Record, error) {
	out := Record{Cols: make([]string, len(schema.Columns)), Vals: make([]Value, len(schema.Columns))}
	for i, c := range schema.Columns {
		v, ok := r.Get(c.Name)
		if !ok {
			return Record{}, dberr.Newf(dberr.InvalidArgument, "missing column %q", c.Name)
		}
		out.Cols[i] = c.Name
		out.Vals[i] = v
	}
	return out, nil
}

// Encode renders the record's values, in schema order, as a slice of
// canonical text fields suitable for page storage.
func Encode(r Record) []string {
	out := make([]string, len(r.Vals))
	for i, v := range r.Vals {
		out[i] = v.CanonicalString()
	}
	return out
}

// Decode reconstructs a Record from canonical text fields and the schema
// that produced them.
func Decode(schema *TableSchema, fields []string) (Record, error) {
	if len(fields) != len(schema.Columns) {
		return Record{}, dberr.Newf(dberr.Corrupted, "record has %d fields, schema %q expects %d",
			len(fields), schema.Name, len(schema.Columns))
	}
	rec := Record{Cols: make([]string, len(schema.Columns)), Vals: make([]Value, len(schema.Columns))}
	for i, c := range schema.Columns {
		v, err := ParseLiteral(c.Type, fields[i])
		if err != nil {
			return Record{}, dberr.Wrapf(dberr.Corrupted, err, "decoding column %q", c.Name)
		}
		rec.Cols[i] = c.Name
		rec.Vals[i] = v
	}
	return rec, nil
}

const nullFieldMarker = "-"

// EncodeRow renders r, in schema order, as the comma-separated,
// hex-encoded byte form stored directly in a page slot. Null values are
// written as a bare marker so they round-trip distinctly from an empty
// string, which CanonicalString alone cannot tell apart.
func EncodeRow(schema *TableSchema, r Record) ([]byte, error) {
	ordered, err := r.ToSchemaOrder(schema)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for i, v := range ordered.Vals {
		if i > 0 {
			b.WriteByte(',')
		}
		if v.IsNull() {
			b.WriteString(nullFieldMarker)
			continue
		}
		b.WriteString(hex.EncodeToString([]byte(v.CanonicalString())))
	}
	return []byte(b.String()), nil
}

// DecodeRow is the inverse of EncodeRow.
func DecodeRow(schema *TableSchema, data []byte) (Record, error) {
	s := string(data)
	var parts []string
	if s != "" {
		parts = strings.Split(s, ",")
	}
	if len(parts) != len(schema.Columns) {
		return Record{}, dberr.Newf(dberr.Corrupted, "row has %d fields, schema %q expects %d",
			len(parts), schema.Name, len(schema.Columns))
	}
	rec := Record{Cols: make([]string, len(schema.Columns)), Vals: make([]Value, len(schema.Columns))}
	for i, c := range schema.Columns {
		rec.Cols[i] = c.Name
		if parts[i] == nullFieldMarker {
			rec.Vals[i] = NullValue()
			continue
		}
		raw, err := hex.DecodeString(parts[i])
		if err != nil {
			return Record{}, dberr.Wrapf(dberr.Corrupted, err, "decoding row field %q", c.Name)
		}
		v, err := ParseLiteral(c.Type, string(raw))
		if err != nil {
			return Record{}, dberr.Wrapf(dberr.Corrupted, err, "decoding column %q", c.Name)
		}
		rec.Vals[i] = v
	}
	return rec, nil
}

// BlockAddress identifies a fixed-size block within a table's on-disk
// storage.
type BlockAddress struct {
	Table string
	Block int
}

func (a BlockAddress) String() string { return fmt.Sprintf("%s:%d", a.Table, a.Block) }

// Slot identifies one record's position inside a page: its ordinal slot
// number within the slot directory.
type Slot struct {
	Address BlockAddress
	Index   int
}

func (s Slot) String() string { return fmt.Sprintf("%s#%d", s.Address, s.Index) }

// ParseColumnType parses a textual type name as used in catalog metadata
// files.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToUpper(s) {
	case "INTEGER", "INT":
		return Integer, nil
	case "DOUBLE", "FLOAT":
		return Double, nil
	case "STRING", "TEXT", "VARCHAR":
		return String, nil
	default:
		return 0, dberr.Newf(dberr.InvalidArgument, "unknown column type %q", s)
	}
}
