// Package wal implements the write-ahead log: a synchronously-appended,
// strictly ordered sequence of typed entries recording every mutation and
// transaction boundary, used to redo committed work and undo uncommitted
// work after a crash.
package wal

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"quelldb/internal/types"
	"quelldb/pkg/dberr"
)

// EntryKind tags the kind of event one WAL entry records.
type EntryKind int

const (
	Begin EntryKind = iota
	Commit
	Rollback
	Insert
	Update
	Delete
)

func (k EntryKind) String() string {
	switch k {
	case Begin:
		return "BEGIN"
	case Commit:
		return "COMMIT"
	case Rollback:
		return "ROLLBACK"
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

func parseEntryKind(s string) (EntryKind, error) {
	switch s {
	case "BEGIN":
		return Begin, nil
	case "COMMIT":
		return Commit, nil
	case "ROLLBACK":
		return Rollback, nil
	case "INSERT":
		return Insert, nil
	case "UPDATE":
		return Update, nil
	case "DELETE":
		return Delete, nil
	default:
		return 0, dberr.Newf(dberr.Corrupted, "unknown WAL entry kind %q", s)
	}
}

// Entry is one record in the log. TxnID ties entries belonging to the
// same transaction together; Table/Slot/Before/After carry the data
// needed to redo or undo a mutation.
type Entry struct {
	TxnID  string
	Kind   EntryKind
	Table  string
	Slot   types.Slot
	Before []string // canonical field values before the mutation, if any
	After  []string // canonical field values after the mutation, if any
}

// Log is an append-only, synchronously-flushed write-ahead log backed by
// a single file.
type Log struct {
	path    string
	f       *os.File
	entries []Entry
}

// Open opens (creating if necessary) the WAL file at path and loads its
// existing entries into memory.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, dberr.Wrapf(dberr.Corrupted, err, "opening WAL file %q", path)
	}
	l := &Log{path: path, f: f}
	if err := l.load(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return dberr.Wrapf(dberr.Corrupted, err, "reading WAL file %q", l.path)
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			return err
		}
		l.entries = append(l.entries, e)
	}
	return nil
}

// NewTxnID generates a fresh transaction correlation id.
func NewTxnID() string { return uuid.NewString() }

// Append synchronously writes entry to the log file and records it
// in-memory.
func (l *Log) Append(e Entry) error {
	line := formatEntry(e)
	if _, err := l.f.WriteString(line + "\n"); err != nil {
		return dberr.Wrapf(dberr.Corrupted, err, "appending to WAL")
	}
	if err := l.f.Sync(); err != nil {
		return dberr.Wrapf(dberr.Corrupted, err, "syncing WAL")
	}
	l.entries = append(l.entries, e)
	return nil
}

// Entries returns every entry currently in the log, in append order.
func (l *Log) Entries() []Entry { return l.entries }

// Clear truncates the log file and its in-memory entries; used once
// recovery has fully applied (or undone) everything in it.
func (l *Log) Clear() error {
	if err := l.f.Truncate(0); err != nil {
		return dberr.Wrapf(dberr.Corrupted, err, "truncating WAL")
	}
	if _, err := l.f.Seek(0, 0); err != nil {
		return dberr.Wrapf(dberr.Corrupted, err, "seeking WAL")
	}
	l.entries = nil
	return nil
}

// Close releases the underlying file handle.
func (l *Log) Close() error { return l.f.Close() }

// formatEntry renders e as one pipe-delimited line:
// TxnID|KIND|Table|BlockAddress|SlotIndex|Before|After
func formatEntry(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|%d|", e.TxnID, e.Kind, e.Table, e.Slot.Address, e.Slot.Index)
	writeFields(&b, e.Before)
	b.WriteByte('|')
	writeFields(&b, e.After)
	return b.String()
}

func writeFields(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(hex.EncodeToString([]byte(f)))
	}
}

func parseEntry(line string) (Entry, error) {
	parts := strings.SplitN(line, "|", 7)
	if len(parts) != 7 {
		return Entry{}, dberr.Newf(dberr.Corrupted, "malformed WAL line %q", line)
	}
	kind, err := parseEntryKind(parts[1])
	if err != nil {
		return Entry{}, err
	}
	addrParts := strings.SplitN(parts[3], ":", 2)
	if len(addrParts) != 2 {
		return Entry{}, dberr.Newf(dberr.Corrupted, "malformed WAL block address %q", parts[3])
	}
	block, err := strconv.Atoi(addrParts[1])
	if err != nil {
		return Entry{}, dberr.Wrapf(dberr.Corrupted, err, "parsing WAL block index")
	}
	slotIdx, err := strconv.Atoi(parts[4])
	if err != nil {
		return Entry{}, dberr.Wrapf(dberr.Corrupted, err, "parsing WAL slot index")
	}
	before, err := parseFields(parts[5])
	if err != nil {
		return Entry{}, err
	}
	after, err := parseFields(parts[6])
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		TxnID: parts[0],
		Kind:  kind,
		Table: parts[2],
		Slot: types.Slot{
			Address: types.BlockAddress{Table: addrParts[0], Block: block},
			Index:   slotIdx,
		},
		Before: before,
		After:  after,
	}, nil
}

func parseFields(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		raw, err := hex.DecodeString(p)
		if err != nil {
			return nil, dberr.Wrapf(dberr.Corrupted, err, "decoding WAL field")
		}
		out[i] = string(raw)
	}
	return out, nil
}
