// Package disk implements the per-table, block-file storage layer: each
// table owns a directory of fixed-size block_<n>.blk files, and the
// buffer pool above this package is the only component allowed to read
// or write them.
package disk

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"quelldb/pkg/dberr"
)

const blockFilePrefix = "block_"
const blockFileSuffix = ".blk"

// TableStore owns the block files for exactly one table, rooted at dir.
type TableStore struct {
	dir       string
	pageSize  int
	numBlocks int
	maxBlocks int // 0 means unbounded
}

// Open opens (creating if necessary) the block-file directory for a
// table, discovering how many blocks already exist on disk.
func Open(rootDir, table string, pageSize int) (*TableStore, error) {
	dir := filepath.Join(rootDir, table)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dberr.Wrapf(dberr.Corrupted, err, "creating table directory %q", dir)
	}
	ts := &TableStore{dir: dir, pageSize: pageSize}
	n, err := ts.loadExistingBlocks()
	if err != nil {
		return nil, err
	}
	ts.numBlocks = n
	return ts, nil
}

func (ts *TableStore) blockPath(index int) string {
	return filepath.Join(ts.dir, fmt.Sprintf("%s%d%s", blockFilePrefix, index, blockFileSuffix))
}

// loadExistingBlocks scans the table directory for block_<n>.blk files
// and returns one past the highest index found (i.e. the current block
// count), validating that each file is exactly pageSize bytes.
func (ts *TableStore) loadExistingBlocks() (int, error) {
	entries, err := os.ReadDir(ts.dir)
	if err != nil {
		return 0, dberr.Wrapf(dberr.Corrupted, err, "reading table directory %q", ts.dir)
	}
	max := -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, blockFilePrefix) || !strings.HasSuffix(name, blockFileSuffix) {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, blockFilePrefix), blockFileSuffix)
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, dberr.Wrapf(dberr.Corrupted, err, "stat-ing %q", name)
		}
		if info.Size() != int64(ts.pageSize) {
			return 0, dberr.Newf(dberr.Corrupted, "block file %q has size %d, expected %d",
				name, info.Size(), ts.pageSize)
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// NumBlocks returns the number of blocks currently allocated for this
// table.
func (ts *TableStore) NumBlocks() int { return ts.numBlocks }

// SetMaxBlocks caps the number of blocks this table may ever allocate;
// 0 (the default) leaves it unbounded. AllocateBlock fails with
// CapacityExceeded once the cap is reached.
func (ts *TableStore) SetMaxBlocks(n int) { ts.maxBlocks = n }

// AllocateBlock creates a new zero-filled block file and returns its
// index.
func (ts *TableStore) AllocateBlock() (int, error) {
	if ts.maxBlocks > 0 && ts.numBlocks >= ts.maxBlocks {
		return 0, dberr.Newf(dberr.CapacityExceeded, "table %q has reached its %d-block limit", filepath.Base(ts.dir), ts.maxBlocks)
	}
	idx := ts.numBlocks
	f, err := os.OpenFile(ts.blockPath(idx), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, dberr.Wrapf(dberr.Corrupted, err, "allocating block %d", idx)
	}
	defer f.Close()
	if _, err := f.Write(make([]byte, ts.pageSize)); err != nil {
		return 0, dberr.Wrapf(dberr.Corrupted, err, "zero-filling block %d", idx)
	}
	ts.numBlocks++
	return idx, nil
}

// Contains reports whether blockIndex refers to an allocated block.
func (ts *TableStore) Contains(blockIndex int) bool {
	return blockIndex >= 0 && blockIndex < ts.numBlocks
}

// Read reads the full contents of blockIndex.
func (ts *TableStore) Read(blockIndex int) ([]byte, error) {
	if !ts.Contains(blockIndex) {
		return nil, dberr.Newf(dberr.NotFound, "block %d does not exist", blockIndex)
	}
	f, err := os.Open(ts.blockPath(blockIndex))
	if err != nil {
		return nil, dberr.Wrapf(dberr.Corrupted, err, "opening block %d", blockIndex)
	}
	defer f.Close()
	buf := make([]byte, ts.pageSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, dberr.Wrapf(dberr.Corrupted, err, "reading block %d", blockIndex)
	}
	return buf, nil
}

// Write overwrites the full contents of blockIndex; data must be exactly
// pageSize bytes.
func (ts *TableStore) Write(blockIndex int, data []byte) error {
	if !ts.Contains(blockIndex) {
		return dberr.Newf(dberr.NotFound, "block %d does not exist", blockIndex)
	}
	if len(data) != ts.pageSize {
		return dberr.Newf(dberr.InvalidArgument, "write to block %d has length %d, expected %d",
			blockIndex, len(data), ts.pageSize)
	}
	f, err := os.OpenFile(ts.blockPath(blockIndex), os.O_RDWR, 0o644)
	if err != nil {
		return dberr.Wrapf(dberr.Corrupted, err, "opening block %d for write", blockIndex)
	}
	defer f.Close()
	if _, err := f.WriteAt(data, 0); err != nil {
		return dberr.Wrapf(dberr.Corrupted, err, "writing block %d", blockIndex)
	}
	return f.Sync()
}

// AllBlockIndexes returns 0..NumBlocks-1, in order — the full table scan
// order.
func (ts *TableStore) AllBlockIndexes() []int {
	out := make([]int, ts.numBlocks)
	for i := range out {
		out[i] = i
	}
	return out
}

// ListTables returns the table directories that currently exist under
// rootDir, sorted.
func ListTables(rootDir string) ([]string, error) {
	entries, err := os.ReadDir(rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dberr.Wrapf(dberr.Corrupted, err, "reading storage root %q", rootDir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != "meta" && e.Name() != "logs" && e.Name() != "indexes" {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
