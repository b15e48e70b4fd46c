// Package buffer implements the fixed-capacity buffer pool that sits
// between the page format and disk storage: it caches decoded pages in
// frames, tracks dirty state, and evicts by least-recent-use, flushing
// dirty frames to disk before they are dropped.
package buffer

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"quelldb/internal/disk"
	"quelldb/internal/page"
	"quelldb/internal/types"
	"quelldb/pkg/dberr"
)

// Frame is one cached page plus its dirty flag.
type Frame struct {
	Page  *page.Page
	Dirty bool
}

// Pool is a fixed-capacity, LRU-evicted cache of pages keyed by
// BlockAddress. Eviction of a dirty frame writes it back to disk via the
// TableStore registered for that address's table.
type Pool struct {
	capacity int
	cache    *lru.Cache[types.BlockAddress, *Frame]
	stores   map[string]*disk.TableStore
	pageSize int

	hits   uint64
	misses uint64
}

// New builds a buffer pool of the given frame capacity and page size.
// Table stores must be registered with RegisterTable before pages for
// that table can be fetched.
func New(capacity, pageSize int) (*Pool, error) {
	p := &Pool{capacity: capacity, pageSize: pageSize, stores: make(map[string]*disk.TableStore)}
	cache, err := lru.NewWithEvict(capacity, p.onEvict)
	if err != nil {
		return nil, dberr.Wrapf(dberr.LogicError, err, "constructing buffer pool cache")
	}
	p.cache = cache
	return p, nil
}

// RegisterTable associates a table name with the on-disk store backing
// it, so the pool knows where to read and write-back its pages.
func (p *Pool) RegisterTable(table string, store *disk.TableStore) {
	p.stores[table] = store
}

// onEvict is the LRU eviction callback: if the evicted frame is dirty, it
// is flushed to disk before being dropped from the cache. Errors here are
// swallowed into the frame's state because golang-lru's eviction callback
// has no error return; callers that need strict durability should call
// Flush explicitly before relying on eviction-driven persistence.
func (p *Pool) onEvict(addr types.BlockAddress, frame *Frame) {
	if !frame.Dirty {
		return
	}
	store, ok := p.stores[addr.Table]
	if !ok {
		return
	}
	_ = store.Write(addr.Block, frame.Page.Bytes())
}

// FetchResult reports what Fetch did.
type FetchResult struct {
	Frame   *Frame
	WasHit  bool
	Evicted bool
}

// Fetch returns the frame for addr, loading it from disk on a miss (an
// all-zero block, as disk.AllocateBlock creates it, loads as an empty
// page). If
// forWrite is true the frame is marked dirty — callers that only read
// must pass false so the frame is not needlessly written back later.
func (p *Pool) Fetch(addr types.BlockAddress, forWrite bool) (*FetchResult, error) {
	wasEvictingToMakeRoom := p.cache.Len() >= p.capacity && !p.cache.Contains(addr)

	if frame, ok := p.cache.Get(addr); ok {
		if forWrite {
			frame.Dirty = true
		}
		p.hits++
		return &FetchResult{Frame: frame, WasHit: true, Evicted: false}, nil
	}

	p.misses++
	store, ok := p.stores[addr.Table]
	if !ok {
		return nil, dberr.Newf(dberr.NotFound, "no table store registered for %q", addr.Table)
	}
	raw, err := store.Read(addr.Block)
	if err != nil {
		return nil, err
	}
	zeroed := true
	for _, b := range raw {
		if b != 0 {
			zeroed = false
			break
		}
	}
	var pg *page.Page
	if zeroed {
		// A block allocated but never written back holds no page header
		// yet; it is served as a fresh, empty page.
		pg, err = page.New(len(raw))
	} else {
		pg, err = page.Load(raw)
	}
	if err != nil {
		return nil, err
	}
	frame := &Frame{Page: pg, Dirty: forWrite}
	p.cache.Add(addr, frame)
	return &FetchResult{Frame: frame, WasHit: false, Evicted: wasEvictingToMakeRoom}, nil
}

// Flush writes back every dirty frame currently cached, without evicting
// them.
func (p *Pool) Flush() error {
	for _, addr := range p.cache.Keys() {
		frame, ok := p.cache.Peek(addr)
		if !ok || !frame.Dirty {
			continue
		}
		store, ok := p.stores[addr.Table]
		if !ok {
			return dberr.Newf(dberr.NotFound, "no table store registered for %q", addr.Table)
		}
		if err := store.Write(addr.Block, frame.Page.Bytes()); err != nil {
			return err
		}
		frame.Dirty = false
	}
	return nil
}

// Invalidate drops addr from the cache without writing it back,
// regardless of dirty state; used after a page's block has been fully
// superseded.
func (p *Pool) Invalidate(addr types.BlockAddress) {
	p.cache.Remove(addr)
}

// Stats returns the pool's cumulative hit/miss counters.
func (p *Pool) Stats() (hits, misses uint64) { return p.hits, p.misses }

// Capacity returns the pool's fixed frame capacity.
func (p *Pool) Capacity() int { return p.capacity }
