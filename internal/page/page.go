// Package page implements the slotted, variable-length page format used
// to store records on disk: a fixed-size byte buffer with a small header,
// a slot directory that grows backward from the end of the page, and a
// record heap that grows forward from the header.
package page

import (
	"encoding/binary"
	"fmt"

	"quelldb/pkg/dberr"
	"quelldb/pkg/utils"
)

const (
	magicNumber = uint32(0x51444250) // "QDBP"

	// headerBytes covers magic, activeCount, deletedCount, freeSpaceHint.
	headerBytes = 16
	// slotBytes is the size of one slot-directory entry: offset, length,
	// and a deleted flag.
	slotBytes = 9

	// kRecordHeaderBytes and kSlotOverheadBytes are part of the page's
	// external contract: callers sizing records against a page's free
	// space must account for these exactly as the page itself does.
	kRecordHeaderBytes = 0
	kSlotOverheadBytes = slotBytes
)

// ExternalConstants exposes the page format's fixed per-record overhead
// so callers outside this package can size records without duplicating
// the layout.
const (
	RecordHeaderBytes = kRecordHeaderBytes
	SlotOverheadBytes = kSlotOverheadBytes
)

// header fields, decoded/encoded directly against the byte buffer.
type header struct {
	magic          uint32
	activeCount    uint16
	deletedCount   uint16
	freeSpaceHint  uint32
	_reserved      uint32
}

// Page wraps a fixed-size byte buffer with slotted-page semantics. The
// zero value is not usable; use New or Load.
type Page struct {
	buf      []byte
	pageSize int
}

// New allocates a fresh, empty page of pageSize bytes.
func New(pageSize int) (*Page, error) {
	if pageSize <= headerBytes+slotBytes {
		return nil, dberr.Newf(dberr.InvalidArgument, "page size %d too small", pageSize)
	}
	p := &Page{buf: make([]byte, pageSize), pageSize: pageSize}
	p.writeHeader(header{magic: magicNumber})
	p.setFreeSpaceHint(uint32(pageSize - headerBytes))
	return p, nil
}

// Load wraps an existing byte buffer (e.g. read from disk) as a Page,
// validating the header magic.
func Load(buf []byte) (*Page, error) {
	if len(buf) < headerBytes {
		return nil, dberr.New(dberr.Corrupted, "page buffer shorter than header")
	}
	p := &Page{buf: buf, pageSize: len(buf)}
	h := p.readHeader()
	if h.magic != magicNumber {
		return nil, dberr.New(dberr.Corrupted, "page magic number mismatch")
	}
	return p, nil
}

// Bytes returns the page's raw backing buffer, for writing to disk.
func (p *Page) Bytes() []byte { return p.buf }

// Size returns the page's fixed size in bytes.
func (p *Page) Size() int { return p.pageSize }

func (p *Page) readHeader() header {
	return header{
		magic:         binary.LittleEndian.Uint32(p.buf[0:4]),
		activeCount:   binary.LittleEndian.Uint16(p.buf[4:6]),
		deletedCount:  binary.LittleEndian.Uint16(p.buf[6:8]),
		freeSpaceHint: binary.LittleEndian.Uint32(p.buf[8:12]),
	}
}

func (p *Page) writeHeader(h header) {
	binary.LittleEndian.PutUint32(p.buf[0:4], h.magic)
	binary.LittleEndian.PutUint16(p.buf[4:6], h.activeCount)
	binary.LittleEndian.PutUint16(p.buf[6:8], h.deletedCount)
	binary.LittleEndian.PutUint32(p.buf[8:12], h.freeSpaceHint)
}

func (p *Page) setFreeSpaceHint(v uint32) {
	binary.LittleEndian.PutUint32(p.buf[8:12], v)
}

// ActiveCount returns the number of live (non-deleted) slots.
func (p *Page) ActiveCount() int { return int(p.readHeader().activeCount) }

// DeletedCount returns the number of slots marked deleted but not yet
// reclaimed by Vacuum.
func (p *Page) DeletedCount() int { return int(p.readHeader().deletedCount) }

// SlotCount returns the total number of slots, active and deleted.
func (p *Page) SlotCount() int { return p.ActiveCount() + p.DeletedCount() }

func (p *Page) slotOffset(i int) int { return p.pageSize - (i+1)*slotBytes }

type slotEntry struct {
	heapOffset uint32
	length     uint32
	deleted    bool
}

func (p *Page) readSlot(i int) slotEntry {
	off := p.slotOffset(i)
	return slotEntry{
		heapOffset: binary.LittleEndian.Uint32(p.buf[off : off+4]),
		length:     binary.LittleEndian.Uint32(p.buf[off+4 : off+8]),
		deleted:    p.buf[off+8] != 0,
	}
}

func (p *Page) writeSlot(i int, s slotEntry) {
	off := p.slotOffset(i)
	binary.LittleEndian.PutUint32(p.buf[off:off+4], s.heapOffset)
	binary.LittleEndian.PutUint32(p.buf[off+4:off+8], s.length)
	if s.deleted {
		p.buf[off+8] = 1
	} else {
		p.buf[off+8] = 0
	}
}

// heapEnd returns the current end of the used portion of the record heap
// (the first byte not yet occupied by a record).
func (p *Page) heapEnd() int {
	end := headerBytes
	for i := 0; i < p.SlotCount(); i++ {
		s := p.readSlot(i)
		if int(s.heapOffset)+int(s.length) > end {
			end = int(s.heapOffset) + int(s.length)
		}
	}
	return end
}

func (p *Page) slotDirectoryEnd() int {
	return p.pageSize - p.SlotCount()*slotBytes
}

// FreeSpace returns the number of contiguous bytes available for a new
// record plus its slot entry, without vacuuming.
func (p *Page) FreeSpace() int {
	return p.slotDirectoryEnd() - p.heapEnd()
}

// HasSpaceFor reports whether a record of recordLen bytes fits without
// vacuuming, accounting for the new slot entry's overhead.
func (p *Page) HasSpaceFor(recordLen int) bool {
	return p.FreeSpace() >= recordLen+slotBytes
}

// Insert places record into the page, returning the slot index it was
// assigned. It first scans existing tombstoned slots for one whose region
// is large enough to hold the record and reuses its slot id in place;
// only when no deleted slot fits does it append a brand-new slot at the
// end of the heap. It fails with CapacityExceeded if there is not enough
// contiguous free space even after accounting for Vacuum (callers are
// expected to Vacuum first if HasSpaceFor initially failed).
func (p *Page) Insert(record []byte) (int, error) {
	if idx, ok := p.reuseDeletedSlot(record); ok {
		return idx, nil
	}
	if !p.HasSpaceFor(len(record)) {
		return 0, dberr.Newf(dberr.CapacityExceeded, "page has no room for %d-byte record", len(record))
	}
	off := p.heapEnd()
	utils.Assert(off+len(record) <= len(p.buf), "record write stays within the page buffer")
	copy(p.buf[off:off+len(record)], record)

	idx := p.SlotCount()
	p.writeSlot(idx, slotEntry{heapOffset: uint32(off), length: uint32(len(record))})

	h := p.readHeader()
	h.activeCount++
	p.writeHeader(h)
	return idx, nil
}

// reuseDeletedSlot looks for the first tombstoned slot whose region can
// hold record and, if found, reoccupies it in place.
func (p *Page) reuseDeletedSlot(record []byte) (int, bool) {
	for i := 0; i < p.SlotCount(); i++ {
		s := p.readSlot(i)
		if !s.deleted || int(s.length) < len(record) {
			continue
		}
		copy(p.buf[s.heapOffset:s.heapOffset+uint32(len(record))], record)
		s.length = uint32(len(record))
		s.deleted = false
		p.writeSlot(i, s)

		h := p.readHeader()
		h.activeCount++
		h.deletedCount--
		p.writeHeader(h)
		return i, true
	}
	return 0, false
}

// Get returns the record bytes stored at slot i, or an error if the slot
// is out of range or has been deleted.
func (p *Page) Get(i int) ([]byte, error) {
	if i < 0 || i >= p.SlotCount() {
		return nil, dberr.Newf(dberr.NotFound, "slot %d out of range", i)
	}
	s := p.readSlot(i)
	if s.deleted {
		return nil, dberr.Newf(dberr.NotFound, "slot %d is deleted", i)
	}
	out := make([]byte, s.length)
	copy(out, p.buf[s.heapOffset:s.heapOffset+s.length])
	return out, nil
}

// Update replaces the record at slot i in place if the new record is no
// longer than the old one; otherwise it deletes the old slot's storage
// and re-inserts at a new slot, returning the (possibly unchanged) slot
// index.
func (p *Page) Update(i int, record []byte) (int, error) {
	if i < 0 || i >= p.SlotCount() {
		return 0, dberr.Newf(dberr.NotFound, "slot %d out of range", i)
	}
	s := p.readSlot(i)
	if s.deleted {
		return 0, dberr.Newf(dberr.NotFound, "slot %d is deleted", i)
	}
	if len(record) <= int(s.length) {
		copy(p.buf[s.heapOffset:s.heapOffset+uint32(len(record))], record)
		s.length = uint32(len(record))
		p.writeSlot(i, s)
		return i, nil
	}
	if err := p.Erase(i); err != nil {
		return 0, err
	}
	return p.Insert(record)
}

// Erase marks slot i as deleted without compacting the heap; space is
// reclaimed only by Vacuum.
func (p *Page) Erase(i int) error {
	if i < 0 || i >= p.SlotCount() {
		return dberr.Newf(dberr.NotFound, "slot %d out of range", i)
	}
	s := p.readSlot(i)
	if s.deleted {
		return dberr.Newf(dberr.NotFound, "slot %d already deleted", i)
	}
	s.deleted = true
	p.writeSlot(i, s)

	h := p.readHeader()
	h.activeCount--
	h.deletedCount++
	p.writeHeader(h)
	return nil
}

// Restore clears slot i's deleted flag and rewrites its contents to
// record, used to undo a delete (explicit rollback, or an unfinished
// transaction found during crash recovery). record must
// fit within the slot's original capacity; callers needing more room
// should treat the original Insert's slot as gone and re-insert instead.
func (p *Page) Restore(i int, record []byte) error {
	if i < 0 || i >= p.SlotCount() {
		return dberr.Newf(dberr.NotFound, "slot %d out of range", i)
	}
	s := p.readSlot(i)
	if !s.deleted {
		return dberr.Newf(dberr.Conflict, "slot %d is not deleted", i)
	}
	if len(record) > int(s.length) {
		return dberr.Newf(dberr.CapacityExceeded, "restored record does not fit in slot %d", i)
	}
	copy(p.buf[s.heapOffset:s.heapOffset+uint32(len(record))], record)
	s.length = uint32(len(record))
	s.deleted = false
	p.writeSlot(i, s)

	h := p.readHeader()
	h.activeCount++
	h.deletedCount--
	p.writeHeader(h)
	return nil
}

// Vacuum compacts the page in place: deleted slots are dropped and the
// remaining records are repacked contiguously from the header forward,
// renumbering slots 0..activeCount-1 in their original relative order.
func (p *Page) Vacuum() {
	n := p.SlotCount()
	type kept struct {
		data []byte
	}
	var live []kept
	for i := 0; i < n; i++ {
		s := p.readSlot(i)
		if s.deleted {
			continue
		}
		data := make([]byte, s.length)
		copy(data, p.buf[s.heapOffset:s.heapOffset+s.length])
		live = append(live, kept{data: data})
	}

	for i := headerBytes; i < p.pageSize; i++ {
		p.buf[i] = 0
	}

	off := headerBytes
	for i, k := range live {
		copy(p.buf[off:off+len(k.data)], k.data)
		p.writeSlot(i, slotEntry{heapOffset: uint32(off), length: uint32(len(k.data))})
		off += len(k.data)
	}

	h := p.readHeader()
	h.activeCount = uint16(len(live))
	h.deletedCount = 0
	p.writeHeader(h)
}

// Iterate calls fn for every live slot in slot order, stopping early if
// fn returns false.
func (p *Page) Iterate(fn func(slot int, record []byte) bool) {
	for i := 0; i < p.SlotCount(); i++ {
		s := p.readSlot(i)
		if s.deleted {
			continue
		}
		data := make([]byte, s.length)
		copy(data, p.buf[s.heapOffset:s.heapOffset+s.length])
		if !fn(i, data) {
			return
		}
	}
}

func (p *Page) String() string {
	return fmt.Sprintf("Page{size=%d active=%d deleted=%d free=%d}",
		p.pageSize, p.ActiveCount(), p.DeletedCount(), p.FreeSpace())
}
