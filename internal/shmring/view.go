// Copyright dSPACE GmbH. All rights reserved.

// Package shmring implements an SHM-resident ring buffer view: a bounded
// FIFO of fixed-size records placed inside a shared memory region, with
// capacity/read/write indices living in the same region so both processes
// mapping it see the same state. Unlike internal/ring, push and pop are
// unchecked — callers must prove space/data exists via external accounting
// (a queue-size counter, a change list) before calling.
package shmring

import (
	"fmt"
	"sync/atomic"
)

// headerSize is the byte layout overhead before the item array begins:
// capacity, readIdx, writeIdx, each a little-endian uint32.
const headerSize = 12

// View maps a pre-allocated byte region (typically backed by shared memory)
// into a ring of fixed-size records. The region must outlive the View.
type View struct {
	region     []byte
	recordSize int
	capacity   uint32 // power of two, asserted at construction
}

// New places a ring view over region, sized for capacity records of
// recordSize bytes each. If init is true, the header is zero-initialized
// (first-time construction by whichever side creates the region); if false,
// the header is assumed already initialized by the counterpart.
//
// capacity must be a power of two: behavior with a non-power-of-two
// capacity is undefined in the reference implementation this is ported
// from, so this implementation asserts instead of silently misbehaving.
func New(region []byte, capacity uint32, recordSize int, init bool) (*View, error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("shmring: capacity %d is not a power of two", capacity)
	}
	need := headerSize + int(capacity)*recordSize
	if len(region) < need {
		return nil, fmt.Errorf("shmring: region too small: have %d, need %d", len(region), need)
	}
	v := &View{region: region, recordSize: recordSize, capacity: capacity}
	if init {
		atomic.StoreUint32(v.capacityPtr(), capacity)
		atomic.StoreUint32(v.readIdxPtr(), 0)
		atomic.StoreUint32(v.writeIdxPtr(), 0)
	} else {
		existing := atomic.LoadUint32(v.capacityPtr())
		if existing != capacity {
			return nil, fmt.Errorf("shmring: capacity mismatch: region has %d, want %d", existing, capacity)
		}
	}
	return v, nil
}

func (v *View) capacityPtr() *uint32 { return (*uint32)(ptrAt(v.region, 0)) }
func (v *View) readIdxPtr() *uint32  { return (*uint32)(ptrAt(v.region, 4)) }
func (v *View) writeIdxPtr() *uint32 { return (*uint32)(ptrAt(v.region, 8)) }

// readIdx/writeIdx use acquire-style loads; setReadIdx/setWriteIdx use
// release-style stores: release on writer write_idx store, acquire on
// reader write_idx load, for the SHM ring headers.
func (v *View) readIdx() uint32  { return atomic.LoadUint32(v.readIdxPtr()) }
func (v *View) writeIdx() uint32 { return atomic.LoadUint32(v.writeIdxPtr()) }
func (v *View) setReadIdx(i uint32) {
	atomic.StoreUint32(v.readIdxPtr(), i)
}
func (v *View) setWriteIdx(i uint32) {
	atomic.StoreUint32(v.writeIdxPtr(), i)
}

func (v *View) mask(i uint32) uint32 { return i & (v.capacity - 1) }

// Size returns the number of currently queued records.
func (v *View) Size() uint32 { return v.writeIdx() - v.readIdx() }

// IsEmpty reports whether the ring holds no records.
func (v *View) IsEmpty() bool { return v.Size() == 0 }

// IsFull reports whether the ring is at capacity.
func (v *View) IsFull() bool { return v.Size() == v.capacity }

// Capacity returns the fixed record capacity.
func (v *View) Capacity() uint32 { return v.capacity }

func (v *View) slotOffset(slot uint32) int {
	return headerSize + int(slot)*v.recordSize
}

// PushBack writes record (which must be exactly recordSize bytes) into the
// next slot and advances writeIdx. Unchecked: the caller must have verified
// IsFull() == false.
func (v *View) PushBack(record []byte) {
	slot := v.mask(v.writeIdx())
	off := v.slotOffset(slot)
	copy(v.region[off:off+v.recordSize], record)
	v.setWriteIdx(v.writeIdx() + 1)
}

// PopFront copies the front record into dst (which must be exactly
// recordSize bytes) and advances readIdx. Unchecked: the caller must have
// verified IsEmpty() == false.
func (v *View) PopFront(dst []byte) {
	slot := v.mask(v.readIdx())
	off := v.slotOffset(slot)
	copy(dst, v.region[off:off+v.recordSize])
	v.setReadIdx(v.readIdx() + 1)
}

// PeekFront returns a slice view of the front record without advancing
// readIdx. The slice aliases the underlying region.
func (v *View) PeekFront() []byte {
	slot := v.mask(v.readIdx())
	off := v.slotOffset(slot)
	return v.region[off : off+v.recordSize]
}

// RegionSize computes the byte size a backing region must have to hold
// capacity records of recordSize bytes, including the header.
func RegionSize(capacity uint32, recordSize int) int {
	return headerSize + int(capacity)*recordSize
}
