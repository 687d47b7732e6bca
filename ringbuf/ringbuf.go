// Package ringbuf implements a single-producer/single-consumer, bounded,
// wait-free ring: two monotonic 64-bit indices living at the start of a
// caller-supplied region, a validated read of whichever index belongs to
// the peer, and span-based send/receive callbacks so no slot pointer ever
// escapes past the call that handed it out.
//
// The two-range span API (the fill/consume callbacks of Send/Receive)
// generalizes the acquire/commit shape of an in-process byte ring to a
// generic item type and to indices backed by real shared memory. This
// package does no peer notification; the "notify only on a transition"
// wakeup discipline is layered on top by package sharedring.
package ringbuf

import (
	"os"
	"sync/atomic"
)

// HeaderSize is the number of bytes reserved at the start of a Region for
// the two indices, before any page-alignment padding. write_index lives at
// offset 0, read_index at offset 64, each given its own 64-byte cache line;
// the remaining bytes up to HeaderSize are padding.
const HeaderSize = 128

const (
	writeIndexOffset = 0
	readIndexOffset  = 64
)

// slotBase is the byte offset within a Region where the slot array begins:
// HeaderSize rounded up to the system page size, so the array starts on a
// page boundary regardless of how small HeaderSize itself is. Computed once
// at package init since the page size is fixed for the process lifetime.
var slotBase = pageRoundHeader()

func pageRoundHeader() uint64 {
	ps := uint64(os.Getpagesize())
	if ps == 0 {
		ps = 4096
	}
	return (uint64(HeaderSize) + ps - 1) / ps * ps
}

// SlotBase returns the byte offset where the slot array begins within a
// Region, for callers (e.g. ringconfig) that need to reason about region
// sizing without constructing a ring.
func SlotBase() uint64 { return slotBase }

// Region is the minimal surface RingBuf needs from its backing storage.
// sealedmem.Region satisfies it; so does a plain []byte, which is
// what the tests in this package use to exercise the protocol without any
// real mmap involved.
type Region interface {
	Bytes() []byte
}

type sliceRegion []byte

func (s sliceRegion) Bytes() []byte { return s }

// NewRegion wraps a plain byte slice as a Region, for tests and for
// callers that don't need real shared memory.
func NewRegion(b []byte) Region { return sliceRegion(b) }

func indexPtr(region Region, offset int) *atomic.Uint64 {
	b := region.Bytes()
	return (*atomic.Uint64)(indexPointer(b, offset))
}

// RequiredLen returns the number of bytes a Region must provide to hold a
// ring of the given capacity and item size, including the page-alignment
// padding between the index header and the slot array.
func RequiredLen(capacity uint64, itemSize uintptr) uint64 {
	return slotBase + capacity*uint64(itemSize)
}

// core holds the state shared by both halves of a ring: the slot array
// (typed via generics) and atomic views over the two indices. Neither
// half mutates the other's index; each half's type only exposes the
// operations its role permits.
type core[T any] struct {
	slots     []T
	writeIdx  *atomic.Uint64 // producer-owned
	readIdx   *atomic.Uint64 // consumer-owned
	capacity  uint64
}

// New constructs a ring of the given capacity over region, returning the
// Sender and Receiver halves. The region must already be zeroed on first
// use (a freshly allocated sealedmem.Region is; reusing a region
// across rings is the caller's responsibility to zero first).
func New[T any](region Region, capacity uint64) (*Sender[T], *Receiver[T], error) {
	var zero T
	itemSize := sizeOf(zero)
	need := RequiredLen(capacity, itemSize)
	buf := region.Bytes()
	if uint64(len(buf)) < need {
		return nil, nil, errTooSmall(need, uint64(len(buf)))
	}

	c := &core[T]{
		capacity: capacity,
		writeIdx: indexPtr(region, writeIndexOffset),
		readIdx:  indexPtr(region, readIndexOffset),
	}
	c.slots = slotsOf[T](buf[slotBase:], capacity)

	return &Sender[T]{c: c}, &Receiver[T]{c: c}, nil
}

// Capacity returns the maximum occupancy of the ring.
func (c *core[T]) Capacity() uint64 { return c.capacity }

// span returns up to two contiguous slices of c.slots covering count items
// starting at the monotonic counter start (already reduced mod capacity by
// the caller).
func (c *core[T]) span(start, count uint64) (s1, s2 []T) {
	if count == 0 {
		return nil, nil
	}
	idx := start % c.capacity
	first := c.capacity - idx
	if first > count {
		first = count
	}
	s1 = c.slots[idx : idx+first]
	rem := count - first
	if rem > 0 {
		s2 = c.slots[:rem]
	}
	return s1, s2
}
