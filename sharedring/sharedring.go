// Package sharedring composes a sealedmem.Region, a byte ring from
// ringbuf.New, and
// two wakeup.Counter event counters into a blockable Sender/Receiver
// endpoint pair: the piece that lets a producer or consumer sleep instead
// of polling, while the ring protocol underneath stays wait-free.
//
// One process allocates the region and counters (the owner); the other
// side (the peer) receives the three descriptors out of band, with no
// in-band negotiation, and must already agree on the (capacity, item_size)
// shape.
package sharedring

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/alephtx/shmring/ringbuf"
	"github.com/alephtx/shmring/sealedmem"
	"github.com/alephtx/shmring/wakeup"
)

// ErrPeerClosed is surfaced once a blocked Send/Receive observes its
// wakeup counter close with nothing left to drain from the ring. Items
// already written before closure are still delivered: a Receiver drains
// whatever ReadCount() reports before returning this error.
var ErrPeerClosed = errors.New("sharedring: peer closed")

// endpoint holds the state shared by Sender and Receiver: the region and
// byte-level ring backing them, plus the item size used to translate
// between "items" (what callers think in) and bytes (what the ring
// protocol actually moves).
type endpoint struct {
	id         uuid.UUID
	region     *sealedmem.Region
	itemSize   uint64
	tx         *ringbuf.Sender[byte]
	rx         *ringbuf.Receiver[byte]
	dataAvail  *wakeup.Counter // data became available: producer writes, consumer reads
	spaceAvail *wakeup.Counter // space became available: consumer writes, producer reads
	closed     atomic.Bool     // guards against double Close
}

func regionSize(capacity uint64, itemSize uint32) uint64 {
	return ringbuf.RequiredLen(capacity, uintptr(itemSize))
}

// NewOwner allocates a fresh SealedRegion sized for capacity items of
// itemSize bytes each, builds the ring and the two wakeup counters over
// it, and returns the Sender and Receiver halves. Exactly one of these is
// meant to stay with the owning process; the other's descriptors are
// meant to be handed to a peer via FDs().
func NewOwner(name string, capacity uint64, itemSize uint32) (*Sender, *Receiver, error) {
	region, err := sealedmem.Create(name, regionSize(capacity, itemSize))
	if err != nil {
		return nil, nil, fmt.Errorf("sharedring: owner: %w", err)
	}

	tx, rx, err := ringbuf.New[byte](ringbuf.NewRegion(region.Bytes()), capacity*uint64(itemSize))
	if err != nil {
		region.Close()
		return nil, nil, fmt.Errorf("sharedring: owner: %w", err)
	}

	dataAvail, err := wakeup.New()
	if err != nil {
		region.Close()
		return nil, nil, fmt.Errorf("sharedring: owner: %w", err)
	}
	spaceAvail, err := wakeup.New()
	if err != nil {
		dataAvail.Close()
		region.Close()
		return nil, nil, fmt.Errorf("sharedring: owner: %w", err)
	}

	id := uuid.New()
	log.Printf("sharedring: owner created ring %s (capacity=%d item_size=%d)", id, capacity, itemSize)

	ep := &endpoint{
		id:         id,
		region:     region,
		itemSize:   uint64(itemSize),
		tx:         tx,
		rx:         rx,
		dataAvail:  dataAvail,
		spaceAvail: spaceAvail,
	}
	return &Sender{ep: ep}, &Receiver{ep: ep}, nil
}

// NewPeer opens a SharedRing from descriptors received out of band: the
// sealed data fd, the data-available eventfd, and the space-available
// eventfd, in that order, plus the (capacity, item_size) scalars that
// must match the owner's exactly.
func NewPeer(dataFD, dataAvailFD, spaceAvailFD int, capacity uint64, itemSize uint32) (*Sender, *Receiver, error) {
	region, err := sealedmem.Open(dataFD)
	if err != nil {
		return nil, nil, fmt.Errorf("sharedring: peer: %w", err)
	}

	tx, rx, err := ringbuf.New[byte](ringbuf.NewRegion(region.Bytes()), capacity*uint64(itemSize))
	if err != nil {
		region.Close()
		return nil, nil, fmt.Errorf("sharedring: peer: %w", err)
	}

	dataAvail, err := wakeup.FromFD(dataAvailFD)
	if err != nil {
		region.Close()
		return nil, nil, fmt.Errorf("sharedring: peer: %w", err)
	}
	spaceAvail, err := wakeup.FromFD(spaceAvailFD)
	if err != nil {
		dataAvail.Close()
		region.Close()
		return nil, nil, fmt.Errorf("sharedring: peer: %w", err)
	}

	id := uuid.New()
	log.Printf("sharedring: peer opened ring %s (capacity=%d item_size=%d)", id, capacity, itemSize)

	ep := &endpoint{
		id:         id,
		region:     region,
		itemSize:   uint64(itemSize),
		tx:         tx,
		rx:         rx,
		dataAvail:  dataAvail,
		spaceAvail: spaceAvail,
	}
	return &Sender{ep: ep}, &Receiver{ep: ep}, nil
}

// FDs returns the three descriptors (data fd, data-available eventfd,
// space-available eventfd), for the caller's own out-of-band transport to
// the peer. Valid on either Sender or Receiver, since both sides of one
// SharedRing share one endpoint's descriptors.
func (s *Sender) FDs() (dataFD, dataAvailFD, spaceAvailFD int) {
	return s.ep.region.FD(), s.ep.dataAvail.FD(), s.ep.spaceAvail.FD()
}

// FDs mirrors Sender.FDs for the Receiver half.
func (r *Receiver) FDs() (dataFD, dataAvailFD, spaceAvailFD int) {
	return r.ep.region.FD(), r.ep.dataAvail.FD(), r.ep.spaceAvail.FD()
}

func closeEndpoint(ep *endpoint) error {
	if !ep.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Mark the shared region closed before unmapping: every other mapping
	// of the same descriptor (the peer's, in particular) observes this
	// write immediately, since it lands in genuinely shared physical
	// memory rather than in any one process's private state.
	markRegionClosed(ep.region)

	var errs []error
	if err := ep.dataAvail.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := ep.spaceAvail.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := ep.region.Close(); err != nil {
		errs = append(errs, err)
	}
	log.Printf("sharedring: closed ring %s", ep.id)
	return errors.Join(errs...)
}

// itemsToBytes/bytesToItems convert between the caller's item-count view
// and the ring's byte-count view. Both sides agree on itemSize, so this
// conversion is exact and never needs rounding.
func itemsToBytes(n, itemSize uint64) uint64 { return n * itemSize }
func bytesToItems(n, itemSize uint64) uint64 { return n / itemSize }
