package sharedring

import (
	"context"
)

// Receiver is the consumer endpoint of a SharedRing: it reads items and
// the space-available counter, and writes the data-available counter.
type Receiver struct {
	ep *endpoint
}

// Capacity returns the ring's maximum occupancy, in items.
func (r *Receiver) Capacity() uint64 {
	return bytesToItems(r.ep.rx.Capacity(), r.ep.itemSize)
}

// ReadCount returns how many items are available to read right now
// without blocking.
func (r *Receiver) ReadCount() (uint64, error) {
	n, err := r.ep.rx.ReadCount()
	if err != nil {
		return 0, err
	}
	return bytesToItems(n, r.ep.itemSize), nil
}

// IsFull reports whether the ring currently holds capacity items.
func (r *Receiver) IsFull() (bool, error) {
	return r.ep.rx.IsFull()
}

// Receive reads up to n items without blocking. consume receives one or
// two contiguous byte ranges (each a multiple of the ring's item size)
// and must return how many whole items it took. It never blocks and
// never signals the peer on its own; callers that want the wakeup
// protocol should use ReceiveBlocking instead.
func (r *Receiver) Receive(n uint64, consume func(s1, s2 []byte) (takenItems uint64)) (uint64, error) {
	takenBytes, err := r.ep.rx.Receive(itemsToBytes(n, r.ep.itemSize), func(b1, b2 []byte) uint64 {
		return itemsToBytes(consume(b1, b2), r.ep.itemSize)
	})
	if err != nil {
		return 0, err
	}
	return bytesToItems(takenBytes, r.ep.itemSize), nil
}

// ReceiveBlocking reads up to n items, blocking on the data-available
// counter and retrying while the ring is empty. Mirrors SendBlocking's
// edge-triggered signaling: the space-available counter is only notified
// on a full-to-nonfull transition.
//
// If the wait is interrupted by the peer closing its side, any items
// still in the ring are drained and counted in the returned total first;
// ErrPeerClosed is only returned once the ring is observed empty, and it
// is returned together with the number of items already taken in this
// call (which may be non-zero).
func (r *Receiver) ReceiveBlocking(ctx context.Context, n uint64, consume func(s1, s2 []byte) (takenItems uint64)) (uint64, error) {
	var total uint64
	for total < n {
		wasFull, err := r.IsFull()
		if err != nil {
			return total, err
		}

		taken, err := r.Receive(n-total, consume)
		if err != nil {
			return total, err
		}

		if taken > 0 {
			total += taken
			if wasFull {
				if err := r.ep.spaceAvail.Notify(); err != nil {
					return total, err
				}
			}
			continue
		}

		if err := waitForSignal(ctx, r.ep.dataAvail, r.ep.region); err != nil {
			if isPeerClosed(err) {
				drained, derr := r.drainRemaining(consume)
				if derr != nil {
					return total, derr
				}
				if drained > 0 {
					total += drained
					continue
				}
				return total, ErrPeerClosed
			}
			return total, err
		}
	}
	return total, nil
}

// drainRemaining reads whatever is left in the ring in one shot, used
// once the peer has closed and no further wakeups will arrive.
func (r *Receiver) drainRemaining(consume func(s1, s2 []byte) (takenItems uint64)) (uint64, error) {
	avail, err := r.ReadCount()
	if err != nil {
		return 0, err
	}
	if avail == 0 {
		return 0, nil
	}
	return r.Receive(avail, consume)
}

// Close releases the mapping and descriptors owned by this endpoint.
func (r *Receiver) Close() error {
	return closeEndpoint(r.ep)
}
