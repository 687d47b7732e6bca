package sharedring

import (
	"context"
)

// Sender is the producer endpoint of a SharedRing: it writes items and
// the data-available counter, and reads the space-available counter.
type Sender struct {
	ep *endpoint
}

// Capacity returns the ring's maximum occupancy, in items.
func (s *Sender) Capacity() uint64 {
	return bytesToItems(s.ep.tx.Capacity(), s.ep.itemSize)
}

// WriteCount returns how many items can be written right now without
// blocking.
func (s *Sender) WriteCount() (uint64, error) {
	n, err := s.ep.tx.WriteCount()
	if err != nil {
		return 0, err
	}
	return bytesToItems(n, s.ep.itemSize), nil
}

// IsEmpty reports whether the ring currently holds zero items.
func (s *Sender) IsEmpty() (bool, error) {
	return s.ep.tx.IsEmpty()
}

// Send writes up to n items without blocking. fill receives one or two
// contiguous byte ranges (each a multiple of the ring's item size) and
// must return how many whole items it populated. It never blocks and
// never signals the peer on its own; callers that want the wakeup
// protocol should use SendBlocking instead.
func (s *Sender) Send(n uint64, fill func(s1, s2 []byte) (filledItems uint64)) (uint64, error) {
	filledBytes, err := s.ep.tx.Send(itemsToBytes(n, s.ep.itemSize), func(b1, b2 []byte) uint64 {
		return itemsToBytes(fill(b1, b2), s.ep.itemSize)
	})
	if err != nil {
		return 0, err
	}
	return bytesToItems(filledBytes, s.ep.itemSize), nil
}

// SendBlocking writes up to n items, blocking on the space-available
// counter and retrying while the ring has no room. The data-available
// counter is only notified on an empty-to-nonempty transition: over-
// signaling is merely wasteful, but under-signaling is a deadlock.
func (s *Sender) SendBlocking(ctx context.Context, n uint64, fill func(s1, s2 []byte) (filledItems uint64)) (uint64, error) {
	var total uint64
	for total < n {
		wasEmpty, err := s.IsEmpty()
		if err != nil {
			return total, err
		}

		placed, err := s.Send(n-total, fill)
		if err != nil {
			return total, err
		}

		if placed > 0 {
			total += placed
			if wasEmpty {
				if err := s.ep.dataAvail.Notify(); err != nil {
					return total, err
				}
			}
			continue
		}

		// Nothing fit: wait for the consumer to free space, then retry.
		if err := waitForSignal(ctx, s.ep.spaceAvail, s.ep.region); err != nil {
			return total, mapWaitErr(err)
		}
	}
	return total, nil
}

// Close releases the mapping and descriptors owned by this endpoint.
func (s *Sender) Close() error {
	return closeEndpoint(s.ep)
}
