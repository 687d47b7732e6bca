package ringbuf

import "errors"

// ErrProtocolError is returned whenever a peer-supplied index, once
// validated, would put the ring's occupancy outside [0, capacity]. The
// caller must treat the endpoint as poisoned: the peer is malicious or
// buggy and no further trust can be placed in its index.
var ErrProtocolError = errors.New("ringbuf: protocol error: peer index out of range")

// occupancy computes how many items are currently in the ring given the
// producer's write index and the consumer's read index, using wrapping
// unsigned subtraction so it is well-defined regardless of how either
// counter has wrapped. It is the single trust boundary between a peer's
// raw 64-bit index and any slot arithmetic derived from it: every other
// function in this package that needs occupancy goes through here first.
func occupancy(writeIdx, readIdx, capacity uint64) (uint64, error) {
	occ := writeIdx - readIdx
	if occ > capacity {
		return 0, ErrProtocolError
	}
	return occ, nil
}
