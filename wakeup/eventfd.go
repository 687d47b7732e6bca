// Package wakeup provides an edge-triggered event-counter primitive: an
// 8-byte counter the kernel accumulates on write and drains to zero on
// read, used so a blocked peer can sleep instead of polling.
package wakeup

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ErrPeerClosed is returned by Wait once the local side's Close has run
// concurrently with a blocked wait; see sharedring for how this is turned
// into the ring-level "drain before surfacing PeerClosed" policy.
var ErrPeerClosed = errors.New("wakeup: counter closed")

// ErrEventfdFailed wraps an eventfd2(2) setup failure.
var ErrEventfdFailed = errors.New("wakeup: eventfd2 failed")

// pollTimeoutMillis bounds how long a single poll(2) call blocks while
// Wait is checking for ctx cancellation. It only affects how quickly a
// cancelled context is noticed, never the semantics of the counter.
const pollTimeoutMillis = 100

// Counter wraps one eventfd(2) descriptor. Exactly one side writes to a
// given Counter (Notify) and the other reads it (Wait); see sharedring for
// how the two Counters in a ring are assigned to producer and consumer.
type Counter struct {
	fd     int
	closed atomic.Bool
}

// New creates a fresh, zero-valued, non-blocking, close-on-exec eventfd.
func New() (*Counter, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventfdFailed, err)
	}
	return &Counter{fd: fd}, nil
}

// FromFD wraps an existing eventfd descriptor received from a peer. The fd
// is put into non-blocking mode so Wait can honor context cancellation.
func FromFD(fd int) (*Counter, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("%w: set nonblock: %v", ErrEventfdFailed, err)
	}
	return &Counter{fd: fd}, nil
}

// FD returns the raw descriptor, e.g. to hand to the peer over the
// out-of-band bootstrap channel, or for a caller that wants to drive its
// own poll/epoll loop instead of calling Wait.
func (c *Counter) FD() int { return c.fd }

// Notify adds 1 to the counter. Writes are always non-blocking; if the
// counter is already at its maximum value (EAGAIN), the increment is
// dropped but the peer will still observe "count > 0" on its next read,
// so no wakeup is lost.
func (c *Counter) Notify() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(c.fd, buf[:])
	if err == nil || errors.Is(err, unix.EAGAIN) {
		return nil
	}
	return fmt.Errorf("wakeup: notify: %w", err)
}

// Wait blocks until the counter is non-zero, then drains it, or returns
// ctx's error if ctx is done first, or ErrPeerClosed if Close runs
// concurrently with this call.
func (c *Counter) Wait(ctx context.Context) error {
	buf := make([]byte, 8)
	for {
		if c.closed.Load() {
			return ErrPeerClosed
		}
		n, err := unix.Read(c.fd, buf)
		if err == nil && n == 8 {
			return nil
		}
		if err != nil && !errors.Is(err, unix.EAGAIN) {
			return fmt.Errorf("wakeup: wait: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pfds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
		if _, perr := unix.Poll(pfds, pollTimeoutMillis); perr != nil && !errors.Is(perr, unix.EINTR) {
			return fmt.Errorf("wakeup: poll: %w", perr)
		}
	}
}

// Close marks the counter closed (any in-flight or future Wait returns
// ErrPeerClosed) and closes the underlying descriptor.
func (c *Counter) Close() error {
	c.closed.Store(true)
	return unix.Close(c.fd)
}
