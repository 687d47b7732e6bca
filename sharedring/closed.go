package sharedring

import (
	"sync/atomic"
	"unsafe"

	"github.com/alephtx/shmring/sealedmem"
)

// closedFlagOffset is a reserved word inside ringbuf.HeaderSize's padding,
// clear of write_index (offset 0) and read_index (offset 64). Closing a
// local endpoint sets it before unmapping; since the region is genuinely
// shared physical memory, every other mapping of the same descriptor
// observes the flag immediately, regardless of which process's fd number
// it was closed through.
//
// This exists because golang.org/x/sys/unix's eventfd has no cross-process
// hangup signal: closing one side's (possibly dup'd or SCM_RIGHTS-received)
// descriptor never affects a peer's independent reference to the same
// kernel counter, so wakeup.Counter's local "closed" bool (see
// wakeup/eventfd.go) only ever unblocks a Wait in the same process that
// called Close. The shared-memory flag here is what actually lets one
// process observe that the other side is gone.
const closedFlagOffset = 16

func closedFlagPtr(region *sealedmem.Region) *atomic.Uint64 {
	b := region.Bytes()
	return (*atomic.Uint64)(unsafe.Pointer(&b[closedFlagOffset]))
}

func markRegionClosed(region *sealedmem.Region) {
	closedFlagPtr(region).Store(1)
}

func regionClosed(region *sealedmem.Region) bool {
	return closedFlagPtr(region).Load() != 0
}
