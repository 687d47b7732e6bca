// Package sealedmem implements an anonymous, memfd-backed shared-memory
// region whose size and seal state are fixed for the life of the
// descriptor, so that a local process can safely hand the fd to an
// untrusted peer without the peer being able to resize or re-seal it out
// from under the local mapping.
package sealedmem

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var (
	// ErrMemfdFailed wraps a memfd_create(2) failure.
	ErrMemfdFailed = errors.New("sealedmem: memfd_create failed")
	// ErrSealFailed wraps an fcntl(F_ADD_SEALS) failure.
	ErrSealFailed = errors.New("sealedmem: failed to apply seals")
	// ErrUnsealedMemory is returned by Open when the peer-supplied fd is
	// missing one or more of the required seals. This check happens
	// before any mmap of the fd: without it, a peer could resize the file
	// after the mapping is established, crashing the honest side on
	// access.
	ErrUnsealedMemory = errors.New("sealedmem: fd is missing required seals")
	// ErrMmapFailed wraps an mmap(2) failure.
	ErrMmapFailed = errors.New("sealedmem: mmap failed")
)

// requiredSeals is shrink-prevented | grow-prevented | seals-locked.
// The write seal (F_SEAL_WRITE) is deliberately absent: producers need to
// write into the region.
const requiredSeals = unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_SEAL

// Region is an owning handle over a sealed, mmap'd anonymous memory
// region: (descriptor, mapped byte range). Its length cannot change for
// as long as the descriptor is alive on either side.
type Region struct {
	fd   int
	data []byte
}

// pageRound rounds n up to a multiple of the system page size.
func pageRound(n uint64) uint64 {
	ps := uint64(os.Getpagesize())
	return (n + ps - 1) / ps * ps
}

// Create allocates a fresh sealed memory region of at least size bytes
// (rounded up to the page size): memfd_create with sealing allowed,
// truncate to the page-rounded size, apply shrink/grow/seal-lock seals
// (but not the write seal), then map read+write, shared, into this
// process.
func Create(name string, size uint64) (*Region, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMemfdFailed, err)
	}

	rounded := pageRound(size)
	if err := unix.Ftruncate(fd, int64(rounded)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: ftruncate: %v", ErrMemfdFailed, err)
	}

	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, requiredSeals); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", ErrSealFailed, err)
	}

	data, err := unix.Mmap(fd, 0, int(rounded), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", ErrMmapFailed, err)
	}

	return &Region{fd: fd, data: data}, nil
}

// Open maps an existing sealed region given a descriptor received from a
// peer (e.g. over a Unix domain socket via SCM_RIGHTS). The required
// seals are verified before any mmap call; the mapped length is taken
// from the fd's own size, since the sealed size is exactly what the
// owner allocated.
func Open(fd int) (*Region, error) {
	seals, err := unix.FcntlInt(uintptr(fd), unix.F_GET_SEALS, 0)
	if err != nil {
		return nil, fmt.Errorf("sealedmem: get seals: %w", err)
	}
	if seals&requiredSeals != requiredSeals {
		return nil, ErrUnsealedMemory
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("sealedmem: fstat: %w", err)
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMmapFailed, err)
	}

	return &Region{fd: fd, data: data}, nil
}

// Bytes returns the mapped region. Satisfies ringbuf.Region.
func (r *Region) Bytes() []byte { return r.data }

// Len returns the length of the mapped region in bytes.
func (r *Region) Len() int { return len(r.data) }

// FD returns the region's descriptor, e.g. to hand to a peer over an
// out-of-band bootstrap channel.
func (r *Region) FD() int { return r.fd }

// Close unmaps the region and closes the descriptor.
func (r *Region) Close() error {
	var errs []error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			errs = append(errs, fmt.Errorf("sealedmem: munmap: %w", err))
		}
		r.data = nil
	}
	if err := unix.Close(r.fd); err != nil {
		errs = append(errs, fmt.Errorf("sealedmem: close: %w", err))
	}
	return errors.Join(errs...)
}
