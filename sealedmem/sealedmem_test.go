package sealedmem

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestCreate_PageRoundsAndSeals(t *testing.T) {
	r, err := Create("test-region", 10)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, os.Getpagesize(), r.Len())

	seals, err := unix.FcntlInt(uintptr(r.FD()), unix.F_GET_SEALS, 0)
	require.NoError(t, err)
	require.NotZero(t, seals&unix.F_SEAL_SHRINK)
	require.NotZero(t, seals&unix.F_SEAL_GROW)
	require.NotZero(t, seals&unix.F_SEAL_SEAL)
	require.Zero(t, seals&unix.F_SEAL_WRITE)
}

func TestOpen_SharesMemoryWithOwner(t *testing.T) {
	owner, err := Create("test-shared", 4096)
	require.NoError(t, err)
	defer owner.Close()

	dupFD, err := unix.Dup(owner.FD())
	require.NoError(t, err)

	peer, err := Open(dupFD)
	require.NoError(t, err)
	defer peer.Close()

	owner.Bytes()[0] = 0x42
	require.Equal(t, byte(0x42), peer.Bytes()[0])

	peer.Bytes()[100] = 0x7
	require.Equal(t, byte(0x7), owner.Bytes()[100])
}

func TestOpen_RejectsUnsealedFD(t *testing.T) {
	fd, err := unix.MemfdCreate("unsealed", unix.MFD_CLOEXEC)
	require.NoError(t, err)
	defer unix.Close(fd)
	require.NoError(t, unix.Ftruncate(fd, 4096))

	_, err = Open(fd)
	require.ErrorIs(t, err, ErrUnsealedMemory)
}

func TestOpen_RejectsPartiallySealedFD(t *testing.T) {
	fd, err := unix.MemfdCreate("partial-seal", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	require.NoError(t, err)
	defer unix.Close(fd)
	require.NoError(t, unix.Ftruncate(fd, 4096))

	// Only the shrink seal is applied; grow and seal-lock are missing.
	_, err = unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK)
	require.NoError(t, err)

	_, err = Open(fd)
	require.ErrorIs(t, err, ErrUnsealedMemory)
}

func TestPageRound(t *testing.T) {
	ps := uint64(os.Getpagesize())
	require.Equal(t, ps, pageRound(1))
	require.Equal(t, ps, pageRound(ps))
	require.Equal(t, 2*ps, pageRound(ps+1))
}
