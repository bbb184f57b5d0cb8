// Copyright dSPACE GmbH. All rights reserved.

package osabstraction

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrNotConnected is returned by TryOpenExisting when no shared memory
// region exists under the given name.
var ErrNotConnected = errors.New("osabstraction: shared memory region not connected")

// SharedMemoryRegion is a fixed-size byte region addressable by name,
// backed by a tmpfs-resident file mapped with mmap, under the
// "dSPACE.VEOS.CoSim.SharedMemory.<name>" naming convention.
type SharedMemoryRegion struct {
	data []byte
	fd   int
	name string
	size int
}

// shmPath builds the POSIX shared-memory-object path. shm_open is a glibc
// wrapper with no golang.org/x/sys/unix equivalent; on Linux it resolves to
// a regular open(2) under the tmpfs-backed /dev/shm, which is what this
// dials directly to stay cgo-free.
func shmPath(name string) string {
	return "/dev/shm/dSPACE.VEOS.CoSim.SharedMemory." + name
}

// CreateOrOpen creates the named region if absent, or opens the existing
// one, sizing/truncating to size bytes. Freshly created regions are
// guaranteed zero-initialized by the kernel.
func CreateOrOpen(name string, size int) (*SharedMemoryRegion, error) {
	path := shmPath(name)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("osabstraction: open %q: %w", path, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("osabstraction: ftruncate %q: %w", path, err)
	}
	return mapRegion(fd, name, size)
}

// TryOpenExisting opens an already-existing named region without creating
// it. It returns ErrNotConnected if the region does not exist.
func TryOpenExisting(name string, size int) (*SharedMemoryRegion, error) {
	path := shmPath(name)
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("osabstraction: open %q: %w", path, err)
	}
	return mapRegion(fd, name, size)
}

func mapRegion(fd int, name string, size int) (*SharedMemoryRegion, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("osabstraction: mmap %q: %w", name, err)
	}
	return &SharedMemoryRegion{data: data, fd: fd, name: name, size: size}, nil
}

// Bytes returns the mapped region as a byte slice. Callers coordinate
// access via the channel/buffer layer above; this type performs no locking.
func (r *SharedMemoryRegion) Bytes() []byte { return r.data }

// Unlink removes the named region from the filesystem namespace. Call this
// from whichever side is responsible for teardown; mapped regions remain
// valid for processes that already have them open.
func (r *SharedMemoryRegion) Unlink() error {
	return unix.Unlink(shmPath(r.name))
}

// Close unmaps the region and closes the backing file descriptor.
func (r *SharedMemoryRegion) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	if cerr := unix.Close(r.fd); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
