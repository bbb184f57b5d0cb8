// Copyright dSPACE GmbH. All rights reserved.

// Package osabstraction wraps the thin OS-handle primitives the channel
// and local-mode buffers need to exercise: named events, named locks,
// shared memory regions, and process liveness. POSIX-only (the stream
// socket wrapper is portable; named events use System V semaphores, named
// locks use flock(2) on a lock file, and shared memory regions are
// /dev/shm files mapped with mmap, all via golang.org/x/sys/unix, which
// needs no cgo and works across the two cooperating processes on the same
// host).
package osabstraction

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// WaitResult is the closed outcome of NamedEvent.Wait.
type WaitResult int

const (
	WaitOk WaitResult = iota
	WaitTimeout
	WaitError
)

// semGetval issues semctl(2) with GETVAL directly; golang.org/x/sys/unix
// does not expose a typed wrapper for semctl's variadic union argument, so
// this goes straight to the syscall the same way low-level socket-option
// accessors in this codebase's sibling packages do.
func semGetval(semID int, semNum int) (int, error) {
	r0, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(semID), uintptr(semNum), unix.GETVAL, 0, 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r0), nil
}

// NamedEvent is a single-producer-signaled, single-consumer-waiting latch
// with auto-reset, backed by a System V semaphore set keyed by name. A Set
// before a Wait is not lost: at most one pending signal is ever held,
// because Set only posts when the semaphore's value is currently zero.
type NamedEvent struct {
	mu     sync.Mutex
	semID  int
	name   string
	closed bool
}

// namedKey derives a stable System V IPC key from a resource name: the
// full logical name (including the component prefix, e.g.
// "dSPACE.VEOS.CoSim.Event.<name>") is hashed into an ftok-style key.
func namedKey(name string) int32 {
	return int32(fnv32a(name) & 0x7fffffff)
}

func fnv32a(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

// CreateOrOpenNamedEvent creates the semaphore set for name if it does not
// exist yet, or opens the existing one otherwise.
func CreateOrOpenNamedEvent(name string) (*NamedEvent, error) {
	key := namedKey("dSPACE.VEOS.CoSim.Event." + name)
	id, err := unix.Semget(int(key), 1, unix.IPC_CREAT|0o600)
	if err != nil {
		return nil, fmt.Errorf("osabstraction: create named event %q: %w", name, err)
	}
	return &NamedEvent{semID: id, name: name}, nil
}

// Set signals the event. If a signal is already pending, this is a no-op
// (the semaphore value saturates at 1).
func (e *NamedEvent) Set() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("osabstraction: event %q closed", e.name)
	}
	val, err := semGetval(e.semID, 0)
	if err != nil {
		return fmt.Errorf("osabstraction: getval event %q: %w", e.name, err)
	}
	if val != 0 {
		return nil
	}
	op := []unix.Sembuf{{SemNum: 0, SemOp: 1, SemFlg: 0}}
	if err := unix.Semop(e.semID, op); err != nil {
		return fmt.Errorf("osabstraction: set event %q: %w", e.name, err)
	}
	return nil
}

// Wait blocks until the event is signaled or timeout elapses, auto-resetting
// the latch on success. A negative timeout waits indefinitely.
func (e *NamedEvent) Wait(timeout time.Duration) (WaitResult, error) {
	op := []unix.Sembuf{{SemNum: 0, SemOp: -1, SemFlg: 0}}
	if timeout < 0 {
		if err := unix.Semtimedop(e.semID, op, nil); err != nil {
			return WaitError, fmt.Errorf("osabstraction: wait event %q: %w", e.name, err)
		}
		return WaitOk, nil
	}
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	if err := unix.Semtimedop(e.semID, op, &ts); err != nil {
		if err == unix.EAGAIN {
			return WaitTimeout, nil
		}
		return WaitError, fmt.Errorf("osabstraction: wait event %q: %w", e.name, err)
	}
	return WaitOk, nil
}

// Close marks the local handle unusable. The System V semaphore set behind
// the event is not removed (no IPC_RMID is issued), so it stays in the
// system after every process has closed its handle.
func (e *NamedEvent) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
