// Copyright dSPACE GmbH. All rights reserved.

package osabstraction

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// NamedLock is a process-scoped mutual exclusion primitive keyed by name,
// backed by flock(2) on a well-known path. It is acquired for the lifetime
// of the holder and released on Close or process exit.
type NamedLock struct {
	file *os.File
	name string
}

func lockPath(name string) string {
	return filepath.Join(os.TempDir(), "dSPACE.VEOS.CoSim.Mutex."+name+".lock")
}

// Acquire blocks until the named lock is held.
func Acquire(name string) (*NamedLock, error) {
	path := lockPath(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("osabstraction: open lock file %q: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("osabstraction: flock %q: %w", path, err)
	}
	return &NamedLock{file: f, name: name}, nil
}

// Close releases the lock and the underlying file handle.
func (l *NamedLock) Close() error {
	if l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}
