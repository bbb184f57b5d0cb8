// Copyright dSPACE GmbH. All rights reserved.

package osabstraction

import (
	"golang.org/x/sys/unix"
)

// ProcessExists reports whether a process with the given pid is alive, by
// sending the null signal per kill(2) semantics. It does not distinguish a
// live process owned by another user from a nonexistent one beyond what
// EPERM vs ESRCH tells us: EPERM means the process exists but is not
// signalable by us, which still counts as alive here.
func ProcessExists(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == unix.EPERM
}
