// Copyright dSPACE GmbH. All rights reserved.

package shmring

import "unsafe"

// ptrAt returns the address of region[off] for use with the atomic package.
// region must stay alive and unmoved for as long as the returned pointer is
// used, which holds here because it is backed by an mmap'd shared memory
// region or a process-local byte slice kept alive by the View.
func ptrAt(region []byte, off int) unsafe.Pointer {
	return unsafe.Pointer(&region[off])
}
