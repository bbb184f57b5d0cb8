package osabstraction

import (
	"os"
	"testing"
	"time"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return "test." + t.Name() + "." + time.Now().Format("150405.000000000")
}

func TestNamedEvent_SetThenWaitSucceeds(t *testing.T) {
	name := uniqueName(t)
	ev, err := CreateOrOpenNamedEvent(name)
	if err != nil {
		t.Fatalf("CreateOrOpenNamedEvent: %v", err)
	}
	defer ev.Close()

	if err := ev.Set(); err != nil {
		t.Fatalf("Set: %v", err)
	}
	res, err := ev.Wait(time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res != WaitOk {
		t.Fatalf("Wait result = %v, want WaitOk", res)
	}
}

func TestNamedEvent_WaitTimesOutWhenUnsignaled(t *testing.T) {
	name := uniqueName(t)
	ev, err := CreateOrOpenNamedEvent(name)
	if err != nil {
		t.Fatalf("CreateOrOpenNamedEvent: %v", err)
	}
	defer ev.Close()

	res, err := ev.Wait(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res != WaitTimeout {
		t.Fatalf("Wait result = %v, want WaitTimeout", res)
	}
}

func TestNamedEvent_SetIsIdempotentWhilePending(t *testing.T) {
	name := uniqueName(t)
	ev, err := CreateOrOpenNamedEvent(name)
	if err != nil {
		t.Fatalf("CreateOrOpenNamedEvent: %v", err)
	}
	defer ev.Close()

	if err := ev.Set(); err != nil {
		t.Fatalf("Set 1: %v", err)
	}
	if err := ev.Set(); err != nil {
		t.Fatalf("Set 2: %v", err)
	}
	if _, err := ev.Wait(time.Second); err != nil {
		t.Fatalf("Wait 1: %v", err)
	}
	if res, err := ev.Wait(10 * time.Millisecond); err != nil || res != WaitTimeout {
		t.Fatalf("Wait 2 = %v, %v; want WaitTimeout, nil", res, err)
	}
}

func TestNamedLock_SecondAcquireBlocksUntilClose(t *testing.T) {
	name := uniqueName(t)
	first, err := Acquire(name)
	if err != nil {
		t.Fatalf("Acquire 1: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := Acquire(name)
		if err != nil {
			t.Errorf("Acquire 2: %v", err)
			return
		}
		close(acquired)
		_ = second.Close()
	}()

	select {
	case <-acquired:
		t.Fatalf("second Acquire returned before first was released")
	case <-time.After(50 * time.Millisecond):
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close 1: %v", err)
	}

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second Acquire never unblocked after Close")
	}
}

func TestSharedMemoryRegion_CreateIsZeroed(t *testing.T) {
	if os.Getenv("SKIP_SHM_TESTS") != "" {
		t.Skip("shared memory unavailable in this environment")
	}
	name := uniqueName(t)
	r, err := CreateOrOpen(name, 64)
	if err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	defer func() {
		_ = r.Close()
		_ = r.Unlink()
	}()

	for i, b := range r.Bytes() {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestSharedMemoryRegion_SecondOpenerSeesWrites(t *testing.T) {
	if os.Getenv("SKIP_SHM_TESTS") != "" {
		t.Skip("shared memory unavailable in this environment")
	}
	name := uniqueName(t)
	creator, err := CreateOrOpen(name, 64)
	if err != nil {
		t.Fatalf("CreateOrOpen: %v", err)
	}
	defer func() {
		_ = creator.Close()
		_ = creator.Unlink()
	}()
	creator.Bytes()[0] = 0x42

	opener, err := TryOpenExisting(name, 64)
	if err != nil {
		t.Fatalf("TryOpenExisting: %v", err)
	}
	defer opener.Close()

	if got := opener.Bytes()[0]; got != 0x42 {
		t.Fatalf("byte 0 = %#x, want 0x42", got)
	}
}

func TestTryOpenExisting_MissingRegionReturnsErrNotConnected(t *testing.T) {
	if os.Getenv("SKIP_SHM_TESTS") != "" {
		t.Skip("shared memory unavailable in this environment")
	}
	_, err := TryOpenExisting(uniqueName(t)+".missing", 64)
	if err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestProcessExists_CurrentProcess(t *testing.T) {
	if !ProcessExists(os.Getpid()) {
		t.Fatalf("ProcessExists(self) = false, want true")
	}
}

func TestProcessExists_UnlikelyPid(t *testing.T) {
	if ProcessExists(1 << 30) {
		t.Fatalf("ProcessExists(huge pid) = true, want false")
	}
}
