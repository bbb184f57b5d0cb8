package shmring

import (
	"bytes"
	"testing"
)

func TestView_RejectsNonPowerOfTwo(t *testing.T) {
	region := make([]byte, RegionSize(3, 8))
	if _, err := New(region, 3, 8, true); err == nil {
		t.Fatalf("expected error for non-power-of-two capacity")
	}
}

func TestView_PushPopRoundTrip(t *testing.T) {
	region := make([]byte, RegionSize(4, 4))
	v, err := New(region, 4, 4, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !v.IsEmpty() {
		t.Fatalf("expected empty view")
	}
	for i := 0; i < 4; i++ {
		rec := []byte{byte(i), byte(i), byte(i), byte(i)}
		v.PushBack(rec)
	}
	if !v.IsFull() {
		t.Fatalf("expected full view")
	}
	for i := 0; i < 4; i++ {
		want := []byte{byte(i), byte(i), byte(i), byte(i)}
		if got := v.PeekFront(); !bytes.Equal(got, want) {
			t.Fatalf("peek %d = %v, want %v", i, got, want)
		}
		dst := make([]byte, 4)
		v.PopFront(dst)
		if !bytes.Equal(dst, want) {
			t.Fatalf("pop %d = %v, want %v", i, dst, want)
		}
	}
	if !v.IsEmpty() {
		t.Fatalf("expected empty view after draining")
	}
}

func TestView_WrapAroundIndicesStayMonotonic(t *testing.T) {
	region := make([]byte, RegionSize(2, 2))
	v, err := New(region, 2, 2, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dst := make([]byte, 2)
	for round := 0; round < 5; round++ {
		v.PushBack([]byte{byte(round), byte(round)})
		v.PushBack([]byte{byte(round + 1), byte(round + 1)})
		if v.Size() != 2 {
			t.Fatalf("round %d: size = %d, want 2", round, v.Size())
		}
		v.PopFront(dst)
		v.PopFront(dst)
	}
}

func TestView_SecondOpenerValidatesCapacity(t *testing.T) {
	region := make([]byte, RegionSize(4, 4))
	if _, err := New(region, 4, 4, true); err != nil {
		t.Fatalf("New (creator): %v", err)
	}
	if _, err := New(region, 4, 4, false); err != nil {
		t.Fatalf("New (opener): %v", err)
	}
	if _, err := New(region, 8, 4, false); err == nil {
		t.Fatalf("expected capacity mismatch error")
	}
}
