package ring

import "testing"

func TestRing_PushPopOrder(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 3; i++ {
		v := i
		if !r.TryPushBack(&v) {
			t.Fatalf("push %d failed unexpectedly", i)
		}
	}
	if !r.IsFull() {
		t.Fatalf("expected ring to be full")
	}
	v := 4
	if r.TryPushBack(&v) {
		t.Fatalf("push into full ring should fail")
	}

	for i := 1; i <= 3; i++ {
		var out int
		if !r.TryPopFront(&out) {
			t.Fatalf("pop %d failed unexpectedly", i)
		}
		if out != i {
			t.Fatalf("got %d, want %d", out, i)
		}
	}
	if !r.IsEmpty() {
		t.Fatalf("expected ring to be empty")
	}
	var out int
	if r.TryPopFront(&out) {
		t.Fatalf("pop from empty ring should fail")
	}
}

func TestRing_WrapAround(t *testing.T) {
	r := New[int](2)
	a, b, c := 1, 2, 3
	r.TryPushBack(&a)
	r.TryPushBack(&b)
	var out int
	r.TryPopFront(&out)
	r.TryPushBack(&c)

	if r.Size() != 2 {
		t.Fatalf("size = %d, want 2", r.Size())
	}
	r.TryPopFront(&out)
	if out != 2 {
		t.Fatalf("got %d, want 2", out)
	}
	r.TryPopFront(&out)
	if out != 3 {
		t.Fatalf("got %d, want 3", out)
	}
}

func TestRing_PeekDoesNotRemove(t *testing.T) {
	r := New[int](2)
	v := 42
	r.TryPushBack(&v)
	if p := r.TryPeekFront(); p == nil || *p != 42 {
		t.Fatalf("peek = %v, want 42", p)
	}
	if r.Size() != 1 {
		t.Fatalf("peek must not remove")
	}
	r.RemoveFront()
	if !r.IsEmpty() {
		t.Fatalf("expected empty after RemoveFront")
	}
	if r.TryPeekFront() != nil {
		t.Fatalf("peek on empty ring must return nil")
	}
}

func TestRing_Clear(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 3; i++ {
		v := i
		r.TryPushBack(&v)
	}
	r.Clear()
	if r.Size() != 0 || !r.IsEmpty() {
		t.Fatalf("expected empty ring after Clear")
	}
	v := 9
	if !r.TryPushBack(&v) {
		t.Fatalf("ring should be usable after Clear")
	}
}
