package ringqueue

import "testing"

func TestAddAndPopBottomPreservesFIFOOrder(t *testing.T) {
	q := New[int](2)
	for i := 0; i < 5; i++ {
		if _, ok := q.Add(i); !ok {
			t.Fatalf("Add(%d) failed", i)
		}
	}
	for i := 0; i < 5; i++ {
		got, ok := q.PopBottom()
		if !ok || got != i {
			t.Errorf("PopBottom() = %d, %v, want %d, true", got, ok, i)
		}
	}
	if _, ok := q.PopBottom(); ok {
		t.Errorf("PopBottom() on empty queue should fail")
	}
}

func TestGrowPreservesOrderAndResetsLower(t *testing.T) {
	q := New[int](2)
	q.Add(1)
	q.Add(2)
	// Force wraparound before growth: pop one, add one, so lower != 0.
	q.PopBottom()
	q.Add(3)
	q.Add(4) // triggers growth since buffer (size 2) is now full again
	want := []int{2, 3, 4}
	for _, w := range want {
		got, ok := q.PopBottom()
		if !ok || got != w {
			t.Errorf("PopBottom() = %d, %v, want %d, true", got, ok, w)
		}
	}
}

func TestBoundedQueueRejectsOverflow(t *testing.T) {
	q := NewBounded[int](2)
	if _, ok := q.Add(1); !ok {
		t.Fatal("Add(1) should succeed")
	}
	if _, ok := q.Add(2); !ok {
		t.Fatal("Add(2) should succeed")
	}
	if _, ok := q.Add(3); ok {
		t.Fatal("Add(3) should fail: queue is full")
	}
}

func TestPeekBottomAndTop(t *testing.T) {
	q := New[int](4)
	q.Add(10)
	q.Add(20)
	q.Add(30)
	if b, ok := q.PeekBottom(); !ok || *b != 10 {
		t.Errorf("PeekBottom() = %v, %v, want 10, true", b, ok)
	}
	if top, ok := q.PeekTop(); !ok || *top != 30 {
		t.Errorf("PeekTop() = %v, %v, want 30, true", top, ok)
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (peeks must not remove)", q.Len())
	}
}

func TestIteratorRemovesContiguousPrefix(t *testing.T) {
	q := New[int](4)
	for _, v := range []int{1, 2, 3, 4, 5} {
		q.Add(v)
	}
	it, ok := q.Begin()
	if !ok {
		t.Fatal("Begin() on non-empty queue should succeed")
	}
	removed := 0
	for {
		if *it.Item() >= 4 {
			break
		}
		it.Remove()
		removed++
		if !it.Next() {
			break
		}
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	if q.Len() != 2 {
		t.Errorf("Len() after removal = %d, want 2", q.Len())
	}
	first, _ := q.PeekBottom()
	if *first != 4 {
		t.Errorf("PeekBottom() after removal = %d, want 4", *first)
	}
}

func TestClear(t *testing.T) {
	q := New[int](4)
	q.Add(1)
	q.Add(2)
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", q.Len())
	}
	if _, ok := q.Add(3); !ok {
		t.Fatal("Add() after Clear() should still work")
	}
	got, ok := q.PopBottom()
	if !ok || got != 3 {
		t.Errorf("PopBottom() after Clear()+Add() = %d, %v, want 3, true", got, ok)
	}
}
