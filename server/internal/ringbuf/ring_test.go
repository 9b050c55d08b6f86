package ringbuf

import (
	"reflect"
	"testing"
)

func TestPush_UnderCapacity(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 2; i++ {
		if _, evicted := r.Push(i); evicted {
			t.Fatalf("Push(%d): unexpected eviction", i)
		}
	}
	if r.Len() != 2 {
		t.Errorf("Len: got %d, want 2", r.Len())
	}
	if got := r.Slice(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("Slice: got %v, want [1 2]", got)
	}
}

func TestPush_EvictsOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 3; i++ {
		r.Push(i)
	}

	old, evicted := r.Push(4)
	if !evicted || old != 1 {
		t.Fatalf("Push(4): got (%d, %v), want (1, true)", old, evicted)
	}
	old, evicted = r.Push(5)
	if !evicted || old != 2 {
		t.Fatalf("Push(5): got (%d, %v), want (2, true)", old, evicted)
	}

	if got := r.Slice(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Errorf("Slice: got %v, want [3 4 5]", got)
	}
	if r.Len() != r.Cap() {
		t.Errorf("Len: got %d, want %d", r.Len(), r.Cap())
	}
}

func TestPush_ManyWraps(t *testing.T) {
	r := New[int](20)
	for i := 1; i <= 1000; i++ {
		r.Push(i)
		if r.Len() > r.Cap() {
			t.Fatalf("after %d pushes: Len %d exceeds Cap %d", i, r.Len(), r.Cap())
		}
	}
	got := r.Slice()
	for i, v := range got {
		if want := 981 + i; v != want {
			t.Fatalf("Slice[%d]: got %d, want %d", i, v, want)
		}
	}
}

func TestSlice_EmptyIsNotNil(t *testing.T) {
	r := New[int](1)
	if got := r.Slice(); got == nil || len(got) != 0 {
		t.Errorf("Slice on empty ring: got %#v, want empty non-nil slice", got)
	}
}

func TestSlice_IsCopy(t *testing.T) {
	r := New[int](2)
	r.Push(1)
	s := r.Slice()
	s[0] = 99
	if got := r.Slice(); got[0] != 1 {
		t.Errorf("ring mutated through Slice result: got %d, want 1", got[0])
	}
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New(0): expected panic")
		}
	}()
	New[int](0)
}
