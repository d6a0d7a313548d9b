package markstack

import (
	"testing"

	"github.com/dfinity-labs/motoko-gc/internal/heap"
)

func TestPushPopLIFO(t *testing.T) {
	s := New()
	if !s.Empty() {
		t.Fatal("new stack should be empty")
	}

	s.Push(100, heap.TagArray)
	s.Push(200, heap.TagObject)
	s.Push(300, heap.TagBlob)

	if s.Empty() {
		t.Fatal("stack with entries reported empty")
	}

	want := []Entry{
		{Addr: 300, Tag: heap.TagBlob},
		{Addr: 200, Tag: heap.TagObject},
		{Addr: 100, Tag: heap.TagArray},
	}
	for i, w := range want {
		e, ok := s.Pop()
		if !ok {
			t.Fatalf("Pop #%d: stack unexpectedly empty", i)
		}
		if e != w {
			t.Errorf("Pop #%d = %+v, want %+v", i, e, w)
		}
	}
	if !s.Empty() {
		t.Fatal("stack should be empty after popping every entry")
	}
	if _, ok := s.Pop(); ok {
		t.Fatal("Pop on empty stack returned ok=true")
	}
}

func TestPushAcrossChunkBoundary(t *testing.T) {
	s := New()
	n := chunkSize*2 + 5
	for i := 0; i < n; i++ {
		s.Push(heap.Address(i), heap.TagArray)
	}
	count := 0
	for {
		e, ok := s.Pop()
		if !ok {
			break
		}
		count++
		if int(e.Addr) != n-count {
			t.Fatalf("Pop #%d addr = %d, want %d", count, e.Addr, n-count)
		}
	}
	if count != n {
		t.Errorf("popped %d entries, want %d", count, n)
	}
}
