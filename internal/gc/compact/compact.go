// Package compact implements mark-compact collection using threaded
// pointer reversal: Kermany & Petrank's improvement of Jonkers' threaded
// compaction. Mark phase: bitmap + mark stack, threading backward pointers
// as they're discovered. Compaction phase: a single ascending pass over the
// bitmap that unthreads each marked object's incoming references, moves it
// down to the compaction cursor, and threads its forward pointers so the
// sweep can unthread them when it reaches their referents.
package compact

import (
	"github.com/dfinity-labs/motoko-gc/internal/gc/bitmap"
	"github.com/dfinity-labs/motoko-gc/internal/gc/markstack"
	"github.com/dfinity-labs/motoko-gc/internal/gc/roots"
	"github.com/dfinity-labs/motoko-gc/internal/heap"
)

// Collect marks everything reachable from the static roots and the closure
// table within [heapBase, oldHp), compacts the live objects down starting
// at heapBase, and returns the new heap pointer.
func Collect(mem heap.Memory, heapBase, oldHp heap.Address, staticRoots heap.Word, closureTableLoc heap.Address) heap.Address {
	// Threading distinguishes a tag from a heap address by magnitude: a
	// thread-chain link is always a real address, and a terminating tag is
	// always <= Null. That only works if no valid heap address is itself
	// <= Null.
	if heapBase <= heap.Address(heap.TagNull) {
		heap.Trap("heap_base must exceed the largest tag value")
	}

	heapWords := uint32(oldHp.Sub(heapBase) / heap.WordSize)
	bm := bitmap.New(heapWords)
	stack := markstack.New()

	markStaticRoots(mem, bm, stack, heapBase, staticRoots)

	if heap.PointerToDynamicHeap(mem, closureTableLoc, heapBase) {
		markObject(mem, bm, stack, heapBase, mem.ReadWord(closureTableLoc))
		thread(mem, closureTableLoc)
	}

	drainMarkStack(mem, bm, stack, heapBase)

	return updateRefs(mem, bm, heapBase)
}

func markStaticRoots(mem heap.Memory, bm *bitmap.Bitmap, stack *markstack.Stack, heapBase heap.Address, staticRoots heap.Word) {
	roots.ForEach(mem, staticRoots, func(mutBoxAddr heap.Address) {
		if mutBoxAddr >= heapBase || heap.ReadTag(mem, mutBoxAddr) != heap.TagMutBox {
			heap.Trap("mark_static_roots: root is not a static MutBox")
		}
		fieldAddr := mutBoxAddr.Add(heap.WordSize)
		if !heap.PointerToDynamicHeap(mem, fieldAddr, heapBase) {
			return
		}
		markObject(mem, bm, stack, heapBase, mem.ReadWord(fieldAddr))
		// Static objects never move, so it's always safe to thread here;
		// whichever order the sweep later reaches the referent in, the
		// field is live to be rewritten.
		thread(mem, fieldAddr)
	})
}

func drainMarkStack(mem heap.Memory, bm *bitmap.Bitmap, stack *markstack.Stack, heapBase heap.Address) {
	for {
		e, ok := stack.Pop()
		if !ok {
			return
		}
		heap.VisitPointerFields(mem, e.Addr, e.Tag, func(fieldAddr heap.Address) bool {
			if !heap.PointerToDynamicHeap(mem, fieldAddr, heapBase) {
				return true
			}
			v := mem.ReadWord(fieldAddr)
			markObject(mem, bm, stack, heapBase, v)
			if heap.Unskew(v) < fieldAddr {
				// Backward (or self) pointer: the sweep moves objects in
				// ascending address order, so by the time it reaches the
				// referent this field is behind it -- thread now.
				thread(mem, fieldAddr)
			}
			return true
		})
	}
}

func markObject(mem heap.Memory, bm *bitmap.Bitmap, stack *markstack.Stack, heapBase heap.Address, p heap.Word) {
	addr := heap.Unskew(p)
	idx := uint32(addr.Sub(heapBase) / heap.WordSize)
	if bm.Get(idx) {
		return
	}
	bm.Set(idx)
	stack.Push(addr, heap.ReadTag(mem, addr))
}

// thread records field's referent's header into field, and field's own
// address into the referent's header, forming one more link in the
// referent's thread list.
func thread(mem heap.Memory, field heap.Address) {
	pointed := heap.Unskew(mem.ReadWord(field))
	pointedHeader := mem.ReadWord(pointed)
	mem.WriteWord(field, pointedHeader)
	mem.WriteWord(pointed, heap.Word(field))
}

// unthread walks obj's thread list, rewriting every linked field to
// newLoc, and restores obj's true header at the end of the chain.
func unthread(mem heap.Memory, obj, newLoc heap.Address) {
	header := uint32(mem.ReadWord(obj))
	for header > uint32(heap.TagNull) {
		field := heap.Address(header)
		next := uint32(mem.ReadWord(field))
		mem.WriteWord(field, heap.Skew(newLoc))
		header = next
	}
	// The end of the chain is the object's real header.
	if header < uint32(heap.TagObject) {
		heap.Trap("unthread: thread chain did not end in a valid tag")
	}
	mem.WriteWord(obj, heap.Word(header))
}

// updateRefs is the single ascending pass over the bitmap that unthreads,
// moves, and rethreads every marked object, returning the new heap pointer.
func updateRefs(mem heap.Memory, bm *bitmap.Bitmap, heapBase heap.Address) heap.Address {
	free := heapBase
	it := bm.Iter()
	for {
		bit := it.Next()
		if bitmap.Done(bit) {
			break
		}
		p := heapBase.Add(bit * heap.WordSize)
		newLoc := free

		unthread(mem, p, newLoc)

		size := heap.ObjectSize(mem, p)
		if newLoc != p {
			memcpyWords(mem, newLoc, p, size)
		}
		free = free.Add(size * heap.WordSize)

		threadForwardPointers(mem, newLoc)
	}
	return free
}

func threadForwardPointers(mem heap.Memory, objAddr heap.Address) {
	tag := heap.ReadTag(mem, objAddr)
	heap.VisitPointerFields(mem, objAddr, tag, func(fieldAddr heap.Address) bool {
		v := mem.ReadWord(fieldAddr)
		if heap.IsScalar(v) {
			return true
		}
		if heap.Unskew(v) > fieldAddr {
			thread(mem, fieldAddr)
		}
		return true
	})
}

func memcpyWords(mem heap.Memory, dst, src heap.Address, words uint32) {
	for i := uint32(0); i < words; i++ {
		mem.WriteWord(dst.Add(i*heap.WordSize), mem.ReadWord(src.Add(i*heap.WordSize)))
	}
}
