// Package closuretable implements the pinning table ("closure table") that
// hands out stable small-integer handles to host callers and keeps them
// valid across a collection. It is itself an ARRAY object living in the
// dynamic heap, addressed through a single indirection cell in static
// memory.
package closuretable

import "github.com/dfinity-labs/motoko-gc/internal/heap"

// InitialCapacity is the capacity of the backing array created the first
// time a table is used.
const InitialCapacity = 256

const arrayHeaderWords = 2 // tag, len

// Allocator is the subset of the bump allocator the table needs to grow its
// backing array.
type Allocator interface {
	AllocWords(n uint32) heap.Word
}

// Table is the pinning table. free is the index of the first free slot
// ("head of the free list"); it is bookkeeping only -- never a heap
// reference -- so it lives as a plain field here rather than in the wasm
// address space, alongside the rest of a collection's bookkeeping instead
// of as a process-wide global.
type Table struct {
	mem      heap.Memory
	alloc    Allocator
	cellAddr heap.Address // static memory cell holding a skewed ptr to the array
	free     uint32       // index of the first free slot, or capacity if none
	count    uint32       // number of currently-remembered (live) handles
}

// New creates a pinning table whose indirection cell lives at cellAddr
// (which must already be zero/allocated static storage) and allocates its
// initial backing array.
func New(mem heap.Memory, alloc Allocator, cellAddr heap.Address) *Table {
	t := &Table{mem: mem, alloc: alloc, cellAddr: cellAddr}
	t.allocArray(InitialCapacity, 0)
	return t
}

// Loc returns the address of the static indirection cell, for use as the
// closure_table_ptr_loc parameter to the GC entry point.
func (t *Table) Loc() heap.Address { return t.cellAddr }

// Count returns the number of handles currently remembered.
func (t *Table) Count() uint32 { return t.count }

// Remember pins p (a skewed pointer) and returns a stable handle for it,
// growing the backing array if the free list is exhausted.
func (t *Table) Remember(p heap.Word) uint32 {
	capacity := t.capacity()
	if t.free == capacity {
		t.grow(capacity)
		capacity = t.capacity()
	}
	handle := t.free
	slot := t.slotAddr(t.arrayAddr(), handle)
	next := heap.ScalarValue(t.mem.ReadWord(slot))
	t.mem.WriteWord(slot, p)
	t.free = next
	t.count++
	return handle
}

// Recall un-pins the object at handle, returning its (skewed) pointer and
// returning the slot to the free list.
func (t *Table) Recall(handle uint32) heap.Word {
	slot := t.slotAddr(t.arrayAddr(), handle)
	p := t.mem.ReadWord(slot)
	t.mem.WriteWord(slot, heap.MakeScalar(t.free))
	t.free = handle
	t.count--
	return p
}

func (t *Table) arrayAddr() heap.Address {
	return heap.Unskew(t.mem.ReadWord(t.cellAddr))
}

func (t *Table) capacity() uint32 {
	return uint32(t.mem.ReadWord(t.arrayAddr().Add(heap.WordSize)))
}

func (t *Table) slotAddr(arr heap.Address, i uint32) heap.Address {
	return arr.Add((arrayHeaderWords + i) * heap.WordSize)
}

// grow doubles the backing array (or creates the initial one if oldCap is
// 0), copying the live/free slots verbatim and chaining the newly added
// slots into a fresh free list. Because the free-list sentinel is encoded
// as the array's own length, the old tail link (which held the old
// capacity as "end of list") transparently becomes a valid pointer into the
// newly appended free chain -- no relinking of existing slots is needed.
func (t *Table) grow(oldCap uint32) {
	newCap := oldCap * 2
	if newCap == 0 {
		newCap = InitialCapacity
	}
	oldArr := t.arrayAddr()
	t.allocArray(newCap, oldCap)
	newArr := t.arrayAddr()
	for i := uint32(0); i < oldCap; i++ {
		t.mem.WriteWord(t.slotAddr(newArr, i), t.mem.ReadWord(t.slotAddr(oldArr, i)))
	}
}

// allocArray allocates a fresh backing array of the given capacity, chains
// slots [fromFree, capacity) into a free list ending in the capacity
// sentinel, and repoints the indirection cell at it.
func (t *Table) allocArray(capacity, fromFree uint32) {
	ptr := t.alloc.AllocWords(arrayHeaderWords + capacity)
	addr := heap.Unskew(ptr)
	t.mem.WriteWord(addr, heap.Word(heap.TagArray))
	t.mem.WriteWord(addr.Add(heap.WordSize), heap.Word(capacity))
	for i := fromFree; i < capacity; i++ {
		next := i + 1
		t.mem.WriteWord(t.slotAddr(addr, i), heap.MakeScalar(next))
	}
	t.mem.WriteWord(t.cellAddr, ptr)
	if fromFree == 0 {
		t.free = 0
	}
}
