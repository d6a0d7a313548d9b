// Package diag provides read-only object-graph walks over a live heap, for
// use by diagnostic tooling (the objgraph/stats/shell CLI commands): walk
// every live object, every pointer field of an object, every static root,
// and every pointer out of a root. Grounded on the same
// ForEachObject/ForEachPtr/ForEachRoot/ForEachRootPtr shape a core-dump
// object browser uses, adapted to walk our own tagged heap directly
// instead of a parsed core file.
package diag

import (
	"github.com/dfinity-labs/motoko-gc/internal/gc"
	"github.com/dfinity-labs/motoko-gc/internal/gc/roots"
	"github.com/dfinity-labs/motoko-gc/internal/heap"
)

// Object identifies one live object by its (unskewed) address.
type Object struct {
	Addr heap.Address
	Tag  heap.Tag
	Size uint32 // words
}

// Root identifies one static root slot: the i'th element of the static
// root array, which holds a MutBox.
type Root struct {
	Index      int
	MutBoxAddr heap.Address
}

// ForEachObject walks every live object reachable from the static roots
// and the closure table, in the order a breadth-first scan discovers them.
// It visits each object exactly once even if reachable by multiple paths.
// fn may return false to stop the walk early.
func ForEachObject(c *gc.Context, fn func(o Object) bool) {
	mem := c.Memory()
	heapBase := c.HeapBase()
	seen := make(map[heap.Address]bool)
	var queue []heap.Address

	enqueue := func(addr heap.Address) {
		if addr < heapBase || seen[addr] {
			return
		}
		seen[addr] = true
		queue = append(queue, addr)
	}

	ForEachRootPtr(c, func(r Root, target heap.Address) bool {
		enqueue(target)
		return true
	})
	if heap.PointerToDynamicHeap(mem, c.ClosureTableLoc(), heapBase) {
		enqueue(heap.Unskew(mem.ReadWord(c.ClosureTableLoc())))
	}

	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]
		tag := heap.ReadTag(mem, addr)
		size := heap.ObjectSize(mem, addr)
		if !fn(Object{Addr: addr, Tag: tag, Size: size}) {
			return
		}
		ForEachPtr(mem, addr, func(fieldAddr, target heap.Address) bool {
			enqueue(target)
			return true
		})
	}
}

// ForEachPtr calls fn for every pointer field of the object at addr, with
// both the field's own address and the (unskewed) address it points to.
// Scalar fields are skipped.
func ForEachPtr(mem heap.Memory, addr heap.Address, fn func(fieldAddr, target heap.Address) bool) {
	tag := heap.ReadTag(mem, addr)
	heap.VisitPointerFields(mem, addr, tag, func(fieldAddr heap.Address) bool {
		v := mem.ReadWord(fieldAddr)
		if heap.IsScalar(v) {
			return true
		}
		return fn(fieldAddr, heap.Unskew(v))
	})
}

// ForEachRoot calls fn once for every slot in the static root array,
// stopping early if fn returns false.
func ForEachRoot(c *gc.Context, fn func(r Root) bool) {
	i := 0
	ok := true
	roots.ForEach(c.Memory(), c.StaticRoots(), func(mutBoxAddr heap.Address) {
		if !ok {
			return
		}
		ok = fn(Root{Index: i, MutBoxAddr: mutBoxAddr})
		i++
	})
}

// ForEachRootPtr calls fn for every root whose MutBox currently points into
// the dynamic heap, with the pointed-to (unskewed) address.
func ForEachRootPtr(c *gc.Context, fn func(r Root, target heap.Address) bool) {
	mem := c.Memory()
	heapBase := c.HeapBase()
	ForEachRoot(c, func(r Root) bool {
		fieldAddr := r.MutBoxAddr.Add(heap.WordSize)
		if !heap.PointerToDynamicHeap(mem, fieldAddr, heapBase) {
			return true
		}
		return fn(r, heap.Unskew(mem.ReadWord(fieldAddr)))
	})
}
