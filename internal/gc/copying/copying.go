// Package copying implements the Cheney-style semi-space copying
// collector: evacuate live objects from from-space into to-space, forward
// old locations via a transient FWD_PTR header, and discard from-space.
package copying

import (
	"github.com/dfinity-labs/motoko-gc/internal/gc/roots"
	"github.com/dfinity-labs/motoko-gc/internal/heap"
)

// Grower ensures the backing memory has committed storage up to addr,
// growing the underlying region (in page units) if necessary. Copying
// writes directly at computed addresses rather than through an allocator,
// so it needs this instead of an AllocWords-style bump API.
type Grower interface {
	EnsureCapacity(addr heap.Address) error
}

// Collect evacuates everything reachable from the static roots and the
// closure table out of [heapBase, oldHp) (from-space) into a fresh region
// starting at toBase (to-space), and returns the new heap pointer -- the
// address just past the last evacuated object, i.e. the new hp once
// from-space is discarded.
func Collect(mem heap.Memory, grower Grower, heapBase, oldHp, toBase heap.Address, staticRoots heap.Word, closureTableLoc heap.Address) heap.Address {
	_ = oldHp // from-space bound isn't needed directly: reachability alone determines what's copied
	free := toBase
	scan := toBase

	roots.ForEach(mem, staticRoots, func(mutBoxAddr heap.Address) {
		evacuate(mem, grower, &free, heapBase, mutBoxAddr.Add(heap.WordSize))
	})
	evacuate(mem, grower, &free, heapBase, closureTableLoc)

	for scan < free {
		tag := heap.ReadTag(mem, scan)
		size := heap.ObjectSize(mem, scan)
		heap.VisitPointerFields(mem, scan, tag, func(fieldAddr heap.Address) bool {
			evacuate(mem, grower, &free, heapBase, fieldAddr)
			return true
		})
		scan = scan.Add(size * heap.WordSize)
	}

	return free
}

// evacuate moves the object referenced by the skewed pointer stored at
// fieldAddr into to-space (if it hasn't been moved already) and rewrites
// fieldAddr to point at its new location. Scalars and pointers to static
// objects (below heapBase) are left alone: static objects never move.
func evacuate(mem heap.Memory, grower Grower, free *heap.Address, heapBase, fieldAddr heap.Address) {
	p := mem.ReadWord(fieldAddr)
	if heap.IsScalar(p) {
		return
	}
	objAddr := heap.Unskew(p)
	if objAddr < heapBase {
		return
	}
	tag := heap.ReadTag(mem, objAddr)
	if tag == heap.TagFwdPtr {
		// Already evacuated; the field just needs the forwarding address.
		fwd := mem.ReadWord(objAddr.Add(heap.WordSize))
		mem.WriteWord(fieldAddr, fwd)
		return
	}

	size := heap.ObjectSize(mem, objAddr)
	newAddr := *free
	if err := grower.EnsureCapacity(newAddr.Add(size * heap.WordSize)); err != nil {
		heap.Trap("Cannot grow memory")
	}
	for i := uint32(0); i < size; i++ {
		w := mem.ReadWord(objAddr.Add(i * heap.WordSize))
		mem.WriteWord(newAddr.Add(i*heap.WordSize), w)
	}
	newSkewed := heap.Skew(newAddr)
	*free = newAddr.Add(size * heap.WordSize)

	// Leave a forwarding pointer in the old location and rewrite the field.
	mem.WriteWord(objAddr, heap.Word(heap.TagFwdPtr))
	mem.WriteWord(objAddr.Add(heap.WordSize), newSkewed)
	mem.WriteWord(fieldAddr, newSkewed)
}
