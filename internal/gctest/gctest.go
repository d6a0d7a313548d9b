// Package gctest builds small test heaps from literal object graphs and
// checks them after a collection, the same way the reference runtime's own
// GC test suite does: objects are named by small integers, each realized
// as a plain ARRAY object whose first field is its own index and whose
// remaining fields point at its declared children.
package gctest

import (
	"fmt"
	"sort"

	"github.com/dfinity-labs/motoko-gc/internal/closuretable"
	"github.com/dfinity-labs/motoko-gc/internal/gc"
	"github.com/dfinity-labs/motoko-gc/internal/heap"
	"github.com/dfinity-labs/motoko-gc/internal/memory"
)

// ObjectIdx names a test object.
type ObjectIdx = int32

// Heap describes a test scenario: an object graph keyed by index, the
// indices reachable as static roots, and the indices pinned in the closure
// table.
type Heap struct {
	Refs         map[ObjectIdx][]ObjectIdx
	Roots        []ObjectIdx
	ClosureTable []ObjectIdx
}

const arrayHeaderWords = 2
const mutBoxHeaderWords = 2

// Built is a concrete, GC-ready realization of a Heap.
type Built struct {
	Mem   *memory.Linear
	GC    *gc.Context
	scene Heap
}

// Build lays out the static root array, the closure table, and every
// object named in h.Refs, then wraps the result in a GC Context running
// algo. spaceSize bounds the dynamic region algo has to work with: for
// Copying it is the size of each of the two semi-spaces; for MarkCompact
// it is the single heap region.
func Build(algo gc.Algorithm, spaceSize uint32, h Heap) (*Built, error) {
	numRoots := uint32(len(h.Roots))
	rootArrAddr := heap.Address(0)
	mutBoxesAddr := rootArrAddr.Add((arrayHeaderWords + numRoots) * heap.WordSize)
	closureCellAddr := mutBoxesAddr.Add(numRoots * mutBoxHeaderWords * heap.WordSize)
	heapBase := closureCellAddr.Add(heap.WordSize)
	for heapBase <= heap.Address(heap.TagNull) {
		heapBase = heapBase.Add(heap.WordSize)
	}

	var maxBytes uint32
	if algo == gc.Copying {
		maxBytes = uint32(heapBase) + 2*spaceSize
	} else {
		maxBytes = uint32(heapBase) + spaceSize
	}

	mem, err := memory.New(heapBase, maxBytes)
	if err != nil {
		return nil, err
	}

	mem.WriteWord(rootArrAddr, heap.Word(heap.TagArray))
	mem.WriteWord(rootArrAddr.Add(heap.WordSize), heap.Word(numRoots))

	closures := closuretable.New(mem, mem, closureCellAddr)

	idxs := make([]ObjectIdx, 0, len(h.Refs))
	for idx := range h.Refs {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

	addrOf := make(map[ObjectIdx]heap.Address, len(idxs))
	for _, idx := range idxs {
		children := h.Refs[idx]
		ptr := mem.AllocWords(arrayHeaderWords + 1 + uint32(len(children)))
		addr := heap.Unskew(ptr)
		addrOf[idx] = addr
		mem.WriteWord(addr, heap.Word(heap.TagArray))
		mem.WriteWord(addr.Add(heap.WordSize), heap.Word(1+len(children)))
		mem.WriteWord(addr.Add(2*heap.WordSize), heap.MakeScalar(uint32(idx)))
	}
	for _, idx := range idxs {
		addr := addrOf[idx]
		for i, child := range h.Refs[idx] {
			childAddr, ok := addrOf[child]
			if !ok {
				return nil, fmt.Errorf("gctest: object %d references undefined object %d", idx, child)
			}
			mem.WriteWord(addr.Add(uint32(3+i)*heap.WordSize), heap.Skew(childAddr))
		}
	}

	for i, rootIdx := range h.Roots {
		mutBoxAddr := mutBoxesAddr.Add(uint32(i) * mutBoxHeaderWords * heap.WordSize)
		childAddr, ok := addrOf[rootIdx]
		if !ok {
			return nil, fmt.Errorf("gctest: root references undefined object %d", rootIdx)
		}
		mem.WriteWord(mutBoxAddr, heap.Word(heap.TagMutBox))
		mem.WriteWord(mutBoxAddr.Add(heap.WordSize), heap.Skew(childAddr))
		mem.WriteWord(rootArrAddr.Add((arrayHeaderWords+uint32(i))*heap.WordSize), heap.Skew(mutBoxAddr))
	}

	for _, idx := range h.ClosureTable {
		childAddr, ok := addrOf[idx]
		if !ok {
			return nil, fmt.Errorf("gctest: closure table references undefined object %d", idx)
		}
		closures.Remember(heap.Skew(childAddr))
	}

	staticRoots := heap.Skew(rootArrAddr)

	var ctx *gc.Context
	if algo == gc.Copying {
		ctx = gc.NewCopying(mem, closures, staticRoots, spaceSize)
	} else {
		ctx = gc.NewMarkCompact(mem, closures, staticRoots)
	}

	return &Built{Mem: mem, GC: ctx, scene: h}, nil
}

// Check validates the post-collection dynamic heap against the object
// graph b was built from: the set of live objects in [heap_base, hp) must
// equal exactly the set reachable from the roots and the closure table,
// and every pointer field must still point at the object it was built to
// point at (objects are free to have moved; their own idx field identifies
// them wherever they landed).
func Check(b *Built) error {
	return check(b, false)
}

// CheckBeforeCollect is the sanity variant of Check for a freshly built
// heap: edges and reachable objects are verified the same way, but objects
// the graph declares unreachable are allowed to still be present, since no
// collection has run to reclaim them yet.
func CheckBeforeCollect(b *Built) error {
	return check(b, true)
}

func check(b *Built, allowGarbage bool) error {
	mem := b.Mem
	heapBase := b.GC.HeapBase()
	hp := mem.HP()
	closureArr := heap.Unskew(mem.ReadWord(b.GC.ClosureTableLoc()))

	seen := make(map[ObjectIdx]heap.Address)
	addr := heapBase
	for addr < hp {
		if addr == closureArr {
			if err := checkClosureTable(mem, addr, b.scene.ClosureTable); err != nil {
				return err
			}
			addr = addr.Add(heap.ObjectSize(mem, addr) * heap.WordSize)
			continue
		}

		tag := heap.ReadTag(mem, addr)
		if tag != heap.TagArray {
			return fmt.Errorf("gctest: unexpected tag %s at %#x", tag, addr)
		}
		nFields := uint32(mem.ReadWord(addr.Add(heap.WordSize)))
		if nFields < 1 {
			return fmt.Errorf("gctest: object at %#x has no index field", addr)
		}
		idx := ObjectIdx(heap.ScalarValue(mem.ReadWord(addr.Add(2 * heap.WordSize))))
		if prev, dup := seen[idx]; dup {
			return fmt.Errorf("gctest: object %d seen twice, at %#x and %#x", idx, prev, addr)
		}
		seen[idx] = addr

		expected, ok := b.scene.Refs[idx]
		if !ok {
			return fmt.Errorf("gctest: object %d not in the original graph", idx)
		}
		for i := uint32(1); i < nFields; i++ {
			field := mem.ReadWord(addr.Add((2 + i) * heap.WordSize))
			childAddr := heap.Unskew(field)
			childIdx := ObjectIdx(heap.ScalarValue(mem.ReadWord(childAddr.Add(2 * heap.WordSize))))
			if int(i-1) >= len(expected) || childIdx != expected[i-1] {
				return fmt.Errorf("gctest: object %d field %d points to %d, want %v", idx, i-1, childIdx, expected)
			}
		}

		addr = addr.Add(heap.ObjectSize(mem, addr) * heap.WordSize)
	}

	reachable := reachableSet(b.scene)
	for idx := range reachable {
		if _, ok := seen[idx]; !ok {
			return fmt.Errorf("gctest: reachable object %d missing from post-GC heap", idx)
		}
	}
	if !allowGarbage {
		for idx := range seen {
			if _, ok := reachable[idx]; !ok {
				return fmt.Errorf("gctest: unreachable object %d survived collection", idx)
			}
		}
	}
	return nil
}

func checkClosureTable(mem heap.Memory, addr heap.Address, wanted []ObjectIdx) error {
	tag := heap.ReadTag(mem, addr)
	if tag != heap.TagArray {
		return fmt.Errorf("gctest: closure table backing array has wrong tag %s", tag)
	}
	capacity := uint32(mem.ReadWord(addr.Add(heap.WordSize)))
	if uint32(len(wanted)) > capacity {
		return fmt.Errorf("gctest: closure table capacity %d too small for %d entries", capacity, len(wanted))
	}
	for i, want := range wanted {
		slot := mem.ReadWord(addr.Add(uint32(2+i) * heap.WordSize))
		childAddr := heap.Unskew(slot)
		got := ObjectIdx(heap.ScalarValue(mem.ReadWord(childAddr.Add(2 * heap.WordSize))))
		if got != want {
			return fmt.Errorf("gctest: closure table handle %d points to object %d, want %d", i, got, want)
		}
	}
	return nil
}

func reachableSet(h Heap) map[ObjectIdx]bool {
	reach := make(map[ObjectIdx]bool)
	var stack []ObjectIdx
	push := func(idx ObjectIdx) {
		if !reach[idx] {
			reach[idx] = true
			stack = append(stack, idx)
		}
	}
	for _, r := range h.Roots {
		push(r)
	}
	for _, r := range h.ClosureTable {
		push(r)
	}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range h.Refs[idx] {
			push(child)
		}
	}
	return reach
}
