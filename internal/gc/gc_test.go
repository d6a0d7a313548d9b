package gc_test

import (
	"testing"

	"github.com/dfinity-labs/motoko-gc/internal/closuretable"
	"github.com/dfinity-labs/motoko-gc/internal/gc"
	"github.com/dfinity-labs/motoko-gc/internal/heap"
	"github.com/dfinity-labs/motoko-gc/internal/memory"
)

// staticLayout is a minimal static region shared by the manual tests below:
// one root slot, one MutBox, and a closure table indirection cell. wire
// resets the cell to a scalar; a closuretable.Table created on the cell
// afterwards repoints it at the table's backing array.
type staticLayout struct {
	rootArr, mutBox, closureCell, heapBase heap.Address
}

func newStaticLayout() staticLayout {
	const rootArr heap.Address = 0
	const mutBox heap.Address = 12  // past a 1-slot root array (2+1 words)
	const closureCell heap.Address = 20 // past the mutbox (2 words)
	const heapBase heap.Address = 24
	return staticLayout{rootArr: rootArr, mutBox: mutBox, closureCell: closureCell, heapBase: heapBase}
}

func (s staticLayout) wire(mem *memory.Linear, rootTarget heap.Address) heap.Word {
	mem.WriteWord(s.rootArr, heap.Word(heap.TagArray))
	mem.WriteWord(s.rootArr.Add(heap.WordSize), heap.Word(1))
	mem.WriteWord(s.rootArr.Add(2*heap.WordSize), heap.Skew(s.mutBox))

	mem.WriteWord(s.mutBox, heap.Word(heap.TagMutBox))
	mem.WriteWord(s.mutBox.Add(heap.WordSize), heap.Skew(rootTarget))

	mem.WriteWord(s.closureCell, heap.MakeScalar(0))

	return heap.Skew(s.rootArr)
}

func allocBlob(mem *memory.Linear, payload []byte) heap.Address {
	words := (uint32(len(payload)) + heap.WordSize - 1) / heap.WordSize
	ptr := mem.AllocWords(2 + words)
	addr := heap.Unskew(ptr)
	mem.WriteWord(addr, heap.Word(heap.TagBlob))
	mem.WriteWord(addr.Add(heap.WordSize), heap.Word(len(payload)))
	mem.WriteBytes(addr.Add(2*heap.WordSize), payload)
	return addr
}

func allocConcat(mem *memory.Linear, nBytes uint32, text1, text2 heap.Address) heap.Address {
	ptr := mem.AllocWords(4)
	addr := heap.Unskew(ptr)
	mem.WriteWord(addr, heap.Word(heap.TagConcat))
	mem.WriteWord(addr.Add(heap.WordSize), heap.Word(nBytes))
	mem.WriteWord(addr.Add(2*heap.WordSize), heap.Skew(text1))
	mem.WriteWord(addr.Add(3*heap.WordSize), heap.Skew(text2))
	return addr
}

func readBlob(mem *memory.Linear, addr heap.Address) []byte {
	n := uint32(mem.ReadWord(addr.Add(heap.WordSize)))
	out := make([]byte, n)
	for i := uint32(0); i < n; i++ {
		b := addr.Add(2*heap.WordSize + i/heap.WordSize*heap.WordSize)
		w := mem.ReadWord(b)
		out[i] = byte(w >> ((i % heap.WordSize) * 8))
	}
	return out
}

func TestMarkCompactPreservesSharedConcatLeaves(t *testing.T) {
	// A rope three levels deep whose left leaf is shared by every level:
	// concatA -> concatB -> concatC, each also pointing at the shared blob.
	layout := newStaticLayout()
	mem, err := memory.New(layout.heapBase, 4096)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	defer mem.Close()

	shared := allocBlob(mem, []byte("shared leaf payload"))
	other := allocBlob(mem, []byte("other leaf"))
	concatC := allocConcat(mem, 5, shared, other)
	concatB := allocConcat(mem, 10, shared, concatC)
	concatA := allocConcat(mem, 20, shared, concatB)

	staticRoots := layout.wire(mem, concatA)

	closures := closuretable.New(mem, mem, layout.closureCell)
	ctx := gc.NewMarkCompact(mem, closures, staticRoots)
	ctx.Collect()

	newRootField := mem.ReadWord(layout.mutBox.Add(heap.WordSize))
	node := heap.Unskew(newRootField)
	var sharedAt []heap.Address
	for level := 0; level < 2; level++ {
		if tag := heap.ReadTag(mem, node); tag != heap.TagConcat {
			t.Fatalf("rope level %d has tag %s, want CONCAT", level, tag)
		}
		sharedAt = append(sharedAt, heap.Unskew(mem.ReadWord(node.Add(2*heap.WordSize))))
		node = heap.Unskew(mem.ReadWord(node.Add(3 * heap.WordSize)))
	}
	if tag := heap.ReadTag(mem, node); tag != heap.TagConcat {
		t.Fatalf("rope level 2 has tag %s, want CONCAT", tag)
	}
	sharedAt = append(sharedAt, heap.Unskew(mem.ReadWord(node.Add(2*heap.WordSize))))

	if got := string(readBlob(mem, sharedAt[0])); got != "shared leaf payload" {
		t.Errorf("shared leaf = %q, want %q", got, "shared leaf payload")
	}
	for level := 1; level < len(sharedAt); level++ {
		if sharedAt[level] != sharedAt[0] {
			t.Errorf("shared leaf duplicated: %#x at level 0, %#x at level %d", sharedAt[0], sharedAt[level], level)
		}
	}
	if got := string(readBlob(mem, heap.Unskew(mem.ReadWord(node.Add(3*heap.WordSize))))); got != "other leaf" {
		t.Errorf("right leaf of the innermost concat = %q, want %q", got, "other leaf")
	}
}

func allocMutBox(mem *memory.Linear) heap.Address {
	ptr := mem.AllocWords(2)
	addr := heap.Unskew(ptr)
	mem.WriteWord(addr, heap.Word(heap.TagMutBox))
	return addr
}

func TestMarkCompactTwoMutBoxCycle(t *testing.T) {
	// Two heap MutBoxes pointing at each other, preceded by garbage so both
	// move during compaction: one edge is a forward pointer, the other a
	// backward pointer, exercising both threading paths on single-field
	// objects.
	layout := newStaticLayout()
	mem, err := memory.New(layout.heapBase, 4096)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	defer mem.Close()

	garbage := allocBlob(mem, []byte("doomed"))
	_ = garbage
	boxA := allocMutBox(mem)
	boxB := allocMutBox(mem)
	mem.WriteWord(boxA.Add(heap.WordSize), heap.Skew(boxB))
	mem.WriteWord(boxB.Add(heap.WordSize), heap.Skew(boxA))

	staticRoots := layout.wire(mem, boxA)

	closures := closuretable.New(mem, mem, layout.closureCell)
	ctx := gc.NewMarkCompact(mem, closures, staticRoots)
	ctx.Collect()

	newA := heap.Unskew(mem.ReadWord(layout.mutBox.Add(heap.WordSize)))
	if newA >= boxA {
		t.Errorf("boxA did not move down: %#x -> %#x", boxA, newA)
	}
	if tag := heap.ReadTag(mem, newA); tag != heap.TagMutBox {
		t.Fatalf("root now points at tag %s, want MUTBOX", tag)
	}
	newB := heap.Unskew(mem.ReadWord(newA.Add(heap.WordSize)))
	if tag := heap.ReadTag(mem, newB); tag != heap.TagMutBox {
		t.Fatalf("boxA's field points at tag %s, want MUTBOX", tag)
	}
	if back := heap.Unskew(mem.ReadWord(newB.Add(heap.WordSize))); back != newA {
		t.Errorf("cycle broken: boxB points at %#x, want %#x", back, newA)
	}
}

func TestClosureHandleStableAcrossCollection(t *testing.T) {
	// A handle issued before a collection must recall the same logical
	// object afterwards, even though the object (and the table's backing
	// array) moved. The pinned blob is also a static root, so this
	// additionally exercises the root/pin aliasing path.
	layout := newStaticLayout()
	mem, err := memory.New(layout.heapBase, 4096)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	defer mem.Close()

	garbage := allocBlob(mem, []byte("garbage ahead of the survivors"))
	_ = garbage
	blob := allocBlob(mem, []byte("pinned"))
	staticRoots := layout.wire(mem, blob)

	closures := closuretable.New(mem, mem, layout.closureCell)
	h := closures.Remember(heap.Skew(blob))

	ctx := gc.NewMarkCompact(mem, closures, staticRoots)
	ctx.Collect()

	if ctx.ClosureCount() != 1 {
		t.Fatalf("ClosureCount() after collection = %d, want 1", ctx.ClosureCount())
	}
	p := ctx.RecallClosure(h)
	newBlob := heap.Unskew(p)
	if tag := heap.ReadTag(mem, newBlob); tag != heap.TagBlob {
		t.Fatalf("recalled handle points at tag %s, want BLOB", tag)
	}
	if got := string(readBlob(mem, newBlob)); got != "pinned" {
		t.Errorf("recalled blob = %q, want %q", got, "pinned")
	}
	viaRoot := heap.Unskew(mem.ReadWord(layout.mutBox.Add(heap.WordSize)))
	if viaRoot != newBlob {
		t.Errorf("root and handle disagree on the blob's location: %#x vs %#x", viaRoot, newBlob)
	}
}

func TestCopyingPreservesLargeBlob(t *testing.T) {
	layout := newStaticLayout()
	mem, err := memory.New(layout.heapBase, 3*64*1024)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	defer mem.Close()

	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i)
	}
	blob := allocBlob(mem, payload)
	staticRoots := layout.wire(mem, blob)

	closures := closuretable.New(mem, mem, layout.closureCell)
	ctx := gc.NewCopying(mem, closures, staticRoots, 64*1024)
	ctx.Collect()

	newBlob := heap.Unskew(mem.ReadWord(layout.mutBox.Add(heap.WordSize)))
	if tag := heap.ReadTag(mem, newBlob); tag != heap.TagBlob {
		t.Fatalf("root now points at tag %s, want BLOB", tag)
	}
	got := readBlob(mem, newBlob)
	if len(got) != len(payload) {
		t.Fatalf("blob length = %d, want %d", len(got), len(payload))
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("blob byte %d = %d, want %d", i, got[i], payload[i])
		}
	}
}

func TestContextObservability(t *testing.T) {
	layout := newStaticLayout()
	mem, err := memory.New(layout.heapBase, 4096)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	defer mem.Close()

	blob := allocBlob(mem, []byte("x"))
	garbage := allocBlob(mem, []byte("unreachable"))
	_ = garbage
	staticRoots := layout.wire(mem, blob)

	closures := closuretable.New(mem, mem, layout.closureCell)
	ctx := gc.NewMarkCompact(mem, closures, staticRoots)

	if ctx.Algorithm() != gc.MarkCompact {
		t.Errorf("Algorithm() = %v, want MarkCompact", ctx.Algorithm())
	}
	allocatedBefore := ctx.TotalAllocated()
	if allocatedBefore == 0 {
		t.Fatal("TotalAllocated() = 0 before collection, want > 0")
	}

	ctx.Collect()
	if ctx.Reclaimed() == 0 {
		t.Error("Reclaimed() = 0, want > 0 after collecting the unreachable blob")
	}
	if ctx.MaxLiveSize() == 0 {
		t.Error("MaxLiveSize() = 0, want > 0")
	}
	if ctx.TotalAllocated() != allocatedBefore {
		t.Errorf("TotalAllocated() changed across a collection: %d -> %d", allocatedBefore, ctx.TotalAllocated())
	}

	h1 := ctx.RememberClosure(heap.Skew(blob))
	if ctx.ClosureCount() != 1 {
		t.Errorf("ClosureCount() = %d, want 1", ctx.ClosureCount())
	}
	if got := ctx.RecallClosure(h1); got != heap.Skew(blob) {
		t.Errorf("RecallClosure(h1) = %#x, want %#x", got, heap.Skew(blob))
	}
}

func TestMarkCompactSkipsZeroTagPadWord(t *testing.T) {
	// A pad word (tag 0) left behind by an in-place blob shrink sits,
	// unmarked and untraced, between an unreachable blob and a live one. The
	// mark phase never
	// reaches it (nothing points at it) and the compaction sweep only
	// walks set bits of the bitmap, so it is silently folded into the
	// space the second blob's move reclaims.
	layout := newStaticLayout()
	mem, err := memory.New(layout.heapBase, 4096)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	defer mem.Close()

	first := allocBlob(mem, []byte("first"))
	padAddr := heap.Unskew(mem.AllocWords(1))
	mem.WriteWord(padAddr, heap.Word(0)) // tagPad
	second := allocBlob(mem, []byte("second"))
	_ = first

	staticRoots := layout.wire(mem, second)

	closures := closuretable.New(mem, mem, layout.closureCell)
	ctx := gc.NewMarkCompact(mem, closures, staticRoots)
	hpBefore := mem.HP()
	ctx.Collect()

	if mem.HP() >= hpBefore {
		t.Fatalf("HP after collection = %d, want < %d (first blob and the pad word reclaimed)", mem.HP(), hpBefore)
	}
	newSecond := heap.Unskew(mem.ReadWord(layout.mutBox.Add(heap.WordSize)))
	if tag := heap.ReadTag(mem, newSecond); tag != heap.TagBlob {
		t.Fatalf("root now points at tag %s, want BLOB", tag)
	}
	if got := string(readBlob(mem, newSecond)); got != "second" {
		t.Errorf("surviving blob = %q, want %q", got, "second")
	}
}

func TestInitResetsHeapPointer(t *testing.T) {
	layout := newStaticLayout()
	mem, err := memory.New(layout.heapBase, 4096)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	defer mem.Close()

	closures := closuretable.New(mem, mem, layout.closureCell)
	staticRoots := layout.wire(mem, layout.heapBase) // placeholder, unused before Init
	ctx := gc.NewMarkCompact(mem, closures, staticRoots)

	mem.AllocWords(4)
	ctx.Init()
	if mem.HP() != ctx.HeapBase() {
		t.Errorf("HP() after Init = %d, want %d", mem.HP(), ctx.HeapBase())
	}
	if mem.LastHP() != ctx.HeapBase() {
		t.Errorf("LastHP() after Init = %d, want %d", mem.LastHP(), ctx.HeapBase())
	}
}
