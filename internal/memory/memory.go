// Package memory implements the bump allocator contracted by the GC core:
// a monotonically increasing heap pointer backed by a linear region that
// grows in 64 KiB pages, mirroring a Wasm module's own linear memory.
package memory

import (
	"fmt"

	"github.com/dfinity-labs/motoko-gc/internal/heap"
)

// PageSize is the granularity, in bytes, at which the underlying region
// grows -- the same unit a Wasm `memory.grow` instruction uses.
const PageSize = 64 * 1024

// committer reserves a large span of address space up front and commits
// (makes readable/writable) a growing prefix of it in PageSize units, so
// that addresses already handed out are never invalidated by a later
// growth. Two implementations exist: one backed by a real mmap reservation
// (growth_unix.go) and a plain-slice fallback (growth_other.go) for
// platforms without it.
type committer interface {
	bytes() []byte
	commit(pages uint32) error
	close() error
}

// Linear is the growable linear memory backing both the static region
// (below heapBase) and the dynamic heap (from heapBase up to hp). It
// implements heap.Memory.
type Linear struct {
	res       committer
	heapBase  heap.Address
	hp        heap.Address
	lastHp    heap.Address
	allocated uint64
	maxPages  uint32
}

// New reserves a linear memory region and returns it with the heap pointer
// initialized to heapBase, per the GC entry point's init() operation.
// maxBytes bounds how large the region may grow; it is rounded up to a
// whole number of pages.
func New(heapBase heap.Address, maxBytes uint32) (*Linear, error) {
	maxPages := (maxBytes + PageSize - 1) / PageSize
	res, err := newCommitter(maxPages)
	if err != nil {
		return nil, fmt.Errorf("memory: reserve linear region: %w", err)
	}
	m := &Linear{res: res, heapBase: heapBase, hp: heapBase, lastHp: heapBase, maxPages: maxPages}
	// Commit at least the page containing address 0: a zero heap_base (no
	// static region below the dynamic heap) would otherwise round down to
	// zero pages committed, leaving address 0 itself inaccessible.
	commitThrough := heapBase
	if commitThrough == 0 {
		commitThrough = 1
	}
	if err := m.ensureCommitted(commitThrough); err != nil {
		return nil, err
	}
	return m, nil
}

// Close releases the reservation backing the region. Not part of the GC
// ABI; provided so CLI-driven runs don't leak mmap'd address space.
func (m *Linear) Close() error { return m.res.close() }

// ReadWord implements heap.Memory.
func (m *Linear) ReadWord(a heap.Address) heap.Word {
	b := m.res.bytes()
	return heap.Word(uint32(b[a]) | uint32(b[a+1])<<8 | uint32(b[a+2])<<16 | uint32(b[a+3])<<24)
}

// WriteWord implements heap.Memory.
func (m *Linear) WriteWord(a heap.Address, w heap.Word) {
	b := m.res.bytes()
	b[a] = byte(w)
	b[a+1] = byte(w >> 8)
	b[a+2] = byte(w >> 16)
	b[a+3] = byte(w >> 24)
}

// WriteBytes stores raw bytes at addr, used by test heap builders and by
// callers populating BLOB payloads; it does not move hp.
func (m *Linear) WriteBytes(addr heap.Address, data []byte) {
	copy(m.res.bytes()[addr:], data)
}

// HeapBase returns the start of the dynamic heap.
func (m *Linear) HeapBase() heap.Address { return m.heapBase }

// HP returns the current heap pointer.
func (m *Linear) HP() heap.Address { return m.hp }

// LastHP returns the heap pointer as of the end of the most recent
// collection (or HeapBase, before any collection has run).
func (m *Linear) LastHP() heap.Address { return m.lastHp }

// SetLastHP records the heap pointer as of the end of a collection.
func (m *Linear) SetLastHP(a heap.Address) { m.lastHp = a }

// SetHP sets the heap pointer, as required after a collection reclaims
// space. It does not itself grow or shrink the backing reservation.
func (m *Linear) SetHP(hp heap.Address) { m.hp = hp }

// Allocated returns the running total of bytes ever handed out by AllocWords.
func (m *Linear) Allocated() uint64 { return m.allocated }

// AllocWords bumps hp by n words, growing the region if necessary, and
// returns a skewed pointer to the fresh (zeroed) block. It traps fatally if
// growth fails, per the bump allocator's external contract.
func (m *Linear) AllocWords(n uint32) heap.Word {
	bytes := n * heap.WordSize
	old := m.hp
	newHp := old.Add(bytes)
	if err := m.ensureCommitted(newHp); err != nil {
		heap.Trap("Cannot grow memory")
	}
	m.hp = newHp
	m.allocated += uint64(bytes)
	region := m.res.bytes()[old:newHp]
	for i := range region {
		region[i] = 0
	}
	return heap.Skew(old)
}

// EnsureCapacity commits enough pages to make addr accessible, without
// moving hp. It implements copying.Grower: the copying collector writes
// directly at computed to-space addresses rather than through AllocWords.
func (m *Linear) EnsureCapacity(addr heap.Address) error {
	return m.ensureCommitted(addr)
}

func (m *Linear) ensureCommitted(upTo heap.Address) error {
	pages := (uint32(upTo) + PageSize - 1) / PageSize
	if pages > m.maxPages {
		return fmt.Errorf("memory: region exhausted: need %d pages, have %d", pages, m.maxPages)
	}
	return m.res.commit(pages)
}
