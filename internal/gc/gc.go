// Package gc implements the shared GC entry point: it wraps the bump
// allocator, the closure table, and one of the two collector algorithms
// behind a single Context value, replacing the reference runtime's
// HP/MAX_LIVE/RECLAIMED/ALLOCATED/LAST_HP process-wide globals with
// fields on that value.
package gc

import (
	"github.com/dfinity-labs/motoko-gc/internal/closuretable"
	"github.com/dfinity-labs/motoko-gc/internal/gc/compact"
	"github.com/dfinity-labs/motoko-gc/internal/gc/copying"
	"github.com/dfinity-labs/motoko-gc/internal/heap"
	"github.com/dfinity-labs/motoko-gc/internal/memory"
)

// Algorithm selects which collector a Context runs.
type Algorithm int

const (
	MarkCompact Algorithm = iota
	Copying
)

func (a Algorithm) String() string {
	if a == Copying {
		return "copying"
	}
	return "mark-compact"
}

// Context bundles the pieces the GC entry point needs: the linear memory,
// the closure (pinning) table, the static root array, and the chosen
// collector algorithm, plus the observability counters the external ABI
// exposes.
type Context struct {
	mem         *memory.Linear
	closures    *closuretable.Table
	staticRoots heap.Word
	algo        Algorithm

	// Copying-only semi-space bookkeeping: the two half-regions the
	// collector evacuates between. Unused for MarkCompact, which compacts
	// in place.
	spaceSize  uint32
	spaceBase  heap.Address
	activeBase heap.Address

	maxLive   uint64
	reclaimed uint64
}

// NewMarkCompact creates a Context that compacts in place within the
// memory's existing dynamic heap region. It does not disturb mem's current
// heap pointer; call Init explicitly to start from an empty heap.
func NewMarkCompact(mem *memory.Linear, closures *closuretable.Table, staticRoots heap.Word) *Context {
	return &Context{mem: mem, closures: closures, staticRoots: staticRoots, algo: MarkCompact}
}

// NewCopying creates a Context that alternates between two half-regions of
// size spaceSize bytes each, starting at mem's current heap base. The
// memory must have enough reserved capacity for both halves. It does not
// disturb mem's current heap pointer; call Init explicitly to start from an
// empty heap.
func NewCopying(mem *memory.Linear, closures *closuretable.Table, staticRoots heap.Word, spaceSize uint32) *Context {
	base := mem.HeapBase()
	return &Context{
		mem: mem, closures: closures, staticRoots: staticRoots, algo: Copying,
		spaceSize: spaceSize, spaceBase: base, activeBase: base,
	}
}

// Memory exposes the underlying linear memory, e.g. for the mutator to
// allocate new objects via AllocWords, or for diagnostics to read words.
func (c *Context) Memory() *memory.Linear { return c.mem }

// Closures exposes the pinning table.
func (c *Context) Closures() *closuretable.Table { return c.closures }

// Algorithm reports which collector this Context runs.
func (c *Context) Algorithm() Algorithm { return c.algo }

// StaticRoots returns the skewed pointer to the static root array.
func (c *Context) StaticRoots() heap.Word { return c.staticRoots }

// HeapBase returns the start of the region currently live for allocation:
// for MarkCompact this is fixed; for Copying it is whichever half is
// currently active.
func (c *Context) HeapBase() heap.Address {
	if c.algo == Copying {
		return c.activeBase
	}
	return c.mem.HeapBase()
}

// Init zeroes the heap pointer to HeapBase and records it as the
// last-collection high-water mark, matching the ABI's init() operation.
func (c *Context) Init() {
	c.mem.SetHP(c.HeapBase())
	c.mem.SetLastHP(c.HeapBase())
}

// AllocWords allocates n fresh words from the bump allocator.
func (c *Context) AllocWords(n uint32) heap.Word {
	return c.mem.AllocWords(n)
}

// Collect runs one full stop-the-world collection: it records the
// pre-collection heap pointer, runs the chosen algorithm, then computes
// live = new_hp - new heap_base and reclaimed = (old_hp - old heap_base) -
// live, and updates the observability counters. For MarkCompact, whose
// heap_base does not move, reclaimed is old_hp - new_hp.
func (c *Context) Collect() {
	oldHp := c.mem.HP()
	oldBase := c.HeapBase()

	var newHp, newBase heap.Address
	switch c.algo {
	case Copying:
		newBase = c.otherHalfBase()
		newHp = copying.Collect(c.mem, c.mem, oldBase, oldHp, newBase, c.staticRoots, c.closures.Loc())
		c.activeBase = newBase
	case MarkCompact:
		newBase = oldBase
		newHp = compact.Collect(c.mem, oldBase, oldHp, c.staticRoots, c.closures.Loc())
	default:
		heap.Trap("gc: unknown algorithm")
	}

	c.mem.SetHP(newHp)
	c.mem.SetLastHP(newHp)

	live := uint64(newHp.Sub(newBase))
	if live > c.maxLive {
		c.maxLive = live
	}
	c.reclaimed += uint64(oldHp.Sub(oldBase)) - live
}

func (c *Context) otherHalfBase() heap.Address {
	if c.activeBase == c.spaceBase {
		return c.spaceBase.Add(c.spaceSize)
	}
	return c.spaceBase
}

// LiveSize returns the current live heap size in bytes.
func (c *Context) LiveSize() uint64 {
	return uint64(c.mem.HP().Sub(c.HeapBase()))
}

// MaxLiveSize returns the maximum live size observed across all
// collections so far (get_max_live_size).
func (c *Context) MaxLiveSize() uint64 { return c.maxLive }

// Reclaimed returns the total bytes reclaimed across all collections so
// far (get_reclaimed).
func (c *Context) Reclaimed() uint64 { return c.reclaimed }

// TotalAllocated returns the running total of bytes ever handed out by the
// bump allocator (get_total_allocations).
func (c *Context) TotalAllocated() uint64 { return c.mem.Allocated() }

// HeapSize returns hp - heap_base, matching get_heap_size.
func (c *Context) HeapSize() uint64 { return c.LiveSize() }

// RememberClosure pins p and returns a stable handle for it.
func (c *Context) RememberClosure(p heap.Word) uint32 { return c.closures.Remember(p) }

// RecallClosure un-pins the object at handle and returns its pointer.
func (c *Context) RecallClosure(handle uint32) heap.Word { return c.closures.Recall(handle) }

// ClosureCount returns the number of handles currently remembered.
func (c *Context) ClosureCount() uint32 { return c.closures.Count() }

// ClosureTableLoc returns the address of the closure table's static
// indirection cell.
func (c *Context) ClosureTableLoc() heap.Address { return c.closures.Loc() }
