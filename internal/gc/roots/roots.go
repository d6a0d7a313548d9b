// Package roots walks the static root array shared by both collectors: an
// ARRAY of MUTBOX objects living below heap_base, reached via the GC entry
// point's static_roots parameter.
package roots

import "github.com/dfinity-labs/motoko-gc/internal/heap"

const arrayHeaderWords = 2 // tag, len

// ForEach calls fn with the address of each root MutBox referenced by the
// static root array pointed to by staticRoots (a skewed pointer).
func ForEach(mem heap.Memory, staticRoots heap.Word, fn func(mutBoxAddr heap.Address)) {
	arr := heap.Unskew(staticRoots)
	n := uint32(mem.ReadWord(arr.Add(heap.WordSize)))
	base := arr.Add(arrayHeaderWords * heap.WordSize)
	for i := uint32(0); i < n; i++ {
		elem := mem.ReadWord(base.Add(i * heap.WordSize))
		fn(heap.Unskew(elem))
	}
}
