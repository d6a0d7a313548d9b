// Package heap defines the boxed object layout, the skewed-pointer /
// tagged-scalar encoding, and the memory abstraction shared by the
// bump allocator, the closure table, and both collectors.
package heap

import "fmt"

// Address is a byte offset into the single contiguous address space that
// holds both the static region (below HeapBase) and the dynamic heap
// (from HeapBase up to the current heap pointer).
type Address uint32

// Add returns a+n, wrapping on overflow like the 32-bit arithmetic it models.
func (a Address) Add(n uint32) Address { return Address(uint32(a) + n) }

// Sub returns the byte distance from b to a (a-b).
func (a Address) Sub(b Address) int64 { return int64(int64(uint32(a)) - int64(uint32(b))) }

// Word is a single 32-bit memory cell: either a tagged scalar (low bit 0)
// or a skewed pointer (low bit 1).
type Word uint32

// WordSize is the size in bytes of a machine word on this target.
const WordSize = 4

// Tag identifies the shape of a boxed object. Tag values are small positive
// integers; Null is the largest legal tag and bounds the threaded-compaction
// unthreading routine (a walked value > Null is a heap address, not a tag).
type Tag uint32

// Tag values, numbered exactly as in the reference runtime so that the
// heap_base > Null invariant required by threaded compaction continues to
// hold for any caller that hard-codes these constants.
const (
	TagObject  Tag = 1
	TagObjInd  Tag = 2
	TagArray   Tag = 3
	TagBits64  Tag = 5
	TagMutBox  Tag = 6
	TagClosure Tag = 7
	TagSome    Tag = 8
	TagVariant Tag = 9
	TagBlob    Tag = 10
	TagFwdPtr  Tag = 11
	TagBits32  Tag = 12
	TagBigInt  Tag = 13
	TagConcat  Tag = 14
	TagNull    Tag = 15

	// tagPad is not a real object; it marks a zeroed slop word left behind
	// when a blob was shrunk in place.
	tagPad Tag = 0
)

func (t Tag) String() string {
	switch t {
	case TagObject:
		return "OBJECT"
	case TagObjInd:
		return "OBJ_IND"
	case TagArray:
		return "ARRAY"
	case TagBits64:
		return "BITS64"
	case TagMutBox:
		return "MUTBOX"
	case TagClosure:
		return "CLOSURE"
	case TagSome:
		return "SOME"
	case TagVariant:
		return "VARIANT"
	case TagBlob:
		return "BLOB"
	case TagFwdPtr:
		return "FWD_PTR"
	case TagBits32:
		return "BITS32"
	case TagBigInt:
		return "BIGINT"
	case TagConcat:
		return "CONCAT"
	case TagNull:
		return "NULL"
	case tagPad:
		return "<pad>"
	default:
		return fmt.Sprintf("<tag %d>", uint32(t))
	}
}

// Memory is the minimal word-addressable store both collectors operate on.
// A single implementation (internal/memory.Linear) backs the whole address
// space: static data below HeapBase and the dynamic heap above it.
type Memory interface {
	ReadWord(a Address) Word
	WriteWord(a Address, w Word)
}

// Skew encodes a pointer to addr as addr-1; for a word-aligned addr the
// resulting Word has its low bit set.
func Skew(addr Address) Word { return Word(uint32(addr) - 1) }

// Unskew decodes a skewed pointer back into an address.
func Unskew(w Word) Address { return Address(uint32(w) + 1) }

// IsScalar reports whether w holds a tagged scalar rather than a pointer.
func IsScalar(w Word) bool { return w&1 == 0 }

// MakeScalar encodes v as a tagged scalar.
func MakeScalar(v uint32) Word { return Word(v << 1) }

// ScalarValue decodes the payload of a tagged scalar.
func ScalarValue(w Word) uint32 { return uint32(w) >> 1 }

// ReadTag returns the tag of the object whose header starts at addr.
func ReadTag(mem Memory, addr Address) Tag { return Tag(mem.ReadWord(addr)) }

// PointerToDynamicHeap reports whether the word stored at fieldAddr is a
// skewed pointer whose unskewed address lies at or above heapBase. Scalars
// and pointers into the static region both read as false.
func PointerToDynamicHeap(mem Memory, fieldAddr, heapBase Address) bool {
	w := mem.ReadWord(fieldAddr)
	if IsScalar(w) {
		return false
	}
	return Unskew(w) >= heapBase
}

// TrapError is the fatal, unrecoverable error raised for every collector
// precondition violation: the heap is either consistent or the process
// must die. Collector entry points panic with a *TrapError
// rather than returning one; callers that need to convert a panic back into
// an error (e.g. tests asserting a specific trap) can do so with a
// recover() and a type assertion.
type TrapError struct {
	Msg string
}

func (e *TrapError) Error() string { return "rts trap: " + e.Msg }

// Trap raises a fatal trap, mirroring rts_trap_with in the reference runtime.
func Trap(format string, args ...any) {
	panic(&TrapError{Msg: fmt.Sprintf(format, args...)})
}
