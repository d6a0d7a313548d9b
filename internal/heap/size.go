package heap

// Fixed header sizes in words for each tag, i.e. the size of everything
// up to (but not including) the tag's variable-length payload.
const (
	objectHeaderWords  = 3 // tag, size, hash_ptr
	objIndHeaderWords  = 2 // tag, field
	arrayHeaderWords   = 2 // tag, len
	bits64HeaderWords  = 3 // tag, bits (2 words on a 32-bit target)
	mutBoxHeaderWords  = 2 // tag, field
	closureHdrWords    = 3 // tag, funid, size
	someHeaderWords    = 2 // tag, field
	variantHeaderWords = 3 // tag, discriminant, field
	blobHeaderWords    = 2 // tag, len (bytes)
	fwdPtrWords        = 2 // tag, fwd
	bits32HeaderWords  = 2 // tag, bits
	bigIntHeaderWords  = 3 // tag, alloc (limb capacity), used
	concatWords        = 4 // tag, n_bytes, text1, text2
	nullWords          = 1 // tag
)

// ObjectSize returns the size, in words, of the object whose header begins
// at addr. It traps fatally on a forwarding pointer (only legal transiently
// during a copying collection, never when a caller asks for a size) or on
// any tag outside the closed [Object, Null] set, with the single exception
// of the zero pad tag which always has size 1.
func ObjectSize(mem Memory, addr Address) uint32 {
	tag := ReadTag(mem, addr)
	switch tag {
	case TagObject:
		size := uint32(mem.ReadWord(addr.Add(WordSize)))
		return objectHeaderWords + size
	case TagObjInd:
		return objIndHeaderWords
	case TagArray:
		length := uint32(mem.ReadWord(addr.Add(WordSize)))
		return arrayHeaderWords + length
	case TagBits64:
		return bits64HeaderWords
	case TagMutBox:
		return mutBoxHeaderWords
	case TagClosure:
		size := uint32(mem.ReadWord(addr.Add(2 * WordSize)))
		return closureHdrWords + size
	case TagSome:
		return someHeaderWords
	case TagVariant:
		return variantHeaderWords
	case TagBlob:
		lenBytes := uint32(mem.ReadWord(addr.Add(WordSize)))
		return blobHeaderWords + bytesToWords(lenBytes)
	case TagFwdPtr:
		Trap("object_size: forwarding pointer")
		panic("unreachable")
	case TagBits32:
		return bits32HeaderWords
	case TagBigInt:
		allocLimbs := uint32(mem.ReadWord(addr.Add(WordSize)))
		return bigIntHeaderWords + allocLimbs
	case TagConcat:
		return concatWords
	case TagNull:
		return nullWords
	case tagPad:
		return 1
	default:
		Trap("object_size: invalid object tag")
		panic("unreachable")
	}
}

func bytesToWords(n uint32) uint32 { return (n + WordSize - 1) / WordSize }
