package heap

// VisitPointerFields calls fn with the address of every pointer-containing
// field of the object at addr, in declaration order, stopping early if fn
// returns false. It is the single place that encodes the pointer shape of
// each tag, shared by both collectors.
//
// FWD_PTR is deliberately not handled here: it only ever appears as the
// transient result of a copying-collector evacuation, and the copying
// collector reads its forwarding field directly rather than through this
// visitor.
func VisitPointerFields(mem Memory, addr Address, tag Tag, fn func(fieldAddr Address) bool) {
	switch tag {
	case TagObject:
		size := uint32(mem.ReadWord(addr.Add(WordSize)))
		base := addr.Add(objectHeaderWords * WordSize)
		for i := uint32(0); i < size; i++ {
			if !fn(base.Add(i * WordSize)) {
				return
			}
		}
	case TagObjInd:
		fn(addr.Add(WordSize))
	case TagArray:
		length := uint32(mem.ReadWord(addr.Add(WordSize)))
		base := addr.Add(arrayHeaderWords * WordSize)
		for i := uint32(0); i < length; i++ {
			if !fn(base.Add(i * WordSize)) {
				return
			}
		}
	case TagMutBox, TagSome:
		fn(addr.Add(WordSize))
	case TagClosure:
		size := uint32(mem.ReadWord(addr.Add(2 * WordSize)))
		base := addr.Add(closureHdrWords * WordSize)
		for i := uint32(0); i < size; i++ {
			if !fn(base.Add(i * WordSize)) {
				return
			}
		}
	case TagVariant:
		fn(addr.Add(2 * WordSize))
	case TagConcat:
		if !fn(addr.Add(2 * WordSize)) {
			return
		}
		fn(addr.Add(3 * WordSize))
	case TagBlob, TagBigInt, TagBits32, TagBits64, TagNull, tagPad:
		// no pointer fields
	default:
		Trap("visit_pointer_fields: invalid object tag")
	}
}
