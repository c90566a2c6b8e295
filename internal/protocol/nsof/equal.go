package nsof

import "bytes"

// Equal reports whether a and b are structurally equal. Nil slices equal
// empty ones, and a Go nil Object equals Nil. Shared and cyclic structure is
// compared without looping.
func Equal(a, b Object) bool {
	return equal(a, b, make(map[[2]Object]bool))
}

func normalize(o Object) Object {
	if isNilObject(o) {
		return Nil{}
	}
	if b, ok := o.(Boolean); ok && !bool(b) {
		return Nil{}
	}
	return o
}

func equal(a, b Object, visiting map[[2]Object]bool) bool {
	a, b = normalize(a), normalize(b)
	if isHeap(a) {
		if _, isSym := a.(Symbol); !isSym {
			key := [2]Object{a, b}
			if visiting[key] {
				return true
			}
			visiting[key] = true
		}
	}

	switch x := a.(type) {
	case *String:
		y, ok := b.(*String)
		return ok && x.Null == y.Null && x.Value == y.Value
	case *Binary:
		y, ok := b.(*Binary)
		return ok && bytes.Equal(x.Data, y.Data) && equal(x.Class, y.Class, visiting)
	case *LargeBinary:
		y, ok := b.(*LargeBinary)
		return ok && x.Compressed == y.Compressed && x.Compander == y.Compander &&
			bytes.Equal(x.Params, y.Params) && bytes.Equal(x.Data, y.Data) &&
			equal(x.Class, y.Class, visiting)
	case *Array:
		y, ok := b.(*Array)
		return ok && equal(x.Class, y.Class, visiting) && equalItems(x.Items, y.Items, visiting)
	case *PlainArray:
		y, ok := b.(*PlainArray)
		return ok && equalItems(x.Items, y.Items, visiting)
	case *Frame:
		y, ok := b.(*Frame)
		if !ok || len(x.slots) != len(y.slots) {
			return false
		}
		for i := range x.slots {
			if x.slots[i].Name != y.slots[i].Name || !equal(x.slots[i].Value, y.slots[i].Value, visiting) {
				return false
			}
		}
		return true
	case *SmallRect:
		y, ok := b.(*SmallRect)
		return ok && *x == *y
	default:
		return a == b
	}
}

func equalItems(a, b []Object, visiting map[[2]Object]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equal(a[i], b[i], visiting) {
			return false
		}
	}
	return true
}
