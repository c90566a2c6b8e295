package nsof

import "fmt"

// Tag is the leading byte that selects an object's wire variant.
type Tag byte

const (
	TagImmediate        Tag = 0
	TagCharacter        Tag = 1
	TagUnicodeCharacter Tag = 2
	TagBinary           Tag = 3
	TagArray            Tag = 4
	TagPlainArray       Tag = 5
	TagFrame            Tag = 6
	TagSymbol           Tag = 7
	TagString           Tag = 8
	TagPrecedent        Tag = 9
	TagNil              Tag = 10
	TagSmallRect        Tag = 11
	TagLargeBinary      Tag = 12
)

// Version is the leading byte of a flattened object stream.
const Version byte = 2

func (t Tag) String() string {
	switch t {
	case TagImmediate:
		return "immediate"
	case TagCharacter:
		return "character"
	case TagUnicodeCharacter:
		return "unicode-character"
	case TagBinary:
		return "binary"
	case TagArray:
		return "array"
	case TagPlainArray:
		return "plain-array"
	case TagFrame:
		return "frame"
	case TagSymbol:
		return "symbol"
	case TagString:
		return "string"
	case TagPrecedent:
		return "precedent"
	case TagNil:
		return "nil"
	case TagSmallRect:
		return "small-rect"
	case TagLargeBinary:
		return "large-binary"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Object is any value that can be carried in an NSOF stream.
type Object interface {
	Tag() Tag
}

// Nil is the NewtonScript nil value.
type Nil struct{}

func (Nil) Tag() Tag { return TagNil }

// Integer is a 30-bit signed immediate.
type Integer int32

const (
	MinInteger Integer = -(1 << 29)
	MaxInteger Integer = 1<<29 - 1
)

func (Integer) Tag() Tag { return TagImmediate }

// Boolean is the true immediate. False has no immediate form and encodes as nil.
type Boolean bool

const True = Boolean(true)

func (b Boolean) Tag() Tag {
	if !b {
		return TagNil
	}
	return TagImmediate
}

// MagicPointer is an immediate reference into the device ROM object table.
type MagicPointer int32

func (MagicPointer) Tag() Tag { return TagImmediate }

// Immediate carries a raw ref whose tag bits are not otherwise modelled.
type Immediate int32

func (Immediate) Tag() Tag { return TagImmediate }

// Char is a character, written as an 8-bit character when it fits and a
// 16-bit unicode character otherwise.
type Char rune

func (c Char) Tag() Tag {
	if c <= 0xFF {
		return TagCharacter
	}
	return TagUnicodeCharacter
}

// Symbol is a bare name. Symbols share precedents by name.
type Symbol string

func (Symbol) Tag() Tag { return TagSymbol }

// String is UTF-16 text. A null String is distinct from the empty String.
type String struct {
	Value string
	Null  bool
}

func NewString(s string) *String { return &String{Value: s} }

func NullString() *String { return &String{Null: true} }

func (*String) Tag() Tag { return TagString }

// Binary is an opaque byte object with a class.
type Binary struct {
	Class Object
	Data  []byte
}

func (*Binary) Tag() Tag { return TagBinary }

// LargeBinary is a binary whose bytes may be compressed by a named compander.
// The codec never interprets the data.
type LargeBinary struct {
	Class      Object
	Compressed bool
	Compander  string
	Params     []byte
	Data       []byte
}

func (*LargeBinary) Tag() Tag { return TagLargeBinary }

// Array is an ordered sequence with a class.
type Array struct {
	Class Object
	Items []Object
}

func (*Array) Tag() Tag { return TagArray }

// PlainArray is an ordered sequence without a class.
type PlainArray struct {
	Items []Object
}

func (*PlainArray) Tag() Tag { return TagPlainArray }

// SmallRect is a rectangle whose coordinates fit in one byte each.
type SmallRect struct {
	Top, Left, Bottom, Right int
}

func (*SmallRect) Tag() Tag { return TagSmallRect }

// Precedent is an explicit back-reference to the heap object with the given
// ID in the current stream. Decoding never yields a Precedent; it resolves it.
type Precedent int

func (Precedent) Tag() Tag { return TagPrecedent }

// isHeap reports whether o is assigned a precedent ID when encoded.
func isHeap(o Object) bool {
	switch o.(type) {
	case Symbol, *String, *Binary, *LargeBinary, *Array, *PlainArray, *Frame, *SmallRect:
		return true
	}
	return false
}
