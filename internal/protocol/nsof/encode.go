package nsof

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
)

// Encoder writes NSOF objects. Within one Encode call a heap object seen a
// second time (by pointer identity, or by name for symbols) is written as a
// precedent.
type Encoder struct {
	w       io.Writer
	buf     []byte
	ids     map[Object]int
	symbols map[Symbol]int
	next    int
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes o starting at its tag byte.
func (e *Encoder) Encode(o Object) error {
	e.buf = e.buf[:0]
	e.ids = make(map[Object]int)
	e.symbols = make(map[Symbol]int)
	e.next = 0
	if err := e.encode(o); err != nil {
		return err
	}
	_, err := e.w.Write(e.buf)
	return err
}

// Flatten writes the version byte followed by o.
func Flatten(w io.Writer, o Object) error {
	if _, err := w.Write([]byte{Version}); err != nil {
		return err
	}
	return NewEncoder(w).Encode(o)
}

// Marshal returns the flattened bytes of o, version byte included.
func Marshal(o Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := Flatten(&buf, o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a flattened byte slice.
func Unmarshal(b []byte) (Object, error) {
	return Unflatten(bytes.NewReader(b))
}

func (e *Encoder) tag(t Tag) {
	e.buf = append(e.buf, byte(t))
}

func (e *Encoder) xlong(v int32) {
	e.buf = AppendXLong(e.buf, v)
}

func (e *Encoder) length(n int) error {
	if n < 0 || n > 1<<31-1 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}
	e.xlong(int32(n))
	return nil
}

// seen writes a precedent and reports true when o was already encoded;
// otherwise it assigns o the next ID.
func (e *Encoder) seen(o Object) bool {
	if sym, ok := o.(Symbol); ok {
		if id, ok := e.symbols[sym]; ok {
			e.tag(TagPrecedent)
			e.xlong(int32(id))
			return true
		}
		e.symbols[sym] = e.next
		e.next++
		return false
	}
	if id, ok := e.ids[o]; ok {
		e.tag(TagPrecedent)
		e.xlong(int32(id))
		return true
	}
	e.ids[o] = e.next
	e.next++
	return false
}

func isNilObject(o Object) bool {
	if o == nil {
		return true
	}
	v := reflect.ValueOf(o)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func (e *Encoder) encode(o Object) error {
	if isNilObject(o) {
		e.tag(TagNil)
		return nil
	}
	if isHeap(o) && e.seen(o) {
		return nil
	}

	switch v := o.(type) {
	case Nil:
		e.tag(TagNil)
	case Integer:
		if v < MinInteger || v > MaxInteger {
			return fmt.Errorf("%w: %d", ErrIntegerRange, v)
		}
		e.tag(TagImmediate)
		e.xlong(int32(v) << 2)
	case Boolean:
		if !v {
			e.tag(TagNil)
			return nil
		}
		e.tag(TagImmediate)
		e.xlong(refTrue)
	case MagicPointer:
		e.tag(TagImmediate)
		e.xlong(int32(v)<<2 | 0x3)
	case Immediate:
		e.tag(TagImmediate)
		e.xlong(int32(v))
	case Char:
		if v < 0 || v > 0xFFFF {
			return fmt.Errorf("%w: character %U", ErrUnsupportedType, rune(v))
		}
		if v <= 0xFF {
			e.tag(TagCharacter)
			e.buf = append(e.buf, byte(v))
		} else {
			e.tag(TagUnicodeCharacter)
			e.buf = append(e.buf, byte(v>>8), byte(v))
		}
	case Symbol:
		e.tag(TagSymbol)
		if err := e.length(len(v)); err != nil {
			return err
		}
		e.buf = append(e.buf, string(v)...)
	case *String:
		e.tag(TagString)
		if v.Null {
			e.xlong(0)
			return nil
		}
		b, err := utf16BE.NewEncoder().Bytes([]byte(v.Value + "\x00"))
		if err != nil {
			return err
		}
		if err := e.length(len(b)); err != nil {
			return err
		}
		e.buf = append(e.buf, b...)
	case *Binary:
		e.tag(TagBinary)
		if err := e.length(len(v.Data)); err != nil {
			return err
		}
		if err := e.encode(v.Class); err != nil {
			return err
		}
		e.buf = append(e.buf, v.Data...)
	case *LargeBinary:
		return e.encodeLargeBinary(v)
	case *Array:
		e.tag(TagArray)
		if err := e.length(len(v.Items)); err != nil {
			return err
		}
		if err := e.encode(v.Class); err != nil {
			return err
		}
		return e.encodeItems(v.Items)
	case *PlainArray:
		e.tag(TagPlainArray)
		if err := e.length(len(v.Items)); err != nil {
			return err
		}
		return e.encodeItems(v.Items)
	case *Frame:
		e.tag(TagFrame)
		if err := e.length(len(v.slots)); err != nil {
			return err
		}
		for _, s := range v.slots {
			if err := e.encode(s.Name); err != nil {
				return err
			}
		}
		for _, s := range v.slots {
			if err := e.encode(s.Value); err != nil {
				return err
			}
		}
	case *SmallRect:
		e.tag(TagSmallRect)
		e.buf = append(e.buf, byte(v.Top&0xFF), byte(v.Left&0xFF), byte(v.Bottom&0xFF), byte(v.Right&0xFF))
	case Precedent:
		if int(v) < 0 || int(v) >= e.next {
			return fmt.Errorf("%w: %d", ErrBadPrecedent, int(v))
		}
		e.tag(TagPrecedent)
		e.xlong(int32(v))
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, o)
	}
	return nil
}

func (e *Encoder) encodeItems(items []Object) error {
	for _, item := range items {
		if err := e.encode(item); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeLargeBinary(v *LargeBinary) error {
	e.tag(TagLargeBinary)
	if err := e.encode(v.Class); err != nil {
		return err
	}
	if v.Compressed {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	for _, n := range []int{len(v.Data), len(v.Compander), len(v.Params), 0} {
		if err := e.length(n); err != nil {
			return err
		}
	}
	e.buf = append(e.buf, v.Data...)
	e.buf = append(e.buf, v.Compander...)
	e.buf = append(e.buf, v.Params...)
	return nil
}
