package nsof

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/newtdock/internal/observability"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/unicode"
)

// Limits bounds what a decoder will allocate for untrusted input.
type Limits struct {
	MaxLength int32 // largest count or byte length accepted
	MaxDepth  int   // deepest container nesting accepted
}

func DefaultLimits() Limits {
	return Limits{
		MaxLength: 16 * 1024 * 1024,
		MaxDepth:  256,
	}
}

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// Decoder reads NSOF objects from a stream. Precedent IDs are scoped to a
// single Decode call.
type Decoder struct {
	r      io.Reader
	limits Limits
	arena  []Object
}

func NewDecoder(r io.Reader) *Decoder {
	return NewDecoderWithLimits(r, DefaultLimits())
}

func NewDecoderWithLimits(r io.Reader, limits Limits) *Decoder {
	return &Decoder{r: r, limits: limits}
}

// Decode reads one object, starting at its tag byte.
func (d *Decoder) Decode() (Object, error) {
	d.arena = d.arena[:0]
	o, err := d.decode(0)
	if err != nil {
		recordDecodeError(err)
		return nil, err
	}
	return o, nil
}

// Unflatten reads a version byte followed by one object.
func Unflatten(r io.Reader) (Object, error) {
	var v [1]byte
	if _, err := io.ReadFull(r, v[:]); err != nil {
		return nil, truncated(err)
	}
	if v[0] != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v[0])
	}
	return NewDecoder(r).Decode()
}

func recordDecodeError(err error) {
	kind := "other"
	switch {
	case errors.Is(err, ErrUnknownType):
		kind = "unknown_type"
	case errors.Is(err, ErrTruncated):
		kind = "truncated"
	case errors.Is(err, ErrBadPrecedent):
		kind = "bad_precedent"
	}
	observability.RecordDecodeError(kind)
	log.Debug().Msgf("nsof.Decoder.Decode failed kind=%s err=%v", kind, err)
}

func (d *Decoder) assign(o Object) {
	d.arena = append(d.arena, o)
}

func (d *Decoder) readByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, truncated(err)
	}
	return b[0], nil
}

func (d *Decoder) readBytes(n int32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, truncated(err)
	}
	return buf, nil
}

func (d *Decoder) readLength() (int32, error) {
	n, err := ReadXLong(d.r)
	if err != nil {
		return 0, err
	}
	if n < 0 || (d.limits.MaxLength > 0 && n > d.limits.MaxLength) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}
	return n, nil
}

func (d *Decoder) decode(depth int) (Object, error) {
	if d.limits.MaxDepth > 0 && depth > d.limits.MaxDepth {
		return nil, ErrTooDeep
	}
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}

	switch Tag(tag) {
	case TagImmediate:
		ref, err := ReadXLong(d.r)
		if err != nil {
			return nil, err
		}
		return decodeRef(ref), nil

	case TagCharacter:
		b, err := d.readByte()
		if err != nil {
			return nil, err
		}
		return Char(b), nil

	case TagUnicodeCharacter:
		b, err := d.readBytes(2)
		if err != nil {
			return nil, err
		}
		return Char(rune(b[0])<<8 | rune(b[1])), nil

	case TagSymbol:
		n, err := d.readLength()
		if err != nil {
			return nil, err
		}
		b, err := d.readBytes(n)
		if err != nil {
			return nil, err
		}
		sym := Symbol(b)
		d.assign(sym)
		return sym, nil

	case TagString:
		s := &String{}
		d.assign(s)
		n, err := d.readLength()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			s.Null = true
			return s, nil
		}
		if n%2 != 0 {
			return nil, fmt.Errorf("%w: odd string byte length %d", ErrInvalidLength, n)
		}
		b, err := d.readBytes(n)
		if err != nil {
			return nil, err
		}
		text, err := utf16BE.NewDecoder().Bytes(b)
		if err != nil {
			return nil, err
		}
		s.Value = strings.TrimSuffix(string(text), "\x00")
		return s, nil

	case TagBinary:
		bin := &Binary{}
		d.assign(bin)
		n, err := d.readLength()
		if err != nil {
			return nil, err
		}
		if bin.Class, err = d.decode(depth + 1); err != nil {
			return nil, err
		}
		if bin.Data, err = d.readBytes(n); err != nil {
			return nil, err
		}
		return bin, nil

	case TagLargeBinary:
		return d.decodeLargeBinary(depth)

	case TagArray:
		arr := &Array{}
		d.assign(arr)
		n, err := d.readLength()
		if err != nil {
			return nil, err
		}
		if arr.Class, err = d.decode(depth + 1); err != nil {
			return nil, err
		}
		if arr.Items, err = d.decodeItems(n, depth); err != nil {
			return nil, err
		}
		return arr, nil

	case TagPlainArray:
		arr := &PlainArray{}
		d.assign(arr)
		n, err := d.readLength()
		if err != nil {
			return nil, err
		}
		if arr.Items, err = d.decodeItems(n, depth); err != nil {
			return nil, err
		}
		return arr, nil

	case TagFrame:
		return d.decodeFrame(depth)

	case TagSmallRect:
		rect := &SmallRect{}
		d.assign(rect)
		b, err := d.readBytes(4)
		if err != nil {
			return nil, err
		}
		rect.Top, rect.Left, rect.Bottom, rect.Right = int(b[0]), int(b[1]), int(b[2]), int(b[3])
		return rect, nil

	case TagPrecedent:
		id, err := ReadXLong(d.r)
		if err != nil {
			return nil, err
		}
		if id < 0 || int(id) >= len(d.arena) {
			return nil, fmt.Errorf("%w: %d (assigned %d)", ErrBadPrecedent, id, len(d.arena))
		}
		return d.arena[id], nil

	case TagNil:
		return Nil{}, nil

	default:
		return nil, &UnknownTypeError{Tag: tag}
	}
}

func decodeRef(ref int32) Object {
	switch {
	case ref&0x3 == 0:
		return Integer(ref >> 2)
	case ref&0x3 == 0x3:
		return MagicPointer(ref >> 2)
	case ref == refTrue:
		return True
	case ref == refNil:
		return Nil{}
	case ref&0xF == refCharTag:
		return Char((ref >> 4) & 0xFFFF)
	default:
		return Immediate(ref)
	}
}

const (
	refNil     int32 = 0x02
	refTrue    int32 = 0x1A
	refCharTag int32 = 0x06
)

func (d *Decoder) decodeItems(n int32, depth int) ([]Object, error) {
	items := make([]Object, 0, min(n, 1024))
	for i := int32(0); i < n; i++ {
		o, err := d.decode(depth + 1)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, nil
}

func (d *Decoder) decodeFrame(depth int) (Object, error) {
	f := &Frame{}
	d.assign(f)
	n, err := d.readLength()
	if err != nil {
		return nil, err
	}
	keys := make([]Symbol, 0, min(n, 1024))
	for i := int32(0); i < n; i++ {
		k, err := d.decode(depth + 1)
		if err != nil {
			return nil, err
		}
		sym, ok := k.(Symbol)
		if !ok {
			return nil, fmt.Errorf("%w: got %s", ErrBadFrameKey, k.Tag())
		}
		keys = append(keys, sym)
	}
	f.slots = make([]Slot, 0, len(keys))
	for _, k := range keys {
		v, err := d.decode(depth + 1)
		if err != nil {
			return nil, err
		}
		if f.Has(k) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSlot, k)
		}
		f.slots = append(f.slots, Slot{Name: k, Value: v})
	}
	return f, nil
}

func (d *Decoder) decodeLargeBinary(depth int) (Object, error) {
	lb := &LargeBinary{}
	d.assign(lb)
	var err error
	if lb.Class, err = d.decode(depth + 1); err != nil {
		return nil, err
	}
	flag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	lb.Compressed = flag != 0
	var lengths [4]int32
	for i := range lengths {
		if lengths[i], err = d.readLength(); err != nil {
			return nil, err
		}
	}
	if lb.Data, err = d.readBytes(lengths[0]); err != nil {
		return nil, err
	}
	name, err := d.readBytes(lengths[1])
	if err != nil {
		return nil, err
	}
	lb.Compander = string(name)
	if lb.Params, err = d.readBytes(lengths[2]); err != nil {
		return nil, err
	}
	return lb, nil
}
