package dock

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/danmuck/newtdock/internal/protocol/nsof"
)

// Direction says which peer sends a command.
type Direction uint8

const (
	FromDevice Direction = 1 << iota
	ToDevice
	Both = FromDevice | ToDevice
)

func (d Direction) String() string {
	switch d {
	case FromDevice:
		return "from-device"
	case ToDevice:
		return "to-device"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

// Incoming reports whether commands in this direction may be sent by the device.
func (d Direction) Incoming() bool {
	return d&FromDevice != 0
}

// Command is one docking command. Implementations embed Base.
type Command interface {
	Name() string
	Direction() Direction
	// Length is the payload length declared on the wire. It is zero for
	// commands built locally.
	Length() uint32
	DecodePayload(r io.Reader, length uint32) error
	EncodePayload() ([]byte, error)
	base() *Base
}

// Base carries the header fields shared by every command.
type Base struct {
	name      string
	direction Direction
	length    uint32
}

func NewBase(name string, direction Direction) Base {
	return Base{name: name, direction: direction}
}

func (b *Base) Name() string         { return b.name }
func (b *Base) Direction() Direction { return b.direction }
func (b *Base) Length() uint32       { return b.length }
func (b *Base) base() *Base          { return b }

func (b *Base) String() string {
	return fmt.Sprintf("%s(%d)", b.name, b.length)
}

// Blank is a command without payload. Any payload received is discarded.
type Blank struct {
	Base
}

func (*Blank) DecodePayload(io.Reader, uint32) error { return nil }
func (*Blank) EncodePayload() ([]byte, error)        { return nil, nil }

// Long is a command whose payload is one big-endian 32-bit integer.
type Long struct {
	Base
	Value int32
}

func (c *Long) DecodePayload(r io.Reader, _ uint32) error {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return truncated(err)
	}
	c.Value = int32(binary.BigEndian.Uint32(b[:]))
	return nil
}

func (c *Long) EncodePayload() ([]byte, error) {
	return binary.BigEndian.AppendUint32(nil, uint32(c.Value)), nil
}

// Object is a command whose payload is one flattened NSOF object.
type Object struct {
	Base
	Value nsof.Object
}

func (c *Object) DecodePayload(r io.Reader, _ uint32) error {
	o, err := nsof.Unflatten(r)
	if err != nil {
		return err
	}
	c.Value = o
	return nil
}

func (c *Object) EncodePayload() ([]byte, error) {
	return nsof.Marshal(c.Value)
}

// Raw keeps its payload as uninterpreted bytes. Unknown command names
// decode as Raw.
type Raw struct {
	Base
	Data []byte
}

func NewRaw(name string, direction Direction, data []byte) *Raw {
	return &Raw{Base: NewBase(name, direction), Data: data}
}

func (c *Raw) DecodePayload(r io.Reader, length uint32) error {
	var buf bytes.Buffer
	buf.Grow(int(min(length, 1<<20)))
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	c.Data = buf.Bytes()
	return nil
}

func (c *Raw) EncodePayload() ([]byte, error) {
	return c.Data, nil
}

func (c *Raw) Payload() []byte {
	return c.Data
}

func validName(name string) bool {
	if len(name) != 4 {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7E {
			return false
		}
	}
	return true
}
