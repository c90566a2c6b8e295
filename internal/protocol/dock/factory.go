package dock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// Magic opens every command on the wire.
const Magic = "newtdock"

// HeaderSize is the size of magic, name and length.
const HeaderSize = len(Magic) + 4 + 4

// DefaultMaxPayload bounds the declared length the factory accepts.
const DefaultMaxPayload = 16 * 1024 * 1024

func padding(n uint32) uint32 {
	return (4 - n%4) % 4
}

// ProgressFunc observes payload bytes as they are consumed.
type ProgressFunc func(name string, done, total uint32)

// Factory creates and decodes commands through a Registry.
type Factory struct {
	registry     *Registry
	maxPayload   uint32
	readOutbound bool
}

type FactoryOption func(*Factory)

// WithMaxPayload sets the largest declared length Decode accepts.
func WithMaxPayload(n uint32) FactoryOption {
	return func(f *Factory) { f.maxPayload = n }
}

// WithOutboundPayloads makes Decode interpret ToDevice payloads as well.
// Used when replaying recorded traffic in both directions.
func WithOutboundPayloads() FactoryOption {
	return func(f *Factory) { f.readOutbound = true }
}

func NewFactory(reg *Registry, opts ...FactoryOption) *Factory {
	if reg == nil {
		reg = DefaultRegistry()
	}
	f := &Factory{registry: reg, maxPayload: DefaultMaxPayload}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) Registry() *Registry {
	return f.registry
}

func (f *Factory) Create(name string) Command {
	return f.registry.Create(name)
}

// Decode reads one command. It returns io.EOF only when r ends before the
// first magic byte. ToDevice commands have their payload skipped unless the
// factory was built with WithOutboundPayloads.
func (f *Factory) Decode(r io.Reader) (Command, error) {
	return f.decode(r, nil, nil)
}

// DecodeWire is Decode that also returns the exact bytes consumed for the
// command: header, payload as declared, and padding.
func (f *Factory) DecodeWire(r io.Reader) (Command, []byte, error) {
	var wire bytes.Buffer
	cmd, err := f.decode(r, nil, &wire)
	if err != nil {
		return nil, nil, err
	}
	return cmd, wire.Bytes(), nil
}

// DecodeAll reads commands until a clean end of stream.
func (f *Factory) DecodeAll(r io.Reader) ([]Command, error) {
	var out []Command
	for {
		cmd, err := f.Decode(r)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, cmd)
	}
}

// decode reads one command. When wire is non-nil every byte consumed from r
// is copied into it.
func (f *Factory) decode(r io.Reader, progress ProgressFunc, wire *bytes.Buffer) (Command, error) {
	if wire != nil {
		r = io.TeeReader(r, wire)
	}
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, truncated(err)
	}
	if string(hdr[:len(Magic)]) != Magic {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, hdr[:len(Magic)])
	}
	name := string(hdr[len(Magic) : len(Magic)+4])
	length := binary.BigEndian.Uint32(hdr[len(Magic)+4:])
	if f.maxPayload > 0 && length > f.maxPayload {
		return nil, fmt.Errorf("%w: %s declares %d bytes", ErrPayloadTooLarge, name, length)
	}

	cmd := f.registry.Create(name)
	cmd.base().length = length
	if progress != nil {
		progress(name, 0, length)
	}

	if !cmd.Direction().Incoming() && !f.readOutbound {
		skip := int64(length) + int64(padding(length))
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, truncated(err)
		}
		log.Debug().Msgf("dock.Factory.Decode skipped outbound name=%s length=%d", name, length)
		if progress != nil {
			progress(name, length, length)
		}
		return cmd, nil
	}

	body := &payloadReader{r: r, remaining: length, name: name, total: length, progress: progress}
	if err := cmd.DecodePayload(body, length); err != nil {
		if body.short {
			return nil, truncated(io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("dock: decode %s payload: %w", name, err)
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return nil, err
	}
	if body.short {
		return nil, truncated(io.ErrUnexpectedEOF)
	}
	if pad := padding(length); pad > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
			return nil, truncated(err)
		}
	}
	log.Debug().Msgf("dock.Factory.Decode name=%s length=%d", name, length)
	return cmd, nil
}

// payloadReader limits a command payload to its declared length and notes
// whether the underlying stream ended first.
type payloadReader struct {
	r         io.Reader
	remaining uint32
	short     bool
	name      string
	total     uint32
	progress  ProgressFunc
}

func (p *payloadReader) Read(b []byte) (int, error) {
	if p.remaining == 0 {
		return 0, io.EOF
	}
	if uint32(len(b)) > p.remaining {
		b = b[:p.remaining]
	}
	n, err := p.r.Read(b)
	p.remaining -= uint32(n)
	if n > 0 && p.progress != nil {
		p.progress(p.name, p.total-p.remaining, p.total)
	}
	if err == io.EOF && p.remaining > 0 {
		p.short = true
		return n, io.ErrUnexpectedEOF
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}
