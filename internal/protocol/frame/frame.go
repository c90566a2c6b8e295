// Package frame extracts link-layer frames from a raw serial byte stream.
//
// A frame on the wire is:
//
//	SYN DLE STX | payload | DLE ETX | crc16 (little-endian)
//
// The checksum covers the payload bytes plus the trailing ETX. A DLE inside
// the payload that is not followed by ETX is ordinary data.
package frame

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/newtdock/internal/observability"
	"github.com/rs/zerolog/log"
)

const (
	SYN = 0x16
	DLE = 0x10
	STX = 0x02
	ETX = 0x03
)

var (
	Preamble   = [3]byte{SYN, DLE, STX}
	Terminator = [2]byte{DLE, ETX}
)

var (
	ErrTruncated           = errors.New("frame: truncated frame")
	ErrPayloadTooLarge     = errors.New("frame: payload too large")
	ErrTerminatorInPayload = errors.New("frame: payload contains terminator sequence")
)

// ChecksumError reports a frame whose trailing checksum did not match.
type ChecksumError struct {
	Expected uint16
	Got      uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("frame: checksum mismatch: expected %04x, got %04x", e.Expected, e.Got)
}

// Limits constrains frame decode memory use.
type Limits struct {
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 64 * 1024}
}

// Reader scans a byte stream for delimited frames.
type Reader struct {
	r      io.ByteReader
	limits Limits
	sum    Checksum
}

func NewReader(r io.Reader, limits Limits) *Reader {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br, limits: limits}
}

// Receive blocks until one complete frame has been read and returns its
// payload. It returns io.EOF if the stream ends while no frame is in progress.
func (r *Reader) Receive() ([]byte, error) {
	if err := r.seekPreamble(); err != nil {
		return nil, err
	}

	r.sum.Reset()
	payload := make([]byte, 0, 64)
	pendingDLE := false
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return nil, truncated(err)
		}
		if pendingDLE {
			if b == Terminator[1] {
				r.sum.Update(b)
				break
			}
			payload = append(payload, Terminator[0])
			r.sum.Update(Terminator[0])
			pendingDLE = false
			if r.overLimit(len(payload)) {
				return nil, ErrPayloadTooLarge
			}
		}
		if b == Terminator[0] {
			pendingDLE = true
			continue
		}
		payload = append(payload, b)
		r.sum.Update(b)
		if r.overLimit(len(payload)) {
			return nil, ErrPayloadTooLarge
		}
	}

	var trailer [2]byte
	for i := range trailer {
		b, err := r.r.ReadByte()
		if err != nil {
			return nil, truncated(err)
		}
		trailer[i] = b
	}
	want := binary.LittleEndian.Uint16(trailer[:])
	if got := r.sum.Value(); got != want {
		observability.RecordFrame(false)
		log.Warn().Msgf("frame.Reader.Receive checksum mismatch len=%d want=%04x got=%04x", len(payload), want, got)
		return nil, &ChecksumError{Expected: want, Got: got}
	}
	observability.RecordFrame(true)
	log.Trace().Msgf("frame.Reader.Receive ok len=%d", len(payload))
	return payload, nil
}

func (r *Reader) overLimit(n int) bool {
	return r.limits.MaxPayloadBytes > 0 && n > r.limits.MaxPayloadBytes
}

func (r *Reader) seekPreamble() error {
	matched := 0
	for matched < len(Preamble) {
		b, err := r.r.ReadByte()
		if err != nil {
			if matched == 0 && errors.Is(err, io.EOF) {
				return io.EOF
			}
			return truncated(err)
		}
		switch {
		case b == Preamble[matched]:
			matched++
		case b == Preamble[0]:
			matched = 1
		default:
			matched = 0
		}
	}
	return nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %w", ErrTruncated, err)
}

// Writer emits delimited frames.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send writes payload as one frame. The receiver performs no unescaping, so a
// payload carrying the terminator pair cannot be framed.
func (w *Writer) Send(payload []byte) error {
	buf, err := Encode(payload)
	if err != nil {
		return err
	}
	_, err = w.w.Write(buf)
	return err
}

// Encode returns the framed bytes for payload.
func Encode(payload []byte) ([]byte, error) {
	if bytes.Contains(payload, Terminator[:]) {
		return nil, ErrTerminatorInPayload
	}
	var sum Checksum
	sum.UpdateBytes(payload, 0, len(payload))
	sum.Update(Terminator[1])

	buf := make([]byte, 0, len(Preamble)+len(payload)+len(Terminator)+2)
	buf = append(buf, Preamble[:]...)
	buf = append(buf, payload...)
	buf = append(buf, Terminator[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, sum.Value())
	return buf, nil
}
