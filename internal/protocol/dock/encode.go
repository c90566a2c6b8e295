package dock

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encode writes cmd with its header and padding.
func Encode(w io.Writer, cmd Command) error {
	b, err := Marshal(cmd)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Marshal returns the wire bytes of cmd.
func Marshal(cmd Command) ([]byte, error) {
	if !validName(cmd.Name()) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, cmd.Name())
	}
	payload, err := cmd.EncodePayload()
	if err != nil {
		return nil, fmt.Errorf("dock: encode %s payload: %w", cmd.Name(), err)
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %s has %d bytes", ErrPayloadTooLarge, cmd.Name(), len(payload))
	}
	n := uint32(len(payload))
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(payload) + int(padding(n)))
	buf.WriteString(Magic)
	buf.WriteString(cmd.Name())
	buf.Write(binary.BigEndian.AppendUint32(nil, n))
	buf.Write(payload)
	buf.Write(make([]byte, padding(n)))
	return buf.Bytes(), nil
}
