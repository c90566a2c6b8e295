package nsof

import (
	"encoding/binary"
	"io"
)

// xlongEscape introduces a 4-byte big-endian value.
const xlongEscape = 0xFF

// AppendXLong appends the variable-length encoding of v.
func AppendXLong(buf []byte, v int32) []byte {
	if v >= 0 && v < xlongEscape {
		return append(buf, byte(v))
	}
	buf = append(buf, xlongEscape)
	return binary.BigEndian.AppendUint32(buf, uint32(v))
}

// ReadXLong reads one variable-length integer.
func ReadXLong(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:1]); err != nil {
		return 0, truncated(err)
	}
	if b[0] != xlongEscape {
		return int32(b[0]), nil
	}
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, truncated(err)
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}
