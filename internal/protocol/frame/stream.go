package frame

import (
	"bytes"
	"io"
)

// Stream presents a framed link as a plain byte stream. Reads return frame
// payloads back to back; each Write is sent as one or more frames.
type Stream struct {
	r       *Reader
	w       *Writer
	pending []byte
	maxSend int
}

func NewStream(rw io.ReadWriter, limits Limits) *Stream {
	return &Stream{
		r:       NewReader(rw, limits),
		w:       NewWriter(rw),
		maxSend: limits.MaxPayloadBytes,
	}
}

func (s *Stream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		payload, err := s.r.Receive()
		if err != nil {
			return 0, err
		}
		s.pending = payload
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Write frames p, splitting it between DLE and ETX wherever the pair occurs
// and wherever a frame would exceed the payload limit.
func (s *Stream) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := len(p)
		if s.maxSend > 0 && n > s.maxSend {
			n = s.maxSend
		}
		if i := bytes.Index(p[:n], Terminator[:]); i >= 0 {
			n = i + 1
		} else if n < len(p) && p[n-1] == DLE && p[n] == ETX {
			n--
		}
		if n == 0 {
			n = 1
		}
		if err := s.w.Send(p[:n]); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}
