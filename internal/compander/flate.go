package compander

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// FlateName is the compander name of the built-in deflate strategy.
const FlateName = "newtdock.flate"

const DefaultFlateLevel = flate.DefaultCompression

// Flate compresses with raw deflate.
type Flate struct {
	level int
}

func NewFlate(level int) *Flate {
	return &Flate{level: level}
}

func (f *Flate) Decompress(r io.Reader) (io.Reader, error) {
	fr := flate.NewReader(r)
	defer fr.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, fr); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *Flate) Compress(r io.Reader) (io.Reader, error) {
	var out bytes.Buffer
	fw, err := flate.NewWriter(&out, f.level)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return &out, nil
}
